package laser

import "errors"

var (
	// ErrControlFailed is returned when a pulsed laser command was not
	// acknowledged.
	ErrControlFailed = errors.New("pulsed laser control failed")

	// ErrPollingFetchFailed is logged when a temperature poll fails. It never
	// stops the poller.
	ErrPollingFetchFailed = errors.New("pulsed laser temperature fetch failed")

	// ErrUnknownOperation is returned for an operation outside the control set.
	ErrUnknownOperation = errors.New("unknown pulsed laser operation")
)
