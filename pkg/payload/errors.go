package payload

import "errors"

var (
	// ErrUnreachable is returned when the payload controller cannot be reached.
	ErrUnreachable = errors.New("payload controller unreachable")

	// ErrRejected is returned when the payload controller answers success=false.
	ErrRejected = errors.New("payload controller rejected the request")

	// ErrUnexpectedStatus is returned on a non-2xx HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)
