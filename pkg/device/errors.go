package device

import "errors"

var (
	// ErrDeviceControlFailed is returned when the payload controller did not
	// acknowledge a device command.
	ErrDeviceControlFailed = errors.New("device control failed")

	// ErrUnknownKind is returned for a device kind outside the composite set.
	ErrUnknownKind = errors.New("unknown composite device")

	// ErrValueOutOfRange is returned for a raw value the device cannot take.
	ErrValueOutOfRange = errors.New("device value out of range")
)
