package envsensors

import (
	"errors"
	"fmt"
)

// ErrIllegalState is returned when an operation is not allowed in the current
// device state. It never involves any bus traffic.
var ErrIllegalState = errors.New("illegal state")

var (
	ErrNotOpen     = fmt.Errorf("%w: device not open", ErrIllegalState)
	ErrUnsupported = fmt.Errorf("%w: operation not supported by device", ErrIllegalState)
)

// ErrConfiguration is returned when the requested quantity is disabled by the
// current device configuration.
var ErrConfiguration = errors.New("configuration error")

// TransportError wraps a failure reported by the register port.
type TransportError struct {
	Op  string
	Reg byte
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s register %#02x: %v", e.Op, e.Reg, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BringUpError is returned when a driver could not be connected to its device.
// The underlying port has already been released when it is returned.
type BringUpError struct {
	Device string
	Err    error
}

func (e *BringUpError) Error() string {
	return fmt.Sprintf("%s: bring-up failed: %v", e.Device, e.Err)
}

func (e *BringUpError) Unwrap() error {
	return e.Err
}
