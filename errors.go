package serial

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by any operation on a closed port or stream.
	ErrClosed = errors.New("serial: port closed")

	// ErrWouldBlock is returned by TryRead and TryWrite when the device is not
	// ready. Poll operations never return it; they report Pending instead.
	ErrWouldBlock = errors.New("serial: operation would block")

	// ErrUnsupportedValue marks a configuration value that was rejected,
	// either up front or by the device after it was written.
	ErrUnsupportedValue = errors.New("serial: unsupported value")

	// ErrDeviceIO marks a device-level failure while reading or applying
	// line settings.
	ErrDeviceIO = errors.New("serial: device i/o failure")

	// ErrPlatformNotSupported is returned by Open and Pair off Linux.
	ErrPlatformNotSupported = errors.New("serial: platform not supported (requires Linux)")
)

// ConfigurationError reports a rejected line setting. The handle stays open
// and no setting from the failed call is left applied.
type ConfigurationError struct {
	Param string
	Value any
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("serial: %s: %v", e.Param, e.Err)
	}
	return fmt.Sprintf("serial: %s %v: %v", e.Param, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func unsupported(param string, value any) *ConfigurationError {
	return &ConfigurationError{Param: param, Value: value, Err: ErrUnsupportedValue}
}

func deviceFailure(param string, err error) *ConfigurationError {
	return &ConfigurationError{Param: param, Err: fmt.Errorf("%w: %w", ErrDeviceIO, err)}
}
