package poller

import (
	"errors"
	"fmt"
)

var (
	// ErrPlatformNotSupported is returned on platforms without epoll.
	ErrPlatformNotSupported = errors.New("poller: platform not supported (requires Linux/epoll)")

	// ErrAlreadyRegistered is wrapped by a RegistrationError when the fd is
	// already present in the registration table.
	ErrAlreadyRegistered = errors.New("poller: fd already registered")

	// ErrClosed is returned for operations on a closed poller or on a
	// registration that has been deregistered.
	ErrClosed = errors.New("poller: closed")
)

// RegistrationError reports that an fd could not be associated with the
// event source. A stream that hits it should be considered unusable.
type RegistrationError struct {
	Op  string
	Fd  int
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("poller: %s fd %d: %v", e.Op, e.Fd, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
