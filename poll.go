package serial

import "github.com/luhtfiimanal/go-async-serial/poller"

// Poll is the outcome of a poll operation.
type Poll uint8

const (
	// Ready means the operation completed, successfully or with an error.
	Ready Poll = iota
	// Pending means the device was not ready and the waker passed to the
	// call will be woken once it may be.
	Pending
)

func (p Poll) String() string {
	if p == Pending {
		return "pending"
	}
	return "ready"
}

// Waker resumes a task that received Pending.
type Waker = poller.Waker

// WakerFunc adapts a plain function to Waker.
type WakerFunc = poller.WakerFunc
