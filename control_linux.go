//go:build linux

package serial

import (
	"time"

	"golang.org/x/sys/unix"
)

// control carries the configuration and modem line operations shared by
// Port and Stream. None of them touch a poll registration.
type control struct {
	h *handle
}

// Name returns the device path the handle was opened with.
func (c control) Name() string { return c.h.name }

// Fd returns the underlying file descriptor. It stays owned by the handle.
func (c control) Fd() int { return c.h.fd }

// Configuration reads the current line settings from the device.
func (c control) Configuration() (Configuration, error) { return c.h.configuration() }

// Apply sets every line parameter of cfg at once. On failure none of them
// is left applied.
func (c control) Apply(cfg Configuration) error { return c.h.apply(cfg) }

func (c control) SetBaudRate(rate int) error            { return c.h.setBaudRate(rate) }
func (c control) SetDataBits(bits DataBits) error       { return c.h.setDataBits(bits) }
func (c control) SetStopBits(stop StopBits) error       { return c.h.setStopBits(stop) }
func (c control) SetParity(parity Parity) error         { return c.h.setParity(parity) }
func (c control) SetFlowControl(flow FlowControl) error { return c.h.setFlowControl(flow) }

// SetTimeout stores an advisory timeout. Poll operations ignore it; the
// blocking adapters use it when the caller's context has no deadline.
func (c control) SetTimeout(d time.Duration) error { return c.h.setTimeout(d) }

// Timeout returns the stored advisory timeout.
func (c control) Timeout() time.Duration { return time.Duration(c.h.timeout.Load()) }

// SetExclusive toggles TIOCEXCL, which makes further opens of the device
// fail with EBUSY for unprivileged processes.
func (c control) SetExclusive(on bool) error {
	req, op := uint(unix.TIOCNXCL), "clear exclusive"
	if on {
		req, op = unix.TIOCEXCL, "set exclusive"
	}
	if err := c.h.ioctlSetInt(op, req, 0); err != nil {
		return err
	}
	c.h.exclusive.Store(on)
	return nil
}

// Exclusive reports whether exclusive mode was last set through SetExclusive.
func (c control) Exclusive() bool { return c.h.exclusive.Load() }

func (c control) setModem(op string, bit int, on bool) error {
	req := uint(unix.TIOCMBIC)
	if on {
		req = unix.TIOCMBIS
	}
	return c.h.ioctlSetPointerInt(op, req, bit)
}

func (c control) modem(op string, bit int) (bool, error) {
	bits, err := c.h.ioctlGetInt(op, unix.TIOCMGET)
	if err != nil {
		return false, err
	}
	return bits&bit != 0, nil
}

func (c control) SetRTS(on bool) error { return c.setModem("rts", unix.TIOCM_RTS, on) }
func (c control) SetDTR(on bool) error { return c.setModem("dtr", unix.TIOCM_DTR, on) }

func (c control) CTS() (bool, error) { return c.modem("cts", unix.TIOCM_CTS) }
func (c control) DSR() (bool, error) { return c.modem("dsr", unix.TIOCM_DSR) }
func (c control) RI() (bool, error)  { return c.modem("ri", unix.TIOCM_RI) }
func (c control) CD() (bool, error)  { return c.modem("cd", unix.TIOCM_CD) }

// BytesToRead returns the number of bytes waiting in the input queue.
func (c control) BytesToRead() (int, error) { return c.h.ioctlGetInt("input queue", unix.TIOCINQ) }

// BytesToWrite returns the number of bytes not yet sent from the output queue.
func (c control) BytesToWrite() (int, error) {
	return c.h.ioctlGetInt("output queue", unix.TIOCOUTQ)
}

// Clear discards the selected kernel queues.
func (c control) Clear(which ClearBuffer) error {
	var q int
	switch which {
	case ClearInput:
		q = unix.TCIFLUSH
	case ClearOutput:
		q = unix.TCOFLUSH
	case ClearAll:
		q = unix.TCIOFLUSH
	default:
		return unsupported("clear buffer", which)
	}
	return c.h.ioctlSetInt("flush", unix.TCFLSH, q)
}

// SetBreak starts transmitting a break condition until ClearBreak.
func (c control) SetBreak() error { return c.h.ioctlSetInt("set break", unix.TIOCSBRK, 0) }

func (c control) ClearBreak() error { return c.h.ioctlSetInt("clear break", unix.TIOCCBRK, 0) }
