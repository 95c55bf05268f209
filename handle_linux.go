//go:build linux

package serial

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// handle is an exclusively owned, non-blocking tty descriptor. The RWMutex
// only keeps Close from releasing the fd under a syscall in flight; every
// syscall made while holding it returns immediately. cfgMu serializes
// read-modify-write cycles on the line settings.
type handle struct {
	mu     sync.RWMutex
	cfgMu  sync.Mutex
	fd     int
	name   string
	closed bool
	lc     lineControl

	timeout   atomic.Int64
	exclusive atomic.Bool
}

func newHandle(fd int, name string) (*handle, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("set nonblock %s: %w", name, err)
	}
	return &handle{fd: fd, name: name, lc: termiosControl{}}, nil
}

func (h *handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return unix.Close(h.fd)
}

func (h *handle) read(p []byte) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Read(h.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("read %s: %w", h.name, err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

func (h *handle) write(p []byte) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Write(h.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("write %s: %w", h.name, err)
		case n == 0:
			return 0, ErrWouldBlock
		}
		return n, nil
	}
}

// ready reports the current level readiness of one direction without
// consuming anything.
func (h *handle) ready(write bool) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false, ErrClosed
	}
	var events int16 = unix.POLLIN
	if write {
		events = unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(h.fd), Events: events}}
	for {
		_, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return fds[0].Revents&(events|unix.POLLERR|unix.POLLHUP) != 0, nil
	}
}

func (h *handle) ioctlGetInt(op string, req uint) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrClosed
	}
	v, err := unix.IoctlGetInt(h.fd, req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", op, h.name, err)
	}
	return v, nil
}

func (h *handle) ioctlSetInt(op string, req uint, value int) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	if err := unix.IoctlSetInt(h.fd, req, value); err != nil {
		return fmt.Errorf("%s %s: %w", op, h.name, err)
	}
	return nil
}

func (h *handle) ioctlSetPointerInt(op string, req uint, value int) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	if err := unix.IoctlSetPointerInt(h.fd, req, value); err != nil {
		return fmt.Errorf("%s %s: %w", op, h.name, err)
	}
	return nil
}

func (h *handle) outputDrained() (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false, ErrClosed
	}
	ok, err := h.lc.outputDrained(h.fd)
	if err != nil {
		return false, fmt.Errorf("output queue %s: %w", h.name, err)
	}
	return ok, nil
}

func (h *handle) discardOutput() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	return h.lc.discardOutput(h.fd)
}

// startDrain waits for the output to be transmitted (tcdrain) on a
// duplicate descriptor in its own goroutine, so neither the caller nor
// Close blocks on it.
func (h *handle) startDrain(w Waker) (*drainOp, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrClosed
	}
	fd, err := unix.Dup(h.fd)
	if err != nil {
		return nil, fmt.Errorf("drain %s: %w", h.name, err)
	}
	d := &drainOp{waker: w}
	lc := h.lc
	go func() {
		err := lc.drain(fd)
		unix.Close(fd)
		if err != nil {
			err = fmt.Errorf("drain %s: %w", h.name, err)
		}
		d.finish(err)
	}()
	return d, nil
}

func (h *handle) makeRaw() error {
	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	t, err := h.lc.get(h.fd)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	makeRaw(t)
	if err := h.lc.set(h.fd, t); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

func (h *handle) configuration() (Configuration, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return Configuration{}, ErrClosed
	}
	t, err := h.lc.get(h.fd)
	if err != nil {
		return Configuration{}, deviceFailure("get termios", err)
	}
	c := decodeTermios(t)
	c.Timeout = time.Duration(h.timeout.Load())
	return c, nil
}

// modify applies edit to a copy of the current termios, writes it, reads it
// back and restores the previous settings if check finds a field the device
// did not take. Nothing is written when edit fails.
func (h *handle) modify(param string, edit func(*unix.Termios) error, check func(Configuration) *ConfigurationError) error {
	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	old, err := h.lc.get(h.fd)
	if err != nil {
		return deviceFailure(param, err)
	}
	want := *old
	if err := edit(&want); err != nil {
		return err
	}
	if err := h.lc.set(h.fd, &want); err != nil {
		_ = h.lc.set(h.fd, old)
		return deviceFailure(param, err)
	}
	got, err := h.lc.get(h.fd)
	if err != nil {
		_ = h.lc.set(h.fd, old)
		return deviceFailure(param, err)
	}
	if cerr := check(decodeTermios(got)); cerr != nil {
		if err := h.lc.set(h.fd, old); err != nil {
			return deviceFailure(param, err)
		}
		return cerr
	}
	return nil
}

func (h *handle) apply(c Configuration) error {
	err := h.modify("configuration",
		func(t *unix.Termios) error { return encodeTermios(t, c) },
		func(got Configuration) *ConfigurationError { return mismatch(c, got) },
	)
	if err != nil {
		return err
	}
	h.timeout.Store(int64(c.Timeout))
	return nil
}

func (h *handle) setBaudRate(rate int) error {
	return h.modify("baud rate",
		func(t *unix.Termios) error { return setBaudRate(t, rate) },
		func(got Configuration) *ConfigurationError {
			if got.BaudRate != rate {
				return unsupported("baud rate", rate)
			}
			return nil
		},
	)
}

func (h *handle) setDataBits(bits DataBits) error {
	return h.modify("data bits",
		func(t *unix.Termios) error { return setDataBits(t, bits) },
		func(got Configuration) *ConfigurationError {
			if got.DataBits != bits {
				return unsupported("data bits", int(bits))
			}
			return nil
		},
	)
}

func (h *handle) setStopBits(stop StopBits) error {
	return h.modify("stop bits",
		func(t *unix.Termios) error { return setStopBits(t, stop) },
		func(got Configuration) *ConfigurationError {
			if got.StopBits != stop {
				return unsupported("stop bits", stop)
			}
			return nil
		},
	)
}

func (h *handle) setParity(parity Parity) error {
	return h.modify("parity",
		func(t *unix.Termios) error { return setParity(t, parity) },
		func(got Configuration) *ConfigurationError {
			if got.Parity != parity {
				return unsupported("parity", parity)
			}
			return nil
		},
	)
}

func (h *handle) setFlowControl(flow FlowControl) error {
	return h.modify("flow control",
		func(t *unix.Termios) error { return setFlowControl(t, flow) },
		func(got Configuration) *ConfigurationError {
			if got.FlowControl != flow {
				return unsupported("flow control", flow)
			}
			return nil
		},
	)
}

func (h *handle) setTimeout(d time.Duration) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	h.timeout.Store(int64(d))
	return nil
}
