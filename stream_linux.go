//go:build linux

package serial

import (
	"errors"
	"io"
	"sync"

	"github.com/luhtfiimanal/go-async-serial/poller"
)

var (
	_ Configurator  = (*Stream)(nil)
	_ Configurator  = (*Port)(nil)
	_ io.ReadWriter = (*Stream)(nil)
)

// Stream is an asynchronous byte stream over a serial device. Poll
// operations never block: they either complete (Ready) or install the
// given waker and report Pending. One reader and one writer may poll
// concurrently; configuration calls may run alongside both.
type Stream struct {
	control
	p *poller.Poller

	mu     sync.Mutex
	reg    *poller.Registration
	regErr error
	drain  *drainOp
	closed bool

	closeOnce sync.Once
	closeErr  error
}

func newStream(h *handle, p *poller.Poller) *Stream {
	return &Stream{control: control{h: h}, p: p}
}

// PollRead reads at most len(p) bytes. A short read is returned as is.
// End of stream is reported as io.EOF.
func (s *Stream) PollRead(p []byte, w Waker) (int, Poll, error) {
	if len(p) == 0 {
		return 0, Ready, nil
	}
	return s.poll(poller.Read, w, func() (int, error) { return s.h.read(p) })
}

// PollWrite writes at most len(p) bytes. A short write is returned as is.
func (s *Stream) PollWrite(p []byte, w Waker) (int, Poll, error) {
	if len(p) == 0 {
		return 0, Ready, nil
	}
	return s.poll(poller.Write, w, func() (int, error) { return s.h.write(p) })
}

// poll runs one non-blocking attempt and parks w on would-block. An event
// delivered between the attempt and Arm moves the sequence, in which case
// the attempt is repeated instead of parking.
func (s *Stream) poll(d poller.Direction, w Waker, op func() (int, error)) (int, Poll, error) {
	for {
		reg, err := s.registration()
		if err != nil {
			return 0, Ready, err
		}
		var seq uint64
		if reg != nil {
			seq = reg.Sequence(d)
		}
		n, err := op()
		if !errors.Is(err, ErrWouldBlock) {
			if reg != nil {
				reg.Clear(d)
			}
			return n, Ready, err
		}
		if reg, err = s.register(d); err != nil {
			return 0, Ready, err
		}
		armed, err := reg.Arm(d, w, seq)
		if err != nil {
			return 0, Ready, s.armFailed(reg, err)
		}
		if armed {
			return 0, Pending, nil
		}
	}
}

// armFailed handles a registration that was shut down underneath the
// stream. After Close that is ErrClosed; otherwise the poller stopped and
// the stream keeps failing with a RegistrationError.
func (s *Stream) armFailed(reg *poller.Registration, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.regErr == nil {
		s.regErr = &poller.RegistrationError{Op: "arm", Fd: reg.Fd(), Err: err}
	}
	return s.regErr
}

// clearWaker drops the waker parked for d, if the stream is registered.
func (s *Stream) clearWaker(d poller.Direction) {
	s.mu.Lock()
	reg := s.reg
	s.mu.Unlock()
	if reg != nil {
		reg.Clear(d)
	}
}

func (s *Stream) registration() (*poller.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.reg, s.regErr
}

// register makes sure the registration includes d. A failure is sticky.
func (s *Stream) register(d poller.Direction) (*poller.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return nil, ErrClosed
	case s.regErr != nil:
		return nil, s.regErr
	case s.reg == nil:
		reg, err := s.p.Register(s.h.fd, d.Interest())
		if err != nil {
			s.regErr = err
			return nil, err
		}
		s.reg = reg
	case !s.reg.Interest().Has(d.Interest()):
		if err := s.p.Reregister(s.reg, s.reg.Interest()|d.Interest()); err != nil {
			s.regErr = err
			return nil, err
		}
	}
	return s.reg, nil
}

// PollFlush waits until every byte written so far has been transmitted.
// When the output queue and the transmitter are already empty it is Ready
// at once; otherwise the wait runs on another goroutine and w is woken when
// it ends. The next call returns its result.
func (s *Stream) PollFlush(w Waker) (Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Ready, ErrClosed
	}
	if d := s.drain; d != nil {
		done, err := d.park(w)
		if !done {
			return Pending, nil
		}
		s.drain = nil
		return Ready, err
	}
	drained, err := s.h.outputDrained()
	if err != nil {
		return Ready, err
	}
	if drained {
		return Ready, nil
	}
	d, err := s.h.startDrain(w)
	if err != nil {
		return Ready, err
	}
	s.drain = d
	return Pending, nil
}

// releaseDrainWaker forgets the waker of an outstanding drain.
func (s *Stream) releaseDrainWaker() {
	s.mu.Lock()
	d := s.drain
	s.mu.Unlock()
	if d != nil {
		d.forget()
	}
}

// Shutdown makes one non-blocking flush attempt, ignoring its result, and
// closes the stream.
func (s *Stream) Shutdown() error {
	_, _ = s.PollFlush(WakerFunc(func() {}))
	return s.Close()
}

// Close deregisters the stream, wakes every parked waker and closes the
// device. Output still queued behind an unfinished flush is discarded so
// the drain lets go of the device. Later operations return ErrClosed.
// Close is idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		reg, drain := s.reg, s.drain
		s.reg, s.drain = nil, nil
		s.mu.Unlock()

		if drain != nil {
			if !drain.finished() {
				_ = s.h.discardOutput()
			}
			drain.release()
		}
		derr := s.p.Deregister(reg)
		s.closeErr = errors.Join(s.h.close(), derr)
	})
	return s.closeErr
}

// drainOp is an output drain running off the polling goroutine.
type drainOp struct {
	mu    sync.Mutex
	done  bool
	err   error
	waker Waker
}

// park reports the result if the drain has ended, otherwise replaces the
// waker to notify.
func (d *drainOp) park(w Waker) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return true, d.err
	}
	d.waker = w
	return false, nil
}

func (d *drainOp) finished() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *drainOp) forget() {
	d.mu.Lock()
	d.waker = nil
	d.mu.Unlock()
}

// release wakes the parked waker without waiting for the drain.
func (d *drainOp) release() {
	d.mu.Lock()
	w := d.waker
	d.waker = nil
	d.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

func (d *drainOp) finish(err error) {
	d.mu.Lock()
	d.done, d.err = true, err
	w := d.waker
	d.waker = nil
	d.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}
