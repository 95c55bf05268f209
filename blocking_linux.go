//go:build linux

package serial

import (
	"context"

	"github.com/luhtfiimanal/go-async-serial/poller"
)

// ReadContext blocks until at least one byte is read, an error occurs or
// ctx is done. Cancelling ctx only stops waiting; nothing is sent to the
// device.
func (s *Stream) ReadContext(ctx context.Context, p []byte) (int, error) {
	sig := poller.NewSignal()
	for {
		n, poll, err := s.PollRead(p, sig)
		if poll == Ready {
			return n, err
		}
		select {
		case <-sig.C():
		case <-ctx.Done():
			s.clearWaker(poller.Read)
			return 0, ctx.Err()
		}
	}
}

// WriteContext writes all of p unless an error occurs or ctx is done. It
// returns the number of bytes accepted by the device.
func (s *Stream) WriteContext(ctx context.Context, p []byte) (int, error) {
	sig := poller.NewSignal()
	var written int
	for written < len(p) {
		n, poll, err := s.PollWrite(p[written:], sig)
		written += n
		if err != nil {
			return written, err
		}
		if poll == Ready {
			continue
		}
		select {
		case <-sig.C():
		case <-ctx.Done():
			s.clearWaker(poller.Write)
			return written, ctx.Err()
		}
	}
	return written, nil
}

// FlushContext blocks until the output queue is drained or ctx is done.
func (s *Stream) FlushContext(ctx context.Context) error {
	sig := poller.NewSignal()
	for {
		poll, err := s.PollFlush(sig)
		if poll == Ready {
			return err
		}
		select {
		case <-sig.C():
		case <-ctx.Done():
			s.releaseDrainWaker()
			return ctx.Err()
		}
	}
}

// timeoutContext returns a context bounded by the advisory timeout, if one is set.
func (s *Stream) timeoutContext() (context.Context, context.CancelFunc) {
	if d := s.Timeout(); d > 0 {
		return context.WithTimeout(context.Background(), d)
	}
	return context.WithCancel(context.Background())
}

// Read implements io.Reader. It honours the advisory timeout and returns
// context.DeadlineExceeded when it elapses without data.
func (s *Stream) Read(p []byte) (int, error) {
	ctx, cancel := s.timeoutContext()
	defer cancel()
	return s.ReadContext(ctx, p)
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	ctx, cancel := s.timeoutContext()
	defer cancel()
	return s.WriteContext(ctx, p)
}

// Flush blocks until the output queue is drained.
func (s *Stream) Flush() error {
	ctx, cancel := s.timeoutContext()
	defer cancel()
	return s.FlushContext(ctx)
}

// TryRead makes exactly one non-blocking read attempt and returns
// ErrWouldBlock if no data is available.
func (s *Stream) TryRead(p []byte) (int, error) {
	if _, err := s.registration(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	return s.h.read(p)
}

// TryWrite makes exactly one non-blocking write attempt and returns
// ErrWouldBlock if the device cannot accept data.
func (s *Stream) TryWrite(p []byte) (int, error) {
	if _, err := s.registration(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	return s.h.write(p)
}

// Readable waits until the device may have data to read. The result can be
// a false positive, so the following TryRead may still return
// ErrWouldBlock. It shares the read waker slot with PollRead.
func (s *Stream) Readable(ctx context.Context) error {
	return s.await(ctx, poller.Read)
}

// Writable waits until the device may accept data.
func (s *Stream) Writable(ctx context.Context) error {
	return s.await(ctx, poller.Write)
}

func (s *Stream) await(ctx context.Context, d poller.Direction) error {
	reg, err := s.register(d)
	if err != nil {
		return err
	}
	seq := reg.Sequence(d)
	ready, err := s.h.ready(d == poller.Write)
	if err != nil || ready {
		return err
	}
	sig := poller.NewSignal()
	armed, err := reg.Arm(d, sig, seq)
	if err != nil {
		return s.armFailed(reg, err)
	}
	if !armed {
		return nil
	}
	select {
	case <-sig.C():
		_, err := s.registration()
		return err
	case <-ctx.Done():
		reg.Clear(d)
		return ctx.Err()
	}
}

