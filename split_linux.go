//go:build linux

package serial

import (
	"context"
	"sync"
	"sync/atomic"
)

type splitRef struct {
	s    *Stream
	refs atomic.Int32
}

func (r *splitRef) release() error {
	if r.refs.Add(-1) == 0 {
		return r.s.Close()
	}
	return nil
}

// Split divides s into a read half and a write half that can be handed to
// different goroutines. The stream is closed once both halves are closed.
func (s *Stream) Split() (*ReadHalf, *WriteHalf) {
	ref := &splitRef{s: s}
	ref.refs.Store(2)
	return &ReadHalf{ref: ref}, &WriteHalf{ref: ref}
}

// ReadHalf is the read direction of a split Stream.
type ReadHalf struct {
	ref  *splitRef
	once sync.Once
	err  error
}

func (r *ReadHalf) PollRead(p []byte, w Waker) (int, Poll, error) { return r.ref.s.PollRead(p, w) }
func (r *ReadHalf) Read(p []byte) (int, error)                     { return r.ref.s.Read(p) }
func (r *ReadHalf) TryRead(p []byte) (int, error)                  { return r.ref.s.TryRead(p) }
func (r *ReadHalf) Readable(ctx context.Context) error             { return r.ref.s.Readable(ctx) }

func (r *ReadHalf) ReadContext(ctx context.Context, p []byte) (int, error) {
	return r.ref.s.ReadContext(ctx, p)
}

// Close releases the read half. Calling it again has no effect.
func (r *ReadHalf) Close() error {
	r.once.Do(func() { r.err = r.ref.release() })
	return r.err
}

// WriteHalf is the write direction of a split Stream.
type WriteHalf struct {
	ref  *splitRef
	once sync.Once
	err  error
}

func (w *WriteHalf) PollWrite(p []byte, wk Waker) (int, Poll, error) { return w.ref.s.PollWrite(p, wk) }
func (w *WriteHalf) PollFlush(wk Waker) (Poll, error)                { return w.ref.s.PollFlush(wk) }
func (w *WriteHalf) Write(p []byte) (int, error)                     { return w.ref.s.Write(p) }
func (w *WriteHalf) TryWrite(p []byte) (int, error)                  { return w.ref.s.TryWrite(p) }
func (w *WriteHalf) Flush() error                                    { return w.ref.s.Flush() }
func (w *WriteHalf) FlushContext(ctx context.Context) error          { return w.ref.s.FlushContext(ctx) }
func (w *WriteHalf) Writable(ctx context.Context) error              { return w.ref.s.Writable(ctx) }

func (w *WriteHalf) WriteContext(ctx context.Context, p []byte) (int, error) {
	return w.ref.s.WriteContext(ctx, p)
}

// Shutdown makes one non-blocking flush attempt and releases the write half.
func (w *WriteHalf) Shutdown() error {
	_, _ = w.ref.s.PollFlush(WakerFunc(func() {}))
	return w.Close()
}

// Close releases the write half. Calling it again has no effect.
func (w *WriteHalf) Close() error {
	w.once.Do(func() { w.err = w.ref.release() })
	return w.err
}
