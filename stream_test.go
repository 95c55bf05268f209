//go:build linux

package serial

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luhtfiimanal/go-async-serial/poller"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestPoller(t *testing.T) *poller.Poller {
	t.Helper()
	p, err := poller.New()
	require.NoError(t, err)
	p.Start()
	t.Cleanup(func() { p.Close() })
	return p
}

func newTestPair(t *testing.T) (master, slave *Stream) {
	t.Helper()
	master, slave, err := Pair(WithPoller(newTestPoller(t)))
	require.NoError(t, err)
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})
	return master, slave
}

type testWaker struct {
	n  atomic.Int32
	ch chan struct{}
}

func newTestWaker() *testWaker {
	return &testWaker{ch: make(chan struct{}, 16)}
}

func (w *testWaker) Wake() {
	w.n.Add(1)
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func waitWake(t *testing.T, w *testWaker) {
	t.Helper()
	select {
	case <-w.ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for wake")
	}
}

func requireNoWake(t *testing.T, w *testWaker) {
	t.Helper()
	select {
	case <-w.ch:
		t.Fatal("unexpected wake")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStream_EmptyBufferIsReady(t *testing.T) {
	_, slave := newTestPair(t)
	w := newTestWaker()

	n, poll, err := slave.PollRead(nil, w)
	require.NoError(t, err)
	require.Equal(t, Ready, poll)
	require.Zero(t, n)

	n, poll, err = slave.PollWrite([]byte{}, w)
	require.NoError(t, err)
	require.Equal(t, Ready, poll)
	require.Zero(t, n)

	require.Nil(t, slave.reg, "empty buffers must not register")
	requireNoWake(t, w)
}

func TestStream_PollReadPendingThenReady(t *testing.T) {
	master, slave := newTestPair(t)
	w := newTestWaker()
	buf := make([]byte, 16)

	_, poll, err := slave.PollRead(buf, w)
	require.NoError(t, err)
	require.Equal(t, Pending, poll)
	require.True(t, slave.reg.Pending(poller.Read))

	_, err = master.Write([]byte("hi"))
	require.NoError(t, err)
	waitWake(t, w)

	n, poll, err := slave.PollRead(buf, w)
	require.NoError(t, err)
	require.Equal(t, Ready, poll)
	require.Equal(t, "hi", string(buf[:n]))
	require.False(t, slave.reg.Pending(poller.Read), "ready must not leave a waker behind")
	require.EqualValues(t, 1, w.n.Load(), "the waker fires exactly once")
}

func TestStream_ShortReadIsReturned(t *testing.T) {
	master, slave := newTestPair(t)
	_, err := master.Write([]byte("abcdef"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, slave.Readable(ctx))

	buf := make([]byte, 4)
	n, poll, err := slave.PollRead(buf, newTestWaker())
	require.NoError(t, err)
	require.Equal(t, Ready, poll)
	require.Equal(t, "abcd", string(buf[:n]))

	n, poll, err = slave.PollRead(buf, newTestWaker())
	require.NoError(t, err)
	require.Equal(t, Ready, poll)
	require.Equal(t, "ef", string(buf[:n]))
}

func TestStream_SpuriousWakeRepolls(t *testing.T) {
	_, slave := newTestPair(t)
	w := newTestWaker()
	buf := make([]byte, 8)

	_, poll, err := slave.PollRead(buf, w)
	require.NoError(t, err)
	require.Equal(t, Pending, poll)

	// Polling again without data parks again.
	_, poll, err = slave.PollRead(buf, w)
	require.NoError(t, err)
	require.Equal(t, Pending, poll)
	require.True(t, slave.reg.Pending(poller.Read))
}

func TestStream_LastWakerWins(t *testing.T) {
	master, slave := newTestPair(t)
	w1, w2 := newTestWaker(), newTestWaker()
	buf := make([]byte, 8)

	_, poll, err := slave.PollRead(buf, w1)
	require.NoError(t, err)
	require.Equal(t, Pending, poll)
	_, poll, err = slave.PollRead(buf, w2)
	require.NoError(t, err)
	require.Equal(t, Pending, poll)

	_, err = master.Write([]byte("x"))
	require.NoError(t, err)
	waitWake(t, w2)
	require.Zero(t, w1.n.Load())
}

func TestStream_DirectionsAreIndependent(t *testing.T) {
	_, slave := newTestPair(t)
	rw := newTestWaker()

	_, poll, err := slave.PollRead(make([]byte, 8), rw)
	require.NoError(t, err)
	require.Equal(t, Pending, poll)

	n, poll, err := slave.PollWrite([]byte("out"), newTestWaker())
	require.NoError(t, err)
	require.Equal(t, Ready, poll)
	require.Equal(t, 3, n)

	require.True(t, slave.reg.Pending(poller.Read), "write must not disturb the read waker")
	requireNoWake(t, rw)
}

func TestStream_ConfigurationLeavesRegistrationAlone(t *testing.T) {
	master, slave := newTestPair(t)
	w := newTestWaker()
	buf := make([]byte, 8)

	_, poll, err := slave.PollRead(buf, w)
	require.NoError(t, err)
	require.Equal(t, Pending, poll)

	require.NoError(t, slave.SetBaudRate(9600))
	require.True(t, slave.reg.Pending(poller.Read))

	_, err = master.Write([]byte("ok"))
	require.NoError(t, err)
	waitWake(t, w)
	n, _, err := slave.PollRead(buf, w)
	require.NoError(t, err)
	require.Equal(t, "ok", string(buf[:n]))
}

func TestStream_CloseWakesParkedWaker(t *testing.T) {
	_, slave := newTestPair(t)
	w := newTestWaker()
	buf := make([]byte, 8)

	_, poll, err := slave.PollRead(buf, w)
	require.NoError(t, err)
	require.Equal(t, Pending, poll)

	require.NoError(t, slave.Close())
	waitWake(t, w)

	_, poll, err = slave.PollRead(buf, w)
	require.ErrorIs(t, err, ErrClosed)
	require.Equal(t, Ready, poll)
	require.NoError(t, slave.Close(), "close is idempotent")

	_, err = slave.Configuration()
	require.ErrorIs(t, err, ErrClosed)
}

func TestStream_RegistrationErrorIsSticky(t *testing.T) {
	p, err := poller.New()
	require.NoError(t, err)
	master, slave, err := Pair(WithPoller(p))
	require.NoError(t, err)
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})
	require.NoError(t, p.Close())

	buf := make([]byte, 8)
	_, poll, firstErr := slave.PollRead(buf, newTestWaker())
	require.Equal(t, Ready, poll)
	var regErr *poller.RegistrationError
	require.ErrorAs(t, firstErr, &regErr)
	require.ErrorIs(t, firstErr, poller.ErrClosed)

	// Data arriving later does not revive the stream.
	_, werr := master.TryWrite([]byte("late"))
	require.NoError(t, werr)
	_, poll, secondErr := slave.PollRead(buf, newTestWaker())
	require.Equal(t, Ready, poll)
	require.Same(t, regErr, secondErr)
}

func TestStream_StoppedPollerFailsParkedPoll(t *testing.T) {
	p, err := poller.New()
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	master, slave, err := Pair(WithPoller(p))
	require.NoError(t, err)
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	w := newTestWaker()
	buf := make([]byte, 8)
	_, poll, err := slave.PollRead(buf, w)
	require.NoError(t, err)
	require.Equal(t, Pending, poll)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	waitWake(t, w)

	_, poll, err = slave.PollRead(buf, w)
	require.Equal(t, Ready, poll)
	var regErr *poller.RegistrationError
	require.ErrorAs(t, err, &regErr)
	require.ErrorIs(t, err, poller.ErrClosed)

	// Data arriving afterwards does not revive the stream.
	_, err = master.Write([]byte("x"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, poll, err := slave.PollRead(buf, w)
		return poll == Ready && errors.As(err, &regErr)
	}, time.Second, 5*time.Millisecond)
}

func TestStream_TryReadWouldBlock(t *testing.T) {
	master, slave := newTestPair(t)

	_, err := slave.TryRead(make([]byte, 8))
	require.ErrorIs(t, err, ErrWouldBlock)

	_, err = master.TryWrite([]byte("z"))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, slave.Readable(ctx))

	buf := make([]byte, 8)
	n, err := slave.TryRead(buf)
	require.NoError(t, err)
	require.Equal(t, "z", string(buf[:n]))
}

func TestStream_ReadContextCancel(t *testing.T) {
	_, slave := newTestPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := slave.ReadContext(ctx, make([]byte, 8))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, slave.reg.Pending(poller.Read), "a cancelled read leaves no waker behind")
}

func TestStream_ReadUsesAdvisoryTimeout(t *testing.T) {
	_, slave := newTestPair(t)
	require.NoError(t, slave.SetTimeout(30*time.Millisecond))

	start := time.Now()
	_, err := slave.Read(make([]byte, 8))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	cfg, err := slave.Configuration()
	require.NoError(t, err)
	require.Equal(t, 30*time.Millisecond, cfg.Timeout)
}

func TestStream_CloseUnblocksRead(t *testing.T) {
	_, slave := newTestPair(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := slave.Read(make([]byte, 8))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, slave.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestStream_PeerHangupEndsRead(t *testing.T) {
	master, slave := newTestPair(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := slave.Read(make([]byte, 8))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, master.Close())

	select {
	case err := <-errCh:
		// The pty slave reports EIO once the master is gone.
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after hangup")
	}
}

func TestStream_WriteAllAcrossPending(t *testing.T) {
	master, slave := newTestPair(t)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := master.WriteContext(ctx, payload)
		if err == nil && n != len(payload) {
			return errors.New("short write")
		}
		return err
	})
	got := make([]byte, 0, len(payload))
	g.Go(func() error {
		buf := make([]byte, 1024)
		for len(got) < len(payload) {
			n, err := slave.ReadContext(ctx, buf)
			if err != nil {
				return err
			}
			got = append(got, buf[:n]...)
		}
		return nil
	})
	require.NoError(t, g.Wait())
	require.Equal(t, payload, got)
}

func TestStream_Flush(t *testing.T) {
	master, slave := newTestPair(t)
	_, err := slave.Write([]byte("flush me"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, slave.FlushContext(ctx))

	buf := make([]byte, 16)
	n, err := master.ReadContext(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "flush me", string(buf[:n]))

	require.NoError(t, slave.Shutdown())
	_, err = slave.TryWrite([]byte("x"))
	require.ErrorIs(t, err, ErrClosed)
}

// stuckLine is the real termios control except that the output never
// drains until it is discarded, as with a peer holding CTS low.
type stuckLine struct {
	termiosControl
	release   chan struct{}
	once      sync.Once
	discarded atomic.Bool
}

func newStuckLine() *stuckLine { return &stuckLine{release: make(chan struct{})} }

func (l *stuckLine) outputDrained(int) (bool, error) { return false, nil }

func (l *stuckLine) drain(int) error {
	<-l.release
	return nil
}

func (l *stuckLine) discardOutput(int) error {
	l.discarded.Store(true)
	l.once.Do(func() { close(l.release) })
	return nil
}

func TestStream_CloseReleasesStuckDrain(t *testing.T) {
	_, slave := newTestPair(t)
	lc := newStuckLine()
	slave.h.lc = lc
	w := newTestWaker()

	poll, err := slave.PollFlush(w)
	require.NoError(t, err)
	require.Equal(t, Pending, poll)
	d := slave.drain
	require.NotNil(t, d)

	poll, err = slave.PollFlush(w)
	require.NoError(t, err)
	require.Equal(t, Pending, poll, "the drain is still running")

	require.NoError(t, slave.Close())
	waitWake(t, w)
	require.True(t, lc.discarded.Load())
	require.Eventually(t, d.finished, time.Second, 5*time.Millisecond)

	poll, err = slave.PollFlush(w)
	require.Equal(t, Ready, poll)
	require.ErrorIs(t, err, ErrClosed)
}

func TestStream_FlushContextCancelForgetsWaker(t *testing.T) {
	_, slave := newTestPair(t)
	lc := newStuckLine()
	slave.h.lc = lc
	t.Cleanup(func() { lc.discardOutput(0) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, slave.FlushContext(ctx), context.DeadlineExceeded)

	d := slave.drain
	require.NotNil(t, d)
	d.mu.Lock()
	require.Nil(t, d.waker)
	d.mu.Unlock()
	require.False(t, lc.discarded.Load(), "cancelling a flush does not drop output")
}

func TestDrainOp_ParkAndFinish(t *testing.T) {
	w1, w2 := newTestWaker(), newTestWaker()
	d := &drainOp{waker: w1}

	done, err := d.park(w2)
	require.False(t, done)
	require.NoError(t, err)

	boom := errors.New("boom")
	d.finish(boom)
	waitWake(t, w2)
	require.Zero(t, w1.n.Load())

	done, err = d.park(w1)
	require.True(t, done)
	require.ErrorIs(t, err, boom)
}

func TestStream_SplitClosesAfterBothHalves(t *testing.T) {
	master, slave := newTestPair(t)
	r, w := slave.Split()

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err := w.TryWrite([]byte("still open"))
	require.NoError(t, err)

	buf := make([]byte, 32)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := master.ReadContext(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "still open", string(buf[:n]))

	require.NoError(t, w.Close())
	_, err = slave.TryWrite([]byte("x"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestStream_SplitHalvesRunConcurrently(t *testing.T) {
	master, slave := newTestPair(t)
	r, w := slave.Split()
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		buf := make([]byte, 8)
		n, err := r.ReadContext(ctx, buf)
		if err != nil {
			return err
		}
		if string(buf[:n]) != "in" {
			return errors.New("unexpected input " + string(buf[:n]))
		}
		return nil
	})
	g.Go(func() error {
		_, err := w.WriteContext(ctx, []byte("out"))
		return err
	})
	_, err := master.WriteContext(ctx, []byte("in"))
	require.NoError(t, err)
	require.NoError(t, g.Wait())

	buf := make([]byte, 8)
	n, err := master.ReadContext(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "out", string(buf[:n]))
}
