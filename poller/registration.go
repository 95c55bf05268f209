package poller

import "sync"

// Registration is the association of one fd with a Poller. It holds one
// waker slot and one readiness sequence counter per direction.
//
// The sequence lets a caller detect an event that raced its failed
// non-blocking attempt: sample Sequence before the attempt and pass it to
// Arm; Arm refuses to park when the counter moved in between.
type Registration struct {
	fd int

	mu       sync.Mutex
	interest Interest
	seq      [2]uint64
	wakers   [2]Waker
	closed   bool
}

func newRegistration(fd int, interest Interest) *Registration {
	return &Registration{fd: fd, interest: interest}
}

// Fd returns the registered file descriptor.
func (r *Registration) Fd() int { return r.fd }

// Interest returns the current interest set.
func (r *Registration) Interest() Interest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interest
}

// Sequence returns the number of readiness events delivered for d so far.
func (r *Registration) Sequence(d Direction) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq[d]
}

// Arm installs w for direction d, replacing any previous waker, unless a
// readiness event for d was delivered after seq was sampled. It reports
// false in that case and the caller should retry its operation instead of
// parking. Arm fails with ErrClosed once the registration is deregistered.
func (r *Registration) Arm(d Direction, w Waker, seq uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrClosed
	}
	if r.seq[d] != seq {
		return false, nil
	}
	r.wakers[d] = w
	return true, nil
}

// SetWaker installs w for direction d unconditionally (last writer wins).
func (r *Registration) SetWaker(d Direction, w Waker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.wakers[d] = w
	return nil
}

// Clear drops the waker installed for d, if any.
func (r *Registration) Clear(d Direction) {
	r.mu.Lock()
	r.wakers[d] = nil
	r.mu.Unlock()
}

// Pending reports whether a waker is installed for d.
func (r *Registration) Pending(d Direction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wakers[d] != nil
}

// Closed reports whether the registration has been deregistered.
func (r *Registration) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Registration) setInterest(i Interest) {
	r.mu.Lock()
	r.interest = i
	r.mu.Unlock()
}

// notify records a readiness event and consumes the wakers for the ready
// directions. Wake runs outside the lock so a waker may re-enter Arm.
func (r *Registration) notify(ready Interest) {
	var wake [2]Waker
	r.mu.Lock()
	for _, d := range [...]Direction{Read, Write} {
		if ready&d.Interest() == 0 {
			continue
		}
		r.seq[d]++
		wake[d], r.wakers[d] = r.wakers[d], nil
	}
	r.mu.Unlock()
	for _, w := range wake {
		if w != nil {
			w.Wake()
		}
	}
}

// shutdown marks the registration closed and wakes every parked task so it
// re-polls and observes the closed state.
func (r *Registration) shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	wake := r.wakers
	r.wakers = [2]Waker{}
	r.mu.Unlock()
	for _, w := range wake {
		if w != nil {
			w.Wake()
		}
	}
}
