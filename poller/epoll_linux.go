//go:build linux

package poller

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Poller is an epoll based readiness source. Registrations are edge
// triggered; each event only bumps the direction's sequence and wakes the
// installed waker, so callers treat it as "try again".
type Poller struct {
	efd int
	wfd int // eventfd for wakeup
	log logrus.FieldLogger
	buf int

	mu      sync.RWMutex
	regs    map[int]*Registration
	stopped bool

	running   atomic.Bool
	closing   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Poller. Its event loop must be driven by Run or Start.
func New(opts ...Option) (*Poller, error) {
	o := newOptions(opts)
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, err
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(wfd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(efd)
		return nil, err
	}
	return &Poller{
		efd:  efd,
		wfd:  wfd,
		log:  o.log,
		buf:  o.events,
		regs: make(map[int]*Registration),
		done: make(chan struct{}),
	}, nil
}

var (
	defaultOnce   sync.Once
	defaultPoller *Poller
	defaultErr    error
)

// Default returns a process-wide Poller whose loop is already running.
func Default() (*Poller, error) {
	defaultOnce.Do(func() {
		defaultPoller, defaultErr = New()
		if defaultErr == nil {
			defaultPoller.Start()
		}
	})
	return defaultPoller, defaultErr
}

func epollEvents(i Interest) uint32 {
	var flag uint32 = unix.EPOLLET | unix.EPOLLRDHUP
	if i.Has(Readable) {
		flag |= unix.EPOLLIN
	}
	if i.Has(Writable) {
		flag |= unix.EPOLLOUT
	}
	return flag
}

// Register adds fd to the event source with the given interest. Events
// that arrive before the loop is started are delivered once it runs. After
// the loop has stopped Register fails with ErrClosed.
func (p *Poller) Register(fd int, interest Interest) (*Registration, error) {
	if p.closing.Load() {
		return nil, &RegistrationError{Op: "register", Fd: fd, Err: ErrClosed}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil, &RegistrationError{Op: "register", Fd: fd, Err: ErrClosed}
	}
	if _, ok := p.regs[fd]; ok {
		return nil, &RegistrationError{Op: "register", Fd: fd, Err: ErrAlreadyRegistered}
	}
	reg := newRegistration(fd, interest)
	// The table entry must exist before CTL_ADD: the kernel reports current
	// readiness right away and the loop may already be looking it up.
	p.regs[fd] = reg
	ev := &unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.efd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		delete(p.regs, fd)
		return nil, &RegistrationError{Op: "register", Fd: fd, Err: err}
	}
	p.log.WithFields(logrus.Fields{"fd": fd, "interest": interest}).Debug("registered")
	return reg, nil
}

// Reregister replaces the interest set of reg.
func (p *Poller) Reregister(reg *Registration, interest Interest) error {
	if reg.Closed() || p.closing.Load() {
		return &RegistrationError{Op: "reregister", Fd: reg.fd, Err: ErrClosed}
	}
	reg.setInterest(interest)
	ev := &unix.EpollEvent{Events: epollEvents(interest), Fd: int32(reg.fd)}
	if err := unix.EpollCtl(p.efd, unix.EPOLL_CTL_MOD, reg.fd, ev); err != nil {
		return &RegistrationError{Op: "reregister", Fd: reg.fd, Err: err}
	}
	p.log.WithFields(logrus.Fields{"fd": reg.fd, "interest": interest}).Debug("reregistered")
	return nil
}

// Deregister removes reg from the event source and wakes any parked
// wakers. It is idempotent.
func (p *Poller) Deregister(reg *Registration) error {
	if reg == nil {
		return nil
	}
	p.mu.Lock()
	cur, ok := p.regs[reg.fd]
	if !ok || cur != reg {
		p.mu.Unlock()
		reg.shutdown()
		return nil
	}
	delete(p.regs, reg.fd)
	p.mu.Unlock()

	var err error
	if !p.closing.Load() {
		if e := unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, reg.fd, nil); e != nil && e != unix.ENOENT {
			err = &RegistrationError{Op: "deregister", Fd: reg.fd, Err: e}
		}
	}
	reg.shutdown()
	p.log.WithField("fd", reg.fd).Debug("deregistered")
	return err
}

func (p *Poller) lookup(fd int) *Registration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.regs[fd]
}

func (p *Poller) wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wfd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// Start runs the event loop in its own goroutine.
func (p *Poller) Start() {
	go func() {
		if err := p.Run(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			p.log.WithError(err).Error("event loop stopped")
		}
	}()
}

// Run drives the event loop until ctx is done or the poller is closed.
// Only one Run may be active at a time.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("poller: already running")
	}
	defer close(p.done)
	defer p.stop()
	defer runtime.KeepAlive(p)
	stop := context.AfterFunc(ctx, func() { _ = p.wake() })
	defer stop()

	events := make([]unix.EpollEvent, p.buf)
	var efdBuf [8]byte
	for !p.closing.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.EpollWait(p.efd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)
			if fd == p.wfd {
				for {
					_, rerr := unix.Read(p.wfd, efdBuf[:])
					if rerr == unix.EAGAIN {
						break
					}
					if rerr != nil {
						return rerr
					}
				}
				continue
			}
			reg := p.lookup(fd)
			if reg == nil {
				continue
			}
			var ready Interest
			// Errors and hangups wake both directions so the next poll
			// surfaces them from the syscall itself.
			if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
				ready = Readable | Writable
			}
			if ev.Events&unix.EPOLLIN != 0 {
				ready |= Readable
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				ready |= Writable
			}
			reg.notify(ready)
		}
	}
	p.log.Debug("event loop exited")
	return ErrClosed
}

// stop runs when the loop exits for any reason. Nothing will deliver
// events any more, so every registration is shut down and its parked
// wakers fire; their next poll observes ErrClosed.
func (p *Poller) stop() {
	p.mu.Lock()
	p.stopped = true
	regs := p.regs
	p.regs = make(map[int]*Registration)
	p.mu.Unlock()
	for fd, reg := range regs {
		if !p.closing.Load() {
			_ = unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, fd, nil)
		}
		reg.shutdown()
	}
	if len(regs) > 0 {
		p.log.WithField("registrations", len(regs)).Debug("loop stopped, registrations shut down")
	}
}

// Close stops the event loop, shuts down every registration and releases
// the epoll and eventfd descriptors.
func (p *Poller) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closing.Store(true)
		if p.running.Load() {
			_ = p.wake()
			<-p.done
		}
		p.mu.Lock()
		p.stopped = true
		regs := p.regs
		p.regs = make(map[int]*Registration)
		p.mu.Unlock()
		for _, reg := range regs {
			reg.shutdown()
		}
		unix.Close(p.wfd)
		err = unix.Close(p.efd)
	})
	return err
}
