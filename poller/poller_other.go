//go:build !linux

package poller

import "context"

// Poller is unavailable off Linux; every constructor returns
// ErrPlatformNotSupported.
type Poller struct{}

func New(opts ...Option) (*Poller, error) {
	_ = newOptions(opts)
	return nil, ErrPlatformNotSupported
}

func Default() (*Poller, error) { return nil, ErrPlatformNotSupported }

func (p *Poller) Register(fd int, interest Interest) (*Registration, error) {
	return nil, &RegistrationError{Op: "register", Fd: fd, Err: ErrPlatformNotSupported}
}

func (p *Poller) Reregister(reg *Registration, interest Interest) error {
	return &RegistrationError{Op: "reregister", Fd: reg.fd, Err: ErrPlatformNotSupported}
}

func (p *Poller) Deregister(reg *Registration) error {
	if reg != nil {
		reg.shutdown()
	}
	return nil
}

func (p *Poller) Start() {}

func (p *Poller) Run(ctx context.Context) error { return ErrPlatformNotSupported }

func (p *Poller) Close() error { return nil }
