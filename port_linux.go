//go:build linux

package serial

import (
	"fmt"
	"sync/atomic"

	"github.com/luhtfiimanal/go-async-serial/poller"
	"golang.org/x/sys/unix"
)

// Port is an opened and configured device that is not yet driven by a
// poller. It supports every configuration and modem operation; Stream
// turns it into an asynchronous stream.
type Port struct {
	control
	taken atomic.Bool
}

// OpenPort opens cfg.Device in raw, non-blocking mode and applies the line
// configuration of cfg.
func OpenPort(cfg Config) (*Port, error) {
	cfg = cfg.withDefaults()
	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	h, err := newHandle(fd, cfg.Device)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := setup(h, cfg); err != nil {
		h.close()
		return nil, err
	}
	return &Port{control: control{h: h}}, nil
}

func setup(h *handle, cfg Config) error {
	if err := h.makeRaw(); err != nil {
		return fmt.Errorf("raw mode %s: %w", h.name, err)
	}
	if err := h.apply(cfg.Configuration()); err != nil {
		return err
	}
	if cfg.Exclusive {
		return control{h: h}.SetExclusive(true)
	}
	return nil
}

// Stream hands the port over to p (poller.Default when nil). The Port must
// not be used afterwards.
func (p *Port) Stream(pl *poller.Poller) (*Stream, error) {
	if !p.taken.CompareAndSwap(false, true) {
		return nil, ErrClosed
	}
	if pl == nil {
		var err error
		if pl, err = poller.Default(); err != nil {
			p.taken.Store(false)
			return nil, err
		}
	}
	return newStream(p.h, pl), nil
}

// Close releases the device. It is a no-op once the port has been turned
// into a Stream.
func (p *Port) Close() error {
	if !p.taken.CompareAndSwap(false, true) {
		return nil
	}
	return p.h.close()
}
