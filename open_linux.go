//go:build linux

package serial

import (
	"fmt"
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Open opens cfg.Device and returns it as a Stream.
func Open(cfg Config, opts ...Option) (*Stream, error) {
	o := newOptions(opts)
	port, err := OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	s, err := port.Stream(o.poller)
	if err != nil {
		port.h.close()
		return nil, err
	}
	return s, nil
}

// Pair creates a pseudo-terminal and returns both ends as raw streams. The
// second stream is the slave side; its Name is the device path other
// programs can open.
func Pair(opts ...Option) (master, slave *Stream, err error) {
	o := newOptions(opts)
	ptm, pts, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open pty: %w", err)
	}
	defer ptm.Close()
	defer pts.Close()

	mh, err := adoptFile(ptm)
	if err != nil {
		return nil, nil, err
	}
	sh, err := adoptFile(pts)
	if err != nil {
		mh.close()
		return nil, nil, err
	}
	mp, sp := &Port{control: control{h: mh}}, &Port{control: control{h: sh}}
	if master, err = mp.Stream(o.poller); err != nil {
		mh.close()
		sh.close()
		return nil, nil, err
	}
	if slave, err = sp.Stream(o.poller); err != nil {
		master.Close()
		sh.close()
		return nil, nil, err
	}
	return master, slave, nil
}

// adoptFile duplicates the descriptor of f into a raw, non-blocking handle
// so that f can be closed without affecting it.
func adoptFile(f *os.File) (*handle, error) {
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, fmt.Errorf("dup %s: %w", f.Name(), err)
	}
	unix.CloseOnExec(fd)
	h, err := newHandle(fd, f.Name())
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := h.makeRaw(); err != nil {
		h.close()
		return nil, fmt.Errorf("raw mode %s: %w", f.Name(), err)
	}
	return h, nil
}
