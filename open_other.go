//go:build !linux

package serial

import "github.com/luhtfiimanal/go-async-serial/poller"

// Port is only available on Linux.
type Port struct{}

func (p *Port) Stream(*poller.Poller) (*Stream, error) { return nil, ErrPlatformNotSupported }
func (p *Port) Close() error                           { return nil }

// Stream is only available on Linux.
type Stream struct{}

func (s *Stream) Close() error { return nil }

func OpenPort(Config) (*Port, error) { return nil, ErrPlatformNotSupported }

func Open(Config, ...Option) (*Stream, error) { return nil, ErrPlatformNotSupported }

func Pair(...Option) (*Stream, *Stream, error) { return nil, nil, ErrPlatformNotSupported }
