// Package poller bridges non-blocking file descriptors into a poll/waker
// model. A Poller owns an event loop (epoll on Linux) and a table of
// Registrations keyed by fd; each Registration holds at most one Waker per
// direction. The event loop never performs I/O: on a readiness event it
// only takes the installed waker and calls Wake.
package poller

import (
	"github.com/sirupsen/logrus"
)

// Interest is a set of readiness directions.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

// Has reports whether every direction in o is part of i.
func (i Interest) Has(o Interest) bool { return i&o == o }

func (i Interest) String() string {
	switch i {
	case 0:
		return "none"
	case Readable:
		return "readable"
	case Writable:
		return "writable"
	case Readable | Writable:
		return "readable|writable"
	default:
		return "invalid"
	}
}

// Direction selects the read or the write half of a Registration.
type Direction uint8

const (
	Read Direction = iota
	Write
)

// Interest returns the interest bit matching d.
func (d Direction) Interest() Interest {
	if d == Write {
		return Writable
	}
	return Readable
}

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

type options struct {
	log    logrus.FieldLogger
	events int
}

// Option configures a Poller.
type Option func(*options)

// WithLogger sets the logger used for debug tracing of the event loop.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// WithEventBuffer sets how many events a single wait may return.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.events = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		log:    logrus.StandardLogger().WithField("tag", "poller"),
		events: 128,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
