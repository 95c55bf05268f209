package serial

import "github.com/luhtfiimanal/go-async-serial/poller"

type options struct {
	poller *poller.Poller
}

// Option configures Open and Pair.
type Option func(*options)

// WithPoller drives the stream with p instead of the process-wide default
// poller.
func WithPoller(p *poller.Poller) Option {
	return func(o *options) { o.poller = p }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
