package poller

// Waker resumes a suspended task. Wake is called from the event loop
// goroutine, so it must be safe to call from any goroutine and must not block.
type Waker interface {
	Wake()
}

// WakerFunc adapts a plain function to the Waker interface.
type WakerFunc func()

func (f WakerFunc) Wake() { f() }

// Signal is a Waker backed by a one-slot channel. Wakes that arrive while a
// previous one is still unconsumed are coalesced.
type Signal struct {
	c chan struct{}
}

func NewSignal() *Signal {
	return &Signal{c: make(chan struct{}, 1)}
}

func (s *Signal) Wake() {
	select {
	case s.c <- struct{}{}:
	default:
	}
}

// C returns the channel that receives a value for each (coalesced) wake.
func (s *Signal) C() <-chan struct{} { return s.c }
