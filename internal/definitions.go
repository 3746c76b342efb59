package internal

// Events is a bitmask of readiness conditions. Every poller backend maps its
// native flags into these.
type Events uint32

const (
	EventRead Events = 1 << iota
	EventWrite
	EventError
	EventHup
)

func (e Events) Has(o Events) bool {
	return e&o == o
}

// Handler is invoked by the poller, on the polling goroutine, with the subset
// of events which occurred.
type Handler func(Events)

// PollData is the per file descriptor registration owned by the caller.
//
// The poller keeps a reference to it while any interest is registered, so the
// caller does not need to keep it alive for the duration of an async wait.
type PollData struct {
	Fd int // A file descriptor which uniquely identifies a PollData. Callers must set it up at construction time.

	// Interest registered with the poller. Maintained by the poller.
	Flags Events

	// Handler receives the ready events.
	Handler Handler
}

type Poller interface {
	// Poll waits for events for at most timeoutMs milliseconds and
	// dispatches the ready handlers. A negative timeout blocks until an event
	// occurs or Wakeup is called; a zero timeout does not block.
	//
	// Poll returns the number of handlers dispatched. Being interrupted by a
	// signal is reported as zero dispatched handlers and no error.
	Poll(timeoutMs int) (n int, err error)

	// Wakeup makes a blocked, or the next, Poll call return.
	//
	// Wakeup is safe for concurrent use.
	Wakeup() error

	// SetRead registers interest in read events on the provided PollData.
	SetRead(pd *PollData) error

	// SetWrite registers interest in write events on the provided PollData.
	SetWrite(pd *PollData) error

	// DelRead deregisters interest in read events on the provided PollData.
	DelRead(pd *PollData) error

	// DelWrite deregisters interest in write events on the provided PollData.
	DelWrite(pd *PollData) error

	// Del deregisters interest in all events on the provided PollData.
	Del(pd *PollData) error

	// Registered returns the number of file descriptors with a registered
	// interest.
	Registered() int

	// Close closes the Poller. No calls to Poll should be made after Close.
	//
	// Close is safe for concurrent use.
	Close() error

	// Closed returns true if the Poller has been closed.
	//
	// Closed is safe for concurrent use.
	Closed() bool
}
