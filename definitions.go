package ev

import (
	"errors"

	"github.com/talostrading/ev/internal"
)

// ErrReentrantRun is returned by Loop.Run when called from one of the
// loop's own callbacks.
var ErrReentrantRun = errors.New("loop is already running")

// RunMode controls how many iterations Loop.Run performs.
type RunMode uint8

const (
	// RunDefault iterates until the loop has no active handles, no deferred
	// callbacks and no pending intake, or until Stop is called.
	RunDefault RunMode = iota

	// RunOnce performs a single iteration, blocking in the poller if there
	// is nothing to do yet.
	RunOnce

	// RunNoWait performs a single iteration without blocking.
	RunNoWait
)

func (m RunMode) String() string {
	switch m {
	case RunDefault:
		return "default"
	case RunOnce:
		return "once"
	case RunNoWait:
		return "nowait"
	default:
		return "run_mode_unknown"
	}
}

// Role tags a Handle with the concrete type embedding it.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleTimer
	RoleAsync
	RoleWatcher
	RoleWork
	RoleUser
)

func (r Role) String() string {
	switch r {
	case RoleTimer:
		return "timer"
	case RoleAsync:
		return "async"
	case RoleWatcher:
		return "watcher"
	case RoleWork:
		return "work"
	case RoleUser:
		return "user"
	default:
		return "unknown"
	}
}

// WorkClass selects the thread-pool queue a Work item is placed on. Workers
// always drain CPU before FastIO before SlowIO.
type WorkClass uint8

const (
	ClassCPU WorkClass = iota
	ClassFastIO
	ClassSlowIO

	numWorkClasses
)

func (c WorkClass) String() string {
	switch c {
	case ClassCPU:
		return "cpu"
	case ClassFastIO:
		return "fast_io"
	case ClassSlowIO:
		return "slow_io"
	default:
		return "class_unknown"
	}
}

func (c WorkClass) valid() bool {
	return c < numWorkClasses
}

// Events is the readiness bitmask delivered to Watcher callbacks.
type Events = internal.Events

const (
	Readable = internal.EventRead
	Writable = internal.EventWrite
	Error    = internal.EventError
	Hangup   = internal.EventHup
)

type (
	TimerCallback   func(*Timer)
	AsyncCallback   func(*Async)
	WatcherCallback func(*Watcher, Events)
	WorkCallback    func(*Work, error)
)
