package ev

import (
	"math"
	"time"
)

// Timer invokes a callback once its deadline, expressed on the loop's cached
// clock, is reached. Timers with equal deadlines fire in the order they were
// started.
type Timer struct {
	Handle

	cb       TimerCallback
	deadline uint64 // ms since loop creation
	repeat   uint64 // ms, 0 means one shot
	seq      uint64

	scheduled bool
}

func timerLess(a, b *Timer) bool {
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.seq < b.seq
}

func NewTimer(l *Loop) *Timer {
	t := &Timer{}
	t.init(l, RoleTimer)
	return t
}

// toMillis truncates d to milliseconds. Positive durations under a
// millisecond count as one, so a short repeat never turns into a one shot.
func toMillis(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	if d < time.Millisecond {
		return 1
	}
	return uint64(d / time.Millisecond)
}

// Start schedules cb to run after timeout and then, if repeat is non zero,
// every repeat. A timer which is already scheduled is rescheduled.
//
// Durations are truncated to milliseconds, with a minimum of one for
// positive durations.
func (t *Timer) Start(cb TimerCallback, timeout, repeat time.Duration) error {
	if t.IsClosing() {
		return ErrClosed
	}
	if cb == nil {
		return ErrInvalid
	}

	t.Stop()
	t.cb = cb
	t.repeat = toMillis(repeat)
	t.schedule(toMillis(timeout))
	return nil
}

func (t *Timer) schedule(timeoutMs uint64) {
	now := t.loop.now
	if timeoutMs > math.MaxUint64-now {
		t.deadline = math.MaxUint64
	} else {
		t.deadline = now + timeoutMs
	}
	t.seq = t.loop.nextTimerSeq()
	t.loop.timers.ReplaceOrInsert(t)
	t.scheduled = true
	t.eventAdd()
}

// Stop unschedules the timer. Stopping a timer which is not scheduled is a
// no-op.
func (t *Timer) Stop() {
	if !t.scheduled {
		return
	}
	t.loop.timers.Delete(t)
	t.scheduled = false
	t.eventDec()
}

// Again restarts a repeating timer from now, using the repeat interval as
// timeout. A timer without a repeat interval is left untouched. It fails with
// ErrInvalid if the timer was never started.
func (t *Timer) Again() error {
	if t.IsClosing() {
		return ErrClosed
	}
	if t.cb == nil {
		return ErrInvalid
	}
	if t.repeat != 0 {
		t.Stop()
		t.schedule(t.repeat)
	}
	return nil
}

// SetRepeat changes the repeat interval. It takes effect the next time the
// timer fires or Again is called.
func (t *Timer) SetRepeat(repeat time.Duration) {
	t.repeat = toMillis(repeat)
}

func (t *Timer) Repeat() time.Duration {
	return time.Duration(t.repeat) * time.Millisecond
}

// DueIn returns the time left until the timer fires, relative to the loop's
// cached clock, or zero if the timer is not scheduled or already due.
func (t *Timer) DueIn() time.Duration {
	if !t.scheduled || t.deadline <= t.loop.now {
		return 0
	}
	return time.Duration(t.deadline-t.loop.now) * time.Millisecond
}

func (t *Timer) Scheduled() bool {
	return t.scheduled
}

// Close stops and releases the timer. cb, if not nil, runs in the loop's
// endgame phase.
func (t *Timer) Close(cb func(*Timer)) {
	t.Stop()
	if cb == nil {
		t.exit(nil)
		return
	}
	t.exit(func() { cb(t) })
}
