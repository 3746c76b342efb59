package ev

import "sync/atomic"

// Async wakes up its loop from any goroutine and runs a callback on the
// loop's goroutine. Sends issued before the callback runs are coalesced into
// one invocation.
//
// An Async keeps its loop alive until closed.
type Async struct {
	Handle

	cb      AsyncCallback
	pending uint32
}

func NewAsync(l *Loop, cb AsyncCallback) (*Async, error) {
	if cb == nil {
		return nil, ErrInvalid
	}
	a := &Async{cb: cb}
	a.init(l, RoleAsync)
	a.eventAdd()
	return a, nil
}

// Send schedules the callback. It is safe to call concurrently.
func (a *Async) Send() error {
	if !atomic.CompareAndSwapUint32(&a.pending, 0, 1) {
		return nil
	}
	if err := a.loop.enqueue(a.deliver); err != nil {
		atomic.StoreUint32(&a.pending, 0)
		return err
	}
	return nil
}

func (a *Async) deliver() {
	if a.IsClosing() {
		return
	}
	// The pending flag guarantees a single delivery per send cycle, so the
	// backlog slot is free.
	_ = a.backlogSubmit(a.fire)
}

func (a *Async) fire() {
	atomic.StoreUint32(&a.pending, 0)
	if a.IsClosing() {
		return
	}
	a.cb(a)
}

// Close releases the handle. No callback runs once Close has been called,
// even if a Send is in flight.
func (a *Async) Close(cb func(*Async)) {
	if !a.IsClosing() {
		a.eventDec()
	}
	if cb == nil {
		a.exit(nil)
		return
	}
	a.exit(func() { cb(a) })
}
