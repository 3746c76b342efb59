package ev

import "github.com/talostrading/ev/util"

type handleFlags uint8

const (
	flagActive handleFlags = 1 << iota
	flagClosing
	flagClosed
)

// Handle is the lifecycle record shared by every object registered with a
// Loop. It is embedded by Timer, Async, Watcher, Work and UserHandle.
//
// While not closed a Handle is linked in exactly one of the loop's idle or
// active lists. It is active iff its active-event counter is non zero.
//
// A Handle must only be used from the goroutine running its Loop.
type Handle struct {
	loop  *Loop
	role  Role
	flags handleFlags

	activeEvents int

	// Index in the loop's idle or active list.
	listIx util.Index

	backlogIx util.Index
	backlogCb func()

	endgameIx util.Index
	closeCb   func()
}

func (h *Handle) init(l *Loop, role Role) {
	if l == nil {
		abortf(nil, "handle initialized without a loop")
	}
	*h = Handle{
		loop: l,
		role: role,
	}
	h.listIx = l.idle.PushBack(h)
}

// Loop returns the loop owning the handle.
func (h *Handle) Loop() *Loop { return h.loop }

func (h *Handle) Role() Role { return h.role }

// IsActive returns true if the handle keeps its loop alive.
func (h *Handle) IsActive() bool { return h.flags&flagActive != 0 }

// IsClosing returns true once the handle has been closed, whether or not
// the close callback already ran.
func (h *Handle) IsClosing() bool { return h.flags&(flagClosing|flagClosed) != 0 }

// IsClosed returns true once the handle is fully released.
func (h *Handle) IsClosed() bool { return h.flags&flagClosed != 0 }

func (h *Handle) mustBeOpen() {
	if h.loop == nil {
		abortf(nil, "handle used before init")
	}
	if h.flags&flagClosed != 0 {
		abortf(h.loop, "%s handle used after close", h.role)
	}
}

func (h *Handle) eventAdd() {
	h.mustBeOpen()
	h.activeEvents++
	if h.activeEvents == 1 {
		h.loop.idle.Remove(h.listIx)
		h.listIx = h.loop.active.PushBack(h)
		h.flags |= flagActive
	}
}

func (h *Handle) eventDec() {
	h.mustBeOpen()
	if h.activeEvents == 0 {
		abortf(h.loop, "%s handle active event counter underflow", h.role)
	}
	h.activeEvents--
	if h.activeEvents == 0 {
		h.loop.active.Remove(h.listIx)
		h.listIx = h.loop.idle.PushBack(h)
		h.flags &^= flagActive
	}
}

// exit closes the handle. With a nil closeCb the handle is released
// immediately and nothing is called back. Otherwise the handle stays active
// until the loop's endgame phase, which releases it and invokes closeCb.
func (h *Handle) exit(closeCb func()) {
	if h.loop == nil {
		abortf(nil, "handle closed before init")
	}
	if h.flags&(flagClosing|flagClosed) != 0 {
		abortf(h.loop, "%s handle closed twice", h.role)
	}

	if closeCb == nil {
		h.release()
		return
	}

	h.flags |= flagClosing
	h.closeCb = closeCb
	h.eventAdd()
	h.endgameIx = h.loop.endgame.PushBack(h)
}

func (h *Handle) release() {
	l := h.loop
	if h.backlogIx != util.Nil {
		l.backlog.Remove(h.backlogIx)
		h.backlogIx = util.Nil
		h.backlogCb = nil
	}
	if h.flags&flagActive != 0 {
		l.active.Remove(h.listIx)
	} else {
		l.idle.Remove(h.listIx)
	}
	h.listIx = util.Nil
	h.activeEvents = 0
	h.flags = (h.flags &^ (flagActive | flagClosing)) | flagClosed
}

// backlogSubmit defers cb to the loop's next backlog phase. At most one
// entry may be pending per handle.
func (h *Handle) backlogSubmit(cb func()) error {
	h.mustBeOpen()
	if h.backlogIx != util.Nil {
		return ErrExist
	}
	h.backlogCb = cb
	h.eventAdd()
	h.backlogIx = h.loop.backlog.PushBack(h)
	return nil
}

func (h *Handle) backlogPending() bool {
	return h.backlogIx != util.Nil
}

// UserHandle exposes the handle contract to objects living outside of this
// package, transports for example. Embed it and call Init before use.
type UserHandle struct {
	Handle
}

// Init registers the handle with l. The handle starts idle.
func (u *UserHandle) Init(l *Loop) {
	u.init(l, RoleUser)
}

// Ref adds an active event. The loop stays alive while any event is active.
func (u *UserHandle) Ref() {
	u.eventAdd()
}

// Unref removes an active event added by Ref. Unbalanced calls abort.
func (u *UserHandle) Unref() {
	u.eventDec()
}

// Defer runs cb in the loop's next backlog phase. It returns ErrExist if a
// deferred callback is already pending for this handle.
func (u *UserHandle) Defer(cb func()) error {
	if cb == nil {
		return ErrInvalid
	}
	return u.backlogSubmit(cb)
}

// Close releases the handle. A non nil cb is invoked from the loop's
// endgame phase, after which the handle must not be touched. A deferred
// callback still pending when the handle is released is dropped.
func (u *UserHandle) Close(cb func(*UserHandle)) {
	if cb == nil {
		u.exit(nil)
		return
	}
	u.exit(func() { cb(u) })
}
