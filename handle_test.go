package ev

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkActiveInvariant(t *testing.T, h *Handle) {
	t.Helper()
	if h.IsActive() != (h.activeEvents != 0) {
		t.Fatalf("active flag is %v with %d active events", h.IsActive(), h.activeEvents)
	}
	if h.IsClosed() {
		return
	}
	inActive := h.loop.active.Contains(h.listIx) && h.loop.active.At(h.listIx) == h
	inIdle := h.loop.idle.Contains(h.listIx) && h.loop.idle.At(h.listIx) == h
	if inActive == inIdle {
		t.Fatalf("handle must be in exactly one list, active=%v idle=%v", inActive, inIdle)
	}
	if inActive != h.IsActive() {
		t.Fatal("handle is in the wrong list")
	}
}

func TestHandleActiveCounter(t *testing.T) {
	l, _ := mockLoop(t)

	var u UserHandle
	u.Init(l)
	checkActiveInvariant(t, &u.Handle)
	assert.Equal(t, RoleUser, u.Role())
	assert.Equal(t, l, u.Loop())
	assert.Equal(t, 1, l.idle.Size())

	seq := []int{+1, +1, -1, +1, -1, -1, +1, -1}
	for _, op := range seq {
		if op > 0 {
			u.Ref()
		} else {
			u.Unref()
		}
		checkActiveInvariant(t, &u.Handle)
	}
	assert.False(t, u.IsActive())
	assert.Equal(t, 0, l.active.Size())

	u.Close(nil)
	assert.True(t, u.IsClosed())
	assert.Equal(t, 0, l.idle.Size())
	assert.Equal(t, 0, l.active.Size())
	checkActiveInvariant(t, &u.Handle)

	assert.NoError(t, l.Close())
}

func TestHandleUnrefUnderflowAborts(t *testing.T) {
	l, _ := mockLoop(t)

	var u UserHandle
	u.Init(l)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		var abort *AbortError
		require.True(t, errors.As(r.(error), &abort))
		assert.Equal(t, "handle.go", abort.File)
		assert.NotZero(t, abort.Line)
		assert.Contains(t, abort.Error(), "underflow")
	}()
	u.Unref()
}

func TestHandleCloseTwiceAborts(t *testing.T) {
	l, _ := mockLoop(t)

	var sync UserHandle
	sync.Init(l)
	sync.Close(nil)
	assert.Panics(t, func() { sync.Close(nil) })

	var async UserHandle
	async.Init(l)
	async.Close(func(*UserHandle) {})
	assert.Panics(t, func() { async.Close(nil) })
	assert.Panics(t, func() { async.Close(func(*UserHandle) {}) })

	require.NoError(t, l.Run(RunDefault))
	assert.NoError(t, l.Close())
}

func TestHandleUseAfterCloseAborts(t *testing.T) {
	l, _ := mockLoop(t)

	var u UserHandle
	u.Init(l)
	u.Close(nil)

	assert.Panics(t, func() { u.Ref() })
	assert.Panics(t, func() { _ = u.Defer(func() {}) })
	assert.NoError(t, l.Close())
}

func TestHandleAsyncClose(t *testing.T) {
	l, _ := mockLoop(t)

	var u UserHandle
	u.Init(l)
	u.Ref()

	closed := 0
	u.Close(func(h *UserHandle) {
		closed++
		assert.True(t, h.IsClosed())
		assert.False(t, h.IsActive())
	})
	assert.True(t, u.IsClosing())
	assert.False(t, u.IsClosed())
	assert.True(t, u.IsActive())
	assert.Equal(t, 1, l.endgame.Size())
	checkActiveInvariant(t, &u.Handle)

	require.NoError(t, l.Run(RunNoWait))
	assert.Equal(t, 1, closed)
	assert.True(t, u.IsClosed())
	assert.False(t, l.Alive())

	assert.NoError(t, l.Close())
}

func TestHandleBacklogAtMostOne(t *testing.T) {
	l, _ := mockLoop(t)

	var u UserHandle
	u.Init(l)

	calls := 0
	require.NoError(t, u.Defer(func() { calls++ }))
	assert.True(t, u.IsActive())
	assert.ErrorIs(t, u.Defer(func() { calls++ }), ErrExist)
	assert.ErrorIs(t, u.Defer(nil), ErrInvalid)

	require.NoError(t, l.Run(RunNoWait))
	assert.Equal(t, 1, calls)
	assert.False(t, u.IsActive())

	// The slot is free again once the callback ran.
	require.NoError(t, u.Defer(func() { calls++ }))
	require.NoError(t, l.Run(RunNoWait))
	assert.Equal(t, 2, calls)

	u.Close(nil)
	assert.NoError(t, l.Close())
}

func TestHandleBacklogResubmitFromCallback(t *testing.T) {
	l, _ := mockLoop(t)

	var u UserHandle
	u.Init(l)

	calls := 0
	var cb func()
	cb = func() {
		calls++
		if calls < 3 {
			require.NoError(t, u.Defer(cb))
		}
	}
	require.NoError(t, u.Defer(cb))

	// Entries appended while draining are processed in the same phase.
	l.processBacklog()
	assert.Equal(t, 3, calls)

	u.Close(nil)
	assert.NoError(t, l.Close())
}

func TestHandleCloseDropsBacklog(t *testing.T) {
	l, _ := mockLoop(t)

	var u UserHandle
	u.Init(l)

	calls := 0
	require.NoError(t, u.Defer(func() { calls++ }))
	u.Close(nil)
	assert.Equal(t, 0, l.backlog.Size())

	require.NoError(t, l.Run(RunDefault))
	assert.Equal(t, 0, calls)
	assert.NoError(t, l.Close())
}

func TestHandleWalk(t *testing.T) {
	l, _ := mockLoop(t)

	var a, b, c UserHandle
	a.Init(l)
	b.Init(l)
	c.Init(l)
	b.Ref()

	var seen []*Handle
	l.Walk(func(h *Handle) bool {
		seen = append(seen, h)
		return true
	})
	assert.Equal(t, []*Handle{&b.Handle, &a.Handle, &c.Handle}, seen)

	n := 0
	l.Walk(func(*Handle) bool {
		n++
		return false
	})
	assert.Equal(t, 1, n)

	b.Unref()
	for _, h := range []*UserHandle{&a, &b, &c} {
		h.Close(nil)
	}
	assert.NoError(t, l.Close())
}

func TestHandleEndgameChainedClose(t *testing.T) {
	l, _ := mockLoop(t)

	var a, b, c UserHandle
	a.Init(l)
	b.Init(l)
	c.Init(l)

	var order []string
	a.Close(func(*UserHandle) {
		order = append(order, "a")
		// Queued behind b, and still drained by this pass.
		c.Close(func(*UserHandle) { order = append(order, "c") })
	})
	b.Close(func(*UserHandle) { order = append(order, "b") })
	assert.Equal(t, 2, l.endgame.Size())

	l.processEndgame()

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, l.endgame.Size())
	for _, h := range []*UserHandle{&a, &b, &c} {
		assert.True(t, h.IsClosed())
		checkActiveInvariant(t, &h.Handle)
	}
	assert.False(t, l.Alive())
	assert.NoError(t, l.Close())
}
