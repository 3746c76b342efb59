//go:build linux

package ev

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talostrading/ev/everrors"
	"github.com/talostrading/ev/evopts"
	"github.com/talostrading/ev/internal"
)

func newPipe(t *testing.T) *internal.Pipe {
	t.Helper()
	p, err := internal.NewPipe()
	require.NoError(t, err)
	require.NoError(t, p.SetReadNonblock())
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestWatcherReadable(t *testing.T) {
	l := MustLoop(evopts.Backend(evopts.BackendEpoll))
	pipe := newPipe(t)

	w, err := NewWatcher(l, pipe.ReadFd())
	require.NoError(t, err)
	assert.Equal(t, pipe.ReadFd(), w.Fd())
	assert.False(t, w.IsActive())

	var got []byte
	require.NoError(t, w.Start(Readable, func(w *Watcher, ev Events) {
		assert.True(t, ev.Has(Readable))
		b := make([]byte, 16)
		n, err := syscall.Read(w.Fd(), b)
		require.NoError(t, err)
		got = append(got, b[:n]...)
		require.NoError(t, w.Close(nil))
	}))
	assert.True(t, w.IsActive())

	_, err = pipe.Write([]byte("ping"))
	require.NoError(t, err)

	require.NoError(t, l.Run(RunDefault))
	assert.Equal(t, "ping", string(got))
	assert.True(t, w.IsClosed())
	assert.NoError(t, l.Close())
}

func TestWatcherOnePerFd(t *testing.T) {
	l := MustLoop(evopts.Backend(evopts.BackendEpoll))
	pipe := newPipe(t)

	a, err := NewWatcher(l, pipe.ReadFd())
	require.NoError(t, err)
	b, err := NewWatcher(l, pipe.ReadFd())
	require.NoError(t, err)

	cb := func(*Watcher, Events) {}
	require.NoError(t, a.Start(Readable, cb))
	assert.ErrorIs(t, b.Start(Readable, cb), everrors.ErrExist)
	assert.False(t, b.IsActive())

	require.NoError(t, a.Stop())
	require.NoError(t, b.Start(Readable, cb))

	require.NoError(t, a.Close(nil))
	require.NoError(t, b.Close(nil))
	assert.NoError(t, l.Close())
}

func TestWatcherStopAndArgs(t *testing.T) {
	l := MustLoop(evopts.Backend(evopts.BackendEpoll))
	pipe := newPipe(t)

	_, err := NewWatcher(l, -1)
	assert.ErrorIs(t, err, everrors.ErrBadFd)

	w, err := NewWatcher(l, pipe.WriteFd())
	require.NoError(t, err)
	assert.ErrorIs(t, w.Start(Readable, nil), ErrInvalid)
	assert.ErrorIs(t, w.Start(Error, func(*Watcher, Events) {}), ErrInvalid)

	writable := 0
	require.NoError(t, w.Start(Writable, func(w *Watcher, ev Events) {
		writable++
		require.NoError(t, w.Stop())
	}))
	require.NoError(t, l.Run(RunDefault))
	assert.Equal(t, 1, writable)
	assert.False(t, w.IsActive())
	assert.NoError(t, w.Stop())

	closed := false
	require.NoError(t, w.Close(func(*Watcher) { closed = true }))
	assert.ErrorIs(t, w.Start(Writable, func(*Watcher, Events) {}), ErrClosed)
	require.NoError(t, l.Run(RunDefault))
	assert.True(t, closed)
	assert.NoError(t, l.Close())
}

func TestWatcherPortableUnsupported(t *testing.T) {
	l := MustLoop(evopts.Backend(evopts.BackendPortable))
	pipe := newPipe(t)

	w, err := NewWatcher(l, pipe.ReadFd())
	require.NoError(t, err)
	assert.ErrorIs(t, w.Start(Readable, func(*Watcher, Events) {}), everrors.ErrNotSupported)
	assert.False(t, w.IsActive())

	require.NoError(t, w.Close(nil))
	assert.NoError(t, l.Close())
}

func TestWatcherCountedInStats(t *testing.T) {
	l := MustLoop(evopts.Backend(evopts.BackendEpoll))
	pipe := newPipe(t)

	w, err := NewWatcher(l, pipe.ReadFd())
	require.NoError(t, err)
	require.NoError(t, w.Start(Readable, func(*Watcher, Events) {}))

	require.NoError(t, l.Run(RunNoWait))
	assert.Equal(t, 1, l.Stats().Watched)

	require.NoError(t, w.Close(nil))
	require.NoError(t, l.Run(RunNoWait))
	assert.Equal(t, 0, l.Stats().Watched)
	assert.NoError(t, l.Close())
}
