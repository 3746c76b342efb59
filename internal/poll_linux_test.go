//go:build linux

package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpollPollerReadReady(t *testing.T) {
	p, err := NewEpollPoller(0)
	require.NoError(t, err)
	defer p.Close()

	pipe, err := NewPipe()
	require.NoError(t, err)
	defer pipe.Close()
	require.NoError(t, pipe.SetReadNonblock())

	var got Events
	pd := pipe.PollData()
	pd.Handler = func(ev Events) { got = ev }

	require.NoError(t, p.SetRead(pd))
	assert.Equal(t, 1, p.Registered())

	n, err := p.Poll(0)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing written yet")

	_, err = pipe.Write([]byte{1})
	require.NoError(t, err)

	n, err = p.Poll(100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, got.Has(EventRead))

	require.NoError(t, p.Del(pd))
	assert.Equal(t, 0, p.Registered())
	assert.Equal(t, Events(0), pd.Flags)
}

func TestEpollPollerReadWriteFlags(t *testing.T) {
	p, err := NewEpollPoller(4)
	require.NoError(t, err)
	defer p.Close()

	pipe, err := NewPipe()
	require.NoError(t, err)
	defer pipe.Close()

	pd := &PollData{Fd: pipe.WriteFd(), Handler: func(Events) {}}
	require.NoError(t, p.SetWrite(pd))
	require.NoError(t, p.SetRead(pd))
	assert.Equal(t, EventRead|EventWrite, pd.Flags)

	require.NoError(t, p.DelWrite(pd))
	assert.Equal(t, EventRead, pd.Flags)

	require.NoError(t, p.DelRead(pd))
	assert.Equal(t, Events(0), pd.Flags)
	assert.Equal(t, 0, p.Registered())
}

func TestEpollPollerWakeup(t *testing.T) {
	p, err := NewEpollPoller(0)
	require.NoError(t, err)
	defer p.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = p.Wakeup()
	}()

	start := time.Now()
	n, err := p.Poll(-1)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "the waker is not a user dispatch")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEpollPollerTimeout(t *testing.T) {
	p, err := NewEpollPoller(0)
	require.NoError(t, err)
	defer p.Close()

	start := time.Now()
	n, err := p.Poll(5)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 4*time.Millisecond)
}

func TestEpollPollerClose(t *testing.T) {
	p, err := NewEpollPoller(0)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
	assert.Error(t, p.Close())
	assert.ErrorIs(t, p.Wakeup(), ErrClosed)
}
