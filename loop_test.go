package ev

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talostrading/ev/evopts"
	"github.com/talostrading/ev/internal"
)

func TestLoopEmptyRunReturns(t *testing.T) {
	for _, backend := range []evopts.BackendKind{evopts.BackendDefault, evopts.BackendPortable} {
		t.Run(backend.String(), func(t *testing.T) {
			l, err := NewLoop(evopts.Backend(backend))
			require.NoError(t, err)

			done := make(chan error, 1)
			go func() {
				done <- l.Run(RunDefault)
			}()

			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("empty loop did not return")
			}

			assert.False(t, l.Alive())
			assert.NoError(t, l.Close())
		})
	}
}

func TestLoopCloseBusy(t *testing.T) {
	l, _ := mockLoop(t)

	var u UserHandle
	u.Init(l)
	assert.ErrorIs(t, l.Close(), ErrBusy)
	assert.False(t, l.Closed())

	u.Close(nil)
	assert.NoError(t, l.Close())
	assert.True(t, l.Closed())
	assert.ErrorIs(t, l.Close(), io.EOF)
	assert.ErrorIs(t, l.Run(RunDefault), ErrClosed)
	assert.ErrorIs(t, l.Post(func() {}), ErrClosed)
}

func TestLoopCloseLogsLiveHandles(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoop(
		evopts.Backend(evopts.BackendPortable),
		evopts.Logger(NewLogger(&buf, logiface.LevelWarning)),
	)
	require.NoError(t, err)

	var u UserHandle
	u.Init(l)
	assert.ErrorIs(t, l.Close(), ErrBusy)
	assert.Contains(t, buf.String(), "loop close with live handles")

	u.Close(nil)
	assert.NoError(t, l.Close())
}

func TestLoopPostFromGoroutines(t *testing.T) {
	l := MustLoop()

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)

	// Keeps the loop alive until every post ran.
	var keep UserHandle
	keep.Init(l)
	keep.Ref()

	ran := 0
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = l.Post(func() {
				ran++
				if ran == n {
					keep.Unref()
				}
			})
		}()
	}

	require.NoError(t, l.Run(RunDefault))
	wg.Wait()
	assert.Equal(t, n, ran)

	keep.Close(nil)
	assert.NoError(t, l.Close())
}

func TestLoopPostKeepsAlive(t *testing.T) {
	l, _ := mockLoop(t)

	ran := false
	require.NoError(t, l.Post(func() { ran = true }))
	assert.True(t, l.Alive())
	assert.Equal(t, 1, l.Pending())
	assert.ErrorIs(t, l.Post(nil), ErrInvalid)

	require.NoError(t, l.Run(RunDefault))
	assert.True(t, ran)
	assert.False(t, l.Alive())
	assert.NoError(t, l.Close())
}

func TestLoopReentrantRun(t *testing.T) {
	l, _ := mockLoop(t)

	var err error
	require.NoError(t, l.Post(func() { err = l.Run(RunNoWait) }))
	require.NoError(t, l.Run(RunDefault))
	assert.ErrorIs(t, err, ErrReentrantRun)
	assert.NoError(t, l.Close())
}

func TestLoopStop(t *testing.T) {
	l, mock := mockLoop(t)

	fired := 0
	timer := NewTimer(l)
	require.NoError(t, timer.Start(func(*Timer) {
		fired++
		l.Stop()
	}, 0, time.Millisecond))

	require.NoError(t, l.Run(RunDefault))
	assert.Equal(t, 1, fired)
	assert.True(t, l.Alive())

	// The stop request does not outlive Run.
	mock.Add(time.Millisecond)
	require.NoError(t, l.Run(RunNoWait))
	assert.Equal(t, 2, fired)

	timer.Close(nil)
	assert.NoError(t, l.Close())
}

func TestLoopStopFromGoroutine(t *testing.T) {
	l := MustLoop()

	var u UserHandle
	u.Init(l)
	u.Ref()

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = l.Post(l.Stop)
	}()

	require.NoError(t, l.Run(RunDefault))
	assert.True(t, l.Alive())

	u.Unref()
	u.Close(nil)
	assert.NoError(t, l.Close())
}

func TestLoopBackendTimeout(t *testing.T) {
	l, mock := mockLoop(t)

	assert.Equal(t, -1, l.backendTimeout(RunDefault))
	assert.Equal(t, 0, l.backendTimeout(RunNoWait))

	timer := NewTimer(l)
	require.NoError(t, timer.Start(func(*Timer) {}, 30*time.Millisecond, 0))
	assert.Equal(t, 30, l.backendTimeout(RunDefault))
	assert.Equal(t, 30, l.backendTimeout(RunOnce))

	mock.Add(20 * time.Millisecond)
	l.UpdateTime()
	assert.Equal(t, 10, l.backendTimeout(RunDefault))

	mock.Add(20 * time.Millisecond)
	l.UpdateTime()
	assert.Equal(t, 0, l.backendTimeout(RunDefault))

	timer.Stop()
	var u UserHandle
	u.Init(l)
	require.NoError(t, u.Defer(func() {}))
	assert.Equal(t, 0, l.backendTimeout(RunDefault))
	l.processBacklog()

	l.Stop()
	assert.Equal(t, 0, l.backendTimeout(RunDefault))
	l.stopFlag = false

	require.NoError(t, timer.Start(func(*Timer) {}, 1<<40*time.Millisecond, 0))
	assert.Greater(t, l.backendTimeout(RunDefault), 0)

	timer.Close(nil)
	u.Close(nil)
	assert.NoError(t, l.Close())
}

func TestLoopNow(t *testing.T) {
	l, mock := mockLoop(t)

	assert.Equal(t, time.Duration(0), l.Now())
	mock.Add(1500 * time.Microsecond)
	assert.Equal(t, time.Duration(0), l.Now())
	l.UpdateTime()
	assert.Equal(t, time.Millisecond, l.Now())

	assert.NoError(t, l.Close())
}

func TestLoopStats(t *testing.T) {
	l, err := NewLoop(evopts.Metrics(true))
	require.NoError(t, err)

	timer := NewTimer(l)
	fired := 0
	require.NoError(t, timer.Start(func(t *Timer) {
		fired++
		if fired == 3 {
			t.Stop()
		}
	}, time.Millisecond, time.Millisecond))

	require.NoError(t, l.Run(RunDefault))
	assert.Equal(t, 3, fired)

	stats := l.Stats()
	assert.GreaterOrEqual(t, stats.Iterations, uint64(3))
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, stats.Iterations, uint64(stats.Iteration.Count))
	assert.NotZero(t, stats.PollWait.Count)
	assert.LessOrEqual(t, stats.PollWait.P50, stats.PollWait.Max)

	l.ResetMetrics()
	timer.Close(nil)
	assert.NoError(t, l.Close())
}

func TestLoopAsync(t *testing.T) {
	l := MustLoop()

	const sends = 100
	calls := 0
	a, err := NewAsync(l, func(a *Async) {
		calls++
		a.Close(nil)
	})
	require.NoError(t, err)
	assert.True(t, a.IsActive())

	var wg sync.WaitGroup
	wg.Add(4)
	for i := 0; i < 4; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < sends/4; j++ {
				assert.NoError(t, a.Send())
			}
		}()
	}
	wg.Wait()

	require.NoError(t, l.Run(RunDefault))
	assert.Equal(t, 1, calls)
	assert.True(t, a.IsClosed())
	assert.NoError(t, l.Close())
}

func TestLoopAsyncNoCallbackAfterClose(t *testing.T) {
	l, _ := mockLoop(t)

	calls, closed := 0, 0
	a, err := NewAsync(l, func(*Async) { calls++ })
	require.NoError(t, err)

	require.NoError(t, a.Send())
	a.Close(func(*Async) { closed++ })

	require.NoError(t, l.Run(RunDefault))
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, closed)

	_, err = NewAsync(l, nil)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.NoError(t, l.Close())
}

// closeTrackingPoller counts wakeups issued after Close started.
type closeTrackingPoller struct {
	internal.Poller

	closing atomic.Bool
	late    atomic.Int64
}

func (p *closeTrackingPoller) Wakeup() error {
	if p.closing.Load() {
		p.late.Add(1)
	}
	return p.Poller.Wakeup()
}

func (p *closeTrackingPoller) Close() error {
	p.closing.Store(true)
	return p.Poller.Close()
}

func TestLoopPostRacingClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		l, _ := mockLoop(t)
		tracker := &closeTrackingPoller{Poller: l.poller}
		l.poller = tracker

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
		)
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for {
					err := l.Post(func() {})
					if err != nil {
						assert.ErrorIs(t, err, ErrClosed)
						return
					}
				}
			}()
		}

		close(start)
		require.NoError(t, l.Close())
		wg.Wait()

		if n := tracker.late.Load(); n != 0 {
			t.Fatalf("%d wakeups reached a closed poller", n)
		}
	}
}
