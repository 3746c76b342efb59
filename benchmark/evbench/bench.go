package main

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/talostrading/ev"
	"github.com/talostrading/ev/util"
)

// benchAsync measures the time between an Async.Send on another goroutine
// and its callback running on the loop. Sends are issued one at a time so
// that none are coalesced.
func benchAsync(l *ev.Loop, hist *util.TtyHist, n int) error {
	var (
		base   = time.Now()
		sentAt atomic.Int64
		ack    = make(chan struct{}, 1)
		got    = 0
	)

	a, err := ev.NewAsync(l, func(a *ev.Async) {
		hist.AddDuration(time.Since(base) - time.Duration(sentAt.Load()))
		got++
		if got == n {
			a.Close(nil)
			return
		}
		ack <- struct{}{}
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		for i := 0; i < n; i++ {
			if i > 0 {
				<-ack
			}
			sentAt.Store(int64(time.Since(base)))
			if err := a.Send(); err != nil {
				_ = l.Post(func() { a.Close(nil) })
				errc <- err
				return
			}
		}
		errc <- nil
	}()

	if err := l.Run(ev.RunDefault); err != nil {
		return err
	}
	return <-errc
}

// benchTimers runs k repeating timers and records how far each firing
// strays from the configured interval.
func benchTimers(l *ev.Loop, hist *util.TtyHist, n, k int, interval time.Duration) error {
	if k <= 0 || interval < time.Millisecond {
		return errors.New("timer mode needs at least one timer and an interval of at least 1ms")
	}

	var (
		timers = make([]*ev.Timer, k)
		last   = make([]time.Time, k)
		fired  = 0
	)
	for i := range timers {
		timers[i] = ev.NewTimer(l)
		last[i] = time.Now()

		err := timers[i].Start(func(*ev.Timer) {
			now := time.Now()
			jitter := now.Sub(last[i]) - interval
			if jitter < 0 {
				jitter = -jitter
			}
			last[i] = now
			hist.AddDuration(jitter)

			fired++
			if fired == n {
				for _, t := range timers {
					t.Close(nil)
				}
			}
		}, interval, interval)
		if err != nil {
			return err
		}
	}

	return l.Run(ev.RunDefault)
}

var classes = [...]ev.WorkClass{ev.ClassCPU, ev.ClassFastIO, ev.ClassSlowIO}

// benchWork keeps inflight no-op work items queued on the loop's pool and
// records the time from submission to the done callback.
func benchWork(l *ev.Loop, hist *util.TtyHist, n, inflight int) error {
	if inflight <= 0 {
		return errors.New("work mode needs at least one item in flight")
	}

	var (
		submitted = 0
		failed    error
		submit    func() error
	)
	submit = func() error {
		at := time.Now()
		class := classes[submitted%len(classes)]
		submitted++

		_, err := l.QueueWork(class, func() {}, func(_ *ev.Work, err error) {
			hist.AddDuration(time.Since(at))
			if err != nil {
				failed = err
				return
			}
			if failed == nil && submitted < n {
				failed = submit()
			}
		})
		return err
	}

	for i := 0; i < inflight && submitted < n; i++ {
		if err := submit(); err != nil {
			return err
		}
	}

	if err := l.Run(ev.RunDefault); err != nil {
		return err
	}
	return failed
}
