package ev

type workState uint8

const (
	workQueued workState = iota
	workRunning
	workDone
	workCancelled
)

// Work is a unit of work submitted to a ThreadPool. It is a handle of the
// submitting loop and keeps it alive until its done callback ran, after
// which the Work is closed.
type Work struct {
	Handle

	pool  *ThreadPool
	class WorkClass
	state workState // guarded by pool.mu

	work func()
	done WorkCallback
	err  error
}

func (w *Work) Class() WorkClass {
	return w.class
}

// Cancel removes the item from its queue. It fails with ErrBusy once a
// worker picked it up; done then runs with the work's own outcome.
// On success done runs with ErrCancelled.
func (w *Work) Cancel() error {
	return w.pool.cancel(w)
}

// complete may run on any goroutine.
func (w *Work) complete(err error) {
	w.err = err
	if qerr := w.loop.enqueue(w.deliver); qerr != nil {
		w.loop.logger.Err().
			Err(qerr).
			Str("class", w.class.String()).
			Log("work completion dropped")
	}
}

func (w *Work) deliver() {
	// Each item completes exactly once, so the backlog slot is free.
	if err := w.backlogSubmit(w.finish); err != nil {
		abortf(w.loop, "work completed twice")
	}
}

func (w *Work) finish() {
	w.eventDec()
	w.exit(nil)
	if w.done != nil {
		w.done(w, w.err)
	}
}
