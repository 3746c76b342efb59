package ev

import (
	"github.com/talostrading/ev/everrors"
	"github.com/talostrading/ev/internal"
)

// Watcher reports readiness of a file descriptor it does not own. Only one
// Watcher may be started per file descriptor and loop; starting a second one
// fails with ErrExist.
//
// Watchers require a backend able to watch file descriptors: the portable
// backend returns everrors.ErrNotSupported.
type Watcher struct {
	Handle

	pd      internal.PollData
	cb      WatcherCallback
	started bool
}

func NewWatcher(l *Loop, fd int) (*Watcher, error) {
	if fd < 0 {
		return nil, everrors.ErrBadFd
	}
	w := &Watcher{}
	w.init(l, RoleWatcher)
	w.pd.Fd = fd
	w.pd.Handler = w.dispatch
	return w, nil
}

func (w *Watcher) Fd() int {
	return w.pd.Fd
}

// Start begins watching for events, a combination of Readable and Writable.
// Calling Start on a started watcher replaces the interest and callback.
//
// Error and Hangup are always reported.
func (w *Watcher) Start(events Events, cb WatcherCallback) error {
	if w.IsClosing() {
		return ErrClosed
	}
	if cb == nil || events&(Readable|Writable) == 0 {
		return ErrInvalid
	}

	if err := w.setInterest(events); err != nil {
		return err
	}
	w.cb = cb
	if !w.started {
		w.started = true
		w.eventAdd()
	}
	return nil
}

func (w *Watcher) setInterest(events Events) error {
	p := w.loop.poller

	var err error
	if events.Has(Readable) {
		err = p.SetRead(&w.pd)
	} else {
		err = p.DelRead(&w.pd)
	}
	if err != nil {
		return everrors.Translate(err)
	}

	if events.Has(Writable) {
		err = p.SetWrite(&w.pd)
	} else {
		err = p.DelWrite(&w.pd)
	}
	if err != nil {
		return everrors.Translate(err)
	}
	return nil
}

// Stop removes every interest. Stopping a stopped watcher is a no-op.
func (w *Watcher) Stop() error {
	if !w.started {
		return nil
	}
	w.started = false
	w.eventDec()
	if err := w.loop.poller.Del(&w.pd); err != nil {
		return everrors.Translate(err)
	}
	return nil
}

func (w *Watcher) dispatch(events Events) {
	if !w.started || w.IsClosing() {
		return
	}
	w.cb(w, events)
}

// Close stops the watcher and releases it. The file descriptor is left open.
func (w *Watcher) Close(cb func(*Watcher)) error {
	err := w.Stop()
	if cb == nil {
		w.exit(nil)
	} else {
		w.exit(func() { cb(w) })
	}
	return err
}
