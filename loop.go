package ev

import (
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/btree"
	"github.com/joeycumines/logiface"
	"github.com/talostrading/ev/everrors"
	"github.com/talostrading/ev/evopts"
	"github.com/talostrading/ev/internal"
	"github.com/talostrading/ev/util"
	"go.uber.org/multierr"
)

const timerTreeDegree = 16

// Loop is a single threaded reactor. It multiplexes timers, file descriptor
// watchers, thread-pool completions and deferred callbacks into one
// poll, dispatch, cleanup cycle.
//
// Every method except Post, Stats and Closed must be called from the
// goroutine running the loop. Callbacks are always invoked on that
// goroutine.
type Loop struct {
	poller internal.Poller
	pool   *ThreadPool

	// pools holds every pool the loop is registered with, the configured
	// one and those it submitted to. Close unregisters from all of them.
	pools []*ThreadPool

	logger *logiface.Logger[logiface.Event]
	clock  clock.Clock
	epoch  time.Time

	// now is the cached time in milliseconds since epoch, refreshed by
	// UpdateTime.
	now uint64

	idle    util.List[*Handle]
	active  util.List[*Handle]
	backlog util.List[*Handle]
	endgame util.List[*Handle]

	timers   *btree.BTreeG[*Timer]
	timerSeq uint64

	// intake receives closures posted from other goroutines: thread-pool
	// completions, async sends and Post calls. Guarded by intakeMu.
	intakeMu sync.Mutex
	intake   []func()
	draining []func()

	running    bool
	stopFlag   bool
	iterations uint64
	metrics    *loopMetrics

	statsMu sync.Mutex
	stats   LoopStats

	closed uint32
}

// NewLoop creates a loop. Recognised options are evopts.Backend,
// evopts.MaxEvents, evopts.Metrics, evopts.Logger, evopts.Clock and
// UseThreadPool.
func NewLoop(opts ...evopts.Option) (*Loop, error) {
	var (
		backend   = evopts.BackendDefault
		maxEvents = 0
		metrics   = false
	)

	l := &Loop{
		clock: clock.New(),
	}

	if opt, ok := evopts.Find(evopts.TypeBackend, opts); ok {
		backend = opt.Value().(evopts.BackendKind)
	}
	if opt, ok := evopts.Find(evopts.TypeMaxEvents, opts); ok {
		maxEvents = opt.Value().(int)
	}
	if opt, ok := evopts.Find(evopts.TypeMetrics, opts); ok {
		metrics = opt.Value().(bool)
	}
	if opt, ok := evopts.Find(evopts.TypeLogger, opts); ok {
		l.logger = opt.Value().(*logiface.Logger[logiface.Event])
	}
	if opt, ok := evopts.Find(evopts.TypeClock, opts); ok {
		if c := opt.Value().(clock.Clock); c != nil {
			l.clock = c
		}
	}
	if opt, ok := evopts.Find(evopts.TypeThreadPool, opts); ok {
		l.pool = opt.Value().(*ThreadPool)
	}

	var err error
	switch backend {
	case evopts.BackendDefault:
		l.poller, err = internal.NewDefaultPoller(maxEvents)
	case evopts.BackendEpoll:
		l.poller, err = internal.NewEpoll(maxEvents)
	case evopts.BackendPortable:
		l.poller = internal.NewPortablePoller()
	default:
		err = everrors.ErrInvalid
	}
	if err != nil {
		return nil, everrors.Translate(err)
	}

	if metrics {
		l.metrics = newLoopMetrics()
	}

	l.epoch = l.clock.Now()
	l.timers = btree.NewG[*Timer](timerTreeDegree, timerLess)

	if l.pool != nil {
		l.pool.Register(l)
		l.trackPool(l.pool)
	}

	l.logger.Debug().
		Str("backend", backend.String()).
		Bool("metrics", metrics).
		Log("loop created")

	return l, nil
}

func MustLoop(opts ...evopts.Option) *Loop {
	l, err := NewLoop(opts...)
	if err != nil {
		panic(err)
	}
	return l
}

// Run drives the loop according to mode. It returns a non nil error only if
// the poller fails.
//
// With RunDefault, Run returns once the loop is no longer alive, see Alive,
// or once Stop has been called.
func (l *Loop) Run(mode RunMode) error {
	if l.Closed() {
		return ErrClosed
	}
	if l.running {
		return ErrReentrantRun
	}
	l.running = true
	defer func() {
		l.running = false
		l.stopFlag = false
		l.publishStats()
	}()

	for {
		var start time.Time
		if l.metrics != nil {
			start = time.Now()
		}

		l.UpdateTime()
		l.processTimers()
		l.processBacklog()
		l.processEndgame()

		if !l.Alive() {
			return nil
		}

		if err := l.poll(l.backendTimeout(mode)); err != nil {
			return err
		}

		if mode == RunOnce {
			// The wait may have been cut short by a timer expiring, in which
			// case the iteration should account for it.
			l.UpdateTime()
			l.processTimers()
		}

		l.processBacklog()
		l.processEndgame()

		l.iterations++
		if l.metrics != nil {
			record(l.metrics.iteration, time.Since(start))
		}

		if mode != RunDefault || l.stopFlag {
			return nil
		}
	}
}

func (l *Loop) backendTimeout(mode RunMode) int {
	if l.stopFlag || mode == RunNoWait {
		return 0
	}
	if !l.backlog.Empty() || !l.endgame.Empty() || l.intakePending() {
		return 0
	}

	t, ok := l.timers.Min()
	if !ok {
		return -1
	}
	if t.deadline <= l.now {
		return 0
	}
	diff := t.deadline - l.now
	if diff > math.MaxUint32 {
		diff = math.MaxUint32
	}
	return internal.ClampTimeout(int64(diff))
}

func (l *Loop) poll(timeoutMs int) error {
	var start time.Time
	if l.metrics != nil {
		start = time.Now()
	}

	_, err := l.poller.Poll(timeoutMs)

	if l.metrics != nil {
		record(l.metrics.pollWait, time.Since(start))
	}

	if err != nil {
		err = everrors.Translate(err)
		l.logger.Err().
			Err(err).
			Int("timeout_ms", timeoutMs).
			Log("poll failed")
		return err
	}
	return nil
}

// Stop makes Run return at the end of the current iteration. Use
// l.Post(l.Stop) to stop a loop from another goroutine.
func (l *Loop) Stop() {
	l.stopFlag = true
}

// Alive returns true if the loop has active handles, deferred callbacks or
// posted work waiting to run.
func (l *Loop) Alive() bool {
	return !l.active.Empty() ||
		!l.backlog.Empty() ||
		!l.endgame.Empty() ||
		l.intakePending()
}

// Pending returns the number of callbacks waiting for the next backlog or
// endgame phase, posted closures included.
func (l *Loop) Pending() int {
	l.intakeMu.Lock()
	n := len(l.intake)
	l.intakeMu.Unlock()
	return n + l.backlog.Size() + l.endgame.Size()
}

// UpdateTime refreshes the cached time. Run does it at the start of every
// iteration.
func (l *Loop) UpdateTime() {
	now := uint64(l.clock.Since(l.epoch) / time.Millisecond)
	if now > l.now {
		l.now = now
	}
}

// Now returns the cached time since the loop was created, in milliseconds
// resolution.
func (l *Loop) Now() time.Duration {
	return time.Duration(l.now) * time.Millisecond
}

// Post schedules fn to run on the loop's goroutine during the next backlog
// phase. It is safe to call concurrently. Posted closures keep the loop
// alive until they ran.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return ErrInvalid
	}
	return l.enqueue(fn)
}

func (l *Loop) enqueue(fn func()) error {
	l.intakeMu.Lock()
	if l.Closed() {
		l.intakeMu.Unlock()
		return ErrClosed
	}
	l.intake = append(l.intake, fn)

	// Close marks the loop closed under intakeMu before closing the poller,
	// so the waker is still open here.
	err := l.poller.Wakeup()
	l.intakeMu.Unlock()

	if err != nil {
		return everrors.Translate(err)
	}
	return nil
}

func (l *Loop) intakePending() bool {
	l.intakeMu.Lock()
	n := len(l.intake)
	l.intakeMu.Unlock()
	return n > 0
}

func (l *Loop) drainIntake() {
	l.intakeMu.Lock()
	l.draining, l.intake = l.intake, l.draining[:0]
	l.intakeMu.Unlock()

	for i, fn := range l.draining {
		l.draining[i] = nil
		fn()
	}
	l.draining = l.draining[:0]
}

func (l *Loop) processBacklog() {
	l.drainIntake()

	for {
		h, ok := l.backlog.PopFront()
		if !ok {
			return
		}
		h.backlogIx = util.Nil
		cb := h.backlogCb
		h.backlogCb = nil
		h.eventDec()
		cb()
	}
}

func (l *Loop) processEndgame() {
	for {
		h, ok := l.endgame.PopFront()
		if !ok {
			return
		}
		h.endgameIx = util.Nil
		cb := h.closeCb
		h.closeCb = nil
		h.release()
		cb()
	}
}

func (l *Loop) processTimers() {
	for {
		t, ok := l.timers.Min()
		if !ok || t.deadline > l.now {
			return
		}
		t.Stop()
		if t.repeat != 0 {
			t.schedule(t.repeat)
		}
		t.cb(t)
	}
}

func (l *Loop) nextTimerSeq() uint64 {
	l.timerSeq++
	return l.timerSeq
}

// Walk calls fn for every handle which is not closed, active handles first,
// until fn returns false. fn must not open or close handles.
func (l *Loop) Walk(fn func(*Handle) bool) {
	cont := true
	visit := func(_ util.Index, h *Handle) bool {
		cont = fn(h)
		return cont
	}
	l.active.Iterate(visit)
	if cont {
		l.idle.Iterate(visit)
	}
}

// QueueWork submits work to the loop's thread pool, or to the default pool
// if the loop was created without one. done runs on the loop's goroutine.
func (l *Loop) QueueWork(class WorkClass, work func(), done WorkCallback) (*Work, error) {
	pool := l.pool
	if pool == nil {
		p, err := DefaultThreadPool()
		if err != nil {
			return nil, err
		}
		pool = p
	}
	return pool.Submit(l, class, work, done)
}

func (l *Loop) trackPool(p *ThreadPool) {
	for _, cur := range l.pools {
		if cur == p {
			return
		}
	}
	l.pools = append(l.pools, p)
}

// ThreadPool returns the pool configured with UseThreadPool, or nil.
func (l *Loop) ThreadPool() *ThreadPool {
	return l.pool
}

func (l *Loop) publishStats() {
	l.statsMu.Lock()
	l.stats.Iterations = l.iterations
	l.stats.Active = l.active.Size()
	l.stats.Idle = l.idle.Size()
	l.stats.Timers = l.timers.Len()
	l.stats.Watched = l.poller.Registered()
	if l.metrics != nil {
		l.stats.PollWait = summarize(l.metrics.pollWait)
		l.stats.Iteration = summarize(l.metrics.iteration)
	}
	l.statsMu.Unlock()
}

// Stats returns the counters published when Run last returned.
// It is safe to call concurrently.
func (l *Loop) Stats() LoopStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// ResetMetrics clears the latency histograms.
func (l *Loop) ResetMetrics() {
	if l.metrics != nil {
		l.metrics.reset()
	}
}

// Close releases the loop's backend. It fails with ErrBusy while any handle
// exists, closed or not yet released. Closures posted but not yet run are
// dropped.
func (l *Loop) Close() error {
	if l.running {
		return ErrBusy
	}
	if n := l.active.Size() + l.idle.Size(); n > 0 {
		l.logger.Warning().
			Int("active", l.active.Size()).
			Int("idle", l.idle.Size()).
			Log("loop close with live handles")
		return ErrBusy
	}

	l.intakeMu.Lock()
	if !atomic.CompareAndSwapUint32(&l.closed, 0, 1) {
		l.intakeMu.Unlock()
		return io.EOF
	}
	l.intake = nil
	l.intakeMu.Unlock()

	err := l.poller.Close()
	for _, p := range l.pools {
		err = multierr.Append(err, p.Unregister(l))
	}
	l.pools = nil

	l.logger.Debug().Uint64("iterations", l.iterations).Log("loop closed")

	return err
}

func (l *Loop) Closed() bool {
	return atomic.LoadUint32(&l.closed) == 1
}
