package ev

import (
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/joeycumines/logiface"
	"github.com/talostrading/ev/everrors"
	"github.com/talostrading/ev/evopts"
	"golang.org/x/sync/errgroup"
)

// DefaultThreads is the number of workers of the default pool.
const DefaultThreads = 4

// ThreadPool runs work functions on a fixed set of worker goroutines and
// delivers their completion to the loop which submitted them.
//
// Items are taken from the CPU queue first, then fast IO, then slow IO;
// each queue is FIFO. Workers never touch loop state: completions are
// appended to the loop's intake, which wakes the loop up.
type ThreadPool struct {
	logger *logiface.Logger[logiface.Event]

	// mu guards everything below, the loop table included.
	mu     sync.Mutex
	posted *sync.Cond // signalled once per submitted item, broadcast on Close
	posts  int

	queues   [numWorkClasses]*queue.Queue
	loops    map[*Loop]struct{}
	stopping bool

	threads int
	group   errgroup.Group

	submitted uint64
	completed uint64
	cancelled uint64
	panicked  uint64
}

// NewThreadPool starts a pool. Recognised options are evopts.Threads,
// defaulting to DefaultThreads, and evopts.Logger.
func NewThreadPool(opts ...evopts.Option) (*ThreadPool, error) {
	p := &ThreadPool{
		threads: DefaultThreads,
		loops:   make(map[*Loop]struct{}),
	}

	if opt, ok := evopts.Find(evopts.TypeThreads, opts); ok {
		p.threads = opt.Value().(int)
	}
	if opt, ok := evopts.Find(evopts.TypeLogger, opts); ok {
		p.logger = opt.Value().(*logiface.Logger[logiface.Event])
	}

	if p.threads <= 0 {
		return nil, ErrInvalid
	}

	p.posted = sync.NewCond(&p.mu)
	for i := range p.queues {
		p.queues[i] = queue.New()
	}

	for i := 0; i < p.threads; i++ {
		p.group.Go(p.worker)
	}

	p.logger.Debug().Int("threads", p.threads).Log("thread pool started")

	return p, nil
}

var defaultPool struct {
	once sync.Once
	pool *ThreadPool
	err  error
}

// DefaultThreadPool returns the process wide pool, creating it on first use.
// It is never closed.
func DefaultThreadPool() (*ThreadPool, error) {
	defaultPool.once.Do(func() {
		defaultPool.pool, defaultPool.err = NewThreadPool(evopts.Threads(DefaultThreads))
	})
	return defaultPool.pool, defaultPool.err
}

func (p *ThreadPool) Threads() int {
	return p.threads
}

// Register adds l to the pool's loop table. Submit registers implicitly.
func (p *ThreadPool) Register(l *Loop) {
	p.mu.Lock()
	if p.loops != nil {
		p.loops[l] = struct{}{}
	}
	p.mu.Unlock()
}

// Unregister removes l from the loop table. It returns
// everrors.ErrNotFound if l was not registered with a running pool.
func (p *ThreadPool) Unregister(l *Loop) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopping {
		return nil
	}
	if _, ok := p.loops[l]; !ok {
		return everrors.ErrNotFound
	}
	delete(p.loops, l)
	return nil
}

// Submit queues work on the class queue. done runs on l's goroutine with a
// nil error once work returned, ErrCancelled if the item was cancelled, or
// an error wrapping ErrWorkPanic if work panicked.
//
// Submit must be called from l's goroutine. It fails with ErrAccess once the
// pool is closing.
func (p *ThreadPool) Submit(l *Loop, class WorkClass, work func(), done WorkCallback) (*Work, error) {
	if l == nil || work == nil || !class.valid() {
		return nil, ErrInvalid
	}
	if l.Closed() {
		return nil, ErrClosed
	}

	w := &Work{
		pool:  p,
		class: class,
		work:  work,
		done:  done,
	}
	w.init(l, RoleWork)
	w.eventAdd()

	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		w.exit(nil)
		return nil, ErrAccess
	}
	if _, ok := p.loops[l]; !ok {
		p.loops[l] = struct{}{}
	}
	p.queues[class].Add(w)
	p.posts++
	p.submitted++
	p.posted.Signal()
	p.mu.Unlock()

	l.trackPool(p)

	return w, nil
}

func (p *ThreadPool) worker() error {
	for {
		p.mu.Lock()
		for p.posts == 0 && !p.stopping {
			p.posted.Wait()
		}
		if p.stopping {
			p.mu.Unlock()
			return nil
		}
		p.posts--
		w := p.dequeue()
		if w == nil {
			// Only tombstones were left.
			p.mu.Unlock()
			continue
		}
		w.state = workRunning
		p.mu.Unlock()

		err := p.execute(w)

		p.mu.Lock()
		w.state = workDone
		p.completed++
		p.mu.Unlock()

		w.complete(err)
	}
}

// dequeue pops the first live item, skipping cancelled ones. Must hold mu.
func (p *ThreadPool) dequeue() *Work {
	for _, q := range p.queues {
		for q.Length() > 0 {
			w := q.Remove().(*Work)
			if w.state == workQueued {
				return w
			}
		}
	}
	return nil
}

func (p *ThreadPool) execute(w *Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkPanic, r)
			atomic.AddUint64(&p.panicked, 1)
			p.logger.Err().
				Err(err).
				Str("class", w.class.String()).
				Str("stack", string(debug.Stack())).
				Log("work panicked")
		}
	}()
	w.work()
	return nil
}

func (p *ThreadPool) cancel(w *Work) error {
	p.mu.Lock()
	if w.state != workQueued {
		p.mu.Unlock()
		return ErrBusy
	}
	// The item stays in its queue as a tombstone.
	w.state = workCancelled
	p.cancelled++
	p.mu.Unlock()

	w.complete(ErrCancelled)
	return nil
}

// Close stops the workers once they finished their current item, then
// cancels every item still queued. The cancelled items' done callbacks run
// on their loops as usual.
func (p *ThreadPool) Close() error {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return io.EOF
	}
	p.stopping = true
	p.posted.Broadcast()
	p.mu.Unlock()

	err := p.group.Wait()

	p.mu.Lock()
	var leftover []*Work
	for _, q := range p.queues {
		for q.Length() > 0 {
			w := q.Remove().(*Work)
			if w.state == workQueued {
				w.state = workCancelled
				p.cancelled++
				leftover = append(leftover, w)
			}
		}
	}
	p.posts = 0
	p.loops = nil
	p.mu.Unlock()

	for _, w := range leftover {
		w.complete(ErrCancelled)
	}

	p.logger.Debug().
		Int("cancelled", len(leftover)).
		Log("thread pool stopped")

	return err
}

// PoolStats is a snapshot of a pool's counters.
type PoolStats struct {
	Threads   int
	Loops     int
	Queued    [numWorkClasses]int
	Submitted uint64
	Completed uint64
	Cancelled uint64
	Panicked  uint64
}

func (s PoolStats) TotalQueued() int {
	n := 0
	for _, q := range s.Queued {
		n += q
	}
	return n
}

// Stats is safe to call concurrently. Queued counts include tombstones of
// cancelled items not yet skipped by a worker.
func (p *ThreadPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PoolStats{
		Threads:   p.threads,
		Loops:     len(p.loops),
		Submitted: p.submitted,
		Completed: p.completed,
		Cancelled: p.cancelled,
		Panicked:  atomic.LoadUint64(&p.panicked),
	}
	for i, q := range p.queues {
		s.Queued[i] = q.Length()
	}
	return s
}
