// evbench measures the latency of the loop's wakeup paths: cross-goroutine
// async sends, repeating timers and thread-pool round trips.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/felixge/fgprof"
	"github.com/joeycumines/logiface"
	"github.com/spf13/pflag"
	"github.com/sugawarayuuta/sonnet"
	"github.com/talostrading/ev"
	"github.com/talostrading/ev/evopts"
	"github.com/talostrading/ev/util"
	"go.uber.org/automaxprocs/maxprocs"
)

var (
	mode     = pflag.StringP("mode", "m", "async", "one of: async, timer, work")
	n        = pflag.IntP("samples", "n", 100_000, "number of samples to take")
	batch    = pflag.Int64("batch", 0, "samples per histogram report, 0 reports once at the end")
	threads  = pflag.Int("threads", ev.DefaultThreads, "thread pool size, work mode")
	inflight = pflag.Int("inflight", 64, "work items in flight, work mode")
	timers   = pflag.Int("timers", 16, "number of repeating timers, timer mode")
	interval = pflag.Duration("interval", time.Millisecond, "timer interval, timer mode")
	backend  = pflag.String("backend", "default", "poller backend: default, epoll or portable")
	pprof    = pflag.String("pprof", "", "serve fgprof on this address, e.g. localhost:6060")
	asJSON   = pflag.Bool("json", false, "print a JSON summary instead of histograms")
	verbose  = pflag.BoolP("verbose", "v", false, "log loop and pool events to stderr")
)

type summary struct {
	Mode     string           `json:"mode"`
	Elapsed  string           `json:"elapsed"`
	Rate     float64          `json:"rate"`
	Latency  util.HistSummary `json:"latency"`
	Clamped  int64            `json:"clamped"`
	Loop     ev.LoopStats     `json:"loop"`
	Pool     *ev.PoolStats    `json:"pool,omitempty"`
	MaxProcs int              `json:"maxprocs"`
}

func main() {
	pflag.Parse()

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		if *verbose {
			log.Printf(format, args...)
		}
	}))
	if err != nil {
		log.Fatal(err)
	}
	defer undo()

	if *pprof != "" {
		http.DefaultServeMux.Handle("/debug/fgprof", fgprof.Handler())
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	var out io.Writer = os.Stdout
	if *asJSON {
		out = nil
	}
	hist := util.NewTtyHist(util.TtyHistOpts{
		Name:      *mode,
		Unit:      "us",
		Batch:     *batch,
		MinPct:    0.1,
		Min:       1,
		Max:       10_000_000,
		Precision: 2,
		Writer:    out,
	})

	kind, err := parseBackend(*backend)
	if err != nil {
		log.Fatal(err)
	}

	var logger *logiface.Logger[logiface.Event]
	if *verbose {
		logger = ev.NewLogger(os.Stderr, logiface.LevelDebug)
	}

	opts := []evopts.Option{
		evopts.Backend(kind),
		evopts.Metrics(true),
		evopts.Logger(logger),
	}

	var pool *ev.ThreadPool
	if *mode == "work" {
		pool, err = ev.NewThreadPool(evopts.Threads(*threads), evopts.Logger(logger))
		if err != nil {
			log.Fatal(err)
		}
		opts = append(opts, ev.UseThreadPool(pool))
	}

	l, err := ev.NewLoop(opts...)
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	switch *mode {
	case "async":
		err = benchAsync(l, hist, *n)
	case "timer":
		err = benchTimers(l, hist, *n, *timers, *interval)
	case "work":
		err = benchWork(l, hist, *n, *inflight)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatal(err)
	}
	elapsed := time.Since(start)
	hist.Flush()

	s := summary{
		Mode:     *mode,
		Elapsed:  elapsed.String(),
		Rate:     float64(*n) / elapsed.Seconds(),
		Latency:  hist.Summary(),
		Clamped:  hist.Clamped(),
		Loop:     l.Stats(),
		MaxProcs: runtime.GOMAXPROCS(0),
	}
	if pool != nil {
		ps := pool.Stats()
		s.Pool = &ps
	}

	if err := l.Close(); err != nil {
		log.Fatal(err)
	}
	if pool != nil {
		if err := pool.Close(); err != nil {
			log.Fatal(err)
		}
	}

	if *asJSON {
		b, err := sonnet.Marshal(s)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(b))
		return
	}
	report(os.Stdout, s)
}

func parseBackend(s string) (evopts.BackendKind, error) {
	switch s {
	case "default":
		return evopts.BackendDefault, nil
	case "epoll":
		return evopts.BackendEpoll, nil
	case "portable":
		return evopts.BackendPortable, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", s)
	}
}

func report(w io.Writer, s summary) {
	fmt.Fprintf(w, "\nmode=%s samples=%d elapsed=%s rate=%.0f/s\n",
		s.Mode, s.Latency.Count, s.Elapsed, s.Rate)
	fmt.Fprintf(w, "loop iterations=%d poll_wait p50/p99/max=%s/%s/%s iteration p50/p99/max=%s/%s/%s\n",
		s.Loop.Iterations,
		s.Loop.PollWait.P50, s.Loop.PollWait.P99, s.Loop.PollWait.Max,
		s.Loop.Iteration.P50, s.Loop.Iteration.P99, s.Loop.Iteration.Max,
	)
	if s.Pool != nil {
		fmt.Fprintf(w, "pool threads=%d submitted=%d completed=%d cancelled=%d panicked=%d\n",
			s.Pool.Threads, s.Pool.Submitted, s.Pool.Completed, s.Pool.Cancelled, s.Pool.Panicked)
	}
	if s.Clamped > 0 {
		fmt.Fprintf(w, "clamped samples=%d\n", s.Clamped)
	}
}
