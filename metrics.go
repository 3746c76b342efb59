package ev

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	metricsMinMicros  = 1
	metricsMaxMicros  = 60 * 1_000_000
	metricsPrecision  = 2
	metricsQuantile50 = 50.0
	metricsQuantile99 = 99.0
)

// LatencyStats summarises a histogram of durations.
type LatencyStats struct {
	Count int64
	Min   time.Duration
	P50   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
}

// LoopStats is a snapshot of a loop's counters. The latency fields are only
// populated on loops created with evopts.Metrics(true).
type LoopStats struct {
	Iterations uint64
	Active     int
	Idle       int
	Timers     int

	// Watched is the number of file descriptors registered with the poller.
	Watched int

	PollWait  LatencyStats
	Iteration LatencyStats
}

type loopMetrics struct {
	pollWait  *hdrhistogram.Histogram
	iteration *hdrhistogram.Histogram
}

func newLoopMetrics() *loopMetrics {
	return &loopMetrics{
		pollWait:  hdrhistogram.New(metricsMinMicros, metricsMaxMicros, metricsPrecision),
		iteration: hdrhistogram.New(metricsMinMicros, metricsMaxMicros, metricsPrecision),
	}
}

func record(h *hdrhistogram.Histogram, d time.Duration) {
	us := d.Microseconds()
	if us < metricsMinMicros {
		us = metricsMinMicros
	}
	if us > metricsMaxMicros {
		us = metricsMaxMicros
	}
	_ = h.RecordValue(us)
}

func summarize(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return LatencyStats{
		Count: h.TotalCount(),
		Min:   us(h.Min()),
		P50:   us(h.ValueAtQuantile(metricsQuantile50)),
		P99:   us(h.ValueAtQuantile(metricsQuantile99)),
		Max:   us(h.Max()),
		Mean:  time.Duration(h.Mean() * float64(time.Microsecond)),
	}
}

func (m *loopMetrics) reset() {
	m.pollWait.Reset()
	m.iteration.Reset()
}
