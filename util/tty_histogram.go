package util

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

type TtyHistOpts struct {
	Name string
	Unit string

	// Batch is the number of samples after which a report is printed and the
	// batch histogram reset. Zero means reports are only printed by Flush.
	Batch int64

	// MinPct hides bins holding less than this percentage of a batch.
	MinPct float64

	Min       int64
	Max       int64
	Precision int
	Writer    io.Writer
}

// HistSummary describes every sample added to a TtyHist since it was
// created, across batches.
type HistSummary struct {
	Name   string  `json:"name"`
	Unit   string  `json:"unit"`
	Count  int64   `json:"count"`
	Min    int64   `json:"min"`
	Max    int64   `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    int64   `json:"p50"`
	P90    int64   `json:"p90"`
	P99    int64   `json:"p99"`
	P999   int64   `json:"p999"`
}

// TtyHist prints batches of samples as text histograms.
type TtyHist struct {
	opts TtyHistOpts

	batch *hdrhistogram.Histogram
	total *hdrhistogram.Histogram
	tabw  *tabwriter.Writer
	n     int

	// Out of range samples are clamped, this counts them.
	clamped int64
}

func NewTtyHist(opts TtyHistOpts) *TtyHist {
	h := &TtyHist{
		opts:  opts,
		batch: hdrhistogram.New(opts.Min, opts.Max, opts.Precision),
		total: hdrhistogram.New(opts.Min, opts.Max, opts.Precision),
	}
	if opts.Writer != nil {
		h.tabw = tabwriter.NewWriter(opts.Writer, 2, 2, 2, ' ', 0)
	}
	return h
}

func (h *TtyHist) Add(xs ...int64) {
	for _, x := range xs {
		if x < h.opts.Min {
			x = h.opts.Min
			h.clamped++
		} else if x > h.opts.Max {
			x = h.opts.Max
			h.clamped++
		}
		_ = h.batch.RecordValue(x)
		_ = h.total.RecordValue(x)
	}
	if h.opts.Batch > 0 && h.batch.TotalCount() >= h.opts.Batch {
		h.report()
	}
}

// AddDuration adds d expressed in the histogram's unit, which must be one of
// ns, us, ms or s.
func (h *TtyHist) AddDuration(d time.Duration) {
	switch h.opts.Unit {
	case "us":
		h.Add(d.Microseconds())
	case "ms":
		h.Add(d.Milliseconds())
	case "s":
		h.Add(int64(d / time.Second))
	default:
		h.Add(d.Nanoseconds())
	}
}

// Flush reports the samples of the current batch, if any.
func (h *TtyHist) Flush() {
	if h.batch.TotalCount() > 0 {
		h.report()
	}
}

// Reported returns the number of reports printed so far.
func (h *TtyHist) Reported() int {
	return h.n
}

func (h *TtyHist) Clamped() int64 {
	return h.clamped
}

func (h *TtyHist) Summary() HistSummary {
	return HistSummary{
		Name:   h.opts.Name,
		Unit:   h.opts.Unit,
		Count:  h.total.TotalCount(),
		Min:    h.total.Min(),
		Max:    h.total.Max(),
		Mean:   h.total.Mean(),
		StdDev: h.total.StdDev(),
		P50:    h.total.ValueAtQuantile(50),
		P90:    h.total.ValueAtQuantile(90),
		P99:    h.total.ValueAtQuantile(99),
		P999:   h.total.ValueAtQuantile(99.9),
	}
}

func (h *TtyHist) report() {
	defer h.batch.Reset()

	h.n++
	if h.opts.Writer == nil {
		return
	}

	var (
		w     = h.opts.Writer
		unit  = h.opts.Unit
		count = h.batch.TotalCount()
	)

	fmt.Fprint(w, strings.Repeat("-", 46)+"\n")
	fmt.Fprintf(w,
		"%v histogram report=%d name=%s samples=%d unit=%s\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		h.n, h.opts.Name, count, unit,
	)
	fmt.Fprintf(w,
		"summary min/avg/max/stddev = %d/%.3f/%d/%.3f %s\n",
		h.batch.Min(), h.batch.Mean(), h.batch.Max(), h.batch.StdDev(), unit)
	for _, q := range []float64{50, 75, 90, 95, 99, 99.9} {
		fmt.Fprintf(w, "%gth percentile=%d %s\n", q, h.batch.ValueAtQuantile(q), unit)
	}
	fmt.Fprintln(w)

	var (
		bins                     = h.batch.Distribution()
		minCount, maxCount int64 = math.MaxInt64, math.MinInt64
	)
	for _, bin := range bins {
		if h.hidden(bin.Count, count) {
			continue
		}
		if bin.Count < minCount {
			minCount = bin.Count
		}
		if bin.Count > maxCount {
			maxCount = bin.Count
		}
	}

	for _, bin := range bins {
		if h.hidden(bin.Count, count) {
			continue
		}

		bar := 1
		if maxCount > minCount {
			fraction := float64(bin.Count-minCount) / float64(maxCount-minCount)
			bar = max(1, int(math.Ceil(fraction*10)))
		}

		to := bin.To
		if bin.From == to {
			to++
		}

		fmt.Fprintf(h.tabw, "%d-%d %s\t%.3g%%\t%s\t%s\n",
			bin.From, to, unit,
			float64(bin.Count)*100/float64(count),
			strings.Repeat("|", bar),
			strconv.FormatInt(bin.Count, 10),
		)
	}
	_ = h.tabw.Flush()
}

func (h *TtyHist) hidden(binCount, count int64) bool {
	if binCount == 0 {
		return true
	}
	return float64(binCount)*100/float64(count) < h.opts.MinPct
}
