// Package timing accumulates per-stage wall-clock times of the pyramid.
// It is purely observational.
package timing

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KeepTime is the accumulated timing of one stage.
type KeepTime struct {
	Name  string
	Count int
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Mean returns the average duration per run.
func (k KeepTime) Mean() time.Duration {
	if k.Count == 0 {
		return 0
	}
	return k.Total / time.Duration(k.Count)
}

func (k *KeepTime) add(d time.Duration) {
	if k.Count == 0 || d < k.Min {
		k.Min = d
	}
	if d > k.Max {
		k.Max = d
	}
	k.Count++
	k.Total += d
}

// Recorder collects stage timings and exports them as Prometheus metrics.
type Recorder struct {
	mu     sync.Mutex
	stages map[string]*KeepTime
	order  []string

	registry  *prometheus.Registry
	durations *prometheus.HistogramVec
	dropped   *prometheus.CounterVec
}

// NewRecorder registers its metrics on reg, or on a fresh registry when reg
// is nil.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Recorder{
		stages:   make(map[string]*KeepTime),
		registry: reg,
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gosift",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock time of each pyramid stage.",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 2, 18),
		}, []string{"stage"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gosift",
			Name:      "dropped_candidates_total",
			Help:      "Candidates dropped because a level buffer was full.",
		}, []string{"stage"}),
	}
}

// Registry returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Time starts timing stage and returns the function that stops it.
//
//	defer rec.Time("extrema")()
func (r *Recorder) Time(stage string) func() {
	start := time.Now()
	return func() {
		r.Observe(stage, time.Since(start))
	}
}

// Observe adds one run of stage.
func (r *Recorder) Observe(stage string, d time.Duration) {
	r.mu.Lock()
	k, ok := r.stages[stage]
	if !ok {
		k = &KeepTime{Name: stage}
		r.stages[stage] = k
		r.order = append(r.order, stage)
	}
	k.add(d)
	r.mu.Unlock()

	r.durations.WithLabelValues(stage).Observe(d.Seconds())
}

// AddDropped counts candidates dropped by stage.
func (r *Recorder) AddDropped(stage string, n int) {
	if n > 0 {
		r.dropped.WithLabelValues(stage).Add(float64(n))
	}
}

// Stage returns a copy of the accumulated timing of stage.
func (r *Recorder) Stage(stage string) (KeepTime, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.stages[stage]
	if !ok {
		return KeepTime{Name: stage}, false
	}
	return *k, true
}

// Stages returns all stages in the order they were first observed.
func (r *Recorder) Stages() []KeepTime {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]KeepTime, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.stages[name])
	}
	return out
}

// Reset clears the accumulated timings. Exported metrics are kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.stages = make(map[string]*KeepTime)
	r.order = nil
	r.mu.Unlock()
}

// Report writes a table of all stages to w.
func (r *Recorder) Report(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Stage", "Runs", "Total", "Mean", "Min", "Max"})
	for _, k := range r.Stages() {
		table.Append([]string{
			k.Name,
			fmt.Sprint(k.Count),
			k.Total.String(),
			k.Mean().String(),
			k.Min.String(),
			k.Max.String(),
		})
	}
	table.Render()
}
