package observability

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

type TaskDurationStats struct {
	TaskType string  `json:"taskType"`
	Samples  int     `json:"samples"`
	LastMS   float64 `json:"lastMs"`
	AvgMS    float64 `json:"avgMs"`
	P50MS    float64 `json:"p50Ms"`
	P95MS    float64 `json:"p95Ms"`
	MaxMS    float64 `json:"maxMs"`
}

type TaskIndicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type TaskDurationSnapshot struct {
	GeneratedAt time.Time           `json:"generatedAt"`
	WindowSize  int                 `json:"windowSize"`
	Types       []TaskDurationStats `json:"types"`
	Indicators  []TaskIndicator     `json:"indicators,omitempty"`
}

// taskWindow keeps the last maxSamples completion times per task type in a
// ring buffer, plus plain counters for notable poll outcomes.
type taskWindow struct {
	mu         sync.RWMutex
	maxSamples int
	types      map[string]*ring
	indicators map[string]int
}

type ring struct {
	values []float64
	next   int
	filled bool
	last   float64
}

func newTaskWindow(maxSamples int) *taskWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &taskWindow{
		maxSamples: maxSamples,
		types:      make(map[string]*ring),
		indicators: make(map[string]int),
	}
}

func (w *taskWindow) Observe(taskType string, ms float64) {
	if w == nil || taskType == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	r, ok := w.types[taskType]
	if !ok {
		r = &ring{values: make([]float64, w.maxSamples)}
		w.types[taskType] = r
	}
	r.values[r.next] = ms
	r.last = ms
	r.next++
	if r.next >= len(r.values) {
		r.next = 0
		r.filled = true
	}
}

func (w *taskWindow) ObserveIndicator(name string) {
	if w == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *taskWindow) Snapshot() TaskDurationSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	keys := make([]string, 0, len(w.types))
	for k := range w.types {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	stats := make([]TaskDurationStats, 0, len(keys))
	for _, k := range keys {
		r := w.types[k]
		n := r.next
		if r.filled {
			n = len(r.values)
		}
		if n == 0 {
			continue
		}
		samples := slices.Clone(r.values[:n])
		slices.Sort(samples)
		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		stats = append(stats, TaskDurationStats{
			TaskType: k,
			Samples:  n,
			LastMS:   round2(r.last),
			AvgMS:    round2(sum / float64(n)),
			P50MS:    round2(quantile(samples, 0.50)),
			P95MS:    round2(quantile(samples, 0.95)),
			MaxMS:    samples[n-1],
		})
	}

	names := make([]string, 0, len(w.indicators))
	for name, count := range w.indicators {
		if count > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	indicators := make([]TaskIndicator, 0, len(names))
	for _, name := range names {
		indicators = append(indicators, TaskIndicator{Name: name, Count: w.indicators[name]})
	}

	return TaskDurationSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Types:       stats,
		Indicators:  indicators,
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
