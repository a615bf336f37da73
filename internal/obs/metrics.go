package obs

import (
	"sort"
	"strings"
	"sync"
)

// Label is a key/value pair attached to measurements.
type Label struct {
	Key   string
	Value string
}

// Meter is a very small interface for emitting counters/histograms.
// Implementations may no-op or bridge to a metrics system.
type Meter interface {
	Counter(name string, value float64, labels ...Label)
	Histogram(name string, value float64, labels ...Label)
}

// NopMeter is a Meter that discards all measurements.
type NopMeter struct{}

func (NopMeter) Counter(name string, value float64, labels ...Label)   {}
func (NopMeter) Histogram(name string, value float64, labels ...Label) {}

// Summary aggregates the observations of one histogram series.
type Summary struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
}

// Tally is an in-memory Meter. Series are keyed by name plus sorted labels,
// e.g. `dirserv.responses{status=200}`.
type Tally struct {
	mu       sync.Mutex
	counters map[string]float64
	hists    map[string]*Summary
}

// NewTally returns an empty Tally.
func NewTally() *Tally {
	return &Tally{counters: map[string]float64{}, hists: map[string]*Summary{}}
}

// Counter adds value to the counter series.
func (t *Tally) Counter(name string, value float64, labels ...Label) {
	t.mu.Lock()
	t.counters[seriesKey(name, labels)] += value
	t.mu.Unlock()
}

// Histogram records one observation in the histogram series.
func (t *Tally) Histogram(name string, value float64, labels ...Label) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := seriesKey(name, labels)
	s := t.hists[k]
	if s == nil {
		s = &Summary{Min: value, Max: value}
		t.hists[k] = s
	}
	s.Count++
	s.Sum += value
	if value < s.Min {
		s.Min = value
	}
	if value > s.Max {
		s.Max = value
	}
}

// CounterValue returns the current value of a counter series.
func (t *Tally) CounterValue(name string, labels ...Label) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters[seriesKey(name, labels)]
}

// HistogramSummary returns a copy of a histogram series.
func (t *Tally) HistogramSummary(name string, labels ...Label) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.hists[seriesKey(name, labels)]; s != nil {
		return *s
	}
	return Summary{}
}

// Report writes every series to l at Info, in key order.
func (t *Tally) Report(l Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.counters))
	for k := range t.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		l.Logf(Info, "metric %s = %g", k, t.counters[k])
	}
	keys = keys[:0]
	for k := range t.hists {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := t.hists[k]
		l.Logf(Info, "metric %s count=%d sum=%g min=%g max=%g", k, s.Count, s.Sum, s.Min, s.Max)
	}
}

func seriesKey(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	ls := append([]Label(nil), labels...)
	sort.Slice(ls, func(i, j int) bool { return ls[i].Key < ls[j].Key })
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, l := range ls {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.Key)
		b.WriteByte('=')
		b.WriteString(l.Value)
	}
	b.WriteByte('}')
	return b.String()
}
