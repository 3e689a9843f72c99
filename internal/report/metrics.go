package report

// The session log is the only source of truth.
// Read it, never write it.
// A line we cannot parse is counted, not fatal.

import (
	"time"

	"github.com/shopspring/decimal"
)

// LogEvent is one classified line, produced during a scan and then dropped
type LogEvent struct {
	Class   MarkerClass
	Line    string
	Payload *decimal.Decimal
}

// Aggregate summarizes the numeric payloads of one class.
// Min and Max are seeded from the first valid payload.
type Aggregate struct {
	Sum  decimal.Decimal `json:"sum" yaml:"sum"`
	Min  decimal.Decimal `json:"min" yaml:"min"`
	Max  decimal.Decimal `json:"max" yaml:"max"`
	Mean decimal.Decimal `json:"mean" yaml:"mean"`
	N    int             `json:"n" yaml:"n"`
}

// Add folds one payload into the aggregate
func (a *Aggregate) Add(v decimal.Decimal) {
	if a.N == 0 {
		a.Min, a.Max = v, v
	} else {
		a.Min = decimal.Min(a.Min, v)
		a.Max = decimal.Max(a.Max, v)
	}
	a.Sum = a.Sum.Add(v)
	a.N++
	a.Mean = a.Sum.Div(decimal.NewFromInt(int64(a.N)))
}

// MetricsReport is derived from one session artifact and nothing else.
// Extracting the same unchanged artifact twice yields equal reports.
type MetricsReport struct {
	LogPath string `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	Lines   int    `json:"lines" yaml:"lines"`

	// Counts holds every vocabulary class, zero included
	Counts map[MarkerClass]int `json:"counts" yaml:"counts"`

	// Aggregates holds numeric classes with at least one valid payload
	Aggregates map[MarkerClass]Aggregate `json:"aggregates" yaml:"aggregates"`

	// Malformed counts numeric marker lines whose token was missing or not a number
	Malformed map[MarkerClass]int `json:"malformed,omitempty" yaml:"malformed,omitempty"`

	// MalformedSamples keeps the most recent malformed lines for debugging
	MalformedSamples []MalformedSample `json:"malformed_samples,omitempty" yaml:"malformed_samples,omitempty"`

	Rates []Rate `json:"rates" yaml:"rates"`

	FirstTimestamp *time.Time     `json:"first_timestamp,omitempty" yaml:"first_timestamp,omitempty"`
	LastTimestamp  *time.Time     `json:"last_timestamp,omitempty" yaml:"last_timestamp,omitempty"`
	Duration       *time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

func newMetricsReport() *MetricsReport {
	r := &MetricsReport{
		Counts:     make(map[MarkerClass]int, len(Vocabulary)),
		Aggregates: make(map[MarkerClass]Aggregate),
		Malformed:  make(map[MarkerClass]int),
	}
	for _, c := range Classes() {
		r.Counts[c] = 0
	}
	return r
}

// Rate returns the named rate, if defined
func (r *MetricsReport) Rate(name string) (Rate, bool) {
	for _, rate := range r.Rates {
		if rate.Name == name {
			return rate, true
		}
	}
	return Rate{}, false
}

// MalformedTotal sums malformed tokens across classes
func (r *MetricsReport) MalformedTotal() int {
	total := 0
	for _, n := range r.Malformed {
		total += n
	}
	return total
}

func (r *MetricsReport) computeRates() {
	r.Rates = make([]Rate, 0, len(RateDefs))
	for _, def := range RateDefs {
		rate := def
		if den := r.Counts[def.Denominator]; den > 0 {
			v := float64(r.Counts[def.Numerator]) / float64(den)
			rate.Value = &v
		}
		r.Rates = append(r.Rates, rate)
	}
}
