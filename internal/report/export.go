package report

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collectors holds the gauges a report is projected onto.
// Every value must be explainable by looking at the session log.
type Collectors struct {
	Lines           prometheus.Gauge
	Markers         *prometheus.GaugeVec
	Malformed       *prometheus.GaugeVec
	PayloadSum      *prometheus.GaugeVec
	PayloadMin      *prometheus.GaugeVec
	PayloadMax      *prometheus.GaugeVec
	Rates           *prometheus.GaugeVec
	DurationSeconds prometheus.Gauge
}

// NewCollectors registers report gauges on reg
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		Lines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mevsup_session_log_lines",
			Help: "Lines scanned in the session log",
		}),
		Markers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mevsup_session_marker_lines",
			Help: "Session log lines by marker class",
		}, []string{"class"}),
		Malformed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mevsup_session_malformed_tokens",
			Help: "Numeric marker lines whose token did not parse",
		}, []string{"class"}),
		PayloadSum: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mevsup_session_payload_sum",
			Help: "Sum of numeric payloads by marker class",
		}, []string{"class"}),
		PayloadMin: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mevsup_session_payload_min",
			Help: "Smallest numeric payload by marker class",
		}, []string{"class"}),
		PayloadMax: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mevsup_session_payload_max",
			Help: "Largest numeric payload by marker class",
		}, []string{"class"}),
		Rates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mevsup_session_rate",
			Help: "Derived rates (0-1); absent when the denominator is zero",
		}, []string{"rate"}),
		DurationSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mevsup_session_duration_seconds",
			Help: "Span between the first and last timestamp in the session log",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.Lines, c.Markers, c.Malformed, c.PayloadSum, c.PayloadMin, c.PayloadMax, c.Rates, c.DurationSeconds,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register report metric: %w", err)
		}
	}
	return c, nil
}

// Observe replaces the gauge values with those of r
func (c *Collectors) Observe(r *MetricsReport) {
	c.Lines.Set(float64(r.Lines))

	c.Markers.Reset()
	for _, class := range Classes() {
		c.Markers.WithLabelValues(string(class)).Set(float64(r.Counts[class]))
	}

	c.Malformed.Reset()
	for class, n := range r.Malformed {
		c.Malformed.WithLabelValues(string(class)).Set(float64(n))
	}

	c.PayloadSum.Reset()
	c.PayloadMin.Reset()
	c.PayloadMax.Reset()
	for class, agg := range r.Aggregates {
		c.PayloadSum.WithLabelValues(string(class)).Set(agg.Sum.InexactFloat64())
		c.PayloadMin.WithLabelValues(string(class)).Set(agg.Min.InexactFloat64())
		c.PayloadMax.WithLabelValues(string(class)).Set(agg.Max.InexactFloat64())
	}

	c.Rates.Reset()
	for _, rate := range r.Rates {
		if rate.Value != nil {
			c.Rates.WithLabelValues(rate.Name).Set(*rate.Value)
		}
	}

	if r.Duration != nil {
		c.DurationSeconds.Set(r.Duration.Seconds())
	} else {
		c.DurationSeconds.Set(0)
	}
}

// WritePrometheus writes r in the Prometheus text exposition format
func WritePrometheus(w io.Writer, r *MetricsReport) error {
	reg := prometheus.NewRegistry()
	c, err := NewCollectors(reg)
	if err != nil {
		return err
	}
	c.Observe(r)

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather report metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode report metrics: %w", err)
		}
	}
	return nil
}
