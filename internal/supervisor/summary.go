package supervisor

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/psantana5/mev-supervisor/internal/balance"
	"github.com/psantana5/mev-supervisor/internal/report"
	"github.com/psantana5/mev-supervisor/internal/session"
	"github.com/psantana5/mev-supervisor/internal/store"
)

// Summary is what a finished Run leaves behind
type Summary struct {
	Session *session.Session

	Attempts      int
	Crashes       int
	CleanExits    int
	SpawnFailures int

	// Report is nil when extraction failed; ReportErr says why
	Report    *report.MetricsReport
	ReportErr error

	Delta balance.Delta
}

// WriteReport prints the session summary, the metrics report in format
// and the balance block
func (s *Summary) WriteReport(out io.Writer, format report.Format) error {
	fmt.Fprintf(out, "\n=== MEV Bot Session Report ===\n")
	fmt.Fprintf(out, "Session: %s\n", s.Session.ID)
	fmt.Fprintf(out, "Log: %s\n", s.Session.LogPath)
	fmt.Fprintf(out, "Duration: %s\n", s.Session.Duration().Round(time.Second))
	fmt.Fprintf(out, "Attempts: %d (crashes: %d, clean exits: %d, spawn failures: %d)\n",
		s.Attempts, s.Crashes, s.CleanExits, s.SpawnFailures)
	fmt.Fprintf(out, "\n")

	if s.Report != nil {
		if err := report.Render(out, s.Report, format); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
	} else {
		fmt.Fprintf(out, "Metrics unavailable: %v\n", s.ReportErr)
	}

	fmt.Fprintf(out, "\nInitial balance: %s\n", balance.FormatAmount(s.Delta.Initial))
	fmt.Fprintf(out, "Final balance: %s\n", balance.FormatAmount(s.Delta.Final))
	_, err := fmt.Fprintf(out, "Balance change: %s\n", s.Delta)
	return err
}

// Record builds the history row for this session
func (s *Summary) Record() *store.Record {
	rec := &store.Record{
		SessionID:      s.Session.ID,
		LogPath:        s.Session.LogPath,
		StartedAt:      s.Session.StartedAt,
		Attempts:       s.Attempts,
		Crashes:        s.Crashes,
		CleanExits:     s.CleanExits,
		SpawnFailures:  s.SpawnFailures,
		InitialBalance: s.Session.InitialBalance,
		FinalBalance:   s.Session.FinalBalance,
	}
	if s.Session.EndedAt != nil {
		rec.EndedAt = *s.Session.EndedAt
	}

	if s.Report != nil {
		rec.Opportunities = s.Report.Counts[report.OpportunityDetected]
		rec.BundlesSent = s.Report.Counts[report.BundleAttempt]
		rec.BundlesLanded = s.Report.Counts[report.BundleSuccess]
		if agg, ok := s.Report.Aggregates[report.ProfitEstimate]; ok {
			sum := agg.Sum
			rec.ProfitSum = &sum
		}
		if data, err := json.Marshal(s.Report); err == nil {
			rec.Report = string(data)
		}
	}
	return rec
}
