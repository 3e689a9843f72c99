// Package supervisor runs the trading worker under a restart loop and
// turns its session log into a report when the operator stops it.
package supervisor

// If the session log cannot be created, do not start the worker.
// If the worker dies, start it again.
// Only the operator ends the session.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/psantana5/mev-supervisor/internal/balance"
	"github.com/psantana5/mev-supervisor/internal/observe"
	"github.com/psantana5/mev-supervisor/internal/report"
	"github.com/psantana5/mev-supervisor/internal/session"
	"github.com/psantana5/mev-supervisor/internal/store"
)

var (
	// ErrSpawn is returned when the worker process cannot be started.
	// The supervisor treats it like a crash and retries.
	ErrSpawn = errors.New("failed to start worker")

	// ErrSessionUnavailable is the only fatal supervisor error: without a
	// session log there is nothing to supervise into.
	ErrSessionUnavailable = errors.New("session log unavailable")
)

const (
	DefaultGrace          = 10 * time.Second
	DefaultBalanceTimeout = 10 * time.Second
)

// HistoryStore records finalized sessions
type HistoryStore interface {
	Save(ctx context.Context, rec *store.Record) error
}

// Options configures a Supervisor
type Options struct {
	// Worker command
	Command string
	Args    []string
	Dir     string
	Env     []string

	LogDir string
	Policy RestartPolicy
	Grace  time.Duration

	// Balance snapshots; nil Balance disables them
	Balance        balance.Provider
	Credential     string
	BalanceTimeout time.Duration

	// History is optional; failures to save are logged only
	History HistoryStore

	// Registry receives the supervisor counters; a private one is used if nil
	Registry prometheus.Registerer

	// Stdout and Stderr mirror worker output (default os.Stdout, os.Stderr)
	Stdout io.Writer
	Stderr io.Writer

	// Output receives the final report (default os.Stdout)
	Output       io.Writer
	ReportFormat report.Format

	// Force, when closed, cuts the stop grace short and kills the worker
	Force <-chan struct{}

	Clock   clock.Clock
	Logger  *zap.Logger
	OnEvent func(Event)
}

// Supervisor owns the worker process and the session for one run
type Supervisor struct {
	opts    Options
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics

	mu     sync.Mutex
	state  State
	events []Event
}

// New validates opts and fills defaults
func New(opts Options) (*Supervisor, error) {
	if opts.Command == "" {
		return nil, errors.New("worker command is required")
	}
	if opts.Policy == (RestartPolicy{}) {
		opts.Policy = DefaultRestartPolicy()
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if opts.LogDir == "" {
		opts.LogDir = session.DefaultLogDir
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.BalanceTimeout <= 0 {
		opts.BalanceTimeout = DefaultBalanceTimeout
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ReportFormat == "" {
		opts.ReportFormat = report.FormatAuto
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	m, err := newMetrics(opts.Registry)
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		opts:    opts,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: m,
		state:   StateIdle,
	}, nil
}

// State returns the current lifecycle state
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns all lifecycle events so far
func (s *Supervisor) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// emit records a lifecycle event and moves to its state
func (s *Supervisor) emit(ev Event) {
	ev.Timestamp = s.clock.Now()

	s.mu.Lock()
	s.state = ev.State
	s.events = append(s.events, ev)
	s.mu.Unlock()

	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}

// Run supervises the worker until ctx is cancelled, then finalizes the
// session. The only error is ErrSessionUnavailable; the worker is never
// started in that case.
func (s *Supervisor) Run(ctx context.Context) (*Summary, error) {
	startedAt := s.clock.Now()
	rec, err := session.Create(s.opts.LogDir, startedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	sess := rec.Session()
	logger := s.logger.With(zap.String("session", sess.ID))
	logger.Info("session started", zap.String("log_path", sess.LogPath))

	sess.InitialBalance = s.snapshotBalance(ctx, logger)
	rec.Mark("session %s started (worker: %s %v, initial balance: %s)",
		sess.ID, s.opts.Command, s.opts.Args, balance.FormatAmount(sess.InitialBalance))

	summary := &Summary{Session: sess}
	delays := newRestartDelays(s.opts.Policy)

	for attempt := 1; ctx.Err() == nil; attempt++ {
		runID := uuid.NewString()
		alog := logger.With(zap.Int("attempt", attempt), zap.String("run_id", runID))

		s.emit(Event{Attempt: attempt, RunID: runID, State: StateStarting})
		summary.Attempts++
		s.metrics.starts.Inc()
		timing := observe.NewTiming(s.clock)

		w, err := spawnWorker(&s.opts, rec)
		if err != nil {
			summary.SpawnFailures++
			s.metrics.exits.WithLabelValues(string(ExitReasonSpawnFailure)).Inc()
			alog.Warn("worker failed to start", zap.Error(err))
			rec.Mark("worker failed to start (attempt %d): %v", attempt, err)
			s.emit(Event{
				Attempt:    attempt,
				RunID:      runID,
				State:      StateExited,
				ExitCode:   -1,
				ExitReason: ExitReasonSpawnFailure,
				Message:    err.Error(),
			})
		} else {
			alog = alog.With(zap.Int("pid", w.pid))
			alog.Info("worker started", zap.String("command", s.opts.Command))
			rec.Mark("worker started (attempt %d, pid %d)", attempt, w.pid)
			s.metrics.up.Set(1)
			s.emit(Event{Attempt: attempt, RunID: runID, State: StateRunning, PID: w.pid})

			select {
			case <-w.done:
				s.metrics.up.Set(0)
				s.recordExit(summary, rec, alog, attempt, runID, w)
			case <-ctx.Done():
				s.cancelWorker(rec, alog, attempt, runID, w)
				s.metrics.up.Set(0)
			}
		}
		timing.Complete()

		if ctx.Err() != nil {
			break
		}
		delay := delays.Next(timing.Duration())
		alog.Info("restarting worker", zap.Duration("delay", delay))
		if !sleep(ctx, s.clock, delay) {
			break
		}
	}

	return s.finalize(ctx, rec, summary, logger), nil
}

// recordExit classifies a worker that ended on its own
func (s *Supervisor) recordExit(summary *Summary, rec *session.Recorder, logger *zap.Logger, attempt int, runID string, w *worker) {
	exit := w.exit()
	s.metrics.exits.WithLabelValues(string(exit.Reason)).Inc()

	fields := []zap.Field{zap.Int("exit_code", exit.Code), zap.String("reason", string(exit.Reason))}
	if exit.Reason.IsSuccess() {
		summary.CleanExits++
		logger.Info("worker terminated normally", fields...)
		rec.Mark("worker terminated normally (attempt %d, %s)", attempt, exit)
	} else {
		summary.Crashes++
		if exit.Signal != "" {
			fields = append(fields, zap.String("signal", exit.Signal))
		}
		logger.Warn("worker terminated unexpectedly", fields...)
		rec.Mark("worker terminated unexpectedly (attempt %d, %s)", attempt, exit)
	}

	s.emit(Event{
		Attempt:    attempt,
		RunID:      runID,
		State:      StateExited,
		PID:        w.pid,
		ExitCode:   exit.Code,
		ExitReason: exit.Reason,
		Signal:     exit.Signal,
		Message:    exit.String(),
	})
}

// cancelWorker stops a running worker on operator shutdown and confirms
// the PID is gone before returning
func (s *Supervisor) cancelWorker(rec *session.Recorder, logger *zap.Logger, attempt int, runID string, w *worker) {
	s.emit(Event{Attempt: attempt, RunID: runID, State: StateCancelling, PID: w.pid})
	logger.Info("stopping worker", zap.Duration("grace", s.opts.Grace))

	sig, err := w.stop(s.clock, s.opts.Grace, s.opts.Force)
	if err != nil {
		logger.Error("failed to signal worker", zap.Error(err))
	}
	if sig == SignalName(syscall.SIGKILL) {
		if closed(s.opts.Force) {
			logger.Warn("worker killed on forced stop")
		} else {
			logger.Warn("worker ignored SIGTERM, killed", zap.Duration("grace", s.opts.Grace))
		}
	}
	s.metrics.exits.WithLabelValues(string(ExitReasonStopped)).Inc()

	if !w.exited() {
		logger.Error("worker did not exit after kill")
		rec.Mark("worker did not exit after kill (attempt %d, pid %d)", attempt, w.pid)
		return
	}

	// cmd.Wait has returned; wait for the kernel to release the PID
	waitCtx, cancel := context.WithTimeout(context.Background(), s.opts.Grace)
	defer cancel()
	if !observe.New(w.pid).WaitGone(waitCtx, observe.DefaultPollInterval) {
		logger.Error("worker pid still present after stop")
	}

	exit := w.exit()
	rec.Mark("worker stopped (attempt %d, pid %d, %s)", attempt, w.pid, exit)
	logger.Info("worker stopped", zap.String("outcome", exit.String()))
}

// finalize seals the session, extracts metrics and prints the report.
// Only the report and history steps may fail, and neither is fatal.
func (s *Supervisor) finalize(ctx context.Context, rec *session.Recorder, summary *Summary, logger *zap.Logger) *Summary {
	s.emit(Event{Attempt: summary.Attempts, State: StateFinalizing})
	sess := rec.Session()

	// The run context is done by now; finalization still gets its bounded queries
	finalCtx := context.WithoutCancel(ctx)

	sess.FinalBalance = s.snapshotBalance(finalCtx, logger)
	summary.Delta = balance.Delta{Initial: sess.InitialBalance, Final: sess.FinalBalance}

	endedAt := s.clock.Now()
	rec.Mark("session %s ended after %d attempt(s) (final balance: %s, change: %s)",
		sess.ID, summary.Attempts, balance.FormatAmount(sess.FinalBalance), summary.Delta)
	if err := rec.Seal(endedAt); err != nil {
		logger.Warn("failed to seal session log", zap.Error(err))
	}

	summary.Report, summary.ReportErr = report.Extract(sess.LogPath)
	if summary.ReportErr != nil {
		logger.Warn("failed to extract session metrics", zap.Error(summary.ReportErr))
	}

	if err := summary.WriteReport(s.opts.Output, s.opts.ReportFormat); err != nil {
		logger.Warn("failed to print session report", zap.Error(err))
	}

	if s.opts.History != nil {
		histCtx, cancel := context.WithTimeout(finalCtx, 5*time.Second)
		if err := s.opts.History.Save(histCtx, summary.Record()); err != nil {
			logger.Warn("failed to save session history", zap.Error(err))
		}
		cancel()
	}

	s.metrics.finalizations.Inc()
	logger.Info("session finalized",
		zap.Int("attempts", summary.Attempts),
		zap.Int("crashes", summary.Crashes),
		zap.Duration("duration", sess.Duration()))
	s.emit(Event{Attempt: summary.Attempts, State: StateTerminated})
	return summary
}

// closed reports whether ch is closed; a nil channel never is
func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (s *Supervisor) snapshotBalance(ctx context.Context, logger *zap.Logger) *decimal.Decimal {
	if s.opts.Balance == nil {
		return nil
	}
	return balance.Snapshot(ctx, s.opts.Balance, s.opts.Credential, s.opts.BalanceTimeout, logger)
}
