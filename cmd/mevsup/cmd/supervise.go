package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/psantana5/mev-supervisor/internal/balance"
	"github.com/psantana5/mev-supervisor/internal/config"
	"github.com/psantana5/mev-supervisor/internal/report"
	"github.com/psantana5/mev-supervisor/internal/server"
	"github.com/psantana5/mev-supervisor/internal/shutdown"
	"github.com/psantana5/mev-supervisor/internal/store"
	"github.com/psantana5/mev-supervisor/internal/supervisor"
)

var superviseFormat string

var superviseCmd = &cobra.Command{
	Use:   "supervise",
	Short: "Run the trading bot under supervision",
	Long: `Starts the trading bot and restarts it whenever it exits, for as long as
the supervisor runs. Everything the bot prints is mirrored to the terminal and
appended to logs/mev_bot_<timestamp>.log.

Ctrl-C (or SIGTERM) stops the bot, waits for it to exit, and prints the
session report with the wallet balance change.`,
	Args: cobra.NoArgs,
	RunE: runSupervise,
}

var superviseBindings = map[string]string{
	"worker.command":     "worker-cmd",
	"worker.args":        "worker-arg",
	"session.log_dir":    "log-dir",
	"restart.delay":      "restart-delay",
	"restart.policy":     "restart-policy",
	"shutdown.grace":     "grace",
	"balance.credential": "credential",
	"metrics.addr":       "metrics-addr",
}

func init() {
	rootCmd.AddCommand(superviseCmd)

	f := superviseCmd.Flags()
	f.String("worker-cmd", "", "trading bot executable")
	f.StringArray("worker-arg", nil, "argument passed to the bot (repeatable)")
	f.String("log-dir", "", "directory for session logs")
	f.Duration("restart-delay", 0, "delay before restarting the bot")
	f.String("restart-policy", "", "restart policy: fixed or exponential")
	f.Duration("grace", 0, "time the bot gets to exit after SIGTERM")
	f.String("credential", "", "wallet credential passed to the balance command")
	f.String("metrics-addr", "", "serve /metrics and /healthz on this address")
	f.StringVarP(&superviseFormat, "format", "f", string(report.FormatAuto), "report format: auto, table, text, json, yaml, prometheus")
}

func runSupervise(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, superviseBindings)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(superviseFormat)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}

	sm := shutdown.New(cfg.Shutdown.Grace, logger)
	sm.Register("logger", func(context.Context) error { return closeLog() })
	defer func() {
		_ = sm.Shutdown()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts, err := supervisorOptions(cfg, logger, reg)
	if err != nil {
		return err
	}
	opts.ReportFormat = format
	opts.Stdout = cmd.OutOrStdout()
	opts.Stderr = cmd.ErrOrStderr()
	opts.Output = cmd.OutOrStdout()
	opts.Force = sm.Forced()

	if cfg.History.Enabled {
		hist, err := store.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			logger.Warn("session history disabled", zap.String("path", cfg.History.Path), zap.Error(err))
		} else {
			opts.History = hist
			sm.Register("history", shutdown.CloseResource(hist))
		}
	}

	sup, err := supervisor.New(opts)
	if err != nil {
		return err
	}

	ctx, cancel := sm.NotifyContext(cmd.Context())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		srv := server.New(cfg.Metrics.Addr, reg, func() string { return string(sup.State()) }, logger)
		sm.Register("metrics server", shutdown.StopHTTPServer(srv))
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				logger.Error("metrics server stopped", zap.Error(fmt.Errorf("metrics server: %w", err)))
			}
			return nil
		})
	}

	g.Go(func() error {
		// Only the operator's signal ends the session, so ctx rather than gctx
		_, err := sup.Run(ctx)
		cancel()
		return err
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, supervisor.ErrSessionUnavailable) {
			return exitWith(1, err)
		}
		logger.Error("supervise finished with error", zap.Error(err))
		return err
	}
	return nil
}

// supervisorOptions maps config onto supervisor options
func supervisorOptions(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (supervisor.Options, error) {
	opts := supervisor.Options{
		Command: cfg.Worker.Command,
		Args:    cfg.Worker.Args,
		Dir:     cfg.Worker.Dir,
		Env:     cfg.Worker.Env,
		LogDir:  cfg.Session.LogDir,
		Policy: supervisor.RestartPolicy{
			Kind:       supervisor.PolicyKind(cfg.Restart.Policy),
			Delay:      cfg.Restart.Delay,
			MaxDelay:   cfg.Restart.MaxDelay,
			ResetAfter: cfg.Restart.ResetAfter,
		},
		Grace:          cfg.Shutdown.Grace,
		Credential:     cfg.Balance.Credential,
		BalanceTimeout: cfg.Balance.Timeout,
		Registry:       reg,
		Logger:         logger,
	}
	if err := opts.Policy.Validate(); err != nil {
		return opts, err
	}

	switch {
	case cfg.Balance.Command == "":
		logger.Info("balance snapshots disabled: no balance command")
	case cfg.Balance.Credential == "":
		logger.Info("balance snapshots disabled: no credential configured")
	default:
		opts.Balance = balance.NewCommandProvider(cfg.Balance.Command, cfg.Balance.Args...)
	}
	return opts, nil
}
