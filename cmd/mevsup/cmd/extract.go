package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/psantana5/mev-supervisor/internal/report"
	"github.com/psantana5/mev-supervisor/internal/session"
)

var (
	extractFormat   string
	extractFollow   bool
	extractDebounce time.Duration
	extractEvents   bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [logPath]",
	Short: "Extract session metrics from a bot log",
	Long: `Scans a session log and prints counts, profit aggregates, success rates and
the session duration. Without an argument the most recent log in the session
log directory is used. The log file is only read, never modified.

Examples:
  mevsup extract
  mevsup extract logs/mev_bot_20261017_090000.log --format json
  mevsup extract --follow`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", string(report.FormatAuto), "output format: auto, table, text, json, yaml, prometheus")
	extractCmd.Flags().BoolVar(&extractFollow, "follow", false, "re-extract whenever the log changes")
	extractCmd.Flags().DurationVar(&extractDebounce, "debounce", report.DefaultDebounce, "quiet period before re-extracting in --follow mode")
	extractCmd.Flags().BoolVar(&extractEvents, "events", false, "print every classified line before the report")
	extractCmd.Flags().String("log-dir", "", "directory searched for the latest session log")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"session.log_dir": "log-dir"})
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(extractFormat)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	path, err := resolveLogPath(args, cfg.Session.LogDir)
	if err != nil {
		return exitWith(1, err)
	}

	if extractFollow {
		if _, err := os.Stat(path); err != nil {
			return exitWith(1, fmt.Errorf("%w: %s: %v", report.ErrNotFound, path, err))
		}
		logger, closeLog, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer closeLog()
		return report.Follow(cmd.Context(), path, extractDebounce, func(r *report.MetricsReport, err error) {
			if err != nil {
				logger.Warn("extraction failed", zap.String("log_path", path), zap.Error(err))
				return
			}
			fmt.Fprintf(out, "--- %s ---\n", time.Now().Format(time.RFC3339))
			if err := report.Render(out, r, format); err != nil {
				logger.Warn("failed to render report", zap.Error(err))
			}
		})
	}

	var r *report.MetricsReport
	if extractEvents {
		r, err = extractWithEvents(out, path)
	} else {
		r, err = report.Extract(path)
	}
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			return exitWith(1, err)
		}
		return err
	}
	return report.Render(out, r, format)
}

// resolveLogPath returns the explicit path or the newest artifact in dir
func resolveLogPath(args []string, dir string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	path, err := session.Latest(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", report.ErrNotFound, err)
	}
	return path, nil
}

// extractWithEvents prints each classified line while scanning
func extractWithEvents(out io.Writer, path string) (*report.MetricsReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", report.ErrNotFound, path, err)
	}
	defer f.Close()

	r, err := report.Scan(f, func(ev report.LogEvent) {
		if ev.Payload != nil {
			fmt.Fprintf(out, "%-32s %-12s %s\n", ev.Class, ev.Payload.String(), ev.Line)
			return
		}
		fmt.Fprintf(out, "%-32s %-12s %s\n", ev.Class, "", ev.Line)
	})
	if err != nil {
		return nil, err
	}
	r.LogPath = path
	fmt.Fprintln(out)
	return r, nil
}
