package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/psantana5/mev-supervisor/internal/config"
	"github.com/psantana5/mev-supervisor/internal/report"
	"github.com/psantana5/mev-supervisor/internal/store"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runCLI executes the root command with the given arguments
func runCLI(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out syncBuffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile = ""
		vp, vpErr = nil, nil
		resetFlags(rootCmd)
	})
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

// resetFlags restores flag defaults; cobra keeps parsed values between Execute calls
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestExtractCommandJSON(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "mev_bot_20261017_090000.log")
	require.NoError(t, os.WriteFile(path, []byte("⚡ OPPORTUNITY\nEstimated profit potential: 0.25 SOL\nSending bundle via Jito\n"), 0644))

	out, err := runCLI(t, context.Background(), "extract", path, "--format", "json")
	require.NoError(t, err)

	var r report.MetricsReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 1, r.Counts[report.OpportunityDetected])
	assert.Equal(t, 1, r.Counts[report.BundleAttempt])
	assert.Equal(t, path, r.LogPath)
}

func TestExtractCommandDefaultsToLatest(t *testing.T) {
	dir := isolate(t)
	logs := filepath.Join(dir, "logs")
	require.NoError(t, os.MkdirAll(logs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "mev_bot_20261016_090000.log"), []byte("OPPORTUNITY\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "mev_bot_20261017_090000.log"), []byte("OPPORTUNITY\nOPPORTUNITY\n"), 0644))

	out, err := runCLI(t, context.Background(), "extract", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "mev_bot_20261017_090000.log")
	assert.Contains(t, out, `"opportunity-detected": 2`)
}

func TestExtractCommandMissingArtifact(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, context.Background(), "extract", "--format", "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrNotFound)

	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.code)
}

func TestConfigGenerateCommand(t *testing.T) {
	dir := isolate(t)
	target := filepath.Join(dir, "mevsup.yaml")

	_, err := runCLI(t, context.Background(), "config", "generate", "--output", target)
	require.NoError(t, err)

	cfg, err := config.Load(target)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Worker.Command, cfg.Worker.Command)

	_, err = runCLI(t, context.Background(), "config", "generate", "--output", target)
	assert.Error(t, err, "existing file is not overwritten")
}

func TestConfigShowAppliesEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MEVSUP_SESSION_LOG_DIR", "/srv/mev/logs")

	out, err := runCLI(t, context.Background(), "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "log_dir: /srv/mev/logs")
}

func TestHistoryCommand(t *testing.T) {
	dir := isolate(t)
	dbPath := filepath.Join(dir, "logs", "history.db")

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	started := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.Save(context.Background(), &store.Record{
		SessionID:     "20261017_090000",
		LogPath:       "logs/mev_bot_20261017_090000.log",
		StartedAt:     started,
		EndedAt:       started.Add(90 * time.Second),
		Attempts:      3,
		Crashes:       2,
		Opportunities: 7,
	}))
	require.NoError(t, st.Close())

	out, err := runCLI(t, context.Background(), "history", "--format", "json")
	require.NoError(t, err)

	var records []store.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "20261017_090000", records[0].SessionID)
	assert.Equal(t, 7, records[0].Opportunities)
}

func TestHistoryCommandWithoutDatabase(t *testing.T) {
	isolate(t)
	_, err := runCLI(t, context.Background(), "history", "--format", "table")
	assert.Error(t, err)
}

func TestSupervisorOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Restart.Policy = "exponential"

	opts, err := supervisorOptions(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Worker.Command, opts.Command)
	assert.EqualValues(t, "exponential", opts.Policy.Kind)
	assert.Nil(t, opts.Balance, "no credential means no balance snapshots")

	cfg.Balance.Credential = "/keys/wallet.json"
	opts, err = supervisorOptions(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.NotNil(t, opts.Balance)
}

func TestSuperviseCommand(t *testing.T) {
	dir := isolate(t)
	logDir := filepath.Join(dir, "logs")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var (
		out string
		err error
	)
	go func() {
		defer close(done)
		out, err = runCLI(t, ctx, "supervise",
			"--worker-cmd", "/bin/sh",
			"--worker-arg", "-c",
			"--worker-arg", "echo '⚡ OPPORTUNITY'; echo 'Sending bundle via Jito'; sleep 30",
			"--log-dir", logDir,
			"--restart-delay", "10ms",
			"--grace", "2s",
			"--format", "text",
		)
	}()

	require.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(logDir, "mev_bot_*.log"))
		if len(matches) != 1 {
			return false
		}
		data, _ := os.ReadFile(matches[0])
		return strings.Contains(string(data), "Sending bundle via Jito")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("supervise did not return after cancellation")
	}

	require.NoError(t, err)
	assert.Contains(t, out, "=== MEV Bot Session Report ===")
	assert.Contains(t, out, "Initial balance:")
	assert.FileExists(t, filepath.Join(logDir, "history.db"))
}

func TestExtractFollowMissingArtifact(t *testing.T) {
	dir := isolate(t)

	_, err := runCLI(t, context.Background(), "extract", filepath.Join(dir, "mev_bot_missing.log"), "--follow", "--format", "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrNotFound)

	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.code)
}

func TestSuperviseSecondSignalKillsWorker(t *testing.T) {
	dir := isolate(t)
	logDir := filepath.Join(dir, "logs")
	pidFile := filepath.Join(dir, "worker.pid")
	script := filepath.Join(dir, "worker.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
trap "" TERM
echo $$ > `+pidFile+`
echo ready
while :; do sleep 0.05; done
`), 0755))

	done := make(chan struct{})
	var (
		out string
		err error
	)
	go func() {
		defer close(done)
		out, err = runCLI(t, context.Background(), "supervise",
			"--worker-cmd", script,
			"--log-dir", logDir,
			"--restart-delay", "10ms",
			"--grace", "20s",
			"--format", "text",
		)
	}()

	var pid int
	require.Eventually(t, func() bool {
		data, rerr := os.ReadFile(pidFile)
		if rerr != nil {
			return false
		}
		pid, rerr = strconv.Atoi(strings.TrimSpace(string(data)))
		return rerr == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("supervise kept waiting for the grace period after a second signal")
	}

	require.NoError(t, err)
	assert.Contains(t, out, "=== MEV Bot Session Report ===")
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH, "worker must not outlive the supervisor")
}
