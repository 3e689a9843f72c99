// Package balance reads account balance snapshots through an external command.
package balance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnavailable is returned for any failed balance query
var ErrUnavailable = errors.New("balance unavailable")

// QueryWaitDelay bounds how long a cancelled query waits for its output pipes
const QueryWaitDelay = 500 * time.Millisecond

// CredentialPlaceholder is replaced by the credential reference in command args
const CredentialPlaceholder = "{credential}"

// Provider returns the balance held by the account behind credentialRef
type Provider interface {
	Query(ctx context.Context, credentialRef string) (decimal.Decimal, error)
}

// CommandProvider queries a balance by running an external command
// (e.g. `solana balance <keypair>`) and parsing the first decimal token of its output.
type CommandProvider struct {
	Command string
	Args    []string
}

// NewCommandProvider creates a provider for the given command
func NewCommandProvider(command string, args ...string) *CommandProvider {
	return &CommandProvider{Command: command, Args: args}
}

// Query runs the balance command. The context bounds how long it may run.
func (p *CommandProvider) Query(ctx context.Context, credentialRef string) (decimal.Decimal, error) {
	if p.Command == "" {
		return decimal.Zero, fmt.Errorf("%w: no balance command configured", ErrUnavailable)
	}

	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = strings.ReplaceAll(a, CredentialPlaceholder, credentialRef)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Wrapper scripts may leave children holding stdout; the timeout kills
	// the whole group and Wait stops waiting on the pipes shortly after.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = QueryWaitDelay

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return decimal.Zero, fmt.Errorf("%w: %s: %v (%s)", ErrUnavailable, p.Command, err, msg)
		}
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrUnavailable, p.Command, err)
	}

	value, err := ParseAmount(stdout.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}

// ParseAmount extracts the first decimal token from balance command output,
// e.g. "1.05 SOL" -> 1.05
func ParseAmount(output string) (decimal.Decimal, error) {
	for _, field := range strings.Fields(output) {
		if v, err := decimal.NewFromString(field); err == nil {
			return v, nil
		}
	}
	return decimal.Zero, fmt.Errorf("no numeric amount in output %q", strings.TrimSpace(output))
}

// Snapshot queries p with a bounded timeout. Failures are logged and
// reported as nil; a snapshot never aborts the caller.
func Snapshot(ctx context.Context, p Provider, credentialRef string, timeout time.Duration, logger *zap.Logger) *decimal.Decimal {
	if p == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	value, err := p.Query(ctx, credentialRef)
	if err != nil {
		logger.Warn("balance query failed", zap.Error(err))
		return nil
	}
	return &value
}
