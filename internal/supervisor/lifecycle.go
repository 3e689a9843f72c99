package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// State is a supervisor lifecycle state
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateExited     State = "exited"
	StateCancelling State = "cancelling"
	StateFinalizing State = "finalizing"
	StateTerminated State = "terminated"
)

// ExitReason describes why a worker attempt ended
type ExitReason string

const (
	ExitReasonSuccess      ExitReason = "success"       // Exit code 0
	ExitReasonError        ExitReason = "error"         // Exit code != 0
	ExitReasonSignal       ExitReason = "signal"        // Killed by signal
	ExitReasonSpawnFailure ExitReason = "spawn_failure" // Never started
	ExitReasonStopped      ExitReason = "stopped"       // Stopped by the supervisor on shutdown
	ExitReasonUnknown      ExitReason = "unknown"
)

// IsSuccess returns true if the exit represents success
func (r ExitReason) IsSuccess() bool {
	return r == ExitReasonSuccess
}

// Event is one lifecycle transition of one worker attempt
type Event struct {
	Attempt    int        `json:"attempt"`
	RunID      string     `json:"run_id,omitempty"`
	State      State      `json:"state"`
	PID        int        `json:"pid,omitempty"`
	ExitCode   int        `json:"exit_code,omitempty"`
	ExitReason ExitReason `json:"exit_reason,omitempty"`
	Signal     string     `json:"signal,omitempty"`
	Message    string     `json:"message,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Exit is the classified outcome of cmd.Wait
type Exit struct {
	Code   int
	Reason ExitReason
	Signal string
}

func (e Exit) String() string {
	if e.Signal != "" {
		return fmt.Sprintf("killed by %s", e.Signal)
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

// classifyWait turns the error returned by cmd.Wait into an Exit
func classifyWait(err error) Exit {
	if err == nil {
		return Exit{Code: 0, Reason: ExitReasonSuccess}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exit := Exit{Code: exitErr.ExitCode()}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			exit.Reason = DetermineExitReason(exit.Code, status)
			if status.Signaled() {
				exit.Signal = SignalName(status.Signal())
			}
			return exit
		}
		exit.Reason = ExitReasonError
		return exit
	}

	// Wait itself failed (e.g. WaitDelay expired with pipes still open)
	return Exit{Code: -1, Reason: ExitReasonUnknown}
}

// DetermineExitReason analyzes process exit to determine the reason
func DetermineExitReason(exitCode int, waitStatus syscall.WaitStatus) ExitReason {
	if waitStatus.Exited() {
		if exitCode == 0 {
			return ExitReasonSuccess
		}
		return ExitReasonError
	}

	if waitStatus.Signaled() {
		return ExitReasonSignal
	}

	return ExitReasonUnknown
}

// SignalName returns the signal name for a signal number
func SignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGABRT:
		return "SIGABRT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGPIPE:
		return "SIGPIPE"
	default:
		return fmt.Sprintf("SIG%d", sig)
	}
}
