package supervisor

// If the session log cannot be created, do not start the worker.
// If the worker dies, start it again.
// Only the operator ends the session.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
)

// worker is one spawned attempt of the worker process
type worker struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}
	err  error
}

// spawnWorker starts the worker with stdout and stderr mirrored to the
// terminal and appended to the session log. The process is not tied to
// ctx: stopping it is the supervisor's job.
func spawnWorker(opts *Options, log io.Writer) (*worker, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	// Own process group so stop signals reach the worker's children too
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	// One copy goroutine per stream; each writes whole chunks to the log
	cmd.Stdout = io.MultiWriter(opts.Stdout, log)
	cmd.Stderr = io.MultiWriter(opts.Stderr, log)

	// Grandchildren holding the pipes open must not block Wait forever
	cmd.WaitDelay = opts.Grace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	w := &worker{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go func() {
		w.err = cmd.Wait()
		close(w.done)
	}()
	return w, nil
}

// exit classifies the finished process. Only valid after done is closed.
func (w *worker) exit() Exit {
	return classifyWait(w.err)
}

// exited reports whether cmd.Wait has returned
func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// stop sends SIGTERM to the worker's process group, waits up to grace
// (or until force is closed), then sends SIGKILL. On success it returns
// once cmd.Wait has returned, so the stream copiers are finished. The
// returned signal is the last one sent. If the group cannot be signalled
// the direct child is killed and stop waits at most grace; callers must
// check exited before reading the exit.
func (w *worker) stop(clk clock.Clock, grace time.Duration, force <-chan struct{}) (string, error) {
	if w.exited() {
		return "", nil
	}

	if err := signalGroup(w.pid, syscall.SIGTERM); err != nil {
		return SignalName(syscall.SIGKILL), w.killAndWait(clk, grace, err)
	}

	timer := clk.Timer(grace)
	defer timer.Stop()

	select {
	case <-w.done:
		return SignalName(syscall.SIGTERM), nil
	case <-timer.C:
	case <-force:
	}

	if err := signalGroup(w.pid, syscall.SIGKILL); err != nil {
		return SignalName(syscall.SIGKILL), w.killAndWait(clk, grace, err)
	}
	<-w.done
	return SignalName(syscall.SIGKILL), nil
}

// killAndWait kills the direct child after a failed group signal and
// waits a bounded time for cmd.Wait
func (w *worker) killAndWait(clk clock.Clock, limit time.Duration, cause error) error {
	_ = w.cmd.Process.Kill()

	timer := clk.Timer(limit)
	defer timer.Stop()
	select {
	case <-w.done:
	case <-timer.C:
	}
	return cause
}

// killGroup is syscall.Kill; tests replace it to simulate signal failures
var killGroup = syscall.Kill

// signalGroup signals the whole process group led by pid
func signalGroup(pid int, sig syscall.Signal) error {
	err := killGroup(-pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return fmt.Errorf("failed to send %s to process group %d: %w", SignalName(sig), pid, err)
}
