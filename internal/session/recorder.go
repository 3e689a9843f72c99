package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Recorder appends worker output and supervisor markers to a session
// artifact. Writes go straight to the file so the artifact and the
// terminal mirror stay in step. Safe for concurrent use by the stdout and
// stderr copy goroutines; chunks from one stream keep their order.
type Recorder struct {
	session *Session
	now     func() time.Time

	mu     sync.Mutex
	file   *os.File
	sealed bool
	bytes  int64
}

// Create makes dir if needed and creates a fresh artifact named after
// startedAt. An existing artifact is never reused: same-second collisions get
// a numeric suffix.
func Create(dir string, startedAt time.Time) (*Recorder, error) {
	if dir == "" {
		dir = DefaultLogDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	id := NewID(startedAt)
	var (
		file *os.File
		path string
		err  error
	)
	for n := 1; n <= 100; n++ {
		candidate := id
		if n > 1 {
			candidate = fmt.Sprintf("%s_%d", id, n)
		}
		path = filepath.Join(dir, FileName(candidate))
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			id = candidate
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create session log %s: %w", path, err)
		}
	}
	if file == nil {
		return nil, fmt.Errorf("failed to create session log in %s: %w", dir, err)
	}

	r := &Recorder{
		session: &Session{
			ID:        id,
			LogPath:   path,
			StartedAt: startedAt,
		},
		now:  time.Now,
		file: file,
	}
	return r, nil
}

// Session returns the session this recorder writes for
func (r *Recorder) Session() *Session {
	return r.session
}

// Write appends raw worker output
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return 0, ErrSealed
	}
	n, err := r.file.Write(p)
	r.bytes += int64(n)
	return n, err
}

// Mark writes a timestamped supervisor line, e.g.
// "[2026-10-17T12:00:00+02:00] [supervisor] worker started (attempt 1, pid 4242)"
func (r *Recorder) Mark(format string, args ...interface{}) error {
	line := fmt.Sprintf("[%s] [supervisor] %s\n", r.now().Format(time.RFC3339), fmt.Sprintf(format, args...))
	_, err := io.WriteString(r, line)
	return err
}

// Size returns the number of bytes written so far
func (r *Recorder) Size() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// Seal records the end time, syncs and closes the artifact. Only the first
// call has any effect; the session is read-only afterwards.
func (r *Recorder) Seal(endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil
	}
	r.sealed = true
	r.session.EndedAt = &endedAt

	syncErr := r.file.Sync()
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	if syncErr != nil {
		return fmt.Errorf("failed to sync session log: %w", syncErr)
	}
	return nil
}

// Sealed reports whether Seal has been called
func (r *Recorder) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}
