// Package session owns the per-run log artifact that captures worker output.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// FilePrefix and FileSuffix frame every artifact name: mev_bot_<id>.log
	FilePrefix = "mev_bot_"
	FileSuffix = ".log"

	// IDLayout formats the session ID from its creation time
	IDLayout = "20060102_150405"

	// DefaultLogDir is where artifacts go when nothing else is configured
	DefaultLogDir = "logs"
)

var (
	// ErrSealed is returned when writing to a finalized session
	ErrSealed = errors.New("session sealed")

	// ErrNoArtifacts is returned by Latest when the directory holds no session logs
	ErrNoArtifacts = errors.New("no session log artifacts found")
)

// Session is one supervised lifetime of log bookkeeping, possibly
// spanning several worker restarts.
type Session struct {
	ID        string     `json:"id" yaml:"id"`
	LogPath   string     `json:"log_path" yaml:"log_path"`
	StartedAt time.Time  `json:"started_at" yaml:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`

	InitialBalance *decimal.Decimal `json:"initial_balance,omitempty" yaml:"initial_balance,omitempty"`
	FinalBalance   *decimal.Decimal `json:"final_balance,omitempty" yaml:"final_balance,omitempty"`
}

// Duration returns the wall-clock session length, or time since start while open
func (s *Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// NewID derives a session ID from its creation time
func NewID(t time.Time) string {
	return t.Format(IDLayout)
}

// FileName returns the artifact file name for a session ID
func FileName(id string) string {
	return FilePrefix + id + FileSuffix
}

// IsArtifact reports whether name looks like a session artifact
func IsArtifact(name string) bool {
	return strings.HasPrefix(name, FilePrefix) && strings.HasSuffix(name, FileSuffix)
}

// Latest returns the most recently created artifact in dir.
// IDs sort chronologically, so the lexically greatest name wins.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w in %s", ErrNoArtifacts, dir)
		}
		return "", fmt.Errorf("failed to read log dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsArtifact(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoArtifacts, dir)
	}

	sort.Slice(names, func(i, j int) bool {
		return artifactKey(names[i]) < artifactKey(names[j])
	})
	return filepath.Join(dir, names[len(names)-1]), nil
}

// artifactKey orders same-second collisions (mev_bot_<id>_2.log) after the
// original without letting "_10" sort before "_2".
func artifactKey(name string) string {
	id := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), FileSuffix)
	if len(id) <= len(IDLayout) {
		return id
	}
	base, suffix := id[:len(IDLayout)], strings.TrimPrefix(id[len(IDLayout):], "_")
	if len(suffix) < 8 {
		suffix = strings.Repeat("0", 8-len(suffix)) + suffix
	}
	return base + "_" + suffix
}
