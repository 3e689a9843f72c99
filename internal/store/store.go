// Package store keeps a history of finalized supervisor sessions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no record matches a session ID
var ErrNotFound = errors.New("session record not found")

// Record is the history row written once per finalized session
type Record struct {
	SessionID string    `json:"session_id"`
	LogPath   string    `json:"log_path"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Attempts      int `json:"attempts"`
	Crashes       int `json:"crashes"`
	CleanExits    int `json:"clean_exits"`
	SpawnFailures int `json:"spawn_failures"`

	InitialBalance *decimal.Decimal `json:"initial_balance,omitempty"`
	FinalBalance   *decimal.Decimal `json:"final_balance,omitempty"`

	Opportunities int              `json:"opportunities"`
	BundlesSent   int              `json:"bundles_sent"`
	BundlesLanded int              `json:"bundles_landed"`
	ProfitSum     *decimal.Decimal `json:"profit_sum,omitempty"`

	// Report is the JSON-encoded metrics report, empty if extraction failed
	Report string `json:"-"`
}

// Duration returns the session length
func (r *Record) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Store is implemented by SQLiteStore and MemoryStore
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, sessionID string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLiteStore)(nil)
