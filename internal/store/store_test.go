package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func record(id string, started time.Time) *Record {
	return &Record{
		SessionID:      id,
		LogPath:        filepath.Join("logs", "mev_bot_"+id+".log"),
		StartedAt:      started,
		EndedAt:        started.Add(90 * time.Second),
		Attempts:       3,
		Crashes:        2,
		SpawnFailures:  1,
		InitialBalance: dec("1.000000"),
		FinalBalance:   dec("1.05"),
		Opportunities:  12,
		BundlesSent:    4,
		BundlesLanded:  3,
		ProfitSum:      dec("0.08"),
		Report:         `{"lines":20}`,
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestStoreSaveGet(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			want := record("20261017_090000", started)
			require.NoError(t, s.Save(ctx, want))

			got, err := s.Get(ctx, want.SessionID)
			require.NoError(t, err)
			assert.Equal(t, want.SessionID, got.SessionID)
			assert.Equal(t, want.LogPath, got.LogPath)
			assert.True(t, want.StartedAt.Equal(got.StartedAt))
			assert.Equal(t, 90*time.Second, got.Duration())
			assert.Equal(t, 3, got.Attempts)
			assert.Equal(t, 2, got.Crashes)
			assert.Equal(t, 1, got.SpawnFailures)
			require.NotNil(t, got.InitialBalance)
			assert.True(t, got.InitialBalance.Equal(*want.InitialBalance))
			require.NotNil(t, got.FinalBalance)
			assert.True(t, got.FinalBalance.Equal(*want.FinalBalance))
			assert.Equal(t, 12, got.Opportunities)
			assert.Equal(t, want.Report, got.Report)
		})
	}
}

func TestStoreNullBalances(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rec := record("20261017_100000", time.Now())
			rec.InitialBalance, rec.FinalBalance, rec.ProfitSum = nil, nil, nil
			require.NoError(t, s.Save(ctx, rec))

			got, err := s.Get(ctx, rec.SessionID)
			require.NoError(t, err)
			assert.Nil(t, got.InitialBalance)
			assert.Nil(t, got.FinalBalance)
			assert.Nil(t, got.ProfitSum)
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				started := base.Add(time.Duration(i) * time.Hour)
				require.NoError(t, s.Save(ctx, record(fmt.Sprintf("id-%d", i), started)))
			}

			all, err := s.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "id-4", all[0].SessionID)
			assert.Equal(t, "id-0", all[4].SessionID)

			limited, err := s.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, "id-3", limited[1].SessionID)
		})
	}
}

func TestStoreSaveReplaces(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rec := record("same", time.Now())
			require.NoError(t, s.Save(ctx, rec))
			rec.Attempts = 9
			require.NoError(t, s.Save(ctx, rec))

			all, err := s.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, 9, all[0].Attempts)
		})
	}
}
