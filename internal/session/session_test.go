package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var started = time.Date(2026, 10, 17, 9, 30, 5, 0, time.Local)

func TestCreateNamesArtifactFromStartTime(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	rec, err := Create(dir, started)
	require.NoError(t, err)
	defer rec.Seal(time.Now())

	s := rec.Session()
	assert.Equal(t, "20261017_093005", s.ID)
	assert.Equal(t, filepath.Join(dir, "mev_bot_20261017_093005.log"), s.LogPath)
	assert.Equal(t, started, s.StartedAt)
	assert.Nil(t, s.EndedAt)

	_, err = os.Stat(s.LogPath)
	assert.NoError(t, err)
}

func TestCreateNeverReusesAnArtifact(t *testing.T) {
	dir := t.TempDir()

	first, err := Create(dir, started)
	require.NoError(t, err)
	second, err := Create(dir, started)
	require.NoError(t, err)

	assert.NotEqual(t, first.Session().LogPath, second.Session().LogPath)
	assert.Equal(t, "20261017_093005_2", second.Session().ID)
}

func TestCreateFailsWhenDirectoryCannotBeMade(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := Create(filepath.Join(blocker, "logs"), started)
	assert.Error(t, err)
}

func TestRecorderWriteMarkSeal(t *testing.T) {
	rec, err := Create(t.TempDir(), started)
	require.NoError(t, err)
	rec.now = func() time.Time { return started }

	require.NoError(t, rec.Mark("worker started (attempt %d)", 1))
	_, err = rec.Write([]byte("OPPORTUNITY on Solana\n"))
	require.NoError(t, err)

	end := started.Add(time.Minute)
	require.NoError(t, rec.Seal(end))
	require.NoError(t, rec.Seal(end.Add(time.Hour)), "second seal is a no-op")

	assert.True(t, rec.Sealed())
	assert.Equal(t, end, *rec.Session().EndedAt)
	assert.Equal(t, time.Minute, rec.Session().Duration())

	_, err = rec.Write([]byte("late\n"))
	assert.ErrorIs(t, err, ErrSealed)
	assert.ErrorIs(t, rec.Mark("late"), ErrSealed)

	data, err := os.ReadFile(rec.Session().LogPath)
	require.NoError(t, err)
	want := fmt.Sprintf("[%s] [supervisor] worker started (attempt 1)\nOPPORTUNITY on Solana\n", started.Format(time.RFC3339))
	assert.Equal(t, want, string(data))
	assert.Equal(t, int64(len(want)), rec.Size())
}

func TestRecorderPreservesPerStreamOrder(t *testing.T) {
	rec, err := Create(t.TempDir(), started)
	require.NoError(t, err)

	const perStream = 200
	var wg sync.WaitGroup
	for _, stream := range []string{"out", "err"} {
		wg.Add(1)
		go func(stream string) {
			defer wg.Done()
			for i := 0; i < perStream; i++ {
				fmt.Fprintf(rec, "%s %d\n", stream, i)
			}
		}(stream)
	}
	wg.Wait()
	require.NoError(t, rec.Seal(time.Now()))

	data, err := os.ReadFile(rec.Session().LogPath)
	require.NoError(t, err)

	next := map[string]int{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var stream string
		var n int
		_, err := fmt.Sscanf(line, "%s %d", &stream, &n)
		require.NoError(t, err, line)
		assert.Equal(t, next[stream], n, "stream %s out of order", stream)
		next[stream] = n + 1
	}
	assert.Equal(t, perStream, next["out"])
	assert.Equal(t, perStream, next["err"])
}

func TestLatest(t *testing.T) {
	t.Run("picks newest by session id", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{
			"mev_bot_20261016_235959.log",
			"mev_bot_20261017_093005.log",
			"mev_bot_20261017_093005_2.log",
			"mev_bot_20261017_093005_10.log",
			"notes.txt",
			"mev_bot_20991231_000000.txt",
		} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
		}

		got, err := Latest(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "mev_bot_20261017_093005_10.log"), got)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := Latest(t.TempDir())
		assert.ErrorIs(t, err, ErrNoArtifacts)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := Latest(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, ErrNoArtifacts)
	})
}
