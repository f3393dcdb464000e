package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillStore(t *testing.T, store *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, _, err := store.AppendObservation(testEvent(fmt.Sprintf("event %02d", i)), nil)
		require.NoError(t, err)
	}
}

func TestCompressHistoryIfNeeded(t *testing.T) {
	t.Run("under thresholds is a no-op", func(t *testing.T) {
		store := newTestStore(t)
		fillStore(t, store, 5)

		result, err := store.CompressHistoryIfNeeded(CompressionOptions{
			MaxLines:      10,
			KeepLastLines: 2,
		})
		require.NoError(t, err)
		assert.False(t, result.Compressed)
		assert.Equal(t, ReasonBelowThresholds, result.Reason)

		events, err := store.ReadHistory()
		require.NoError(t, err)
		assert.Len(t, events, 5)
	})

	t.Run("min age vetoes an oversized history", func(t *testing.T) {
		store := newTestStore(t)
		fillStore(t, store, 12)

		// The age marker was seeded at store creation moments ago.
		result, err := store.CompressHistoryIfNeeded(CompressionOptions{
			MaxLines:      10,
			MinAgeMinutes: 60,
			KeepLastLines: 5,
		})
		require.NoError(t, err)
		assert.False(t, result.Compressed)
		assert.Equal(t, ReasonBelowMinAge, result.Reason)

		events, err := store.ReadHistory()
		require.NoError(t, err)
		assert.Len(t, events, 12)
	})

	t.Run("overflow is archived and history truncated", func(t *testing.T) {
		store := newTestStore(t)
		fillStore(t, store, 12)

		original, err := store.ReadHistory()
		require.NoError(t, err)

		result, err := store.CompressHistoryIfNeeded(CompressionOptions{
			MaxLines:      10,
			MinAgeMinutes: 0,
			KeepLastLines: 5,
		})
		require.NoError(t, err)
		assert.True(t, result.Compressed)
		assert.Equal(t, 7, result.ArchivedLines)
		assert.Equal(t, 5, result.LiveLines)
		require.NotEmpty(t, result.SnapshotPath)

		live, err := store.ReadHistory()
		require.NoError(t, err)
		require.Len(t, live, 5)
		assert.Equal(t, "event 07", live[0].Summary)
		assert.Equal(t, "event 11", live[4].Summary)

		// Archived lines followed by retained lines reconstruct the original
		// history exactly.
		archived, err := readLines(result.SnapshotPath)
		require.NoError(t, err)
		require.Len(t, archived, 7)
		for i, ev := range original[:7] {
			assert.Contains(t, archived[i], ev.ID)
		}
	})

	t.Run("byte threshold triggers independently of line count", func(t *testing.T) {
		store := newTestStore(t)
		fillStore(t, store, 4)

		result, err := store.CompressHistoryIfNeeded(CompressionOptions{
			MaxBytes:      64,
			KeepLastLines: 1,
		})
		require.NoError(t, err)
		assert.True(t, result.Compressed)
		assert.Equal(t, 1, result.LiveLines)
	})

	t.Run("keeping everything archives nothing", func(t *testing.T) {
		store := newTestStore(t)
		fillStore(t, store, 12)

		result, err := store.CompressHistoryIfNeeded(CompressionOptions{
			MaxLines:      10,
			KeepLastLines: 20,
		})
		require.NoError(t, err)
		assert.False(t, result.Compressed)
		assert.Equal(t, ReasonNothingToKeep, result.Reason)
	})

	t.Run("compaction resets the age basis", func(t *testing.T) {
		store := newTestStore(t)
		fillStore(t, store, 12)

		first, err := store.CompressHistoryIfNeeded(CompressionOptions{
			MaxLines:      10,
			KeepLastLines: 5,
		})
		require.NoError(t, err)
		require.True(t, first.Compressed)

		fillStore(t, store, 10)
		second, err := store.CompressHistoryIfNeeded(CompressionOptions{
			MaxLines:      10,
			MinAgeMinutes: 60,
			KeepLastLines: 5,
		})
		require.NoError(t, err)
		assert.False(t, second.Compressed)
		assert.Equal(t, ReasonBelowMinAge, second.Reason)
	})

	t.Run("snapshots accumulate in the snapshot directory", func(t *testing.T) {
		store := newTestStore(t)
		snapshotDir := filepath.Join(store.Dir(), "archive")
		fillStore(t, store, 12)

		result, err := store.CompressHistoryIfNeeded(CompressionOptions{
			MaxLines:      10,
			KeepLastLines: 5,
			SnapshotDir:   snapshotDir,
		})
		require.NoError(t, err)
		require.True(t, result.Compressed)

		entries, err := os.ReadDir(snapshotDir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		assert.Equal(t, filepath.Dir(result.SnapshotPath), snapshotDir)
	})
}
