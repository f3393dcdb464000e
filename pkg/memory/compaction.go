package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lunahq/orbiter/internal/observability"
	"github.com/rs/zerolog/log"
)

// Compaction result reasons for uncompressed outcomes.
const (
	ReasonBelowThresholds = "below_thresholds"
	ReasonBelowMinAge     = "below_min_age"
	ReasonNothingToKeep   = "nothing_to_archive"
)

// CompressHistoryIfNeeded bounds the live history file. When the history
// exceeds MaxLines or MaxBytes and the store is old enough, the overflow
// prefix (everything beyond the last KeepLastLines) is written verbatim to a
// timestamped snapshot under SnapshotDir, and only after that write succeeds
// is the live history rewritten to the retained suffix. Archived lines
// followed by retained lines reconstruct the original history exactly.
//
// The age gate is a hard veto measured from the last compaction (seeded at
// store creation): even an oversized history is left alone until
// MinAgeMinutes have passed.
func (s *Store) CompressHistoryIfNeeded(opts CompressionOptions) (CompressionResult, error) {
	s.compactMu.Lock()
	defer s.compactMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := readLines(s.historyPath)
	if err != nil {
		return CompressionResult{}, fmt.Errorf("failed to read history: %w", err)
	}

	var byteSize int64
	if info, err := os.Stat(s.historyPath); err == nil {
		byteSize = info.Size()
	}

	overLines := opts.MaxLines > 0 && len(lines) > opts.MaxLines
	overBytes := opts.MaxBytes > 0 && byteSize > opts.MaxBytes
	if !overLines && !overBytes {
		observability.RecordCompaction(ReasonBelowThresholds)
		return CompressionResult{Compressed: false, Reason: ReasonBelowThresholds}, nil
	}

	minAge := time.Duration(opts.MinAgeMinutes) * time.Minute
	if minAge > 0 && time.Since(s.lastCompaction()) < minAge {
		observability.RecordCompaction(ReasonBelowMinAge)
		return CompressionResult{Compressed: false, Reason: ReasonBelowMinAge}, nil
	}

	keep := opts.KeepLastLines
	if keep < 0 {
		keep = 0
	}
	if keep >= len(lines) {
		observability.RecordCompaction(ReasonNothingToKeep)
		return CompressionResult{Compressed: false, Reason: ReasonNothingToKeep}, nil
	}

	overflow := lines[:len(lines)-keep]
	retained := lines[len(lines)-keep:]

	snapshotDir := opts.SnapshotDir
	if snapshotDir == "" {
		snapshotDir = filepath.Join(s.dir, "snapshots")
	}
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return CompressionResult{}, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	snapshotPath := filepath.Join(snapshotDir, fmt.Sprintf("history-%d.jsonl", time.Now().UnixNano()))

	// Snapshot first; the live history is rewritten only after the archive
	// is durable, so a failed snapshot leaves history untouched.
	if err := writeSnapshot(snapshotPath, overflow); err != nil {
		return CompressionResult{}, fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := rewriteFile(s.historyPath, retained); err != nil {
		return CompressionResult{}, fmt.Errorf("failed to rewrite history: %w", err)
	}

	if err := s.touchMarker(time.Now()); err != nil {
		log.Warn().Err(err).Msg("Failed to update compaction marker")
	}

	observability.RecordCompaction("compressed")
	observability.SetHistoryLines(len(retained))

	log.Info().
		Int("archived", len(overflow)).
		Int("retained", len(retained)).
		Str("snapshot", snapshotPath).
		Msg("History compacted")

	return CompressionResult{
		Compressed:    true,
		SnapshotPath:  snapshotPath,
		ArchivedLines: len(overflow),
		LiveLines:     len(retained),
	}, nil
}

// writeSnapshot writes the overflow lines verbatim to a new archive file,
// refusing to overwrite an existing snapshot.
func writeSnapshot(path string, lines []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// rewriteFile atomically replaces path with the given lines via a temp file
// rename.
func rewriteFile(path string, lines []string) error {
	tmp := path + ".tmp"
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
