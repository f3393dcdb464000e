package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lunahq/orbiter/internal/observability"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

const (
	historyFileName = "history.jsonl"
	memoryFileName  = "memory.log"
	markerFileName  = ".last-compaction"
)

// Store owns the append-only observation history and its derived curated
// memory file. Appends are atomic per line; curated memory is a projection of
// history, never an independent source of truth.
type Store struct {
	dir         string
	historyPath string
	memoryPath  string
	markerPath  string

	// mu serializes file mutation (appends and compaction rewrites).
	mu sync.Mutex
	// compactMu keeps compaction single-flight per store instance.
	compactMu sync.Mutex
}

// NewStore opens (creating if needed) a store rooted at dir. The compaction
// age marker is seeded at creation so a fresh store reports zero age.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{
		dir:         dir,
		historyPath: filepath.Join(dir, historyFileName),
		memoryPath:  filepath.Join(dir, memoryFileName),
		markerPath:  filepath.Join(dir, markerFileName),
	}

	if _, err := os.Stat(s.markerPath); os.IsNotExist(err) {
		if err := s.touchMarker(time.Now()); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Dir returns the store root directory.
func (s *Store) Dir() string {
	return s.dir
}

// AppendObservation normalizes the input event, evaluates promotion under the
// given policy (nil means the default policy), appends the event to history
// and, when promoted, appends one derived line to curated memory. The event
// is immutable after this call.
func (s *Store) AppendObservation(input ObservationEvent, policy *PromotionPolicy) (ObservationEvent, PromotionResult, error) {
	pol := DefaultPromotionPolicy()
	if policy != nil {
		pol = *policy
	}

	ev := input
	if ev.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return ObservationEvent{}, PromotionResult{}, fmt.Errorf("failed to generate event id: %w", err)
		}
		ev.ID = id
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if ev.EventType == "" {
		ev.EventType = EventWorkflowDelta
	}
	if ev.TrustClass == "" {
		ev.TrustClass = TrustUntrusted
	}
	if ev.Signals == nil {
		ev.Signals = DeriveSignals(ev.Summary)
	}

	promotion := EvaluatePromotion(&ev, pol)
	if ev.Status == "" {
		if promotion.Promoted {
			ev.Status = StatusAccepted
		} else {
			ev.Status = StatusPendingReview
		}
	}

	line, err := json.Marshal(&ev)
	if err != nil {
		return ObservationEvent{}, PromotionResult{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendLine(s.historyPath, string(line)); err != nil {
		return ObservationEvent{}, PromotionResult{}, fmt.Errorf("failed to append history: %w", err)
	}

	if promotion.Promoted {
		if err := appendLine(s.memoryPath, curatedLine(&ev, promotion.Class)); err != nil {
			return ObservationEvent{}, PromotionResult{}, fmt.Errorf("failed to append curated memory: %w", err)
		}
		observability.RecordPromotion(string(promotion.Class))
	}

	observability.RecordObservation(string(ev.TrustClass), string(ev.Status))

	log.Debug().
		Str("event_id", ev.ID).
		Str("group_id", ev.GroupID).
		Str("trust_class", string(ev.TrustClass)).
		Bool("promoted", promotion.Promoted).
		Msg("Observation appended")

	return ev, promotion, nil
}

// curatedLine renders the human-scannable key=value projection of a promoted
// event.
func curatedLine(ev *ObservationEvent, class PromotionClass) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ts=%s", ev.OccurredAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, " id=%s", ev.ID)
	fmt.Fprintf(&sb, " class=%s", class)
	if ev.ProjectID != "" {
		fmt.Fprintf(&sb, " project=%s", ev.ProjectID)
	}
	if ev.GroupID != "" {
		fmt.Fprintf(&sb, " group=%s", ev.GroupID)
	}
	if ev.SessionKey != "" {
		fmt.Fprintf(&sb, " session=%s", ev.SessionKey)
	}
	fmt.Fprintf(&sb, " trust=%s conf=%.2f source=%s", ev.TrustClass, ev.Confidence, ev.Source)
	if len(ev.Signals) > 0 {
		types := make([]string, 0, len(ev.Signals))
		for _, sig := range ev.Signals {
			types = append(types, string(sig.Type))
		}
		fmt.Fprintf(&sb, " signals=%s", strings.Join(types, ","))
	}
	fmt.Fprintf(&sb, " summary=%q", ev.Summary)
	return sb.String()
}

// ReadHistory returns every history event in append order. Malformed lines
// are skipped with a warning rather than failing the whole read.
func (s *Store) ReadHistory() ([]ObservationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readHistoryLocked()
}

func (s *Store) readHistoryLocked() ([]ObservationEvent, error) {
	lines, err := readLines(s.historyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	events := make([]ObservationEvent, 0, len(lines))
	for i, line := range lines {
		var ev ObservationEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			log.Warn().Int("line", i+1).Err(err).Msg("Skipping malformed history line")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ListObservations returns history events matching the filter, preserving
// append (chronological) order.
func (s *Store) ListObservations(filter *Filter) ([]ObservationEvent, error) {
	events, err := s.ReadHistory()
	if err != nil {
		return nil, err
	}

	out := events[:0:0]
	for i := range events {
		if filter.Matches(&events[i]) {
			out = append(out, events[i])
		}
	}
	return out, nil
}

// Search returns filtered events whose summary, category or rationale contain
// the query, case-insensitively. An empty query degrades to ListObservations.
func (s *Store) Search(query string, filter *Filter) ([]ObservationEvent, error) {
	events, err := s.ListObservations(filter)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return events, nil
	}

	needle := strings.ToLower(query)
	out := events[:0:0]
	for i := range events {
		ev := &events[i]
		haystack := strings.ToLower(ev.Summary + " " + ev.Category + " " + ev.Rationale)
		if strings.Contains(haystack, needle) {
			out = append(out, events[i])
		}
	}
	return out, nil
}

// ReadMemory returns the curated memory lines in append order.
func (s *Store) ReadMemory() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := readLines(s.memoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read curated memory: %w", err)
	}
	return lines, nil
}

// touchMarker records the compaction age basis.
func (s *Store) touchMarker(t time.Time) error {
	data := fmt.Sprintf("%d\n", t.Unix())
	if err := os.WriteFile(s.markerPath, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write compaction marker: %w", err)
	}
	return nil
}

// lastCompaction returns the marker time, falling back to the history file's
// modification time when the marker is unreadable.
func (s *Store) lastCompaction() time.Time {
	data, err := os.ReadFile(s.markerPath)
	if err == nil {
		var unix int64
		if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &unix); err == nil {
			return time.Unix(unix, 0)
		}
	}
	if info, err := os.Stat(s.historyPath); err == nil {
		return info.ModTime()
	}
	return time.Now()
}

// appendLine writes one line with a single O_APPEND write so concurrent
// appends interleave at line granularity without partial lines.
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return err
	}
	return f.Sync()
}

// readLines returns the non-empty lines of a file; a missing file reads as
// empty.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
