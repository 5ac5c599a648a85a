package progress

import (
	"sync"
	"time"
)

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Batch statuses.
const (
	StatusRunning     = "running"
	StatusDone        = "done"
	StatusSkipped     = "skipped"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// BatchStats is a point-in-time view of one batch.
type BatchStats struct {
	Batch      string    `json:"batch"`
	Status     string    `json:"status"`
	Total      int       `json:"total"`
	Done       int       `json:"done"`
	Hits       int       `json:"hits"`
	Misses     int       `json:"misses"`
	Empty      int       `json:"empty"`
	Duplicates int       `json:"duplicates"`
	Conflicts  int       `json:"conflicts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Snapshot is the whole run as reported by Tracker.Snapshot.
type Snapshot struct {
	RunID     string       `json:"run_id"`
	StartedAt time.Time    `json:"started_at"`
	Current   string       `json:"current,omitempty"`
	Batches   []BatchStats `json:"batches"`
}

// Tracker accumulates batch counters. It is safe for concurrent use and a nil
// Tracker ignores every call.
type Tracker struct {
	mu        sync.Mutex
	clock     Clock
	runID     string
	startedAt time.Time
	current   string
	order     []string
	batches   map[string]*BatchStats
}

// NewTracker starts tracking a run. clock may be nil.
func NewTracker(runID string, clock Clock) *Tracker {
	if clock == nil {
		clock = utcClock{}
	}
	return &Tracker{
		clock:     clock,
		runID:     runID,
		startedAt: clock.Now(),
		batches:   make(map[string]*BatchStats),
	}
}

// StartBatch registers a batch once its IDs are partitioned into cache hits
// and misses.
func (t *Tracker) StartBatch(batch string, hits, misses, duplicates, conflicts int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	stats, ok := t.batches[batch]
	if !ok {
		stats = &BatchStats{Batch: batch}
		t.batches[batch] = stats
		t.order = append(t.order, batch)
	}
	*stats = BatchStats{
		Batch:      batch,
		Status:     StatusRunning,
		Total:      hits + misses,
		Hits:       hits,
		Misses:     misses,
		Duplicates: duplicates,
		Conflicts:  conflicts,
		StartedAt:  t.clock.Now(),
	}
	t.current = batch
}

// RecordRow counts one written row for batch.
func (t *Tracker) RecordRow(batch string, empty bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	stats, ok := t.batches[batch]
	if !ok {
		return
	}
	stats.Done++
	if empty {
		stats.Empty++
	}
}

// FinishBatch closes batch with status and returns its final counters.
func (t *Tracker) FinishBatch(batch, status string) BatchStats {
	if t == nil {
		return BatchStats{Batch: batch, Status: status}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	stats, ok := t.batches[batch]
	if !ok {
		stats = &BatchStats{Batch: batch, StartedAt: t.clock.Now()}
		t.batches[batch] = stats
		t.order = append(t.order, batch)
	}
	stats.Status = status
	stats.FinishedAt = t.clock.Now()
	if t.current == batch {
		t.current = ""
	}
	return *stats
}

// Snapshot copies the current state.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := Snapshot{
		RunID:     t.runID,
		StartedAt: t.startedAt,
		Current:   t.current,
		Batches:   make([]BatchStats, 0, len(t.order)),
	}
	for _, name := range t.order {
		out.Batches = append(out.Batches, *t.batches[name])
	}
	return out
}
