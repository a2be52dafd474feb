package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/domain-crawler/internal/storage"
)

// Tracker holds and manages crawl metrics
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: storage.Metrics{
			StartTime: time.Now(),
		},
	}
}

// IncrementPagesDiscovered counts a URL accepted into the frontier
func (t *Tracker) IncrementPagesDiscovered() {
	t.inc(&t.data.PagesDiscovered)
}

// IncrementPagesFetched increments the successful fetch counter
func (t *Tracker) IncrementPagesFetched() {
	t.inc(&t.data.PagesFetched)
}

// IncrementPagesFailed increments the failed fetch counter
func (t *Tracker) IncrementPagesFailed() {
	t.inc(&t.data.PagesFailed)
}

// IncrementPagesSkipped counts robots-disallowed and redirect-deduplicated pages
func (t *Tracker) IncrementPagesSkipped() {
	t.inc(&t.data.PagesSkipped)
}

// IncrementPagesRetried counts re-queued fetch attempts
func (t *Tracker) IncrementPagesRetried() {
	t.inc(&t.data.PagesRetried)
}

// IncrementTasksDropped counts links refused by a full frontier
func (t *Tracker) IncrementTasksDropped() {
	t.inc(&t.data.TasksDropped)
}

// IncrementRecordsWritten increments the persisted record counter
func (t *Tracker) IncrementRecordsWritten() {
	t.inc(&t.data.RecordsWritten)
}

// inc bumps one counter of t.data
func (t *Tracker) inc(counter *int) {
	t.mu.Lock()
	*counter++
	t.mu.Unlock()
}

// SetTasksPending records how many tasks were never dispatched
func (t *Tracker) SetTasksPending(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.TasksPending = n
}

// RecordFetchTime records a page fetch duration
func (t *Tracker) RecordFetchTime(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFetchTimeMs += duration.Milliseconds()
	t.fetchCount++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// snapshotLocked copies t.data with the fetch time totals filled in
func (t *Tracker) snapshotLocked() storage.Metrics {
	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs
	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}
	return snapshot
}

// WriteToFile stamps the end time and reason, then exports metrics as JSON
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	jsonData, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for periodic console updates
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Pages: %d discovered, %d fetched, %d failed, %d skipped | Records: %d written | Dropped: %d",
		t.data.PagesDiscovered,
		t.data.PagesFetched,
		t.data.PagesFailed,
		t.data.PagesSkipped,
		t.data.RecordsWritten,
		t.data.TasksDropped,
	)
}
