package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestTrackerLifecycle(t *testing.T) {
	t.Parallel()

	clock := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	tr := NewTracker("run-1", clock)

	tr.StartBatch("2020-05-01", 2, 3, 1, 1)
	tr.RecordRow("2020-05-01", false)
	tr.RecordRow("2020-05-01", true)
	tr.RecordRow("unknown", true)

	snap := tr.Snapshot()
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, "2020-05-01", snap.Current)
	require.Len(t, snap.Batches, 1)
	assert.Equal(t, 5, snap.Batches[0].Total)
	assert.Equal(t, 2, snap.Batches[0].Done)
	assert.Equal(t, 1, snap.Batches[0].Empty)
	assert.Equal(t, StatusRunning, snap.Batches[0].Status)

	final := tr.FinishBatch("2020-05-01", StatusDone)
	assert.Equal(t, StatusDone, final.Status)
	assert.True(t, final.FinishedAt.After(final.StartedAt))
	assert.Empty(t, tr.Snapshot().Current)
}

func TestTrackerKeepsBatchOrder(t *testing.T) {
	t.Parallel()

	tr := NewTracker("run", nil)
	tr.StartBatch("b", 0, 1, 0, 0)
	tr.FinishBatch("b", StatusDone)
	tr.FinishBatch("a", StatusSkipped)

	snap := tr.Snapshot()
	require.Len(t, snap.Batches, 2)
	assert.Equal(t, "b", snap.Batches[0].Batch)
	assert.Equal(t, "a", snap.Batches[1].Batch)
	assert.Equal(t, StatusSkipped, snap.Batches[1].Status)
}

func TestNilTrackerIsSafe(t *testing.T) {
	t.Parallel()

	var tr *Tracker
	tr.StartBatch("x", 1, 1, 0, 0)
	tr.RecordRow("x", false)
	assert.Equal(t, StatusDone, tr.FinishBatch("x", StatusDone).Status)
	assert.Empty(t, tr.Snapshot().Batches)
}
