package dispatcher

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCallsEveryItemOnce(t *testing.T) {
	t.Parallel()

	d := New(Config{Workers: 4}, nil)
	var mu sync.Mutex
	var seen []string

	err := d.Run(context.Background(), []string{"c", "a", "b", "d", "e"}, func(_ context.Context, id string) {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
	})
	require.NoError(t, err)

	sort.Strings(seen)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const width = 3
	d := New(Config{Workers: width}, nil)
	var inFlight, peak atomic.Int32

	items := make([]string, 20)
	for i := range items {
		items[i] = string(rune('a' + i))
	}
	err := d.Run(context.Background(), items, func(context.Context, string) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(width))
	assert.Positive(t, peak.Load())
}

func TestRunSleepsAfterEachCall(t *testing.T) {
	t.Parallel()

	d := New(Config{Workers: 1, Sleep: 10 * time.Millisecond}, nil)
	start := time.Now()
	require.NoError(t, d.Run(context.Background(), []string{"1", "2", "3"}, func(context.Context, string) {}))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRunStopsStartingAfterCancel(t *testing.T) {
	t.Parallel()

	d := New(Config{Workers: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	err := d.Run(ctx, []string{"1", "2", "3", "4"}, func(context.Context, string) {
		if calls.Add(1) == 1 {
			cancel()
		}
	})
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Less(t, calls.Load(), int32(4))
}

func TestNewClampsWorkers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, New(Config{Workers: 0}, nil).Workers())
	assert.Equal(t, 8, New(Config{Workers: 8}, nil).Workers())
}
