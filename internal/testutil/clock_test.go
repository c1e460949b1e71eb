package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestManualClock_FrozenUntilAdvanced(t *testing.T) {
	clock := NewManualClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())

	clock.Advance(15 * time.Millisecond)
	assert.Equal(t, start.Add(15*time.Millisecond), clock.Now())
}

func TestManualClock_MovesBackwards(t *testing.T) {
	clock := NewManualClock(start)

	clock.Advance(-time.Second)
	assert.True(t, clock.Now().Before(start))

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}

func TestSteppingClock_AdvancesPerRead(t *testing.T) {
	clock := NewSteppingClock(start, time.Millisecond)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(time.Millisecond), clock.Now())
	assert.Equal(t, start.Add(2*time.Millisecond), clock.Now())
	assert.Equal(t, int64(3), clock.Reads())
}

func TestSteppingClock_ThreadSafe(t *testing.T) {
	clock := NewSteppingClock(start, time.Microsecond)
	const numGoroutines = 50
	const readsPerGoroutine = 100

	var mu sync.Mutex
	seen := make(map[time.Time]bool)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < readsPerGoroutine; j++ {
				now := clock.Now()
				mu.Lock()
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every read observed a distinct instant
	require.Len(t, seen, numGoroutines*readsPerGoroutine)
	assert.Equal(t, int64(numGoroutines*readsPerGoroutine), clock.Reads())
}
