package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_Advances(t *testing.T) {
	clock := NewClock(1000, 10)
	assert.Equal(t, int64(1000), clock.Current())

	assert.Equal(t, int64(1000), clock.Now())
	assert.Equal(t, int64(1010), clock.Now())
	assert.Equal(t, int64(1020), clock.Current())

	clock.Advance(500)
	assert.Equal(t, int64(1520), clock.Now())
}

func TestClock_Reset(t *testing.T) {
	clock := NewClock(5, 0)
	clock.Now()
	clock.Now()
	assert.Equal(t, int64(7), clock.Current(), "a zero step advances by one")

	clock.Reset()
	assert.Equal(t, int64(5), clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock(1, 1)
	const goroutines = 50
	const calls = 100

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				v := clock.Now()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*calls)
	for v := int64(1); v <= goroutines*calls; v++ {
		assert.True(t, seen[v], "missing reading %d", v)
	}
}
