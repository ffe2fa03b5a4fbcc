package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Duplicate(t *testing.T) {
	tr := NewTracker(time.Minute)

	require.NoError(t, tr.Observe(1))
	require.NoError(t, tr.Observe(3))
	err := tr.Observe(1)
	require.EqualError(t, err, "duplicate count: 1")

	assert.Equal(t, int64(1), tr.Dups())
	assert.Equal(t, int64(3), tr.Max())
}

func TestTracker_Concurrent(t *testing.T) {
	const n = 1000
	tr := NewTracker(time.Minute)

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			assert.NoError(t, tr.Observe(v))
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, int64(0), tr.Dups())
	assert.Equal(t, int64(n), tr.Max())
	assert.Equal(t, n, tr.Len())
}

func TestTracker_ForgetsAfterWindow(t *testing.T) {
	tr := NewTracker(50 * time.Millisecond)

	require.NoError(t, tr.Observe(7))
	assert.Equal(t, 1, tr.Len())

	assert.Eventually(t, func() bool { return tr.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, tr.Observe(7), "expired counts are not duplicates")
	assert.Equal(t, int64(7), tr.Max())
}

func TestNewTracker_DefaultWindow(t *testing.T) {
	tr := NewTracker(0)
	require.NoError(t, tr.Observe(1))
	assert.Error(t, tr.Observe(1))
}
