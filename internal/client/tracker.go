package client

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

const DefaultDedupeWindow = 10 * time.Minute

// Tracker checks that counts handed out by the server are unique. A count is
// remembered for window, so memory stays bounded on an endless run.
type Tracker struct {
	seen *cache.Cache
	dups atomic.Int64
	max  atomic.Int64
}

// NewTracker returns a Tracker. A zero or negative window means
// DefaultDedupeWindow.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &Tracker{seen: cache.New(window, window/2)}
}

// Observe records n and returns an error if n was already seen within the
// window.
func (t *Tracker) Observe(n int64) error {
	for {
		cur := t.max.Load()
		if n <= cur || t.max.CompareAndSwap(cur, n) {
			break
		}
	}
	if err := t.seen.Add(strconv.FormatInt(n, 10), struct{}{}, cache.DefaultExpiration); err != nil {
		t.dups.Add(1)
		return fmt.Errorf("duplicate count: %d", n)
	}
	return nil
}

func (t *Tracker) Dups() int64 {
	return t.dups.Load()
}

func (t *Tracker) Max() int64 {
	return t.max.Load()
}

// Len is the number of counts currently remembered.
func (t *Tracker) Len() int {
	return t.seen.ItemCount()
}
