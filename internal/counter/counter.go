// Package counter holds the visit counter backends.
//
// Every backend increments atomically: concurrent Up calls never observe the
// same value and never lose an increment.
package counter

import (
	"context"
	"sync/atomic"
)

type Counter interface {
	// Up increments by one and returns the new value.
	Up(ctx context.Context) (int64, error)
	// Get returns the current value without incrementing.
	Get(ctx context.Context) (int64, error)
}

// Seeder overwrites the stored value, e.g. to restore a previous count.
type Seeder interface {
	Set(ctx context.Context, v int64) error
}

var (
	_ Counter = (*LocalCounter)(nil)
	_ Seeder  = (*LocalCounter)(nil)
)

// LocalCounter lives in process memory and is lost on exit.
type LocalCounter struct {
	count atomic.Int64
}

func NewLocalCounter(initial int64) *LocalCounter {
	c := &LocalCounter{}
	c.count.Store(initial)
	return c
}

func (c *LocalCounter) Get(ctx context.Context) (int64, error) {
	return c.count.Load(), nil
}

func (c *LocalCounter) Up(ctx context.Context) (int64, error) {
	return c.count.Add(1), nil
}

func (c *LocalCounter) Set(ctx context.Context, v int64) error {
	c.count.Store(v)
	return nil
}
