package counter

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/datastore"
)

var (
	_ Counter = (*DatastoreCounter)(nil)
	_ Seeder  = (*DatastoreCounter)(nil)
)

// Visits is the stored entity. The property name matches the layout the
// service has always used in the "analytics" kind.
type Visits struct {
	Count int64 `datastore:"count"`
}

// DefaultMaxAttempts is how often a contended increment is tried before
// datastore.ErrConcurrentTransaction is returned.
const DefaultMaxAttempts = 10

// DatastoreCounter stores the count in one entity and increments it inside a
// transaction. Contended transactions are retried up to maxAttempts times.
type DatastoreCounter struct {
	client      *datastore.Client
	key         *datastore.Key
	maxAttempts int
}

type DatastoreOption func(c *DatastoreCounter)

// WithMaxAttempts overrides DefaultMaxAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) DatastoreOption {
	return DatastoreOption(func(c *DatastoreCounter) {
		if n > 0 {
			c.maxAttempts = n
		}
	})
}

func NewDatastoreCounter(client *datastore.Client, namespace, kind, name string, opts ...DatastoreOption) *DatastoreCounter {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = namespace
	c := &DatastoreCounter{client: client, key: key, maxAttempts: DefaultMaxAttempts}
	for _, e := range opts {
		e(c)
	}
	return c
}

func (c *DatastoreCounter) Get(ctx context.Context) (int64, error) {
	var rec Visits
	err := c.client.Get(ctx, c.key, &rec)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("datastore.Get: key=%v, %w", c.key, err)
	}
	return rec.Count, nil
}

func (c *DatastoreCounter) Up(ctx context.Context) (int64, error) {
	var n int64
	_, err := c.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		// may run more than once; n is reassigned on every attempt
		var rec Visits
		if err := tx.Get(c.key, &rec); err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		rec.Count++
		if _, err := tx.Put(c.key, &rec); err != nil {
			return err
		}
		n = rec.Count
		return nil
	}, datastore.MaxAttempts(c.maxAttempts))
	if err != nil {
		return 0, fmt.Errorf("datastore.RunInTransaction: key=%v, attempts=%d, %w", c.key, c.maxAttempts, err)
	}
	return n, nil
}

func (c *DatastoreCounter) Set(ctx context.Context, v int64) error {
	if _, err := c.client.Put(ctx, c.key, &Visits{Count: v}); err != nil {
		return fmt.Errorf("datastore.Put: key=%v, %w", c.key, err)
	}
	return nil
}
