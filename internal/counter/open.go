package counter

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
)

const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendDatastore = "datastore"
)

type Options struct {
	Backend string

	// memory
	Initial int64

	// redis
	RedisAddr string
	RedisKey  string

	// datastore
	ProjectID       string
	CredentialsFile string
	Namespace       string
	Kind            string
	Name            string
	// MaxAttempts bounds transaction retries; 0 means DefaultMaxAttempts.
	MaxAttempts int
}

// Open builds the backend named by opts.Backend. The returned func releases
// its connections.
func Open(ctx context.Context, opts Options) (Counter, func() error, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewLocalCounter(opts.Initial), func() error { return nil }, nil

	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, nil, fmt.Errorf("redis address must be specified for backend=%s", opts.Backend)
		}
		cl := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:        []string{opts.RedisAddr},
			DialTimeout:  time.Second * 2,
			ReadTimeout:  time.Second * 2,
			WriteTimeout: time.Second * 2,
			PoolSize:     200,
			PoolTimeout:  time.Second * 5,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := cl.Ping(pingCtx).Err(); err != nil {
			cl.Close()
			return nil, nil, fmt.Errorf("redis.Ping: addr=%s, %w", opts.RedisAddr, err)
		}
		return NewRedisCounter(cl, opts.RedisKey), cl.Close, nil

	case BackendDatastore:
		var copts []option.ClientOption
		if opts.CredentialsFile != "" {
			copts = append(copts, option.WithCredentialsFile(opts.CredentialsFile))
		}
		cl, err := datastore.NewClient(ctx, opts.ProjectID, copts...)
		if err != nil {
			return nil, nil, fmt.Errorf("datastore.NewClient: project=%s, %w", opts.ProjectID, err)
		}
		return NewDatastoreCounter(cl, opts.Namespace, opts.Kind, opts.Name, WithMaxAttempts(opts.MaxAttempts)), cl.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend: %s", opts.Backend)
	}
}
