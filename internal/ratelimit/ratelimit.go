// Package ratelimit throttles callers with one token bucket per client.
//
// Buckets live in a go-cache store and are dropped after IdleTTL without
// traffic, which bounds memory for a changing set of clients.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	RPS   float64
	Burst int
	// IdleTTL is how long a client's bucket survives without requests.
	IdleTTL time.Duration
	KeyFn   KeyFunc
	// TrustXForwardedFor keys clients by the first X-Forwarded-For entry.
	// Ignored when KeyFn is set.
	TrustXForwardedFor bool
}

type Limiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc
	store *cache.Cache
}

func New(opts Options) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 15 * time.Minute
	}
	if opts.KeyFn == nil {
		opts.KeyFn = ClientKeyFunc(opts.TrustXForwardedFor)
	}
	return &Limiter{
		rps:   rate.Limit(opts.RPS),
		burst: opts.Burst,
		keyFn: opts.KeyFn,
		store: cache.New(opts.IdleTTL, opts.IdleTTL/2),
	}
}

// Allow reports whether the client identified by key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	if v, ok := l.store.Get(key); ok {
		lim := v.(*rate.Limiter)
		l.store.SetDefault(key, lim)
		return lim
	}

	lim := rate.NewLimiter(l.rps, l.burst)
	if err := l.store.Add(key, lim, cache.DefaultExpiration); err != nil {
		// lost the race against another request from the same client
		if v, ok := l.store.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// RetryAfter is the whole number of seconds until one token refills.
func (l *Limiter) RetryAfter() int {
	if l.rps <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(1/float64(l.rps))))
}

// Middleware answers 429 with Retry-After once a client's bucket is empty.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(l.keyFn(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(l.RetryAfter()))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ClientKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}
