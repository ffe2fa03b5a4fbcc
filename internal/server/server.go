// Package server exposes the visit counter over HTTP.
//
// The only route is POST /visits?key=<secret>. Requests are routed first,
// then authorized, and only then is the counter incremented, so a rejected
// request never changes the count.
package server

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/tckz/visit-counter/internal/apikey"
	"github.com/tckz/visit-counter/internal/counter"
	"github.com/tckz/visit-counter/internal/ratelimit"
	"go.uber.org/zap"
)

const VisitsPath = "/visits"

type options struct {
	logger         *zap.SugaredLogger
	storeTimeout   time.Duration
	allowedOrigins []string
	limiter        *ratelimit.Limiter
}

type Option func(o *options)

func WithLogger(l *zap.SugaredLogger) Option {
	return Option(func(o *options) {
		o.logger = l
	})
}

// WithStoreTimeout bounds each counter backend call. Zero means the request
// context alone applies.
func WithStoreTimeout(d time.Duration) Option {
	return Option(func(o *options) {
		o.storeTimeout = d
	})
}

// WithAllowedOrigins enables CORS for the given origins. "*" allows any.
func WithAllowedOrigins(origins ...string) Option {
	return Option(func(o *options) {
		o.allowedOrigins = origins
	})
}

// WithRateLimiter throttles each client before routing.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return Option(func(o *options) {
		o.limiter = l
	})
}

type Server struct {
	counter counter.Counter
	auth    *apikey.Authorizer
	options options
}

func New(c counter.Counter, auth *apikey.Authorizer, opts ...Option) *Server {
	options := options{
		logger: zap.NewNop().Sugar(),
	}
	for _, e := range opts {
		e(&options)
	}
	return &Server{counter: c, auth: auth, options: options}
}

// Routes returns the bare router. Unknown paths get 404 and a known path
// with the wrong method gets 405 with an Allow header. Paths are matched
// exactly: "//visits" or "/home/../visits" are 404, never redirected.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+VisitsPath, s.handleVisits)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path.Clean(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (s *Server) handleVisits(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Check(r.URL.RawQuery); err != nil {
		switch {
		case errors.Is(err, apikey.ErrMissingKey):
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		default:
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		}
		return
	}

	ctx := r.Context()
	if s.options.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.storeTimeout)
		defer cancel()
	}

	n, err := s.counter.Up(ctx)
	if err != nil {
		s.options.logger.With(zap.String("request_id", RequestID(r.Context()))).Errorf("counter.Up: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeCount(w, n)
}

func writeCount(w http.ResponseWriter, n int64) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strconv.FormatInt(n, 10)))
}
