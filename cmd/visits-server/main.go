package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/tckz/visit-counter/internal/apikey"
	"github.com/tckz/visit-counter/internal/counter"
	"github.com/tckz/visit-counter/internal/log"
	"github.com/tckz/visit-counter/internal/ratelimit"
	"github.com/tckz/visit-counter/internal/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

// Flags left empty fall back to the environment after .env is loaded.
var (
	optLogLevel        = flag.String("log-level", "info", "info|warn|error")
	optLogEncoding     = flag.String("log-encoding", "json", "json|console")
	optLogOutput       = flag.String("log-output", "stderr", "comma separated zap output paths")
	optAddr            = flag.String("addr", "", "listen address (default :$PORT or :8080)")
	optAPIKey          = flag.String("api-key", "", "secret callers pass as ?key= (default $API_KEY)")
	optStore           = flag.String("store", "", "memory|redis|datastore (default $VISITS_STORE or memory)")
	optInitial         = flag.String("initial", "", "starting value for the memory store (default $INITIAL_VISITS or 0)")
	optRedis           = flag.String("redis", "", "addr:port of redis (default $REDIS_ADDR)")
	optCounterKey      = flag.String("counter-key", "visits", "key of redis")
	optNameSpace       = flag.String("ns", "", "datastore namespace")
	optKind            = flag.String("kind", "analytics", "datastore kind")
	optName            = flag.String("name", "visitors", "datastore named key")
	optCredentials     = flag.String("credentials", "", "path/to/service-account.json (default $GOOGLE_APPLICATION_CREDENTIALS)")
	optDSAttempts      = flag.Int("ds-attempts", counter.DefaultMaxAttempts, "max attempts of a contended datastore transaction")
	optStoreTimeout    = flag.Duration("store-timeout", 2*time.Second, "timeout of each counter backend call [0 = none]")
	optAllowedOrigins  = flag.String("allowed-origins", "", "comma separated CORS origins (default $ALLOWED_ORIGINS or *)")
	optRateLimit       = flag.Float64("rate-limit", 0, "requests per second per client [0 = unlimited]")
	optRateBurst       = flag.Int("rate-burst", 10, "burst size per client")
	optTrustXFF        = flag.Bool("trust-xff", false, "identify clients by X-Forwarded-For")
	optShutdownTimeout = flag.Duration("shutdown-timeout", 10*time.Second, "how long to wait for in-flight requests on shutdown")
)

func init() {
	godotenv.Load()

	flag.Parse()

	logger = log.Must(log.NewLogger(
		log.WithLogLevel(*optLogLevel),
		log.WithEncoding(*optLogEncoding),
		log.WithOutputPaths(strings.Split(*optLogOutput, ",")...),
	)).Sugar().With(zap.String("app", myName))
}

func orEnv(v string, env string, def string) string {
	r, _ := lo.Coalesce(v, os.Getenv(env), def)
	return r
}

func splitOrigins(s string) []string {
	return lo.Uniq(lo.Filter(
		lo.Map(strings.Split(s, ","), func(e string, _ int) string { return strings.TrimSpace(e) }),
		func(e string, _ int) bool { return e != "" },
	))
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)
	defer logger.Infof("done")

	addr := *optAddr
	if addr == "" {
		addr = ":" + orEnv("", "PORT", "8080")
	}

	auth, err := apikey.NewAuthorizer(orEnv(*optAPIKey, "API_KEY", ""))
	if err != nil {
		logger.Fatalf("*** --api-key or API_KEY must be specified: %v", err)
	}

	initial, err := strconv.ParseInt(orEnv(*optInitial, "INITIAL_VISITS", "0"), 10, 64)
	if err != nil || initial < 0 {
		logger.Fatalf("*** --initial must be a non-negative integer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := orEnv(*optStore, "VISITS_STORE", counter.BackendMemory)
	c, closeCounter, err := counter.Open(ctx, counter.Options{
		Backend:         backend,
		Initial:         initial,
		RedisAddr:       orEnv(*optRedis, "REDIS_ADDR", ""),
		RedisKey:        *optCounterKey,
		ProjectID:       os.Getenv("PROJECT_ID"),
		CredentialsFile: orEnv(*optCredentials, "GOOGLE_APPLICATION_CREDENTIALS", ""),
		Namespace:       *optNameSpace,
		Kind:            *optKind,
		Name:            *optName,
		MaxAttempts:     *optDSAttempts,
	})
	if err != nil {
		logger.Fatalf("*** counter.Open: %v", err)
	}
	defer closeCounter()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithStoreTimeout(*optStoreTimeout),
		server.WithAllowedOrigins(splitOrigins(orEnv(*optAllowedOrigins, "ALLOWED_ORIGINS", "*"))...),
	}
	if *optRateLimit > 0 {
		opts = append(opts, server.WithRateLimiter(ratelimit.New(ratelimit.Options{
			RPS:                *optRateLimit,
			Burst:              *optRateBurst,
			TrustXForwardedFor: *optTrustXFF,
		})))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(c, auth, opts...).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Infof("listening on %s, store=%s", addr, backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Infof("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), *optShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	if err := eg.Wait(); err != nil {
		logger.Errorf("Wait: %v", err)
	}
}
