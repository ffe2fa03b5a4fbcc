package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/tckz/visit-counter/internal/counter"
	"github.com/tckz/visit-counter/internal/log"
	"go.uber.org/zap"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel    = flag.String("log-level", "info", "info|warn|error")
	optLogEncoding = flag.String("log-encoding", "json", "json|console")
	optLogOutput   = flag.String("log-output", "stderr", "comma separated zap output paths")
	optStore       = flag.String("store", counter.BackendDatastore, "redis|datastore")
	optRedis       = flag.String("redis", "", "addr:port of redis")
	optCounterKey  = flag.String("counter-key", "visits", "key of redis")
	optNameSpace   = flag.String("ns", "", "datastore namespace")
	optKind        = flag.String("kind", "analytics", "datastore kind")
	optName        = flag.String("name", "visitors", "datastore named key")
	optCredentials = flag.String("credentials", "", "path/to/service-account.json")
	optDSAttempts  = flag.Int("ds-attempts", counter.DefaultMaxAttempts, "max attempts of a contended datastore transaction")
	optSet         = flag.String("set", "", "overwrite the counter with this value before printing it")
	optTimeout     = flag.Duration("timeout", 10*time.Second, "timeout of the whole operation")
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

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	if *optStore == counter.BackendMemory {
		logger.Fatalf("*** --store=%s has nothing to inspect outside the server process", *optStore)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *optTimeout)
	defer cancel()

	c, closeCounter, err := counter.Open(ctx, counter.Options{
		Backend:         *optStore,
		RedisAddr:       *optRedis,
		RedisKey:        *optCounterKey,
		ProjectID:       os.Getenv("PROJECT_ID"),
		CredentialsFile: *optCredentials,
		Namespace:       *optNameSpace,
		Kind:            *optKind,
		Name:            *optName,
		MaxAttempts:     *optDSAttempts,
	})
	if err != nil {
		logger.Fatalf("*** counter.Open: %v", err)
	}
	defer closeCounter()

	if *optSet != "" {
		v, err := strconv.ParseInt(*optSet, 10, 64)
		if err != nil || v < 0 {
			logger.Fatalf("*** --set must be a non-negative integer: %s", *optSet)
		}
		seeder, ok := c.(counter.Seeder)
		if !ok {
			logger.Fatalf("*** --store=%s cannot be seeded", *optStore)
		}
		if err := seeder.Set(ctx, v); err != nil {
			logger.Errorf("Set: %v", err)
			return
		}
		logger.Infof("counter set to %s", humanize.Comma(v))
	}

	v, err := c.Get(ctx)
	if err != nil {
		logger.Errorf("Get: %v", err)
		return
	}

	fmt.Fprintf(os.Stdout, "%d\n", v)
}
