package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/tckz/visit-counter/internal/client"
	"github.com/tckz/visit-counter/internal/log"
	vh "github.com/tckz/vegetahelper"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optRate = &vh.RateFlag{
		Rate: &vegeta.Rate{
			Freq: 30,
			Per:  1 * time.Second,
		}}
	optDuration    = flag.Duration("duration", 10*time.Second, "Duration of the test [0 = forever]")
	optOutput      = flag.String("output", "", "/path/to/results.bin or 'stdout', omit to print the summary only")
	optWorkers     = flag.Uint64("workers", vegeta.DefaultWorkers, "Number of workers")
	optLogLevel    = flag.String("log-level", "info", "info|warn|error")
	optLogEncoding = flag.String("log-encoding", "json", "json|console")
	optLogOutput   = flag.String("log-output", "stderr", "comma separated zap output paths")
	optWindow      = flag.Duration("dedupe-window", client.DefaultDedupeWindow, "how long a count is remembered for the duplicate check")
	optURL         = flag.String("url", "", "base url of the server (default $API_URL)")
	optKey         = flag.String("key", "", "api key (default $API_KEY)")
	optTimeout     = flag.Duration("timeout", 5*time.Second, "timeout of each request")
)

func init() {
	godotenv.Load()

	flag.Var(optRate, "rate", "Number of requests per time unit")
	flag.Parse()

	logger = log.Must(log.NewLogger(
		log.WithLogLevel(*optLogLevel),
		log.WithEncoding(*optLogEncoding),
		log.WithOutputPaths(strings.Split(*optLogOutput, ",")...),
	)).Sugar().With(zap.String("app", myName))
}

type nopWriteCloser struct {
	io.Writer
}

func (c nopWriteCloser) Close() error {
	return nil
}

func openResultFile(out string) (io.WriteCloser, error) {
	switch out {
	case "":
		return &nopWriteCloser{io.Discard}, nil
	case "stdout":
		return &nopWriteCloser{os.Stdout}, nil
	default:
		return os.Create(out)
	}
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	baseURL := *optURL
	if baseURL == "" {
		baseURL = os.Getenv("API_URL")
	}
	if baseURL == "" {
		logger.Fatalf("*** --url or API_URL must be specified.")
	}
	key := *optKey
	if key == "" {
		key = os.Getenv("API_KEY")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cl, err := client.New(baseURL, key, &http.Client{Timeout: *optTimeout})
	if err != nil {
		logger.Fatalf("*** client.New: %v", err)
	}

	// every value the server hands out must be unique across the run
	tr := client.NewTracker(*optWindow)

	atk := vh.NewAttacker(func(ctx context.Context) (result *vh.HitResult, retErr error) {
		n, err := cl.Hit(ctx)
		if err != nil {
			return nil, err
		}
		if err := tr.Observe(n); err != nil {
			return nil, err
		}
		return result, nil
	}, vh.WithWorkers(*optWorkers))
	res := atk.Attack(ctx, *optRate.Rate, *optDuration, "visits")

	out, err := openResultFile(*optOutput)
	if err != nil {
		logger.Fatal(err)
	}
	defer out.Close()
	enc := vegeta.NewEncoder(out)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)

	var metrics vegeta.Metrics
loop:
	for {
		select {
		case s := <-sig:
			logger.Infof("Received signal: %s", s)
			cancel()
			// keep loop until 'res' is closed.
		case r, ok := <-res:
			if !ok {
				break loop
			}
			metrics.Add(r)
			if err := enc.Encode(r); err != nil {
				logger.Errorf("*** Encode: %v", err)
				break loop
			}
		}
	}
	metrics.Close()

	logger.Infof("requests=%s, success=%.2f%%, p99=%s, max_count=%s, duplicates=%d",
		humanize.Comma(int64(metrics.Requests)), metrics.Success*100, metrics.Latencies.P99,
		humanize.Comma(tr.Max()), tr.Dups())

	cancel()
	if tr.Dups() > 0 {
		out.Close()
		os.Exit(1)
	}
}
