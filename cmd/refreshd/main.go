// Command refreshd runs the recommendation refresh job, either as a
// one-shot invocation (the default, suitable for cron) or as a daemon with
// a built-in daily timer.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"booklib"
	"booklib/event"
	redisledger "booklib/ledger/redis"
	prom "booklib/metrics/prometheus"
	"booklib/worker"
)

type config struct {
	APIBaseURL    string        `envconfig:"API_BASE_URL" default:"http://localhost:8000"`
	RedisURL      string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	MaxConcurrent int64         `envconfig:"MAX_CONCURRENT" default:"5"`
	MaxAttempts   int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	BaseDelay     time.Duration `envconfig:"BASE_DELAY" default:"1s"`
	Interval      time.Duration `envconfig:"REFRESH_INTERVAL" default:"24h"`
	MetricsAddr   string        `envconfig:"METRICS_ADDR" default:":9090"`
}

func main() {
	daemon := flag.Bool("daemon", false, "run continuously on the refresh interval")
	refreshBooks := flag.Bool("books", false, "also refresh every book's cache")
	flag.Parse()

	var cfg config
	envconfig.MustProcess("", &cfg)

	redisOpts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close()

	refresherCfg := booklib.ApplyOptions(
		booklib.WithBaseURL(cfg.APIBaseURL),
		booklib.WithMaxConcurrent(cfg.MaxConcurrent),
		booklib.WithMaxAttempts(cfg.MaxAttempts),
		booklib.WithBaseDelay(cfg.BaseDelay),
	)
	if err := refresherCfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	collector := prom.New(prom.DefaultConfig())
	bus := event.NewMemoryEventBus()
	if err := event.AttachLogging(bus, nil); err != nil {
		log.Fatalf("attach event logging: %v", err)
	}
	refresher, err := booklib.NewRefresher(
		booklib.WithLedger(redisledger.New(redisClient)),
		booklib.WithRefresherConfig(refresherCfg),
		booklib.WithMetrics(collector),
		booklib.WithEventBus(bus),
	)
	if err != nil {
		log.Fatalf("build refresher: %v", err)
	}
	defer refresher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*daemon {
		runOnce(ctx, refresher, *refreshBooks)
		return
	}

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics serve: %v", err)
		}
	}()

	w := worker.NewWorker(
		worker.WithRefresher(refresher),
		worker.WithMetrics(collector),
		worker.WithConfig(worker.Config{
			Interval:     cfg.Interval,
			RefreshBooks: *refreshBooks,
		}),
	)
	if err := w.Start(ctx); err != nil {
		log.Fatalf("start worker: %v", err)
	}

	<-ctx.Done()
	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsServer.Shutdown(shutdownCtx)

	stats := w.Stats()
	log.Printf("worker stopped after %d runs (%d success, %d skipped, %d failed)",
		stats.RunCount, stats.Succeeded, stats.Skipped, stats.Failed)
}

// runOnce performs a single refresh and exits non-zero on failure.
func runOnce(ctx context.Context, refresher *booklib.Refresher, refreshBooks bool) {
	start := time.Now()
	log.Printf("starting recommendation refresh")

	outcome := refresher.RefreshWeeklyRecommendations(ctx)
	switch outcome.Status {
	case booklib.StatusSuccess:
		log.Printf("weekly recommendations refreshed in %v", outcome.Duration)
	case booklib.StatusSkipped:
		log.Printf("weekly recommendations already refreshed today, skipping")
	case booklib.StatusFailed:
		log.Printf("weekly recommendation refresh failed: %v", outcome.Err)
	}

	failed := outcome.Status == booklib.StatusFailed

	if refreshBooks {
		summary, err := refresher.RefreshAllBooks(ctx)
		if err != nil {
			log.Printf("book refresh failed: %v", err)
			failed = true
		} else {
			log.Printf("book refresh: %d success, %d skipped, %d failed of %d",
				summary.Succeeded, summary.Skipped, summary.Failed, summary.Total())
			if summary.Failed > 0 {
				failed = true
			}
		}
	}

	log.Printf("refresh completed in %v", time.Since(start))
	if failed {
		os.Exit(1)
	}
}
