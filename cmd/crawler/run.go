package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/domain-crawler/internal/config"
	"github.com/alvmarrod/domain-crawler/internal/crawler"
	"github.com/alvmarrod/domain-crawler/internal/fetch"
	"github.com/alvmarrod/domain-crawler/internal/metrics"
	"github.com/alvmarrod/domain-crawler/internal/storage"
	"github.com/alvmarrod/domain-crawler/internal/version"
)

const progressInterval = 10 * time.Second

// runCrawl wires storage, fetching and the crawler for a validated config
// and blocks until the crawl ends
func runCrawl(ctx context.Context, cfg *config.Config) error {
	logrus.Infof("Domain Crawler v%s starting...", version.Version)
	logrus.Infof("Configuration: seed=%s, depth=%d, workers=%d, delay=%v, robots=%t",
		cfg.SeedURL, cfg.MaxDepth, cfg.Workers, cfg.Delay(), cfg.RespectRobots)

	sink, err := openSinks(cfg)
	if err != nil {
		return err
	}

	visited, closeVisited, err := openVisitedSet(ctx, cfg)
	if err != nil {
		sink.Close()
		return err
	}
	defer closeVisited()

	var robots fetch.RobotsPolicy
	if cfg.RespectRobots {
		robots = fetch.NewRobotsCache(&http.Client{Timeout: cfg.RequestTimeout()}, cfg.UserAgent)
	}

	baseDomain, err := crawler.BaseDomain(cfg.SeedURL, cfg.ScopeMode)
	if err != nil {
		sink.Close()
		return &config.Error{Field: "seed_url", Err: err}
	}

	fetcher, err := fetch.New(fetch.Options{
		UserAgent:    cfg.UserAgent,
		Delay:        cfg.Delay(),
		Timeout:      cfg.RequestTimeout(),
		MaxBodyBytes: cfg.MaxBodyBytes,
		Parallelism:  cfg.Workers,
		Robots:       robots,
		InScope: func(rawURL string) bool {
			return crawler.InScope(rawURL, baseDomain)
		},
	})
	if err != nil {
		sink.Close()
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	tracker := metrics.NewTracker()

	c, err := crawler.NewCrawler(cfg, crawler.Deps{
		Fetcher: fetcher,
		Visited: visited,
		Sink:    sink,
		Metrics: tracker,
	})
	if err != nil {
		sink.Close()
		return err
	}

	// Start progress logger
	stopProgress := make(chan struct{})
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			}
		}
	}()

	summary, runErr := c.Run(ctx)

	close(stopProgress)
	<-progressDone

	logrus.Info("Final stats: " + tracker.LogProgress())

	if cfg.MetricsPath != "" {
		if err := tracker.WriteToFile(cfg.MetricsPath, summary.Reason); err != nil {
			logrus.Errorf("Failed to write metrics: %v", err)
		} else {
			logrus.Infof("Metrics written to %s", cfg.MetricsPath)
		}
	}

	if runErr != nil {
		return fmt.Errorf("crawl failed: %w", runErr)
	}

	logrus.Infof("Recorded %d pages of %s to %s (%s)", summary.Records, summary.BaseDomain, cfg.OutputPath, summary.Reason)
	return nil
}

// openSinks opens the CSV output and, when configured, the SQLite mirror
func openSinks(cfg *config.Config) (storage.Sink, error) {
	csvSink, err := storage.NewCSVSink(cfg.OutputPath)
	if err != nil {
		return nil, &config.Error{Field: "output_path", Err: err}
	}
	logrus.Infof("Appending records to %s", csvSink.Path())

	if cfg.DBPath == "" {
		return csvSink, nil
	}

	db, err := storage.NewSQLiteSink(cfg.DBPath)
	if err != nil {
		csvSink.Close()
		return nil, &config.Error{Field: "db_path", Err: err}
	}
	logrus.Infof("Database initialized: %s", cfg.DBPath)

	return storage.NewMultiSink(csvSink, db), nil
}

// openVisitedSet returns the in-memory set, or a Redis-backed one shared by
// every process using the same run ID
func openVisitedSet(ctx context.Context, cfg *config.Config) (crawler.VisitedSet, func(), error) {
	if cfg.RedisAddr == "" {
		return crawler.NewMemoryVisitedSet(), func() {}, nil
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	set, err := storage.NewRedisVisitedSet(ctx, cfg.RedisAddr, runID, cfg.RedisTTL())
	if err != nil {
		return nil, nil, &config.Error{Field: "redis_addr", Err: err}
	}
	logrus.Infof("Sharing visited set through redis %s (run %s)", cfg.RedisAddr, runID)

	return set, func() {
		if err := set.Close(); err != nil {
			logrus.Warnf("Failed to close redis client: %v", err)
		}
	}, nil
}
