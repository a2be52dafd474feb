package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alvmarrod/domain-crawler/internal/config"
	"github.com/alvmarrod/domain-crawler/internal/version"
)

// NewRootCmd creates the crawler command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler [start_url]",
		Short: "Discover and record every page of one domain",
		Long: `Crawler walks a website breadth-first from a start URL and records every
page it reaches inside the start URL's domain (subdomains included) to a CSV
file with the columns url,depth,title,status.

Examples:
  # Crawl two levels deep with the defaults
  crawler https://example.com/

  # Unbounded depth, four workers, no robots.txt check
  crawler --max-depth -1 --workers 4 --ignore-robots https://example.com/

  # Load settings from a file and override one of them
  crawler --config crawl.yaml --delay 0.5`,
		Version:       version.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCrawlCmd,
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "JSON or YAML configuration file; flags override its values")

	// Crawl scope
	flags.IntP("max-depth", "d", config.DefaultMaxDepth, "Maximum link depth from the start URL (-1 for unbounded)")
	flags.String("scope-mode", config.ScopeHost, "Scope anchor: host (start URL host) or registrable (its eTLD+1)")
	flags.Int("max-hosts", 0, "Maximum number of distinct hosts to enter (0 for unlimited)")

	// Politeness
	flags.Float64("delay", config.DefaultDelaySeconds, "Seconds between requests to the same host")
	flags.Bool("ignore-robots", false, "Do not consult robots.txt")
	flags.String("user-agent", config.DefaultUserAgent, "User-Agent header sent with every request")

	// Execution
	flags.IntP("workers", "w", config.DefaultWorkers, "Number of concurrent fetch workers")
	flags.Duration("timeout", time.Duration(config.DefaultRequestTimeoutMs)*time.Millisecond, "Timeout for each request")
	flags.Duration("max-run-time", 0, "Stop the crawl after this long (0 for no limit)")
	flags.Int("retries", 0, "Retries for network failures")
	flags.Int("frontier-capacity", 0, "Maximum queued URLs (0 for unbounded); extra links are dropped")
	flags.Int("max-body-bytes", config.DefaultMaxBodyBytes, "Maximum response body size (0 for unlimited)")

	// Output
	flags.StringP("output-file", "o", config.DefaultOutputPath, "CSV file to append records to")
	flags.Bool("record-failures", false, "Record pages that could not be fetched with status -1")
	flags.String("db", "", "Also mirror records into this SQLite database")
	flags.String("metrics-file", "", "Write run metrics as JSON to this file")

	// Shared dedup
	flags.String("redis-addr", "", "Share the visited set through Redis at this address")
	flags.String("run-id", "", "Run identifier for the shared visited set (random by default)")

	// Logging
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.String("log-format", "text", "Log format: text or json")

	return cmd
}

// runCrawlCmd executes the crawl
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}
	logFormat, err := cmd.Flags().GetString("log-format")
	if err != nil {
		return err
	}
	if err := setupLogging(verbose, logFormat); err != nil {
		return err
	}

	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// After the first signal, a second one terminates the process immediately
	go func() {
		<-ctx.Done()
		stop()
	}()

	return runCrawl(ctx, cfg)
}

// buildConfig layers defaults, the optional config file, the start URL
// argument and every explicitly set flag, in that order
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	flags := cmd.Flags()

	defaults := config.Default()
	cfg := &defaults

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		logrus.Infof("Configuration loaded from %s", configPath)
	}

	if len(args) == 1 {
		cfg.SeedURL = args[0]
	}

	flags.Visit(func(f *pflag.Flag) {
		if err == nil {
			err = applyFlag(flags, f.Name, cfg)
		}
	})
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFlag copies one changed flag onto cfg
func applyFlag(flags *pflag.FlagSet, name string, cfg *config.Config) error {
	var err error
	switch name {
	case "max-depth":
		cfg.MaxDepth, err = flags.GetInt(name)
	case "scope-mode":
		cfg.ScopeMode, err = flags.GetString(name)
	case "max-hosts":
		cfg.MaxHosts, err = flags.GetInt(name)
	case "delay":
		cfg.DelaySeconds, err = flags.GetFloat64(name)
	case "ignore-robots":
		var ignore bool
		ignore, err = flags.GetBool(name)
		cfg.RespectRobots = !ignore
	case "user-agent":
		cfg.UserAgent, err = flags.GetString(name)
	case "workers":
		cfg.Workers, err = flags.GetInt(name)
	case "timeout":
		var d time.Duration
		d, err = flags.GetDuration(name)
		cfg.RequestTimeoutMs = int(d.Milliseconds())
	case "max-run-time":
		var d time.Duration
		d, err = flags.GetDuration(name)
		if err == nil && d%time.Second != 0 {
			return &config.Error{Field: "max_run_time_seconds", Err: fmt.Errorf("must be whole seconds, got %v", d)}
		}
		cfg.MaxRunTimeSeconds = int(d / time.Second)
	case "retries":
		cfg.Retries, err = flags.GetInt(name)
	case "frontier-capacity":
		cfg.FrontierCapacity, err = flags.GetInt(name)
	case "max-body-bytes":
		cfg.MaxBodyBytes, err = flags.GetInt(name)
	case "output-file":
		cfg.OutputPath, err = flags.GetString(name)
	case "record-failures":
		cfg.RecordFailures, err = flags.GetBool(name)
	case "db":
		cfg.DBPath, err = flags.GetString(name)
	case "metrics-file":
		cfg.MetricsPath, err = flags.GetString(name)
	case "redis-addr":
		cfg.RedisAddr, err = flags.GetString(name)
	case "run-id":
		cfg.RunID, err = flags.GetString(name)
	}
	if err != nil {
		return fmt.Errorf("flag --%s: %w", name, err)
	}
	return nil
}

// setupLogging configures the global logger
func setupLogging(verbose bool, format string) error {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	switch format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return &config.Error{Field: "log-format", Err: fmt.Errorf("must be text or json, got %q", format)}
	}
	return nil
}
