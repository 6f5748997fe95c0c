package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/fingerprint"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/metrics"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/pipeline"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/report"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/session"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage/csvbackend"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage/jsonbackend"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage/postgres"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage/sqlite"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/transport"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/trends"
	"github.com/shahidirfan100/Google-Trends-Scraper/pkg/proxy"
)

var errNoInput = errors.New("no input items: provide searchTerms, startUrls, or positional keywords")

var rootCmd = &cobra.Command{
	Use:   "trends [keywords...]",
	Short: "Retrieve and normalize search-interest data",
	Long: `trends resolves the widget set for each query, fetches every widget's
payload under its security token, classifies the ambiguous result shapes,
and appends one normalized record per query to the output sink.

Input items come from --config (searchTerms / startUrls), positional
arguments, or both.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("config", "", "input config file (JSON or YAML)")
	flags.String("geo", "", "default geo (ISO 3166-1 alpha-2, empty = worldwide)")
	flags.String("time-range", trends.DefaultTimeRange, "default time range")
	flags.String("custom-time-range", "", "custom time range, overrides --time-range")
	flags.Int("category", 0, "category id (0 = all)")
	flags.String("property", "", "search property: empty (web), images, news, youtube, froogle")
	flags.Bool("multiple", false, "split comma-joined keyword strings")
	flags.Int("max-items", 0, "item cap (0 = unbounded)")
	flags.Int("max-retries", 5, "attempt cap per logical request")
	flags.String("output", "trends_output.ndjson", "output path (json/csv) or DSN (sqlite/postgres)")
	flags.String("format", "json", "output backend: json, csv, sqlite, postgres")
	flags.StringSlice("proxy", nil, "proxy URL, repeatable")
	flags.String("proxy-file", "", "file with one proxy URL per line")
	flags.String("fingerprint", "chrome", "TLS fingerprint profile: chrome, firefox, safari, go")
	flags.String("hl", "en-US", "backend locale")
	flags.Int("tz", 0, "timezone offset in minutes, as a browser would send")
	flags.Int("metrics-port", 0, "expose prometheus /metrics on this port (0 = off)")
	flags.Bool("no-warmup", false, "skip the cookie warmup request")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	for _, name := range []string{
		"geo", "category", "property", "multiple", "max-items", "max-retries",
		"output", "format", "proxy", "proxy-file", "fingerprint",
		"hl", "tz", "metrics-port", "no-warmup", "log-level",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
	_ = viper.BindPFlag("timeRange", flags.Lookup("time-range"))
	_ = viper.BindPFlag("customTimeRange", flags.Lookup("custom-time-range"))
	viper.RegisterAlias("maxItems", "max-items")
	viper.RegisterAlias("maxRequestRetries", "max-retries")
	viper.RegisterAlias("isMultiple", "multiple")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	logger := newLogger(viper.GetString("log-level"))
	slog.SetDefault(logger)

	inputs := collectInputs(args)
	if len(inputs) == 0 {
		return errNoInput
	}

	timeRange := viper.GetString("timeRange")
	if custom := viper.GetString("customTimeRange"); custom != "" {
		timeRange = custom
	} else if !trends.IsValidTimeRange(timeRange) {
		return fmt.Errorf("unknown time range %q (use customTimeRange for arbitrary ranges)", timeRange)
	}

	opts := trends.Options{
		Geo:           viper.GetString("geo"),
		TimeRange:     timeRange,
		Category:      viper.GetInt("category"),
		Property:      viper.GetString("property"),
		SplitKeywords: viper.GetBool("multiple"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if port := viper.GetInt("metrics-port"); port > 0 {
		srv := metrics.Start(port)
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	sess, err := newSession(logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	if !viper.GetBool("no-warmup") {
		if err := sess.Warm(ctx); err != nil {
			logger.Warn("session warmup failed", "err", err)
		}
	}

	backend, err := newBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	client := transport.NewClient(sess, viper.GetInt("max-retries"), transport.DefaultBackoff(), logger)
	hl := viper.GetString("hl")
	tz := viper.GetInt("tz")
	resolver := trends.NewResolver(client, hl, tz, logger)
	fetcher := trends.NewFetcher(client, hl, tz, logger)

	pipe := pipeline.New(pipeline.Config{
		MaxItems:     viper.GetInt("max-items"),
		FetchStagger: 500 * time.Millisecond,
	}, resolver, fetcher, backend, logger)

	outcomes, err := pipe.Run(ctx, inputs, opts)
	summary := report.GenerateSummary(outcomes)
	if werr := report.WriteText(os.Stdout, summary); werr != nil {
		logger.Error("failed to render summary", "err", werr)
	}
	return err
}

// collectInputs merges config-file items with positional arguments.
// startUrls entries may be plain strings or objects with a url field.
func collectInputs(args []string) []string {
	var inputs []string
	inputs = append(inputs, viper.GetStringSlice("searchTerms")...)

	if startURLs, ok := viper.Get("startUrls").([]any); ok {
		for _, raw := range startURLs {
			switch v := raw.(type) {
			case string:
				inputs = append(inputs, v)
			case map[string]any:
				if u, ok := v["url"].(string); ok {
					inputs = append(inputs, u)
				}
			}
		}
	}

	return append(inputs, args...)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newSession(logger *slog.Logger) (*session.Session, error) {
	var pool *proxy.Pool
	proxies := viper.GetStringSlice("proxy")
	proxyFile := viper.GetString("proxy-file")
	if len(proxies) > 0 || proxyFile != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.Add(proxies...); err != nil {
			return nil, err
		}
		if proxyFile != "" {
			if err := pool.LoadFile(proxyFile); err != nil {
				return nil, err
			}
		}
		logger.Info("proxy rotation enabled", "proxies", len(proxies))
	}

	return session.New(session.Config{
		Fingerprint: fingerprint.Profile(viper.GetString("fingerprint")),
		ProxyPool:   pool,
	})
}

func newBackend(ctx context.Context) (storage.Backend, error) {
	output := viper.GetString("output")
	switch format := viper.GetString("format"); format {
	case "json":
		return jsonbackend.New(output)
	case "csv":
		return csvbackend.New(output)
	case "sqlite":
		return sqlite.New(output)
	case "postgres":
		return postgres.New(ctx, output)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
