// Command vrscore tracks aircraft from a transponder report feed, enriches
// them with registration lookups and serves the live picture over HTTP.
//
// Usage:
//
//	vrscore serve  [-config vrscore.yaml] [-addr :8080] [-log-level info]
//	vrscore replay [-input reports.jsonl] [-snapshot] [-pretty]
//	vrscore lookup [-config vrscore.yaml] [-timeout 30s] ICAO...
//
// Input formats
// -------------
// The feed and replay both accept one JSON document per report, either flat:
//
//	{"icao":"4CA123","alt":35000,"call":"RYR12AB","sqk":"7700"}
//
// or wrapped with the receiver that produced it:
//
//	{"source":{"name":"dub-01"},"report":{"icao":"4CA123","alt":35000}}
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/vradarserver/vrscore-sub000/internal/api"
	"github.com/vradarserver/vrscore-sub000/internal/config"
	"github.com/vradarserver/vrscore-sub000/internal/feed"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/lookup"
	"github.com/vradarserver/vrscore-sub000/internal/lookup/webapi"
	"github.com/vradarserver/vrscore-sub000/internal/state"
	"github.com/vradarserver/vrscore-sub000/internal/storage"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "vrscore - commands:")
	fmt.Fprintln(w, "  serve   - track the live feed and serve the REST API")
	fmt.Fprintln(w, "  replay  - apply a JSONL file of reports and print the result")
	fmt.Fprintln(w, "  lookup  - resolve aircraft through the cache tiers and provider")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  vrscore serve [-config vrscore.yaml] [-addr :8080] [-log-level info]")
	fmt.Fprintln(w, "  vrscore replay [-input reports.jsonl] [-snapshot] [-pretty]")
	fmt.Fprintln(w, "  vrscore lookup [-config vrscore.yaml] [-timeout 30s] ICAO...")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - The config file is YAML; VRS_*, POSTGRES_* and CLICKHOUSE_* variables override it.")
	fmt.Fprintln(w, "  - serve reloads lookup thresholds when the config file changes.")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])

	var err error
	switch cmd {
	case "serve":
		err = runServe(os.Args[2:])
	case "replay":
		err = runReplay(os.Args[2:])
	case "lookup":
		err = runLookup(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// newLogger builds a text handler for terminals and a JSON handler otherwise.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "text"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func defaultConfigPath() string {
	if v := os.Getenv("VRS_CONFIG"); v != "" {
		return v
	}
	return "vrscore.yaml"
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "YAML config file (env: VRS_CONFIG)")
	addr := fs.String("addr", "", "HTTP listen address (overrides api.addr)")
	logLevel := fs.String("log-level", "", "Log level (overrides log.level)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := state.NewStore(nil, state.WithLogger(logger))

	caches, err := storage.Open(ctx, cfg.StorageConfig(), logger)
	if err != nil {
		return fmt.Errorf("open cache tiers: %w", err)
	}
	defer func() {
		if err := caches.Close(); err != nil {
			logger.Warn("close cache tiers", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	var lookups api.Lookups
	var svc *lookup.Service
	if cfg.Lookup.Enabled {
		svcCfg := cfg.ServiceConfig()
		svcCfg.Logger = logger
		chain := lookup.NewChain(logger, caches.All()...)
		svc = lookup.NewService(webapi.New(cfg.ProviderConfig()), chain, store, svcCfg)
		lookups = svc
		store.OnNewAircraft(func(id icao.ID) error {
			svc.Lookup(id)
			return nil
		})
		g.Go(func() error { return svc.Run(gctx) })
	}

	if cfg.Feed.Enabled {
		sub := feed.NewNATSSubscriber(feed.NATSConfig{
			URL:     cfg.Feed.URL,
			Subject: cfg.Feed.Subject,
			Queue:   cfg.Feed.Queue,
			Logger:  logger,
		}, store)
		g.Go(func() error { return sub.Run(gctx) })
	}

	if cfg.State.ExpireAfter > 0 {
		sweeper := state.NewSweeper(store, cfg.State.ExpireAfter, cfg.State.SweepInterval)
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	if cfg.API.Enabled {
		var history api.History
		if caches.ClickHouse != nil {
			history = caches.ClickHouse
		}
		server := api.NewServer(store, lookups, history, api.Config{
			Addr:        cfg.API.Addr,
			AuthEnabled: cfg.API.AuthEnabled,
			APIKeys:     cfg.API.APIKeys,
			Timeout:     cfg.API.Timeout,
			Logger:      logger,
		})
		g.Go(func() error { return server.Run(gctx) })
	}

	if _, err := os.Stat(*cfgPath); err == nil {
		g.Go(func() error {
			return config.Watch(gctx, *cfgPath, logger, func(c config.Config) {
				if svc == nil {
					return
				}
				svc.SetStaleAfter(c.Lookup.StaleAfter)
				svc.SetMissStaleAfter(c.Lookup.MissStaleAfter)
			})
		})
	}

	logger.Info("vrscore started",
		"feed", cfg.Feed.Enabled,
		"lookups", cfg.Lookup.Enabled,
		"api", cfg.API.Enabled,
		"tiers", len(caches.All()),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("vrscore stopped", "tracked", store.Len())
	return nil
}

func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	inPath := fs.String("input", "", "Input JSONL file (default: stdin)")
	snapshot := fs.Bool("snapshot", false, "Print every tracked aircraft as JSON")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	_ = fs.Parse(args)

	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := state.NewStore(nil)
	st, err := feed.ReadJSONL(ctx, r, store)
	fmt.Fprintf(os.Stderr, "stats: %s tracked=%d\n", st, store.Len())
	if err != nil {
		return err
	}

	if !*snapshot {
		return nil
	}
	out := make([]api.AircraftResponse, 0, store.Len())
	for _, rec := range store.Snapshot() {
		out = append(out, api.NewAircraftResponse(rec, 0))
	}
	return writeJSON(os.Stdout, out, *pretty)
}

func runLookup(args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "YAML config file (env: VRS_CONFIG)")
	timeout := fs.Duration("timeout", 30*time.Second, "Give up after this long")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return errors.New("no aircraft given")
	}
	ids := make([]icao.ID, 0, fs.NArg())
	for _, arg := range fs.Args() {
		id, err := icao.Parse(arg, icao.ParseOptions{Strict: true})
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if cfg.Lookup.BaseURL == "" {
		return errors.New("lookup.base_url is not configured")
	}
	logger := newLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	caches, err := storage.Open(ctx, cfg.StorageConfig(), logger)
	if err != nil {
		return fmt.Errorf("open cache tiers: %w", err)
	}
	defer caches.Close()

	svcCfg := cfg.ServiceConfig()
	svcCfg.Logger = logger
	svc := lookup.NewService(webapi.New(cfg.ProviderConfig()), lookup.NewChain(logger, caches.All()...), nil, svcCfg)

	runCtx, stopRun := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	outcomes, err := svc.LookupManyAsync(ctx, ids)
	stopRun()
	<-done
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, outcomes, true)
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
