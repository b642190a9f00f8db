package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/orderrouter/internal/allocation"
	"github.com/sawpanic/orderrouter/internal/broker"
	"github.com/sawpanic/orderrouter/internal/config"
	"github.com/sawpanic/orderrouter/internal/domain"
	"github.com/sawpanic/orderrouter/internal/exec"
	"github.com/sawpanic/orderrouter/internal/guardian"
	httpapi "github.com/sawpanic/orderrouter/internal/interfaces/http"
	"github.com/sawpanic/orderrouter/internal/metrics"
	"github.com/sawpanic/orderrouter/internal/net/ratelimit"
	"github.com/sawpanic/orderrouter/internal/orderbook"
	"github.com/sawpanic/orderrouter/internal/risk"
	"github.com/sawpanic/orderrouter/internal/router"
)

const (
	appName = "orderrouter"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Risk-gated order admission and execution routing",
		Version: version,
		Long: `orderrouter admits candidate trades through pause and risk gates, sizes a
time-sliced execution plan from live liquidity, and schedules child order
slices against the configured broker adapter.`,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to router.yaml (defaults apply when empty)")

	routeCmd := &cobra.Command{
		Use:   "route",
		Short: "Route a single trade request",
		Long:  "Run one trade request through the full admission and execution pipeline and print the result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoute(cmd, configPath)
		},
	}
	routeCmd.Flags().String("symbol", "", "Trading symbol (required)")
	routeCmd.Flags().String("side", "buy", "Trade side (buy|sell)")
	routeCmd.Flags().Float64("qty", 0, "Quantity to trade (required)")
	routeCmd.Flags().Float64("limit", 0, "Optional limit price")
	routeCmd.Flags().Int("max-slices", 5, "Maximum child order slices")
	routeCmd.Flags().Int("horizon-sec", 300, "Execution time horizon in seconds")
	_ = routeCmd.MarkFlagRequired("symbol")
	_ = routeCmd.MarkFlagRequired("qty")

	normalizeCmd := &cobra.Command{
		Use:   "normalize [weights.json]",
		Short: "Normalize a raw weight map into a capped allocation",
		Long:  "Read a raw {symbol: weight} JSON map from a file or stdin and print the normalized allocation.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runNormalize,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the routing HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the risk service and dashboard once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(configPath)
		},
	}

	rootCmd.AddCommand(routeCmd, normalizeCmd, serveCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// pipeline bundles everything a routing run needs
type pipeline struct {
	router   *router.Router
	registry *metrics.Registry
	store    *allocation.Store
	source   allocation.Source
	feed     *orderbook.Feed
	cfg      config.Config
}

// buildPipeline wires the router from configuration
func buildPipeline(cfg config.Config) *pipeline {
	registry := metrics.NewRegistry()
	limiter := ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	gateway := risk.NewGateway(risk.Config{
		BaseURL:         cfg.Risk.URL,
		MaxAttempts:     cfg.Risk.MaxAttempts,
		ValidateTimeout: time.Duration(cfg.Risk.ValidateTimeoutSec) * time.Second,
		ProbeTimeout:    time.Duration(cfg.Risk.ProbeTimeoutSec) * time.Second,
		MaxDrawdown:     cfg.Risk.MaxDrawdown,
	}, risk.WithLimiter(limiter), risk.WithRecorder(registry))

	pauser := guardian.NewHTTPPauser(cfg.Guardian.DashboardURL,
		time.Duration(cfg.Guardian.TimeoutSec)*time.Second)

	var adapter broker.Adapter
	if cfg.Broker.URL != "" && !cfg.Broker.Paper {
		httpCfg := broker.DefaultHTTPConfig(cfg.Broker.URL)
		httpCfg.PlaceTimeout = time.Duration(cfg.Broker.PlaceTimeoutSec) * time.Second
		adapter = broker.NewHTTP(httpCfg, limiter)
	} else {
		adapter = broker.NewPaper()
	}

	slicer := exec.NewSlicer(adapter, cfg.Execution.Pace(), registry)

	var books orderbook.SnapshotSource
	var feed *orderbook.Feed
	if cfg.Feed.URL != "" {
		feed = orderbook.NewFeed(orderbook.DefaultFeedConfig(cfg.Feed.URL), cfg.Feed.Symbols)
		books = feed
	}

	var source allocation.Source
	if cfg.Redis.Addr != "" {
		source = allocation.NewRedisSource(cfg.Redis.Addr)
	} else {
		source = &allocation.MemorySource{}
	}

	return &pipeline{
		router: router.New(router.Config{PortfolioValue: cfg.Router.PortfolioValue},
			pauser, gateway, books, slicer, registry),
		registry: registry,
		store:    allocation.NewStore(),
		source:   source,
		feed:     feed,
		cfg:      cfg,
	}
}

func runRoute(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	symbol, _ := cmd.Flags().GetString("symbol")
	side, _ := cmd.Flags().GetString("side")
	qty, _ := cmd.Flags().GetFloat64("qty")
	limit, _ := cmd.Flags().GetFloat64("limit")
	maxSlices, _ := cmd.Flags().GetInt("max-slices")
	horizon, _ := cmd.Flags().GetInt("horizon-sec")

	p := buildPipeline(cfg)
	if p.feed != nil {
		p.feed.Start(cmd.Context())
		defer p.feed.Stop()
	}

	result := p.router.Route(cmd.Context(), domain.TradeRequest{
		Symbol:     symbol,
		Side:       domain.Side(side),
		Quantity:   qty,
		LimitPrice: limit,
		Hints:      &domain.Hints{MaxSlices: maxSlices, TimeHorizonSec: horizon},
	})

	return printJSON(result)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	var raw map[string]float64
	var decoder *json.Decoder
	if len(args) == 1 {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open weights file: %w", err)
		}
		defer file.Close()
		decoder = json.NewDecoder(file)
	} else {
		decoder = json.NewDecoder(os.Stdin)
	}
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("decode raw weights: %w", err)
	}

	return printJSON(domain.NormalizeWeights(raw))
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	p := buildPipeline(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if p.feed != nil {
		p.feed.Start(ctx)
		defer p.feed.Stop()
	}

	// Refresh the published allocation in the background; the API serves
	// the current map at /allocations.
	go refreshAllocations(ctx, p.store, p.source)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}, p.router, dependencyCheck(cfg), p.store, p.registry)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("Shutting down routing API")
	return server.Shutdown(shutdownCtx)
}

// refreshAllocations polls the allocation source and republishes the
// normalized map wholesale on every change.
func refreshAllocations(ctx context.Context, store *allocation.Store, source allocation.Source) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		doc, err := source.Latest(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("No allocation update available")
			continue
		}

		normalized := domain.NormalizeWeights(doc.Allocations)
		if len(normalized) == 0 {
			// No usable allocation is a no-op, not an error.
			continue
		}
		store.Publish(normalized, doc.Source)
		log.Info().Str("source", doc.Source).Int("instruments", len(normalized)).
			Msg("Allocation refreshed")
	}
}

// dependencyCheck probes the risk service and dashboard for /health
func dependencyCheck(cfg config.Config) httpapi.HealthChecker {
	client := &http.Client{Timeout: 2 * time.Second}
	probe := func(ctx context.Context, url string) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}

	return func(ctx context.Context) map[string]bool {
		return map[string]bool{
			"risk":      probe(ctx, cfg.Risk.URL+"/health"),
			"dashboard": probe(ctx, cfg.Guardian.DashboardURL+"/meta/metrics"),
		}
	}
}

func runHealth(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deps := dependencyCheck(cfg)(ctx)
	for name, ok := range deps {
		status := "ok"
		if !ok {
			status = "unreachable"
		}
		fmt.Printf("%-10s %s\n", name, status)
	}
	return nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
