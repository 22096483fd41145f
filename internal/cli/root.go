package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/asad/relcache/internal/config"
	"github.com/asad/relcache/internal/core"
	"github.com/asad/relcache/internal/httpx"
	"github.com/asad/relcache/internal/logging"
	"github.com/asad/relcache/internal/metrics"
	"github.com/asad/relcache/internal/services/relationships"
	"github.com/asad/relcache/internal/state"
)

var (
	// Version is set at build time via ldflags.
	// Example: go build -ldflags "-X github.com/asad/relcache/internal/cli.Version=1.0.0"
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "relcache",
	Short: "Per-store relationship state cache",
	Long: `relcache keeps one relationship state bucket per
(store, model, client id, property) and serves it over HTTP.

Each session opened through the API acts as a store; closing a session
drops every bucket created for it.`,
	SilenceUsage: true,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relcache server",
	RunE:  runStart,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "relcache version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute is the entry point for the CLI. It should be called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is everything runStart wires together.
type app struct {
	logger  logging.Logger
	cache   *state.RelationshipCache[relationships.Session]
	handler http.Handler
}

func buildApp(cfg *config.Config) (*app, error) {
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector()
	promRegistry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cacheOpts := []state.Option{
		state.WithLogger(logger.With(logging.String("component", "relationship-cache"))),
		state.WithObserver(collector),
	}
	if cfg.AllowEmptyKeys {
		cacheOpts = append(cacheOpts, state.AllowEmptyKeys())
	}
	cache := state.New[relationships.Session](cacheOpts...)

	services := core.NewRegistry()
	relService := relationships.NewRelationshipService(
		relationships.NewMemorySessionStore(),
		cache,
		collector,
		logger,
	)
	if err := services.Register(relService); err != nil {
		return nil, fmt.Errorf("failed to register services: %w", err)
	}

	logger.Info("registered services",
		logging.Int("count", len(services.Services())),
		logging.Strings("enabled", cfg.EnabledServices),
	)

	return &app{
		logger:  logger,
		cache:   cache,
		handler: httpx.NewEdgeRouter(cfg, services, promRegistry, logger),
	}, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	a.logger.Info("starting relcache",
		logging.String("version", Version),
		logging.Int("port", cfg.Port),
		logging.String("log_level", cfg.LogLevel),
		logging.Bool("metrics_enabled", cfg.MetricsEnabled),
		logging.Bool("allow_empty_keys", cfg.AllowEmptyKeys),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: a.handler}

	a.logger.Info("listening", logging.String("address", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
