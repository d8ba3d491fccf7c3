package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/api"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/cachemanager"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/config"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/flags"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/log"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/pubsub"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/registry"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/tracing"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the node registry server",
	Long: `Run the node registry as an HTTP server exposing the ARP Node Registry
API. Publishers register node type definitions, executors resolve them.

The server listens on the configured address (default: localhost:8080) and
provides REST endpoints for publishing, fetching, and listing node types,
plus an SSE stream of publish events.

Example:
  arp-node-registry serve                       # Start on the configured address
  arp-node-registry serve --addr :9090          # Override the listen address
  arp-node-registry serve --seed types.yaml --watch`,
	RunE: runServe,
}

var (
	serveAddr  string
	serveSeed  string
	serveWatch bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveSeed, "seed", "", "Seed manifest to publish at startup (overrides config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Re-apply the seed manifest when it changes")
}

func runServe(_ *cobra.Command, _ []string) error {
	// Flag overrides
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if serveSeed != "" {
		cfg.Seed.File = serveSeed
	}
	if serveWatch {
		cfg.Seed.Watch = true
	}
	if debugFlag || os.Getenv("ARP_REGISTRY_DEBUG") != "" {
		cfg.Log.Level = "debug"
	}

	// The file exporter needs a concrete path before validation. The
	// tracing resource inherits the service identity unless overridden.
	if cfg.Tracing.FilePath == "" {
		cfg.Tracing.FilePath = config.DefaultTracesFilePath()
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.ServiceName
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cleanup, err := log.Init(cfg.Log.Path)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer cleanup()

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetMinLevel(level)

	log.Info(log.CatConfig, "node registry starting", "version", version, "addr", cfg.Addr)

	tracerProvider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.ErrorErr(log.CatTrace, "tracing shutdown failed", err)
		}
	}()

	var tracer trace.Tracer
	if tracerProvider.Enabled() {
		tracer = tracerProvider.Tracer()
		log.Info(log.CatTrace, "tracing enabled", "exporter", cfg.Tracing.Exporter)
	}

	broker := pubsub.NewBroker[registry.NodeType]()
	defer broker.Close()

	featureFlags := flags.New(cfg.Flags)

	var latestCache cachemanager.CacheManager[string, string]
	if featureFlags.Enabled(flags.FlagLatestCache) {
		latestCache = cachemanager.NewInMemoryCacheManager[string, string](
			"latest-version", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
		log.Info(log.CatCache, "latest-version cache enabled", "ttl", cfg.Cache.LatestTTL)
	}

	reg := registry.NewInMemoryRegistry(registry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Events:         broker,
		LatestCache:    latestCache,
		LatestTTL:      cfg.Cache.LatestTTL,
	})

	if cfg.Seed.File != "" {
		types, err := registry.LoadSeedFile(cfg.Seed.File)
		if err != nil {
			return fmt.Errorf("loading seed manifest: %w", err)
		}
		published := registry.ApplySeed(context.Background(), reg, types)
		log.Info(log.CatSeed, "seed manifest applied",
			"file", cfg.Seed.File, "published", published, "total", len(types))
	}

	token, ok := cfg.Auth.Token()
	if !ok {
		log.Warn(log.CatHTTP, "bearer auth disabled, running dev-insecure", "env", config.EnvBearerToken)
	}

	server, err := api.NewServer(api.ServerConfig{
		Addr:         cfg.Addr,
		Registry:     reg,
		Events:       broker,
		Tracer:       tracer,
		BearerToken:  token,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if cfg.Seed.Watch {
		seedWatcher, err := watcher.New(watcher.DefaultConfig(cfg.Seed.File))
		if err != nil {
			return fmt.Errorf("creating seed watcher: %w", err)
		}
		changes, err := seedWatcher.Start()
		if err != nil {
			return fmt.Errorf("watching seed manifest: %w", err)
		}
		defer func() { _ = seedWatcher.Stop() }()

		go reapplySeedOnChange(reg, cfg.Seed.File, changes)
	}

	// Handle shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("Node registry started on port %d\n", server.Port())
	fmt.Println("Press Ctrl+C to stop")

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.ErrorErr(log.CatHTTP, "error stopping API server", err)
	}

	fmt.Println("Registry stopped")
	return nil
}

// reapplySeedOnChange reloads the manifest on every debounced change
// notification. A manifest that fails to load leaves the registry as it
// was; entries that are already published are skipped.
func reapplySeedOnChange(reg registry.NodeRegistry, path string, changes <-chan struct{}) {
	for range changes {
		types, err := registry.LoadSeedFile(path)
		if err != nil {
			log.ErrorErr(log.CatSeed, "seed manifest reload failed", err, "file", path)
			continue
		}
		published := registry.ApplySeed(context.Background(), reg, types)
		log.Info(log.CatSeed, "seed manifest reloaded",
			"file", path, "published", published, "total", len(types))
	}
}
