package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"synapse/config"
	"synapse/core/events"
	"synapse/gateway"
	"synapse/gateway/middleware"
	"synapse/native/dispute"
	"synapse/native/escrow"
	"synapse/native/intent"
	"synapse/native/oracle"
	"synapse/native/safety"
	"synapse/observability"
	"synapse/observability/logging"
	telemetry "synapse/observability/otel"
	"synapse/storage/archive"
	"synapse/storage/journal"
)

const disputeSweepInterval = 30 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	listenFlag := flag.String("listen", "", "Override the configured listen address")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SYNAPSE_ENV"))
	logger := logging.Setup("synapsed", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if strings.TrimSpace(*listenFlag) != "" {
		cfg.ListenAddress = strings.TrimSpace(*listenFlag)
	}
	if env == "" {
		env = cfg.Environment
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:      "synapsed",
		Environment:      env,
		Endpoint:         cfg.Telemetry.Endpoint,
		Insecure:         cfg.Telemetry.Insecure,
		Headers:          telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:          cfg.Telemetry.Metrics,
		Traces:           cfg.Telemetry.Traces,
		TraceSampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	bus := events.NewBus(events.WithLogger(logger))

	intentCfg, err := cfg.IntentConfig()
	if err != nil {
		logger.Error("invalid intent config", slog.Any("error", err))
		os.Exit(1)
	}
	engine := intent.NewEngine(intentCfg, intent.WithEmitter(bus), intent.WithLogger(logger))
	engine.Start()
	defer engine.Stop()

	disputeCfg, err := cfg.DisputeConfig()
	if err != nil {
		logger.Error("invalid dispute config", slog.Any("error", err))
		os.Exit(1)
	}
	adapter := escrow.NewMemoryAdapter()
	oracles := oracle.DemoRegistry(oracle.WithLogger(logger))
	resolver := dispute.NewResolver(disputeCfg, adapter, oracles,
		dispute.WithEmitter(bus), dispute.WithLogger(logger))

	safetyCfg, err := cfg.SafetyConfig()
	if err != nil {
		logger.Error("invalid safety policy", slog.Any("error", err))
		os.Exit(1)
	}
	protocol := safety.NewProtocol(safetyCfg, safety.WithEmitter(bus), safety.WithLogger(logger))

	observability.AttachRecorder(bus)

	if driver := strings.TrimSpace(cfg.Journal.Driver); driver != "" {
		j, err := journal.Open(driver, cfg.Journal.DSN, logger)
		if err != nil {
			logger.Error("failed to open journal", slog.Any("error", err))
			os.Exit(1)
		}
		j.Attach(bus)
		defer j.Close()
	}

	var store archive.Store
	if path := strings.TrimSpace(cfg.Archive.Path); path != "" {
		store, err = archive.NewLevelDBStore(path)
		if err != nil {
			logger.Error("failed to open evidence archive", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		store = archive.NewMemStore()
	}
	defer store.Close()
	archiver := archive.NewArchiver(store, resolver, logger)
	archiver.Attach(bus)

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "synapse-gateway",
		LogRequests: env == "dev",
		Enabled:     cfg.Telemetry.Metrics || cfg.Telemetry.Traces,
	}, logger)

	server := gateway.NewServer(engine, resolver, protocol, gateway.WithLogger(logger))
	handler := server.Router(gateway.RouterConfig{
		RateLimit: middleware.RateLimit{
			RequestsPerSecond: cfg.Gateway.RateLimitPerSecond,
			Burst:             cfg.Gateway.RateLimitBurst,
		},
		CORS: middleware.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		},
		Observability: obs,
	})
	if cfg.Telemetry.Traces {
		handler = otelhttp.NewHandler(handler, "synapse-gateway")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(disputeSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if expired := resolver.ExpireStale(); expired > 0 {
					logger.Info("expired stale disputes", slog.Int("count", expired))
				}
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		logger.Error("failed to listen", slog.String("address", cfg.ListenAddress), slog.Any("error", err))
		os.Exit(1)
	}
	go func() {
		logger.Info("listening", slog.String("address", listener.Addr().String()))
		if serveErr := httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("serve failed", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
