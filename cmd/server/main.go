// Package main provides the entry point for the nsxenrich server.
// It serves the VMware NSX Defender enrichment module to MISP over the
// misp-modules HTTP protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/nsxenrich/internal/api"
	"github.com/lvonguyen/nsxenrich/internal/api/gateway"
	"github.com/lvonguyen/nsxenrich/internal/config"
	"github.com/lvonguyen/nsxenrich/internal/module"
	"github.com/lvonguyen/nsxenrich/internal/observability"
	"github.com/lvonguyen/nsxenrich/internal/workflow"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults are used when empty)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("nsxenrich %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "nsxenrich: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	tel, err := observability.New(observability.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: Version,
		Environment:    cfg.Service.Environment,
		ModuleName:     module.Name,
		ModuleVersion:  module.Version,
		LogLevel:       cfg.Logging.Level,
		LogFormat:      cfg.Logging.Format,
		TracingEnabled: cfg.Tracing.Enabled,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		MetricsEnabled: cfg.Metrics.Enabled,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	logger := tel.Logger()

	logger.Info("Starting nsxenrich",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
		zap.String("config", configPath),
	)

	// Setup context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator := workflow.NewOrchestrator(logger.Named("workflow"), tel.Tracer(), tel.Metrics())
	clients := module.NewClientFactory(cfg, logger.Named("clients"))
	defer clients.Close()
	mod := module.New(logger.Named("module"), orchestrator, clients)

	opts := api.Options{
		Module:         mod,
		Logger:         logger.Named("http"),
		Version:        Version,
		Metrics:        tel.Metrics(),
		MetricsHandler: tel.MetricsHandler(),
		MetricsPath:    cfg.Metrics.Path,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,

		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	}

	var redisClient *redis.Client
	if cfg.RateLimit.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password(),
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer redisClient.Close()

		limiter := gateway.NewRateLimiter(redisClient, gateway.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			Window:            cfg.RateLimit.Window,
			IncludeHeaders:    cfg.RateLimit.IncludeHeaders,
		}, logger.Named("ratelimit"))
		if m := tel.Metrics(); m != nil {
			limiter.OnLimited = func(path string) { m.RateLimited.WithLabelValues(path).Inc() }
		}
		opts.Limiter = limiter
		opts.Ready = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
		logger.Info("Rate limiting enabled",
			zap.String("redis", cfg.Redis.Addr),
			zap.Int("requests_per_window", cfg.RateLimit.RequestsPerWindow),
			zap.Duration("window", cfg.RateLimit.Window),
		)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped")

	if err := tel.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
	}
	return nil
}
