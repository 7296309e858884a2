// Package main is the entry point for the snigate SNI routing endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/snigate/internal/config"
	"github.com/vyrodovalexey/snigate/internal/observability"
	"github.com/vyrodovalexey/snigate/internal/server"
	"github.com/vyrodovalexey/snigate/internal/session"
	"github.com/vyrodovalexey/snigate/internal/sni"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)

	if err := run(cfg, flags.configPath, logger); err != nil {
		logger.Fatal("snigate exited with error", observability.Error(err))
	}
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("SNIGATE_CONFIG_PATH", "configs/snigate.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("SNIGATE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("SNIGATE_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("snigate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting snigate",
		observability.String("version", version),
		observability.String("configPath", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.Int("identities", len(cfg.Identities)),
		observability.String("listen", cfg.Listen),
		observability.String("validationPolicy", cfg.ValidationPolicy),
	)
	return cfg
}

// run wires the manager, endpoint, metrics and reload handling, then blocks
// until shutdown.
func run(cfg *config.Config, configPath string, logger observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var external session.ExternalCache
	if cfg.SessionCache.Redis != nil {
		redisCache, err := session.NewRedisCache(cfg.SessionCache.Redis.ToSession(), logger)
		if err != nil {
			return fmt.Errorf("connecting external session cache: %w", err)
		}
		defer func() { _ = redisCache.Close() }()
		external = redisCache
	}

	builder := sni.NewBuilder(logger,
		sni.WithSessionCacheOptions(cfg.SessionCache.Options()),
		sni.WithExternalSessionCache(external),
	)

	metrics := sni.NewMetrics(prometheus.DefaultRegisterer)
	manager := sni.NewManager(
		sni.WithLogger(logger),
		sni.WithMetrics(metrics),
		sni.WithBuilder(builder),
		sni.WithValidationPolicy(cfg.Policy()),
	)

	if err := manager.ResetAll(cfg.Identities, cfg.TicketSeeds); err != nil {
		return fmt.Errorf("publishing initial identity set: %w", err)
	}

	endpoint := server.New(server.Config{Address: cfg.Listen}, manager, nil, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := endpoint.Start(ctx); err != nil && err != context.Canceled {
			errCh <- err
		}
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	reload := func() {
		next, err := config.Load(configPath)
		if err != nil {
			logger.Error("reload failed, keeping current identity set", observability.Error(err))
			return
		}
		if err := manager.ResetAll(next.Identities, next.TicketSeeds); err != nil {
			logger.Error("reload rejected, keeping current identity set", observability.Error(err))
			return
		}
		logger.Info("configuration reloaded",
			observability.Int("identities", len(next.Identities)),
		)
	}

	if cfg.Reload.Watch {
		watcher := server.NewConfigWatcher(configPath, cfg.Reload.Debounce.Duration(), reload, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil && err != context.Canceled {
				logger.Warn("configuration watcher stopped", observability.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				reload()
				continue
			}
			logger.Info("shutdown signal received", observability.String("signal", sig.String()))
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			return endpoint.Stop(shutdownCtx)
		}
	}
}

// serveMetrics exposes Prometheus metrics and a liveness endpoint.
func serveMetrics(addr string, logger observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	logger.Info("serving metrics", observability.String("address", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", observability.Error(err))
	}
}

// getEnvOrDefault returns the environment value or a default.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
