// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/dflexy/dfindexer/internal/api"
	"github.com/dflexy/dfindexer/internal/breaker"
	"github.com/dflexy/dfindexer/internal/buildinfo"
	"github.com/dflexy/dfindexer/internal/cache"
	"github.com/dflexy/dfindexer/internal/config"
	"github.com/dflexy/dfindexer/internal/domain"
	"github.com/dflexy/dfindexer/internal/enricher"
	"github.com/dflexy/dfindexer/internal/metadata"
	"github.com/dflexy/dfindexer/internal/metrics"
	"github.com/dflexy/dfindexer/internal/tracker"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "dfindexer",
		Short: "Torrent enrichment and resilience pipeline",
		Long: `dfindexer - Enriches raw torrent references with metadata,
normalized titles and live swarm counts, behind caches and circuit breakers.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the enrichment server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/dfindexer/ or %APPDATA%\\dfindexer\\). For backward compatibility, can also be a direct path to a .toml file")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, logPath)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dfindexer",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/dfindexer/config.toml
- Windows: %APPDATA%\dfindexer\config.toml

You can specify either a directory path or a direct file path:
- Directory: dfindexer generate-config --config-dir /path/to/config/
- File: dfindexer generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

type Application struct {
	configDir string
	logPath   string
}

func NewApplication(configDir, logPath string) *Application {
	return &Application{
		configDir: configDir,
		logPath:   logPath,
	}
}

func (app *Application) runServer() {
	// Initialize configuration
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.logPath != "" {
		os.Setenv("DFINDEXER__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting dfindexer")

	// Shared cache tier. Redis being down is not fatal; the pipeline
	// keeps working on the in-process tier alone.
	var sharedStore cache.Store
	if cfg.Config.RedisEnabled {
		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		redisStore, err := cache.NewRedisStore(pingCtx, cache.RedisConfig{
			Addr:     cfg.Config.RedisAddr,
			Password: cfg.Config.RedisPassword,
			DB:       cfg.Config.RedisDB,
		})
		cancel()
		if err != nil {
			log.Error().Err(err).Str("addr", cfg.Config.RedisAddr).Msg("Redis unavailable, continuing with in-process cache only")
		} else {
			sharedStore = redisStore
			defer redisStore.Close()
		}
	}

	cacheManager := cache.NewManager(sharedStore, time.Duration(cfg.Config.LocalCacheTTLSeconds)*time.Second)
	defer cacheManager.Close()

	// Metrics registry, collectors and server are only built when enabled.
	var (
		registry  *prometheus.Registry
		collected *metrics.Metrics
	)
	if cfg.Config.MetricsEnabled {
		registry = prometheus.NewRegistry()
		collected = metrics.New(registry)
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Config.BreakerFailureThreshold,
		Cooldown:         time.Duration(cfg.Config.BreakerCooldownSeconds) * time.Second,
		IsFailure:        domain.IsTransient,
		OnStateChange: func(key string, from, to breaker.State) {
			if collected != nil && to == breaker.StateOpen {
				collected.BreakerOpens.WithLabelValues(key).Inc()
			}
		},
	})

	metadataLimiter := rate.NewLimiter(rate.Limit(cfg.Config.MetadataRateLimit), cfg.Config.MetadataRateBurst)
	resolver := metadata.NewResolver(metadata.Config{
		BaseURL:     cfg.Config.MetadataBaseURL,
		Concurrency: int64(cfg.Config.MetadataConcurrency),
		Timeout:     time.Duration(cfg.Config.MetadataTimeout) * time.Second,
		Cache:       cacheManager,
		Breakers:    breakers,
		Limiter:     metadataLimiter,
	})

	// Rate limit changes from a config reload apply without a restart.
	cfg.RegisterReloadListener(func(newCfg *domain.Config) {
		metadataLimiter.SetLimit(rate.Limit(newCfg.MetadataRateLimit))
		metadataLimiter.SetBurst(newCfg.MetadataRateBurst)
		log.Info().
			Float64("rate", newCfg.MetadataRateLimit).
			Int("burst", newCfg.MetadataRateBurst).
			Msg("metadata rate limit updated")
	})

	trackerClient := tracker.NewClient(
		time.Duration(cfg.Config.TrackerTimeoutMillis)*time.Millisecond,
		cfg.Config.TrackerRetries,
	)
	trackerService := tracker.NewService(tracker.ServiceConfig{
		Client:        trackerClient,
		Cache:         cacheManager,
		Breakers:      breakers,
		ExtraTrackers: cfg.Config.ExtraTrackers,
		MaxTrackers:   cfg.Config.MaxTrackers,
	})

	enrichService := enricher.New(enricher.Config{
		Metadata:    resolver,
		Trackers:    trackerService,
		Metrics:     collected,
		Concurrency: cfg.Config.EnrichConcurrency,
	})

	// Start server in goroutine
	httpServer := api.NewServer(&api.Dependencies{
		Config:   cfg,
		Version:  buildinfo.Version,
		Enricher: enrichService,
		Breakers: breakers,
	})

	errorChannel := make(chan error)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	var metricsServer *metrics.Server
	if cfg.Config.MetricsEnabled {
		metricsServer = metrics.NewServer(registry, cfg.Config.MetricsHost, cfg.Config.MetricsPort)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errorChannel <- err
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("got error during metrics server shutdown")
		}
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")

		os.Exit(1)
	}
}
