package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/derivhub/relay/internal/account"
	"github.com/derivhub/relay/internal/catalog"
	"github.com/derivhub/relay/internal/config"
	"github.com/derivhub/relay/internal/feed"
	"github.com/derivhub/relay/internal/gateway"
	"github.com/derivhub/relay/internal/hub"
	"github.com/derivhub/relay/internal/upstream"
	"github.com/derivhub/relay/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	var cfg *config.RelayConfig
	if *configPath == "" {
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("configuration loaded",
		"listen_addr", cfg.Server.ListenAddr,
		"upstream", cfg.Upstream.Endpoint,
		"app_id", cfg.Upstream.AppID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Wire components
	broadcastHub := hub.NewHub(hub.Config{
		SendBufferSize: cfg.Hub.SendBufferSize,
		WriteTimeout:   cfg.Hub.WriteTimeout,
	}, logger)

	dialer := upstream.NewWSDialer(upstream.Config{
		Endpoint:     cfg.Upstream.Endpoint,
		AppID:        cfg.Upstream.AppID,
		PingInterval: cfg.Upstream.PingInterval,
		PingTimeout:  cfg.Upstream.PingTimeout,
		WriteTimeout: cfg.Upstream.WriteTimeout,
		BufferSize:   cfg.Upstream.BufferSize,
	}, logger)

	multiplexer := feed.NewMultiplexer(dialer, broadcastHub, logger)
	orchestrator := account.NewOrchestrator(dialer, broadcastHub, logger)
	catalogue := catalog.NewService(dialer, cfg.Upstream.CatalogTimeout, logger)

	gw := gateway.New(ctx, gateway.Config{
		LoginTimeout: cfg.Upstream.LoginTimeout,
	}, multiplexer, orchestrator, catalogue, broadcastHub, logger)

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      gw.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("relay listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	multiplexer.Close()
	orchestrator.Wait()
	broadcastHub.Close()

	logger.Info("relay stopped")
}
