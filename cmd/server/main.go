package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcoot/dicefunnel/internal/api"
	"github.com/mcoot/dicefunnel/internal/config"
	"github.com/mcoot/dicefunnel/internal/factory"
)

func main() {
	// Load configuration from file and environment
	settings, err := config.Load(os.Getenv("DICEFUNNEL_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: settings.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Create application factory
	app, err := factory.New(context.Background(), factory.Config{
		Settings: settings,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if !settings.Loyalty.Enabled() {
		logger.Warn("loyalty platform not configured, rewards use local codes")
	}

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Clock:       app.Clock,
		Controller:  app.Controller,
		Events:      app.Events,
		Hub:         app.Hub,
		AdminAPIKey: settings.Admin.APIKey,
	})

	// Create server
	server := api.NewServer(router, settings.Server, logger)
	// Dashboard streams never finish on their own
	server.OnShutdown(app.Hub.Close)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started", slog.String("addr", server.Addr()))

	// Wait for shutdown or error
	exitCode := 0
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	// Let in-flight SMS, tagging and credit work finish
	if !app.Dispatcher.WaitTimeout(settings.Server.ShutdownTimeout) {
		logger.Warn("background tasks still running at exit")
	}
	if err := app.Close(); err != nil {
		logger.Error("close error", slog.String("error", err.Error()))
		exitCode = 1
	}

	logger.Info("server stopped")
	os.Exit(exitCode)
}
