package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/sealed-log/pkg/sealedlog"
	"github.com/tendant/sealed-log/pkg/sealedlog/api"
	"github.com/tendant/sealed-log/pkg/sealedlog/config"
	"github.com/tendant/sealed-log/pkg/sealedlog/metrics"
)

func main() {
	issueToken := flag.String("issue-token", "", "Print a caller token for the given identity and exit")
	envHelp := flag.Bool("env-help", false, "List the supported environment variables and exit")
	flag.Parse()

	// Load environment variables from .env file
	if err := godotenv.Load(".env"); err != nil {
		slog.Debug("No .env file loaded", "err", err)
	}

	if *envHelp {
		desc, err := config.EnvDescription()
		if err != nil {
			slog.Error("Failed to describe environment", "err", err)
			os.Exit(1)
		}
		fmt.Println(desc)
		return
	}

	serverConfig, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(serverConfig))

	if serverConfig.JWTSecret == "" {
		serverConfig.JWTSecret = "dev-secret"
		slog.Warn("JWT_SECRET not set, using an insecure development secret")
	}
	tokenAuth := api.NewTokenAuth(serverConfig.JWTSecret)

	if *issueToken != "" {
		token, err := api.IssueToken(tokenAuth, sealedlog.Identity(*issueToken))
		if err != nil {
			slog.Error("Failed to issue token", "err", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(serverConfig, tokenAuth); err != nil {
		slog.Error("Server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.ServerConfig) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
}

func run(serverConfig *config.ServerConfig, tokenAuth *jwtauth.JWTAuth) error {
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsSink, err := metrics.New(registry, serverConfig.ClassifierProfile)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	svc, cleanup, err := serverConfig.BuildService(ctx,
		sealedlog.WithEventSink(metricsSink),
		sealedlog.WithLogger(slog.Default()),
	)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer cleanup()

	handler := api.NewHandler(svc, tokenAuth)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)
	r.Get("/health", handler.Health)

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	if serverConfig.MetricsAPIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{"metrics": serverConfig.MetricsAPIKeySHA256},
		})
		if err != nil {
			return fmt.Errorf("failed to initialize API key middleware: %w", err)
		}
		metricsHandler = apiKeyMiddleware(metricsHandler)
	}
	r.Handle("/metrics", metricsHandler)

	r.Mount("/api/v1", handler.Routes())

	httpServer := &http.Server{
		Addr:              ":" + serverConfig.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sealed-log server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.Storage.Type,
			"profile", svc.Profile())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return <-errCh
}
