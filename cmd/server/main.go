package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/tikgrabba/internal/api"
	"github.com/iconidentify/tikgrabba/internal/api/handler"
	"github.com/iconidentify/tikgrabba/internal/config"
	"github.com/iconidentify/tikgrabba/internal/downloader"
	"github.com/iconidentify/tikgrabba/internal/repository"
	"github.com/iconidentify/tikgrabba/internal/service"
	"github.com/iconidentify/tikgrabba/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tikgrabba-server %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tikgrabba server",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Server.Validate(); err != nil {
		logger.Error("invalid server config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Storage.OutputPath, 0755); err != nil {
		logger.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	jobRepo := repository.NewInMemoryJobRepository()

	var history repository.HistoryRepository
	if cfg.History.Enabled {
		h, err := repository.NewSQLiteHistoryRepository(cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history database", "path", cfg.History.Path, "error", err)
			os.Exit(1)
		}
		defer h.Close()
		history = h
	}

	fetcher := downloader.NewHTTPFetcher(cfg.Download, cfg.Storage.Overwrite, logger)

	resolveSvc, err := service.NewResolveService(
		service.Config{
			Resolver: cfg.Resolver,
			Storage:  cfg.Storage,
			Worker:   cfg.Worker,
		},
		fetcher,
		jobRepo,
		history,
		logger,
	)
	if err != nil {
		logger.Error("failed to create resolve service", "error", err)
		os.Exit(1)
	}

	resolveHandler := handler.NewResolveHandler(resolveSvc, logger)
	healthHandler := handler.NewHealthHandler(jobRepo, cfg.Storage.OutputPath)

	router := api.NewRouter(resolveHandler, healthHandler, cfg.Server.APIKey, logger)

	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		jobRepo,
		resolveSvc,
		logger,
	)
	pool.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "flavor", resolveSvc.DefaultFlavor())
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// In-flight jobs are allowed to finish.
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
