package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "audiostream/metasearch/internal/api/http"
	"audiostream/metasearch/internal/app"
	"audiostream/metasearch/internal/imagecache"
	"audiostream/metasearch/internal/metrics"
	"audiostream/metasearch/internal/progress"
	"audiostream/metasearch/internal/quality"
	"audiostream/metasearch/internal/search"
	"audiostream/metasearch/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv())
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", telemetry.ServiceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("amazonEndpoint", cfg.AmazonEndpoint),
		slog.String("audibleEndpoint", cfg.AudibleEndpoint),
		slog.String("metadataRegion", cfg.MetadataRegion),
		slog.Bool("amazonEnabled", cfg.Settings.AmazonEnabled),
		slog.Bool("audibleEnabled", cfg.Settings.AudibleEnabled),
		slog.Bool("openLibraryEnabled", cfg.Settings.OpenLibraryEnabled),
		slog.Bool("hasRedis", cfg.RedisURL != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.String("imageCacheDir", cfg.ImageCacheDir),
		slog.Int("releaseIndexers", len(cfg.Indexers)),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := app.ConnectRedis(rootCtx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	catalog, err := app.LoadQualityCatalog(cfg, logger)
	if err != nil {
		logger.Error("quality profiles invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}

	images, err := imagecache.New(imagecache.Config{
		Dir:       cfg.ImageCacheDir,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		logger.Error("image cache unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	hub := progress.NewHub()
	defer hub.Close()

	searchOpts := append(app.SearchOptions(cfg, redisClient),
		search.WithImageCache(images),
		search.WithBroadcaster(hub),
	)
	searchService := search.NewService(cfg.RequestTimeout, searchOpts...)

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithProgress(hub),
		apihttp.WithImages(images),
		apihttp.WithQuality(quality.NewScorer(), catalog),
	}
	if finder := app.ReleaseFinder(cfg, catalog); finder != nil {
		serverOpts = append(serverOpts, apihttp.WithReleases(finder))
	}

	handler := apihttp.NewServer(searchService, serverOpts...).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Progress streams (/search/progress, /ws/progress) stay open for the
		// whole query, so there is no server-level write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("metadata search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	images.Wait()
	logger.Info("metadata search service stopped")
}
