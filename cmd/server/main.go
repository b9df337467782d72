package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls-thumbnailer/internal/fetch"
	"hls-thumbnailer/internal/ffmpeg"
	"hls-thumbnailer/internal/orchestrator"
	"hls-thumbnailer/internal/platform/config"
	"hls-thumbnailer/internal/platform/logger"
	"hls-thumbnailer/internal/platform/metrics"
	"hls-thumbnailer/internal/platform/tracing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	cfg, err := config.Parse()
	if err != nil {
		logger.New("error", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	shutdownTracing, err := tracing.Init(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	fetcher := fetch.NewHTTPFetcher(nil, log, cfg.FetchUserAgent, cfg.FetchTimeout)
	engine := ffmpeg.NewEngine(ffmpeg.Config{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		WorkDir:     cfg.WorkDir,
		Quality:     cfg.FrameQuality,
	}, log)
	orch := orchestrator.New(fetcher, engine, engine, orchestrator.Options{
		TargetCount: cfg.FrameCount,
		FrameWidth:  cfg.FrameWidth,
		Log:         log,
		Metrics:     met,
	})

	repo := orchestrator.NewInMemoryRepository(cfg.RetainJobs)
	svc := orchestrator.NewService(repo, orch, log)
	h := orchestrator.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler().ServeHTTP)
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"frame_count", cfg.FrameCount,
		"frame_width", cfg.FrameWidth,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	if err := svc.Shutdown(ctx); err != nil {
		log.Error("job did not stop in time", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Error("tracing shutdown error", "error", err)
	}

	log.Info("server stopped")
}
