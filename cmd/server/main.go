package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"dubqueue/internal/api"
	"dubqueue/internal/backend"
	"dubqueue/internal/config"
	"dubqueue/internal/observer"
	"dubqueue/internal/pipeline"
	"dubqueue/internal/queue"
	"dubqueue/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	}

	feed := observer.NewFeed(observer.DefaultCapacity)
	feed.Append("[SYSTEM] dubqueue batch engine ready")
	feed.Append("[SYSTEM] awaiting media ingestion")

	q, err := queue.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, feed)
	if err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer q.Close()
	logrus.Info("Connected to Redis")

	sims := backend.NewSimulated(backend.SimulatorConfig{
		Latency: cfg.Pipeline.StageLatency,
		Faults:  backend.NewRandomFaults(cfg.Pipeline.FailureProbability, time.Now().UnixNano()),
	})

	runner := pipeline.NewRunner(q, feed, pipeline.Backends{
		Extractor:   sims.Extractor,
		Transcriber: sims.Transcriber,
		Translator:  sims.Translator,
		Synthesizer: sims.Synthesizer,
		Muxer:       sims.Muxer,
	}, pipeline.Options{
		TargetLanguage: cfg.Pipeline.TargetLanguage,
		Voice:          cfg.Pipeline.Voice,
	})

	sched, err := scheduler.New(q, runner, feed, scheduler.Settings{
		ParallelLimit: cfg.Scheduler.ParallelLimit,
		MaxRetries:    cfg.Scheduler.MaxRetries,
	})
	if err != nil {
		logrus.Fatalf("Invalid scheduler settings: %v", err)
	}

	handler := api.NewHandler(q, sched, feed)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logrus.Infof("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Warnf("Server shutdown error: %v", err)
	}

	logrus.Info("Server stopped")
}
