// Package main はPDFジョブを処理するワーカーのエントリーポイントです。
package main

import (
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quickpdf/internal/config"
	"github.com/yourusername/quickpdf/internal/jobs"
	"github.com/yourusername/quickpdf/internal/logger"
	"github.com/yourusername/quickpdf/internal/pdf"
	"github.com/yourusername/quickpdf/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	redisOpt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		log.Fatalf("Invalid QUEUE_REDIS_URL: %v", err)
	}

	store, err := jobs.NewStore(cfg.JobsDir)
	if err != nil {
		log.Fatalf("Failed to open job store: %v", err)
	}
	artifacts, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to open upload folder: %v", err)
	}

	executor, err := jobs.NewExecutor(jobs.ExecutorOptions{
		Store:         store,
		Artifacts:     artifacts,
		Library:       pdf.NewPDFCPU(),
		Limits:        jobs.LimitsFromConfig(cfg),
		CleanupInputs: cfg.CleanupInputs,
		Logger:        log,
	})
	if err != nil {
		log.Fatalf("Failed to create executor: %v", err)
	}
	sweeper := jobs.NewSweeper(store, artifacts, cfg.JobTTL(), log)

	manager, err := jobs.NewManager(redisOpt, jobs.ManagerOptionsFromConfig(cfg), executor, sweeper, log)
	if err != nil {
		log.Fatalf("Failed to create worker: %v", err)
	}

	log.WithFields(logrus.Fields{
		"queue":       cfg.QueueName,
		"concurrency": cfg.WorkerConcurrency,
		"sweep_cron":  cfg.SweepCron,
	}).Info("Starting worker")
	// Run は SIGTERM/SIGINT を受けるまで戻らない
	if err := manager.Run(); err != nil {
		log.Fatalf("Worker stopped: %v", err)
	}
}
