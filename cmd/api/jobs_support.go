package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quickpdf/internal/config"
	"github.com/yourusername/quickpdf/internal/jobs"
	"github.com/yourusername/quickpdf/internal/pdf"
	"github.com/yourusername/quickpdf/internal/ratelimit"
	"github.com/yourusername/quickpdf/internal/storage"
)

// jobsDeps は API プロセスが持つジョブ関連の依存関係です。
type jobsDeps struct {
	service *jobs.Service
	queue   *jobs.AsynqQueue
	limiter *ratelimit.Limiter
	redis   *redis.Client
}

func (d *jobsDeps) Close() {
	if d.queue != nil {
		_ = d.queue.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
}

func setupJobs(cfg *config.Config, log *logrus.Logger) (*jobsDeps, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse QUEUE_REDIS_URL: %w", err)
	}
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse QUEUE_REDIS_URL: %w", err)
	}

	store, err := jobs.NewStore(cfg.JobsDir)
	if err != nil {
		return nil, err
	}
	artifacts, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	queue := jobs.NewAsynqQueue(redisOpt, jobs.QueueOptionsFromConfig(cfg))
	sweeper := jobs.NewSweeper(store, artifacts, cfg.JobTTL(), log)

	service, err := jobs.NewService(jobs.ServiceOptions{
		Store:     store,
		Artifacts: artifacts,
		Counter:   pdf.NewPDFCPU(),
		Queue:     queue,
		Sweeper:   sweeper,
		Limits:    jobs.LimitsFromConfig(cfg),
		Logger:    log,
	})
	if err != nil {
		_ = queue.Close()
		_ = redisClient.Close()
		return nil, err
	}

	limiter := ratelimit.New(redisClient, ratelimit.Options{
		Timeout: cfg.RateLimitBackendTimeout(),
		Logger:  log,
	})

	return &jobsDeps{
		service: service,
		queue:   queue,
		limiter: limiter,
		redis:   redisClient,
	}, nil
}

// rateLimitRules はルートごとの制限です。ウィンドウは共通です。
func rateLimitRules(cfg *config.Config) (post, poll, download ratelimit.Rule) {
	window := cfg.RateLimitWindow()
	post = ratelimit.Rule{Key: "jobs_post", Limit: cfg.RateLimitJobsPerWindow, Window: window}
	poll = ratelimit.Rule{Key: "jobs_get", Limit: cfg.RateLimitPollPerWindow, Window: window}
	download = ratelimit.Rule{Key: "jobs_download", Limit: cfg.RateLimitDownloadPerWindow, Window: window}
	return post, poll, download
}

// limitRequestBody はリクエストボディを上限で打ち切ります。超過は multipart 解析時に検出されます。
func limitRequestBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			if c.Request.ContentLength > limit {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
					"code":    "UPLOAD_TOO_LARGE",
					"message": fmt.Sprintf("アップロードサイズが上限（%dバイト）を超えています。", limit),
				})
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
