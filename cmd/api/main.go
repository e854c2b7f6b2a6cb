// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quickpdf/internal/config"
	"github.com/yourusername/quickpdf/internal/jobs"
	"github.com/yourusername/quickpdf/internal/logger"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(gin.LoggerWithWriter(log.Writer()), gin.Recovery())

	// X-Forwarded-For は信頼済みプロキシから来た場合だけ使う
	if err := router.SetTrustedProxies(config.SplitList(cfg.TrustedProxies)); err != nil {
		log.Fatalf("Invalid TRUSTED_PROXIES: %v", err)
	}

	router.Use(cors.New(corsConfig(cfg)))

	deps, err := setupJobs(cfg, log)
	if err != nil {
		log.Fatalf("Failed to set up jobs: %v", err)
	}
	defer deps.Close()

	// ルーティングの設定
	setupRoutes(router, cfg, deps)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.WithFields(logrus.Fields{"addr": addr, "mode": cfg.GinMode}).Info("Starting API server")
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func corsConfig(cfg *config.Config) cors.Config {
	corsConfig := cors.DefaultConfig()
	if origins := config.SplitList(cfg.CORSAllowedOrigins); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		// 未設定なら全オリジンを許可（トークンで保護しているためクッキーは使わない）
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		jobs.DownloadTokenHeader,
	}
	// ダウンロード時のファイル名とジョブIDをフロントエンドから読めるように公開
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "X-Job-Id", "Retry-After"}
	return corsConfig
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "quickpdf-api",
	})
}

// setupRoutes は API グループとレート制限の配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, deps *jobsDeps) {
	router.GET("/health", handleHealth)

	postRule, pollRule, downloadRule := rateLimitRules(cfg)

	api := router.Group("/api")
	{
		api.GET("/health", handleHealth)

		// 旧来の同期アップロードは廃止
		api.POST("/upload", jobs.LegacyUploadHandler)

		jobRoutes := api.Group("/jobs")
		{
			jobRoutes.POST("",
				deps.limiter.Middleware(postRule),
				limitRequestBody(cfg.MaxContentLength),
				jobs.SubmitHandler(deps.service),
			)
			jobRoutes.GET("/:id",
				deps.limiter.Middleware(pollRule),
				jobs.StatusHandler(deps.service),
			)
			jobRoutes.GET("/:id/download",
				deps.limiter.Middleware(downloadRule),
				jobs.DownloadHandler(deps.service),
			)
		}
	}
}
