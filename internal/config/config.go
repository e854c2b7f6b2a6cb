// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// minJobTTLSeconds はジョブ有効期限の下限（秒）です。
const minJobTTLSeconds = 60

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port           string // APIサーバーのポート番号
	GinMode        string // Ginの実行モード (debug, release, test)
	TrustedProxies string // クライアントIP解決に使う信頼済みプロキシ（カンマ区切り）

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、空なら全許可）

	// 保存先
	UploadDir string // 入力/出力ファイルの保存ディレクトリ
	JobsDir   string // ジョブレコードの保存ディレクトリ

	// ファイル制限
	MaxContentLength   int64 // リクエストボディの最大サイズ（バイト）
	MaxPDFPages        int   // 単一ファイルの最大ページ数
	MaxMergeFiles      int   // 結合できる最大ファイル数
	MaxMergeTotalPages int   // 結合後の最大ページ数
	MaxOperationPages  int   // keep/remove で指定できる最大ページ数

	// レート制限（固定ウィンドウ）
	RateLimitWindowSeconds     int
	RateLimitJobsPerWindow     int
	RateLimitPollPerWindow     int
	RateLimitDownloadPerWindow int
	RateLimitBackendTimeoutMS  int // Redis 呼び出しの待ち時間上限（超えたらメモリにフォールバック）

	// ジョブ/キュー設定
	QueueRedisURL     string // Asynq用Redis接続URL
	QueueName         string // Asynqキュー名
	JobTimeoutSeconds int    // 1ジョブあたりの実行タイムアウト
	JobMaxRetry       int    // Asynq の最大リトライ回数
	JobTTLSeconds     int    // ジョブの有効期限（秒）
	CleanupInputs     bool   // 実行後に入力ファイルを削除するか
	WorkerConcurrency int    // ワーカーの並列数
	SweepCron         string // 期限切れジョブ掃除のスケジュール（空なら無効）

	// ログ設定
	LogLevel  string
	LogFormat string
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		TrustedProxies: getEnv("TRUSTED_PROXIES", "127.0.0.1"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		// 保存先
		UploadDir: getEnv("UPLOAD_FOLDER", "uploads"),
		JobsDir:   getEnv("JOBS_DIR", "jobs"),

		// ファイル制限
		MaxContentLength:   getEnvAsInt64("MAX_CONTENT_LENGTH", 50*1024*1024), // 50MB
		MaxPDFPages:        getEnvAsInt("MAX_PDF_PAGES", 200),
		MaxMergeFiles:      getEnvAsInt("MAX_MERGE_FILES", 10),
		MaxMergeTotalPages: getEnvAsInt("MAX_MERGE_TOTAL_PAGES", 400),
		MaxOperationPages:  getEnvAsInt("MAX_OPERATION_PAGES", 50),

		// レート制限
		RateLimitWindowSeconds:     getEnvAsInt("RATE_LIMIT_WINDOW_S", 60),
		RateLimitJobsPerWindow:     getEnvAsInt("RATE_LIMIT_JOBS_PER_WINDOW", 20),
		RateLimitPollPerWindow:     getEnvAsInt("RATE_LIMIT_POLL_PER_WINDOW", 120),
		RateLimitDownloadPerWindow: getEnvAsInt("RATE_LIMIT_DOWNLOAD_PER_WINDOW", 60),
		RateLimitBackendTimeoutMS:  getEnvAsInt("RATE_LIMIT_BACKEND_TIMEOUT_MS", 200),

		// ジョブ/キュー設定
		QueueRedisURL:     getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		QueueName:         getEnv("QUEUE_NAME", "pdf"),
		JobTimeoutSeconds: getEnvAsInt("JOB_TIMEOUT_S", 180),
		JobMaxRetry:       getEnvAsInt("JOB_MAX_RETRY", 1),
		JobTTLSeconds:     getEnvAsInt("JOB_TTL_S", 3600),
		CleanupInputs:     getEnvAsBool("CLEANUP_INPUTS", true),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
		SweepCron:         getEnv("SWEEP_CRON", "@every 5m"),

		// ログ設定
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	limits := map[string]int{
		"MAX_PDF_PAGES":         c.MaxPDFPages,
		"MAX_MERGE_FILES":       c.MaxMergeFiles,
		"MAX_MERGE_TOTAL_PAGES": c.MaxMergeTotalPages,
		"MAX_OPERATION_PAGES":   c.MaxOperationPages,
		"RATE_LIMIT_WINDOW_S":   c.RateLimitWindowSeconds,
		"JOB_TIMEOUT_S":         c.JobTimeoutSeconds,
	}
	for name, v := range limits {
		if v <= 0 {
			return fmt.Errorf("%s must be positive (got %d)", name, v)
		}
	}
	if c.JobMaxRetry < 0 {
		return fmt.Errorf("JOB_MAX_RETRY must not be negative (got %d)", c.JobMaxRetry)
	}

	// 本番環境では保存先とキューの指定を必須にする
	if c.GinMode == "release" {
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_FOLDER is required in release mode")
		}
		if c.JobsDir == "" {
			return fmt.Errorf("JOBS_DIR is required in release mode")
		}
	}

	return nil
}

// JobTTL はジョブの有効期限を返します（60秒未満には設定できません）。
func (c *Config) JobTTL() time.Duration {
	ttl := c.JobTTLSeconds
	if ttl < minJobTTLSeconds {
		ttl = minJobTTLSeconds
	}
	return time.Duration(ttl) * time.Second
}

// JobTimeout はキューに渡す実行タイムアウトを返します。
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// RateLimitWindow は固定ウィンドウの長さを返します。
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// RateLimitBackendTimeout は Redis 呼び出し1回あたりの待ち時間上限を返します。
func (c *Config) RateLimitBackendTimeout() time.Duration {
	return time.Duration(c.RateLimitBackendTimeoutMS) * time.Millisecond
}

// SplitList はカンマ区切りの設定値を空要素を除いて分割します。
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は "0", "false", "no" を偽として扱います。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	switch strings.ToLower(valueStr) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
