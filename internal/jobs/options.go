package jobs

import (
	"github.com/yourusername/quickpdf/internal/config"
	"github.com/yourusername/quickpdf/internal/pdf"
)

// LimitsFromConfig は設定からリソース上限を組み立てます。受付と実行で同じ値を使います。
func LimitsFromConfig(cfg *config.Config) pdf.Limits {
	return pdf.Limits{
		MaxPDFPages:        cfg.MaxPDFPages,
		MaxMergeFiles:      cfg.MaxMergeFiles,
		MaxMergeTotalPages: cfg.MaxMergeTotalPages,
		MaxOperationPages:  cfg.MaxOperationPages,
	}
}

// QueueOptionsFromConfig は投入オプションを設定から作ります。
func QueueOptionsFromConfig(cfg *config.Config) QueueOptions {
	return QueueOptions{
		Queue:    cfg.QueueName,
		Timeout:  cfg.JobTimeout(),
		MaxRetry: cfg.JobMaxRetry,
	}
}

// ManagerOptionsFromConfig はワーカーの設定を作ります。
func ManagerOptionsFromConfig(cfg *config.Config) ManagerOptions {
	return ManagerOptions{
		Queue:       cfg.QueueName,
		Concurrency: cfg.WorkerConcurrency,
		SweepCron:   cfg.SweepCron,
	}
}
