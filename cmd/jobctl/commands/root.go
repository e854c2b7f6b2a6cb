// Package commands は jobctl のサブコマンドを定義します。
package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/quickpdf/internal/config"
	"github.com/yourusername/quickpdf/internal/jobs"
	"github.com/yourusername/quickpdf/internal/logger"
	"github.com/yourusername/quickpdf/internal/storage"
)

// flag names
const (
	flagJobsDir   = "jobs-dir"
	flagUploadDir = "upload-dir"
)

// env はコマンド実行時に組み立てる依存関係です。
type env struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   *jobs.Store
	sweeper *jobs.Sweeper
}

// NewRootCmd は jobctl のルートコマンドを作成します。
func NewRootCmd() *cobra.Command {
	e := &env{}
	var jobsDir, uploadDir string

	root := &cobra.Command{
		Use:           "jobctl",
		Short:         "Inspect and clean up PDF jobs",
		Long:          `jobctl はジョブレコードの一覧・参照と、期限切れジョブの掃除を行います。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// フラグ > 環境変数 > デフォルト
			if cmd.Flags().Changed(flagJobsDir) {
				cfg.JobsDir = jobsDir
			}
			if cmd.Flags().Changed(flagUploadDir) {
				cfg.UploadDir = uploadDir
			}
			return e.init(cfg, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&jobsDir, flagJobsDir, "", "Job record directory (env: JOBS_DIR)")
	root.PersistentFlags().StringVar(&uploadDir, flagUploadDir, "", "Artifact directory (env: UPLOAD_FOLDER)")

	root.AddCommand(newSweepCmd(e))
	root.AddCommand(newInspectCmd(e))
	root.AddCommand(newListCmd(e))
	return root
}

// Execute はルートコマンドを実行します。
func Execute() error {
	return NewRootCmd().Execute()
}

func (e *env) init(cfg *config.Config, logOut io.Writer) error {
	store, err := jobs.NewStore(cfg.JobsDir)
	if err != nil {
		return err
	}
	artifacts, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.log = logger.NewWithOutput(logOut, cfg.LogLevel, cfg.LogFormat)
	e.store = store
	e.sweeper = jobs.NewSweeper(store, artifacts, cfg.JobTTL(), e.log)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("error formatting output: %w", err)
	}
	return nil
}
