package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quickpdf/internal/storage"
)

// Sweeper は期限切れジョブのレコードと成果物をまとめて削除します。
type Sweeper struct {
	store     *Store
	artifacts *storage.Local
	ttl       time.Duration
	logger    logrus.FieldLogger
	now       func() time.Time
}

// SweepReport は1回の掃除の結果です。
type SweepReport struct {
	Scanned int `json:"scanned"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// NewSweeper は Sweeper を作成します。
func NewSweeper(store *Store, artifacts *storage.Local, ttl time.Duration, logger logrus.FieldLogger) *Sweeper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{
		store:     store,
		artifacts: artifacts,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Expired はレコードが有効期限を過ぎているかを返します。
func (s *Sweeper) Expired(record *Record) bool {
	return record.Expired(s.now(), s.ttl)
}

// Purge は成果物と残った入力を削除し、その後でレコードを削除します。
// 成果物の削除に失敗した場合はレコードを残し、次回の掃除で再試行させます。
func (s *Sweeper) Purge(ctx context.Context, record *Record) error {
	entry := s.logger.WithField("job_id", record.JobID)

	if record.OutputFilename != "" {
		if err := s.artifacts.Remove(record.OutputFilename); err != nil && !errors.Is(err, storage.ErrInvalidName) {
			entry.WithError(err).Warn("failed to remove expired output; keeping record for retry")
			return fmt.Errorf("remove output of job %s: %w", record.JobID, err)
		}
	}
	for _, name := range record.InputFilenames {
		if err := s.artifacts.Remove(name); err != nil {
			entry.WithError(err).WithField("input", name).Warn("failed to remove leftover input")
		}
	}
	if err := s.store.Delete(ctx, record.JobID); err != nil {
		entry.WithError(err).Warn("failed to remove expired job record")
		return err
	}
	entry.Debug("expired job removed")
	return nil
}

// Sweep はストア全体を走査して期限切れのジョブを削除します。
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	ids, err := s.store.List(ctx)
	if err != nil {
		return report, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		record, err := s.store.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.WithError(err).WithField("job_id", id).Warn("skipping unreadable job record")
				report.Failed++
			}
			continue
		}
		if !s.Expired(record) {
			continue
		}
		if err := s.Purge(ctx, record); err != nil {
			report.Failed++
			continue
		}
		report.Removed++
	}

	s.logger.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"removed": report.Removed,
		"failed":  report.Failed,
	}).Info("job sweep finished")
	return report, nil
}
