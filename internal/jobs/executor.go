package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quickpdf/internal/pdf"
	"github.com/yourusername/quickpdf/internal/storage"
)

// ExecutorOptions は Executor の依存関係です。
type ExecutorOptions struct {
	Store         *Store
	Artifacts     *storage.Local
	Library       pdf.Library
	Limits        pdf.Limits
	CleanupInputs bool
	Logger        logrus.FieldLogger
}

// Executor はキューから受け取ったジョブを実行します。
//
// キューは少なくとも1回の配送なので、受付時の検証結果は信用せず、
// ページ数・選択範囲・保存名をここで必ず再検証します。
type Executor struct {
	store         *Store
	artifacts     *storage.Local
	lib           pdf.Library
	limits        pdf.Limits
	cleanupInputs bool
	logger        logrus.FieldLogger
	now           func() time.Time
}

// NewExecutor は Executor を初期化します。
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("artifacts is nil")
	}
	if opts.Library == nil {
		return nil, errors.New("library is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Executor{
		store:         opts.Store,
		artifacts:     opts.Artifacts,
		lib:           opts.Library,
		limits:        opts.Limits,
		cleanupInputs: opts.CleanupInputs,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Process はジョブを processing にしてから変換を実行し、done か error で終えます。
// レコードが無い場合は ErrRecordMissing、状態が読めない場合は ErrRecordCorrupt を返します。
// 終了済みのジョブは何もせず nil を返します。
func (e *Executor) Process(ctx context.Context, jobID string) error {
	entry := e.logger.WithField("job_id", jobID)

	record, err := e.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRecordMissing, jobID)
		}
		return err
	}
	if record.Status.Terminal() {
		entry.WithField("status", record.Status).Info("job already finished; ignoring redelivery")
		return nil
	}
	if !record.Status.Known() {
		return e.failCorrupt(ctx, entry, record)
	}

	record, err = e.store.Update(ctx, jobID, func(r *Record) error {
		return r.Advance(StatusProcessing, "", e.now().UTC())
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// 別の配送が先に終えた
			entry.WithError(err).Info("job finished by another delivery")
			return nil
		}
		return fmt.Errorf("mark job %s processing: %w", jobID, err)
	}
	entry = entry.WithField("operation", record.Operation)
	entry.Info("job processing")

	defer e.removeInputs(entry, record)

	start := e.now()
	runErr := e.run(ctx, record)
	next, message := StatusDone, ""
	if runErr != nil {
		next, message = StatusError, failureMessage(runErr)
	}

	_, err = e.store.Update(context.WithoutCancel(ctx), jobID, func(r *Record) error {
		if r.Status.Terminal() {
			return errFinishedElsewhere
		}
		return r.Advance(next, message, e.now().UTC())
	})
	switch {
	case errors.Is(err, errFinishedElsewhere):
		// 同じジョブの別の配送が先に確定させた結果はそのまま残す
		entry.WithError(runErr).Info("job finished by another delivery; discarding this attempt")
		return nil
	case err != nil && runErr != nil:
		entry.WithError(err).Error("failed to record job failure")
	case err != nil:
		return fmt.Errorf("mark job %s done: %w", jobID, err)
	}

	if runErr != nil {
		entry.WithError(runErr).Error("job failed")
		return fmt.Errorf("job %s failed: %w", jobID, runErr)
	}
	entry.WithField("elapsed", e.now().Sub(start).String()).Info("job done")
	return nil
}

// failCorrupt は状態が読めないレコードを error にして、再試行しないエラーを返します。
func (e *Executor) failCorrupt(ctx context.Context, entry logrus.FieldLogger, record *Record) error {
	entry = entry.WithField("status", record.Status)
	message := fmt.Sprintf("ジョブの状態が不正です: %q", record.Status)
	if _, err := e.store.Update(context.WithoutCancel(ctx), record.JobID, func(r *Record) error {
		return r.Advance(StatusError, message, e.now().UTC())
	}); err != nil {
		entry.WithError(err).Error("failed to record job failure")
	}
	e.removeInputs(entry, record)
	entry.Error("job record has unknown status")
	return fmt.Errorf("%w: %s has status %q", ErrRecordCorrupt, record.JobID, record.Status)
}

// run は検証と変換を行います。出力は一時名で書き、成功した場合だけ正式な名前に置き換えます。
// 失敗時に消すのはこの試行の一時ファイルだけで、確定済みの出力には触れません。
func (e *Executor) run(ctx context.Context, record *Record) error {
	op, err := pdf.NewOperation(record.Operation, record.Pages)
	if err != nil {
		return err
	}
	if record.OutputFilename == "" {
		return errors.New("output_filename がありません。")
	}
	if len(record.InputFilenames) == 0 {
		return errors.New("input_filenames がありません。")
	}
	if err := e.limits.CheckSelection(op); err != nil {
		return err
	}

	outPath, err := e.artifacts.Path(record.OutputFilename)
	if err != nil {
		return err
	}
	inputs := record.InputFilenames
	if _, ok := op.(pdf.MergeOp); ok {
		if err := e.limits.CheckFileCount(len(inputs)); err != nil {
			return err
		}
	} else {
		inputs = inputs[:1]
	}
	inPaths := make([]string, len(inputs))
	for i, name := range inputs {
		if inPaths[i], err = e.artifacts.Path(name); err != nil {
			return err
		}
	}

	if err := e.validateInputs(op, inPaths); err != nil {
		return err
	}

	// 配送ごとに別の一時ファイルに書くので、重なった配送が互いの出力を壊さない
	tmpPath, err := e.artifacts.TempPath(record.OutputFilename)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- e.apply(op, inPaths, tmpPath)
	}()

	select {
	case err := <-done:
		if err != nil {
			_ = os.Remove(tmpPath)
			return err
		}
	case <-ctx.Done():
		// 変換は中断できないため、終わった時点で一時ファイルを片付ける
		go func() {
			<-done
			_ = os.Remove(tmpPath)
		}()
		return fmt.Errorf("ジョブがタイムアウトしました: %w", ctx.Err())
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("出力ファイルの保存に失敗しました: %w", err)
	}
	return nil
}

func (e *Executor) validateInputs(op pdf.Operation, inPaths []string) error {
	if _, ok := op.(pdf.MergeOp); ok {
		tally := e.limits.NewMergeTally()
		for _, p := range inPaths {
			n, err := e.pageCount(p)
			if err != nil {
				return err
			}
			if err := tally.Add(n); err != nil {
				return err
			}
		}
		return nil
	}

	n, err := e.pageCount(inPaths[0])
	if err != nil {
		return err
	}
	return e.limits.CheckDocument(op, n)
}

func (e *Executor) pageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("入力ファイルを開けませんでした: %w", err)
	}
	defer f.Close()
	n, err := e.lib.PageCount(f)
	if err != nil {
		return 0, fmt.Errorf("ページ数を取得できませんでした: %w", err)
	}
	return n, nil
}

func (e *Executor) apply(op pdf.Operation, inPaths []string, outPath string) error {
	switch o := op.(type) {
	case pdf.SwapOp:
		return e.lib.Swap(inPaths[0], outPath, o.First, o.Second)
	case pdf.KeepOp:
		return e.lib.Keep(inPaths[0], outPath, o.Selected)
	case pdf.RemoveOp:
		return e.lib.Remove(inPaths[0], outPath, o.Selected)
	case pdf.MergeOp:
		return e.lib.Merge(inPaths, outPath)
	default:
		return fmt.Errorf("unsupported operation: %s", op.Kind())
	}
}

// removeInputs は成否にかかわらず入力を削除します。失敗してもログに残すだけです。
func (e *Executor) removeInputs(entry logrus.FieldLogger, record *Record) {
	if !e.cleanupInputs {
		return
	}
	for _, name := range record.InputFilenames {
		if err := e.artifacts.Remove(name); err != nil {
			entry.WithError(err).WithField("input", name).Warn("failed to remove input")
		}
	}
}

func failureMessage(err error) string {
	var apiErr *pdf.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "ワーカーでの処理に失敗しました。"
}
