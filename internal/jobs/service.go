// Package jobs は非同期PDFジョブの受付・実行・状態照会・ダウンロードを提供します。
package jobs

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quickpdf/internal/pdf"
	"github.com/yourusername/quickpdf/internal/storage"
)

const downloadTokenBytes = 32

// ServiceOptions は Service の依存関係です。
type ServiceOptions struct {
	Store     *Store
	Artifacts *storage.Local
	Counter   pdf.PageCounter
	Queue     Queue
	Sweeper   *Sweeper
	Limits    pdf.Limits
	Logger    logrus.FieldLogger
}

// Service はジョブの受付（Submit）と照会（Status / OpenDownload）を担います。
type Service struct {
	store     *Store
	artifacts *storage.Local
	counter   pdf.PageCounter
	queue     Queue
	sweeper   *Sweeper
	limits    pdf.Limits
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewService は Service を初期化します。
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("artifacts is nil")
	}
	if opts.Counter == nil {
		return nil, errors.New("page counter is nil")
	}
	if opts.Queue == nil {
		return nil, errors.New("queue is nil")
	}
	if opts.Sweeper == nil {
		return nil, errors.New("sweeper is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:     opts.Store,
		artifacts: opts.Artifacts,
		counter:   opts.Counter,
		queue:     opts.Queue,
		sweeper:   opts.Sweeper,
		limits:    opts.Limits,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// SubmitRequest はジョブ作成リクエストです。
type SubmitRequest struct {
	Operation  string
	Pages      string
	OutputName string
	Files      []*multipart.FileHeader
}

// SubmitResult は作成されたジョブIDと、一度だけ返すダウンロードトークンです。
type SubmitResult struct {
	JobID         string `json:"job_id"`
	DownloadToken string `json:"download_token"`
}

// Submit は入力を検証・保存し、queued のレコードを作成してキューに投入します。
// 失敗した場合は保存済みの入力とレコードを残しません。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	kind, err := pdf.ParseOperation(req.Operation)
	if err != nil {
		return nil, validationError(err)
	}
	pages, err := pdf.ParsePages(req.Pages)
	if err != nil {
		return nil, validationError(err)
	}
	op, err := pdf.NewOperation(kind, pages)
	if err != nil {
		return nil, validationError(err)
	}
	if err := s.limits.CheckSelection(op); err != nil {
		return nil, validationError(err)
	}
	downloadName, err := pdf.CleanOutputName(req.OutputName)
	if err != nil {
		return nil, validationError(err)
	}

	files := nonEmptyFiles(req.Files)
	var saved []string
	if kind == pdf.OperationMerge {
		saved, err = s.saveMergeInputs(files)
	} else {
		saved, err = s.saveSingleInput(files, op)
	}
	if err != nil {
		return nil, err
	}

	jobID := newJobID()
	token, tokenHash, err := newDownloadToken()
	if err != nil {
		s.discardInputs(jobID, saved)
		return nil, newError(KindInternal, "TOKEN_GENERATION_FAILED", "ダウンロードトークンの生成に失敗しました。", err)
	}

	now := s.now().UTC()
	record := &Record{
		JobID:              jobID,
		Status:             StatusQueued,
		Operation:          kind,
		InputFilenames:     saved,
		OutputFilename:     jobID + "_" + downloadName,
		OutputDownloadName: downloadName,
		Pages:              pages,
		DownloadTokenHash:  tokenHash,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Put(ctx, record); err != nil {
		s.discardInputs(jobID, saved)
		return nil, newError(KindInternal, "JOB_SAVE_FAILED", "ジョブの保存に失敗しました。", err)
	}

	entry := s.logger.WithFields(logrus.Fields{"job_id": jobID, "operation": kind})
	if err := s.queue.Enqueue(ctx, jobID); err != nil {
		entry.WithError(err).Error("failed to enqueue job")
		s.discardInputs(jobID, saved)
		if delErr := s.store.Delete(context.WithoutCancel(ctx), jobID); delErr != nil {
			entry.WithError(delErr).Warn("failed to remove job record after enqueue failure")
		}
		return nil, newError(KindUnavailable, "QUEUE_UNAVAILABLE", "キューが利用できません。しばらくしてから再度お試しください。", err)
	}

	entry.WithField("inputs", len(saved)).Info("job queued")
	return &SubmitResult{JobID: jobID, DownloadToken: token}, nil
}

func (s *Service) saveMergeInputs(files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, newError(KindValidation, pdf.CodeInvalidInput, "結合するPDFファイルを選択してください。", nil)
	}
	if err := s.limits.CheckFileCount(len(files)); err != nil {
		return nil, validationError(err)
	}

	tally := s.limits.NewMergeTally()
	saved := make([]string, 0, len(files))
	for i, fh := range files {
		name, err := s.saveInput(fh, func(pageCount int) error {
			return tally.Add(pageCount)
		})
		if err != nil {
			s.discardInputs("", saved)
			verr := validationError(err)
			var apiErr *Error
			if errors.As(verr, &apiErr) && apiErr.Kind == KindValidation {
				apiErr.Details = map[string]any{
					"invalid_file":  fh.Filename,
					"invalid_index": i,
				}
			}
			return nil, verr
		}
		saved = append(saved, name)
	}
	return saved, nil
}

func (s *Service) saveSingleInput(files []*multipart.FileHeader, op pdf.Operation) ([]string, error) {
	if len(files) == 0 {
		return nil, newError(KindValidation, pdf.CodeInvalidInput, "PDFファイルを選択してください。", nil)
	}
	name, err := s.saveInput(files[0], func(pageCount int) error {
		return s.limits.CheckDocument(op, pageCount)
	})
	if err != nil {
		return nil, validationError(err)
	}
	return []string{name}, nil
}

// saveInput はアップロードを検査し、check が通った場合だけ衝突しない名前で保存します。
func (s *Service) saveInput(fh *multipart.FileHeader, check func(pageCount int) error) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", newError(KindValidation, pdf.CodeInvalidPDF, "アップロードを読み取れませんでした。", err)
	}
	defer src.Close()

	pageCount, err := pdf.Inspect(src, s.counter)
	if err != nil {
		return "", err
	}
	if err := check(pageCount); err != nil {
		return "", err
	}

	name := storage.NewName("pdf")
	if _, err := s.artifacts.Save(name, src); err != nil {
		return "", newError(KindInternal, "UPLOAD_SAVE_FAILED", "アップロードの保存に失敗しました。", err)
	}
	return name, nil
}

func (s *Service) discardInputs(jobID string, names []string) {
	for _, name := range names {
		if err := s.artifacts.Remove(name); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{"job_id": jobID, "input": name}).Warn("failed to remove saved input")
		}
	}
}

// Status はジョブの公開情報を返します。期限切れの場合はレコードと成果物を削除して NotFound を返します。
func (s *Service) Status(ctx context.Context, jobID string) (*View, error) {
	record, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return record.View(), nil
}

// Download はダウンロード対象のファイルです。呼び出し側で File を閉じてください。
type Download struct {
	JobID string
	Name  string
	Size  int64
	File  *os.File
}

// OpenDownload はトークンを検証し、成果物を開いてダウンロード回数を記録します。
// 有効なトークンであれば期限まで何度でもダウンロードできます。
func (s *Service) OpenDownload(ctx context.Context, jobID, token string) (*Download, error) {
	record, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, newError(KindForbidden, "DOWNLOAD_TOKEN_MISSING", "ダウンロードトークンが指定されていません。", nil)
	}
	if !tokenMatches(token, record.DownloadTokenHash) {
		return nil, newError(KindForbidden, "DOWNLOAD_TOKEN_INVALID", "ダウンロードトークンが正しくありません。", nil)
	}
	if record.Status != StatusDone {
		return nil, newError(KindConflict, "JOB_NOT_READY", "ジョブはまだ完了していません。", nil)
	}

	file, err := s.artifacts.Open(record.OutputFilename)
	if err != nil {
		return nil, newError(KindNotFound, "JOB_RESULT_NOT_FOUND", "ジョブの成果物が見つかりませんでした。", err)
	}
	info, err := file.Stat()
	if err != nil || !info.Mode().IsRegular() {
		file.Close()
		return nil, newError(KindNotFound, "JOB_RESULT_NOT_FOUND", "ジョブの成果物が見つかりませんでした。", err)
	}

	if _, err := s.store.Update(ctx, jobID, func(r *Record) error {
		now := s.now().UTC()
		r.Downloads++
		r.DownloadedAt = &now
		return nil
	}); err != nil {
		s.logger.WithError(err).WithField("job_id", jobID).Warn("failed to record download")
	}

	name := record.OutputDownloadName
	if name == "" {
		name = record.OutputFilename
	}
	return &Download{
		JobID: jobID,
		Name:  name,
		Size:  info.Size(),
		File:  file,
	}, nil
}

func (s *Service) load(ctx context.Context, jobID string) (*Record, error) {
	record, err := s.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(KindNotFound, "JOB_NOT_FOUND", "指定されたジョブは存在しません。", nil)
		}
		return nil, newError(KindInternal, "INTERNAL_ERROR", "ジョブ情報の取得に失敗しました。", err)
	}
	if s.sweeper.Expired(record) {
		_ = s.sweeper.Purge(ctx, record)
		return nil, newError(KindNotFound, "JOB_EXPIRED", "ジョブの有効期限が切れました。", nil)
	}
	return record, nil
}

// validationError は pdf.Error を検証エラーとして包みます。既に *Error の場合はそのまま返します。
func validationError(err error) error {
	var jobErr *Error
	if errors.As(err, &jobErr) {
		return jobErr
	}
	var apiErr *pdf.Error
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindValidation, Code: apiErr.Code, Message: apiErr.Message, Err: apiErr.Err}
	}
	return newError(KindInternal, "INTERNAL_ERROR", "サーバー内部でエラーが発生しました。", err)
}

func nonEmptyFiles(files []*multipart.FileHeader) []*multipart.FileHeader {
	out := make([]*multipart.FileHeader, 0, len(files))
	for _, f := range files {
		if f != nil && f.Filename != "" {
			out = append(out, f)
		}
	}
	return out
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newDownloadToken は生のトークンと、その SHA-256 ハッシュを返します。保存するのはハッシュだけです。
func newDownloadToken() (string, string, error) {
	buf := make([]byte, downloadTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func tokenMatches(token, expectedHash string) bool {
	if expectedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashToken(token)), []byte(expectedHash)) == 1
}
