package jobs

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/quickpdf/internal/logger"
	"github.com/yourusername/quickpdf/internal/pdf"
	"github.com/yourusername/quickpdf/internal/pdf/pdftest"
	"github.com/yourusername/quickpdf/internal/storage"
)

var testLimits = pdf.Limits{
	MaxPDFPages:        20,
	MaxMergeFiles:      3,
	MaxMergeTotalPages: 10,
	MaxOperationPages:  5,
}

const testTTL = time.Hour

// fakeQueue は投入されたジョブIDを記録します。err を設定すると投入に失敗します。
type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) Enqueue(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, jobID)
	return nil
}

func (q *fakeQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

var errQueueDown = errors.New("redis: connection refused")

type testEnv struct {
	store     *Store
	artifacts *storage.Local
	queue     *fakeQueue
	sweeper   *Sweeper
	service   *Service
	executor  *Executor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	artifacts, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	log := logger.Discard()
	lib := pdf.NewPDFCPU()
	queue := &fakeQueue{}
	sweeper := NewSweeper(store, artifacts, testTTL, log)

	service, err := NewService(ServiceOptions{
		Store:     store,
		Artifacts: artifacts,
		Counter:   lib,
		Queue:     queue,
		Sweeper:   sweeper,
		Limits:    testLimits,
		Logger:    log,
	})
	require.NoError(t, err)

	executor, err := NewExecutor(ExecutorOptions{
		Store:         store,
		Artifacts:     artifacts,
		Library:       lib,
		Limits:        testLimits,
		CleanupInputs: true,
		Logger:        log,
	})
	require.NoError(t, err)

	return &testEnv{
		store:     store,
		artifacts: artifacts,
		queue:     queue,
		sweeper:   sweeper,
		service:   service,
		executor:  executor,
	}
}

// artifactNames は保存済みアーティファクトの一覧です。
func (e *testEnv) artifactNames(t *testing.T) []string {
	t.Helper()
	names, err := e.artifacts.List()
	require.NoError(t, err)
	return names
}

func (e *testEnv) jobIDs(t *testing.T) []string {
	t.Helper()
	ids, err := e.store.List(context.Background())
	require.NoError(t, err)
	return ids
}

// processed は Submit してから処理まで済ませたジョブを作ります。
func (e *testEnv) processed(t *testing.T, req SubmitRequest) *SubmitResult {
	t.Helper()
	res, err := e.service.Submit(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, e.executor.Process(context.Background(), res.JobID))
	return res
}

type upload struct {
	name string
	data []byte
}

func pdfUpload(name string, pages int) upload {
	return upload{name: name, data: pdftest.Build(pages)}
}

// fileHeaders は multipart フォームを組み立てて解析し、file フィールドのヘッダーを返します。
func fileHeaders(t *testing.T, uploads ...upload) []*multipart.FileHeader {
	t.Helper()
	if len(uploads) == 0 {
		return nil
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, u := range uploads {
		part, err := w.CreateFormFile("file", u.name)
		require.NoError(t, err)
		_, err = part.Write(u.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"]
}

// jobError は err から *Error を取り出します。
func jobError(t *testing.T, err error) *Error {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e), "expected *jobs.Error, got %T: %v", err, err)
	return e
}
