package jobs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RemovesExpiredJobsWithArtifacts(t *testing.T) {
	env := newTestEnv(t)

	old := env.processed(t, SubmitRequest{
		Operation: "keep",
		Pages:     "1",
		Files:     fileHeaders(t, pdfUpload("a.pdf", 2)),
	})
	oldRecord, err := env.store.Get(context.Background(), old.JobID)
	require.NoError(t, err)

	// 作成時刻を過去にずらして期限切れにする
	_, err = env.store.Update(context.Background(), old.JobID, func(r *Record) error {
		r.CreatedAt = r.CreatedAt.Add(-2 * testTTL)
		return nil
	})
	require.NoError(t, err)

	fresh, err := env.service.Submit(context.Background(), SubmitRequest{
		Operation: "keep",
		Pages:     "1",
		Files:     fileHeaders(t, pdfUpload("b.pdf", 2)),
	})
	require.NoError(t, err)

	report, err := env.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Scanned: 2, Removed: 1}, report)

	assert.False(t, env.store.Exists(context.Background(), old.JobID))
	assert.False(t, env.artifacts.Exists(oldRecord.OutputFilename))
	assert.True(t, env.store.Exists(context.Background(), fresh.JobID))
}

func TestSweeper_KeepsRecordWhenOutputCannotBeRemoved(t *testing.T) {
	env := newTestEnv(t)
	res := env.processed(t, SubmitRequest{
		Operation: "keep",
		Pages:     "1",
		Files:     fileHeaders(t, pdfUpload("a.pdf", 2)),
	})
	record, err := env.store.Get(context.Background(), res.JobID)
	require.NoError(t, err)

	// 成果物の位置にディレクトリ（中身あり）を置くと削除できない
	out, err := env.artifacts.Path(record.OutputFilename)
	require.NoError(t, err)
	require.NoError(t, os.Remove(out))
	require.NoError(t, os.MkdirAll(out+"/nested", 0o755))

	env.sweeper.now = func() time.Time { return time.Now().Add(2 * testTTL) }

	report, err := env.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, env.store.Exists(context.Background(), res.JobID), "record is kept so the next sweep retries")
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.processed(t, SubmitRequest{
		Operation: "keep",
		Pages:     "1",
		Files:     fileHeaders(t, pdfUpload("a.pdf", 2)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.sweeper.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
