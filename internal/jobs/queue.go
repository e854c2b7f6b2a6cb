package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeProcess はPDF操作ジョブのタスク種別です。
	TaskTypeProcess = "pdf:process"
	// TaskTypeSweep は期限切れジョブ掃除のタスク種別です。
	TaskTypeSweep = "jobs:sweep"
)

// ErrDuplicateEnqueue は同じジョブIDが既に投入済みの場合に返されます。
var ErrDuplicateEnqueue = errors.New("job already enqueued")

// Queue はジョブIDをワーカーへ少なくとも1回届けるキューです。
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
}

// TaskPayload はPDF操作ジョブのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// QueueOptions は投入時のオプションです。
type QueueOptions struct {
	Queue    string
	Timeout  time.Duration
	MaxRetry int
}

// AsynqQueue は Asynq クライアントによる Queue 実装です。
type AsynqQueue struct {
	client *asynq.Client
	opts   QueueOptions
}

// NewAsynqQueue は Redis 接続情報から AsynqQueue を作成します。
func NewAsynqQueue(redisOpt asynq.RedisConnOpt, opts QueueOptions) *AsynqQueue {
	if opts.Queue == "" {
		opts.Queue = "pdf"
	}
	return &AsynqQueue{
		client: asynq.NewClient(redisOpt),
		opts:   opts,
	}
}

// Enqueue はジョブIDをタスクIDとして投入します。同じIDの二重投入は ErrDuplicateEnqueue になります。
func (q *AsynqQueue) Enqueue(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	body, err := json.Marshal(&TaskPayload{JobID: jobID})
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(q.opts.Queue),
		asynq.TaskID(jobID),
		asynq.MaxRetry(q.opts.MaxRetry),
	}
	if q.opts.Timeout > 0 {
		opts = append(opts, asynq.Timeout(q.opts.Timeout))
	}

	task := asynq.NewTask(TaskTypeProcess, body)
	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return fmt.Errorf("%w: %s", ErrDuplicateEnqueue, jobID)
		}
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Close はクライアントを閉じます。
func (q *AsynqQueue) Close() error {
	return q.client.Close()
}
