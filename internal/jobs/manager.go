package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// ManagerOptions はワーカープロセスの設定です。
type ManagerOptions struct {
	Queue       string
	Concurrency int
	// SweepCron が空でなければ Asynq Scheduler で定期的に掃除タスクを投入します。
	SweepCron string
}

// Manager はワーカー側の Asynq サーバーと定期掃除のスケジューラーをまとめます。
type Manager struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	executor  *Executor
	sweeper   *Sweeper
	logger    *logrus.Logger
}

// NewManager は Manager を初期化します。
func NewManager(redisOpt asynq.RedisConnOpt, opts ManagerOptions, executor *Executor, sweeper *Sweeper, logger *logrus.Logger) (*Manager, error) {
	if executor == nil {
		return nil, errors.New("executor is nil")
	}
	if sweeper == nil {
		return nil, errors.New("sweeper is nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Queue == "" {
		opts.Queue = "pdf"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	m := &Manager{
		mux:      asynq.NewServeMux(),
		executor: executor,
		sweeper:  sweeper,
		logger:   logger,
	}
	m.server = asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: opts.Concurrency,
			Queues: map[string]int{
				opts.Queue: 1,
			},
			Logger:       logger,
			ErrorHandler: asynq.ErrorHandlerFunc(m.logTaskError),
		},
	)
	m.mux.HandleFunc(TaskTypeProcess, m.handleProcessTask)
	m.mux.HandleFunc(TaskTypeSweep, m.handleSweepTask)

	if opts.SweepCron != "" {
		m.scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: logger})
		if _, err := m.scheduler.Register(opts.SweepCron, asynq.NewTask(TaskTypeSweep, nil), asynq.Queue(opts.Queue), asynq.MaxRetry(0)); err != nil {
			return nil, fmt.Errorf("register sweep schedule %q: %w", opts.SweepCron, err)
		}
	}
	return m, nil
}

// Run はスケジューラーを起動し、シグナルを受けるまでワーカーを実行します。
func (m *Manager) Run() error {
	if m.scheduler != nil {
		if err := m.scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer m.scheduler.Shutdown()
	}
	if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown はサーバーを停止します。
func (m *Manager) Shutdown() {
	m.server.Shutdown()
}

func (m *Manager) handleProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}

	err := m.executor.Process(ctx, payload.JobID)
	if errors.Is(err, ErrRecordMissing) || errors.Is(err, ErrRecordCorrupt) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

func (m *Manager) handleSweepTask(ctx context.Context, task *asynq.Task) error {
	_, err := m.sweeper.Sweep(ctx)
	return err
}

func (m *Manager) logTaskError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	taskID, _ := asynq.GetTaskID(ctx)
	m.logger.WithError(err).WithFields(logrus.Fields{
		"task_type": task.Type(),
		"task_id":   taskID,
		"retried":   retried,
		"max_retry": maxRetry,
	}).Error("task failed")
}
