package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeFirePost = "post:fire"
	AsynqQueueName   = "skyqueue"
)

type FirePostPayload struct {
	PostID string `json:"post_id"`
	Handle string `json:"handle"`
}

// AsynqAlarms stores alarms as delayed asynq tasks in Redis. The task id is
// the handle, so disarming is a delete by id.
type AsynqAlarms struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

func NewAsynqAlarms(redis asynq.RedisClientOpt) *AsynqAlarms {
	return &AsynqAlarms{
		client:    asynq.NewClient(redis),
		inspector: asynq.NewInspector(redis),
		queue:     AsynqQueueName,
	}
}

func (a *AsynqAlarms) Arm(ctx context.Context, h Handle, entryID string, at time.Time) error {
	taskPayload, err := json.Marshal(FirePostPayload{PostID: entryID, Handle: string(h)})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeFirePost, taskPayload)
	_, err = a.client.EnqueueContext(ctx, task,
		asynq.TaskID(string(h)),
		asynq.ProcessAt(at),
		asynq.Queue(a.queue),
		// retries are armed by the queue itself
		asynq.MaxRetry(0),
	)
	if err != nil {
		return err
	}

	slog.Info("alarm armed", "handle", h, "at", at.Format(time.RFC3339))
	return nil
}

func (a *AsynqAlarms) Disarm(_ context.Context, h Handle) error {
	err := a.inspector.DeleteTask(a.queue, string(h))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

func (a *AsynqAlarms) DisarmAll(context.Context) (int, error) {
	scheduled, err := a.inspector.DeleteAllScheduledTasks(a.queue)
	if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
		return 0, err
	}
	pending, err := a.inspector.DeleteAllPendingTasks(a.queue)
	if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
		return scheduled, err
	}
	return scheduled + pending, nil
}

func (a *AsynqAlarms) Close() error {
	if err := a.inspector.Close(); err != nil {
		slog.Info(err.Error())
	}
	return a.client.Close()
}

// HandleFirePostTask is the asynq handler for TaskTypeFirePost. It never
// returns a publish error: failures are re-armed by the queue, not retried
// by asynq.
func (q *Queue) HandleFirePostTask(ctx context.Context, task *asynq.Task) error {
	var payload FirePostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	q.HandleAlarm(ctx, payload.PostID, Handle(payload.Handle))
	return nil
}
