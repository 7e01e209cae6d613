package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

func NewPurgeTask(p PurgePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurge, b), nil
}

func NewExpireOutputTask(p ExpireOutputPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpireOutput, b), nil
}

func NewAbortStaleTask(p AbortStalePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAbortStale, b), nil
}

// Enqueuer is the subset of *asynq.Client used by Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client schedules housekeeping from the bot.
type Client struct {
	q Enqueuer
}

func NewClient(q Enqueuer) *Client {
	return &Client{q: q}
}

// Purge deletes source objects of a finished or abandoned session.
func (c *Client) Purge(ctx context.Context, user int64, keys []string, reason string) error {
	if len(keys) == 0 {
		return nil
	}
	t, err := NewPurgeTask(PurgePayload{UserID: user, Keys: keys, Reason: reason})
	if err != nil {
		return err
	}
	_, err = c.q.EnqueueContext(ctx, t, asynq.MaxRetry(5))
	return err
}

// ExpireOutput deletes a merged output once retention has passed.
func (c *Client) ExpireOutput(ctx context.Context, user int64, key string, retention time.Duration) error {
	t, err := NewExpireOutputTask(ExpireOutputPayload{UserID: user, Key: key})
	if err != nil {
		return err
	}
	_, err = c.q.EnqueueContext(ctx, t, asynq.ProcessIn(retention), asynq.MaxRetry(10))
	return err
}
