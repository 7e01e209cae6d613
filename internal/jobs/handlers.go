package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/maruthi2426/merge-bot/internal/metrics"
	"github.com/maruthi2426/merge-bot/internal/storage"
)

// Store is the part of *storage.Bucket the handlers need.
type Store interface {
	DeleteKeys(ctx context.Context, keys []string) error
	AbortStaleUploads(ctx context.Context, prefix string, olderThan time.Duration) (int, error)
}

type Handlers struct {
	store   Store
	metrics *metrics.Metrics
}

func NewHandlers(store Store, m *metrics.Metrics) *Handlers {
	return &Handlers{store: store, metrics: m}
}

// Register binds every housekeeping task type on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskPurge, h.HandlePurge)
	mux.HandleFunc(TaskExpireOutput, h.HandleExpireOutput)
	mux.HandleFunc(TaskAbortStale, h.HandleAbortStale)
}

func (h *Handlers) HandlePurge(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { h.metrics.Job(TaskPurge, err) }()

	var p PurgePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("purge payload: %v: %w", err, asynq.SkipRetry)
	}
	keys := ownedKeys(p.UserID, p.Keys)
	if len(keys) != len(p.Keys) {
		log.Warn().Int64("user_id", p.UserID).Int("dropped", len(p.Keys)-len(keys)).Msg("purge: ignoring keys outside user prefix")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := h.store.DeleteKeys(ctx, keys); err != nil {
		return err
	}
	log.Info().Int64("user_id", p.UserID).Int("keys", len(keys)).Str("reason", p.Reason).Msg("sources purged")
	return nil
}

func (h *Handlers) HandleExpireOutput(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { h.metrics.Job(TaskExpireOutput, err) }()

	var p ExpireOutputPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("expire payload: %v: %w", err, asynq.SkipRetry)
	}
	keys := ownedKeys(p.UserID, []string{p.Key})
	if len(keys) == 0 {
		return fmt.Errorf("expire: key %q outside user %d: %w", p.Key, p.UserID, asynq.SkipRetry)
	}
	if err := h.store.DeleteKeys(ctx, keys); err != nil {
		return err
	}
	log.Info().Int64("user_id", p.UserID).Str("key", p.Key).Msg("output expired")
	return nil
}

func (h *Handlers) HandleAbortStale(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { h.metrics.Job(TaskAbortStale, err) }()

	var p AbortStalePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("abort-stale payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.OlderThanSec <= 0 {
		return fmt.Errorf("abort-stale: non-positive age %d: %w", p.OlderThanSec, asynq.SkipRetry)
	}
	n, err := h.store.AbortStaleUploads(ctx, p.Prefix, time.Duration(p.OlderThanSec)*time.Second)
	if err != nil {
		return err
	}
	log.Info().Int("aborted", n).Str("prefix", p.Prefix).Msg("stale uploads aborted")
	return nil
}

// ownedKeys keeps the non-empty keys that live under the user's prefix.
func ownedKeys(user int64, keys []string) []string {
	prefix := storage.UserPrefix(user)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" && strings.HasPrefix(k, prefix) && !strings.Contains(k, "..") {
			out = append(out, k)
		}
	}
	return out
}
