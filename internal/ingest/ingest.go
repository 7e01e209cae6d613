// Package ingest copies a user's submitted file from the chat transport
// into object storage without buffering it whole.
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/maruthi2426/merge-bot/internal/logx"
	"github.com/maruthi2426/merge-bot/internal/merge"
	"github.com/maruthi2426/merge-bot/internal/metrics"
	"github.com/maruthi2426/merge-bot/internal/storage"
)

// Source opens a transport file reference for streaming.
type Source interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader) (storage.Object, error)
}

type Ingester struct {
	src      Source
	uploader Uploader
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// New returns an ingester. timeout bounds one whole copy; 0 disables it.
func New(src Source, uploader Uploader, timeout time.Duration, m *metrics.Metrics) *Ingester {
	return &Ingester{src: src, uploader: uploader, timeout: timeout, metrics: m}
}

// Ingest streams ref into <user>/<ulid><ext> and returns the stored object.
// No partial object remains on failure.
func (i *Ingester) Ingest(ctx context.Context, user int64, ref, name string) (obj storage.Object, err error) {
	defer func() { i.metrics.Ingest(err) }()
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	rc, err := i.src.Open(ctx, ref)
	if err != nil {
		return storage.Object{}, fmt.Errorf("%w: open %s: %w", merge.ErrIngestFailed, name, err)
	}
	defer rc.Close()

	key := storage.SourceKey(user, name)
	obj, err = i.uploader.Upload(ctx, key, rc)
	if err != nil {
		return storage.Object{}, fmt.Errorf("%w: %s: %w", merge.ErrIngestFailed, name, err)
	}
	lg := logx.FromCtx(ctx)
	lg.Info().Str("key", key).Str("name", name).Int64("bytes", obj.Size).Msg("source ingested")
	return obj, nil
}
