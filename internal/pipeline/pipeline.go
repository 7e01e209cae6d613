// Package pipeline runs one merge: presign the inputs, start the merge
// process and stream its output into a multipart upload.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maruthi2426/merge-bot/internal/ffmpeg"
	"github.com/maruthi2426/merge-bot/internal/logx"
	"github.com/maruthi2426/merge-bot/internal/merge"
	"github.com/maruthi2426/merge-bot/internal/metrics"
	"github.com/maruthi2426/merge-bot/internal/session"
	"github.com/maruthi2426/merge-bot/internal/storage"
)

// Process is a running merge whose output is read while Wait pumps it.
type Process interface {
	Output() io.Reader
	Wait() error
}

// LaunchFunc starts a merge process.
type LaunchFunc func(ctx context.Context, c ffmpeg.Command) (Process, error)

// FromRunner adapts an ffmpeg runner.
func FromRunner(r *ffmpeg.Runner) LaunchFunc {
	return func(ctx context.Context, c ffmpeg.Command) (Process, error) {
		p, err := r.Start(ctx, c)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader) (storage.Object, error)
}

// Authorizer decides whether a user may merge right now.
type Authorizer interface {
	Authorized(ctx context.Context, user int64) (bool, error)
}

type Config struct {
	PresignTTL time.Duration
}

// Result describes a merged output.
type Result struct {
	MergeID   string
	Operation merge.Operation
	Object    storage.Object
	Elapsed   time.Duration
}

type Pipeline struct {
	auth     Authorizer
	presign  Presigner
	builder  *ffmpeg.Builder
	launch   LaunchFunc
	uploader Uploader
	cfg      Config
	metrics  *metrics.Metrics
}

func New(auth Authorizer, presign Presigner, builder *ffmpeg.Builder, launch LaunchFunc, uploader Uploader, cfg Config, m *metrics.Metrics) *Pipeline {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 3 * time.Hour
	}
	return &Pipeline{
		auth:     auth,
		presign:  presign,
		builder:  builder,
		launch:   launch,
		uploader: uploader,
		cfg:      cfg,
		metrics:  m,
	}
}

// Inputs presigns every file of the snapshot in order.
func (p *Pipeline) Inputs(ctx context.Context, files []session.File) ([]ffmpeg.Input, error) {
	inputs := make([]ffmpeg.Input, 0, len(files))
	for _, f := range files {
		u, err := p.presign.PresignGet(ctx, f.Key, p.cfg.PresignTTL)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, ffmpeg.Input{URL: u, Name: f.Name})
	}
	return inputs, nil
}

// Run merges the snapshot into <user>/out/<ulid>.mkv. It returns only after
// the process has been reaped and the upload completed or aborted.
func (p *Pipeline) Run(ctx context.Context, snap session.Snapshot) (res Result, err error) {
	mergeID := uuid.NewString()
	ctx = logx.WithMerge(logx.WithUser(ctx, snap.UserID), mergeID)
	lg := logx.FromCtx(ctx)
	res = Result{MergeID: mergeID, Operation: snap.Operation}

	if err := snap.Operation.ValidateCount(len(snap.Files)); err != nil {
		return res, err
	}
	if p.auth != nil {
		ok, err := p.auth.Authorized(ctx, snap.UserID)
		if err != nil {
			return res, fmt.Errorf("check authorization: %w", err)
		}
		if !ok {
			return res, merge.ErrNotAuthorized
		}
	}

	inputs, err := p.Inputs(ctx, snap.Files)
	if err != nil {
		return res, fmt.Errorf("presign inputs: %w", err)
	}
	cmd, err := p.builder.Build(snap.Operation, inputs)
	if err != nil {
		return res, err
	}

	done := p.metrics.MergeStarted(snap.Operation.String())
	defer func() { done(err) }()

	start := time.Now()
	key := storage.OutputKey(snap.UserID)
	lg.Info().Str("operation", snap.Operation.String()).Int("inputs", len(inputs)).Str("key", key).Msg("merge started")

	g, gctx := errgroup.WithContext(ctx)
	proc, err := p.launch(gctx, cmd)
	if err != nil {
		_ = g.Wait()
		if !errors.Is(err, merge.ErrMergeProcessFailed) {
			err = fmt.Errorf("%w: %w", merge.ErrMergeProcessFailed, err)
		}
		return res, err
	}

	var obj storage.Object
	g.Go(proc.Wait)
	g.Go(func() error {
		var uerr error
		obj, uerr = p.uploader.Upload(gctx, key, proc.Output())
		return uerr
	})
	if err = g.Wait(); err != nil {
		err = classify(err)
		lg.Warn().Err(err).Msg("merge failed")
		return res, err
	}

	res.Object = obj
	res.Elapsed = time.Since(start)
	lg.Info().Str("key", obj.Key).Int64("bytes", obj.Size).Dur("elapsed", res.Elapsed).Msg("merge finished")
	return res, nil
}

// classify makes a process failure win over the upload abort it caused.
func classify(err error) error {
	var pe *ffmpeg.ProcessError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, merge.ErrUploadFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", merge.ErrUploadFailed, err)
}
