// Package delivery hands a merged object to the user: a (shortened) link
// first, then the file itself through the best channel that accepts it.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maruthi2426/merge-bot/internal/logx"
	"github.com/maruthi2426/merge-bot/internal/metrics"
)

const DefaultFileName = "merged.mkv"

var (
	// ErrTooLarge indicates the object exceeds the direct upload limit.
	ErrTooLarge = errors.New("file exceeds the direct upload limit")
	// ErrMissingOutput indicates the merged object is not in the bucket.
	ErrMissingOutput = errors.New("merged object not found")
)

type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	// SendDocumentURL asks the chat service to fetch url itself.
	SendDocumentURL(ctx context.Context, chatID int64, url, filename string) error
}

// LargeSender uploads files above the direct limit through another channel.
type LargeSender interface {
	SendDocument(ctx context.Context, chatID int64, url, filename string) error
}

// Objects reads the stored output.
type Objects interface {
	Stat(ctx context.Context, key string) (size int64, exists bool, err error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Shortener interface {
	Shorten(ctx context.Context, token, long string) (string, error)
}

// TokenSource yields the shortener token for a user; "" means no shortening.
type TokenSource interface {
	ShortenerToken(ctx context.Context, user int64) string
}

type Config struct {
	LinkTTL     time.Duration
	DirectLimit int64 // bytes; 0 disables the check
	FileName    string
}

type Request struct {
	UserID int64
	ChatID int64
	Key    string
	Size   int64
}

// Report records what each stage did. Stage errors never undo earlier stages.
type Report struct {
	URL        string
	Link       string // what the user was sent, short or not
	LinkSent   bool
	DirectSent bool
	LargeSent  bool
	ShortErr   error
	LinkErr    error
	DirectErr  error
	LargeErr   error
}

// Delivered reports whether the file itself reached the user.
func (r Report) Delivered() bool { return r.DirectSent || r.LargeSent }

type Deliverer struct {
	msg     Messenger
	large   LargeSender // nil when not configured
	objects Objects
	short   Shortener
	tokens  TokenSource
	cfg     Config
	metrics *metrics.Metrics
}

func New(msg Messenger, large LargeSender, objects Objects, short Shortener, tokens TokenSource, cfg Config, m *metrics.Metrics) *Deliverer {
	if cfg.FileName == "" {
		cfg.FileName = DefaultFileName
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = time.Hour
	}
	return &Deliverer{msg: msg, large: large, objects: objects, short: short, tokens: tokens, cfg: cfg, metrics: m}
}

// Deliver runs every stage. It fails only when no link could be produced.
// The stored object's size takes precedence over req.Size.
func (d *Deliverer) Deliver(ctx context.Context, req Request) (Report, error) {
	lg := logx.FromCtx(ctx)
	var rep Report

	size, exists, err := d.objects.Stat(ctx, req.Key)
	switch {
	case err != nil:
		lg.Warn().Err(err).Int64("bytes", req.Size).Msg("stat output failed, using reported size")
	case !exists:
		d.metrics.Delivery("stat", ErrMissingOutput)
		return rep, fmt.Errorf("%w: %s", ErrMissingOutput, req.Key)
	default:
		req.Size = size
	}

	u, err := d.objects.PresignGet(ctx, req.Key, d.cfg.LinkTTL)
	d.metrics.Delivery("presign", err)
	if err != nil {
		return rep, fmt.Errorf("presign output: %w", err)
	}
	rep.URL, rep.Link = u, u

	if d.short != nil && d.tokens != nil {
		if token := d.tokens.ShortenerToken(ctx, req.UserID); token != "" {
			s, err := d.short.Shorten(ctx, token, u)
			d.metrics.Delivery("shorten", err)
			if err != nil {
				rep.ShortErr = err
				lg.Warn().Err(err).Msg("shorten failed, sending raw link")
			} else {
				rep.Link = s
			}
		}
	}

	rep.LinkErr = d.msg.SendText(ctx, req.ChatID, "Your file is ready:\n"+rep.Link)
	rep.LinkSent = rep.LinkErr == nil
	d.metrics.Delivery("link", rep.LinkErr)
	if rep.LinkErr != nil {
		lg.Warn().Err(rep.LinkErr).Msg("send link failed")
	}

	if d.cfg.DirectLimit > 0 && req.Size > d.cfg.DirectLimit {
		rep.DirectErr = fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, req.Size, d.cfg.DirectLimit)
	} else {
		rep.DirectErr = d.msg.SendDocumentURL(ctx, req.ChatID, u, d.cfg.FileName)
		d.metrics.Delivery("document", rep.DirectErr)
	}
	if rep.DirectErr == nil {
		rep.DirectSent = true
		return rep, nil
	}
	lg.Info().Err(rep.DirectErr).Int64("bytes", req.Size).Msg("direct upload skipped or failed")

	if d.large == nil {
		d.notify(ctx, req.ChatID, "Upload via bot failed (possibly too large). Use the link above.")
		return rep, nil
	}
	rep.LargeErr = d.large.SendDocument(ctx, req.ChatID, u, d.cfg.FileName)
	d.metrics.Delivery("large", rep.LargeErr)
	if rep.LargeErr != nil {
		lg.Warn().Err(rep.LargeErr).Msg("large-file upload failed")
		d.notify(ctx, req.ChatID, fmt.Sprintf("Could not upload via the large-file uploader: %v. Use the link above.", rep.LargeErr))
		return rep, nil
	}
	rep.LargeSent = true
	d.notify(ctx, req.ChatID, "Sent via the large-file uploader.")
	return rep, nil
}

func (d *Deliverer) notify(ctx context.Context, chatID int64, text string) {
	if err := d.msg.SendText(ctx, chatID, text); err != nil {
		lg := logx.FromCtx(ctx)
		lg.Warn().Err(err).Msg("send notice failed")
	}
}
