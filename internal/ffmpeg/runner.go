package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maruthi2426/merge-bot/internal/logx"
	"github.com/maruthi2426/merge-bot/internal/merge"
)

const (
	DefaultReadChunk    = 512 << 10
	DefaultQueueDepth   = 8
	DefaultStderrLimit  = 800
	DefaultMergeTimeout = 2 * time.Hour
)

// ProcessError is returned when the merge process does not exit cleanly.
type ProcessError struct {
	ExitCode int    // -1 when killed or never reaped
	Stderr   string // bounded preview
	Err      error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("merge process failed (exit %d)", e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ProcessError) Unwrap() []error {
	if e.Err == nil {
		return []error{merge.ErrMergeProcessFailed}
	}
	return []error{merge.ErrMergeProcessFailed, e.Err}
}

// Runner starts merge processes.
type Runner struct {
	Timeout     time.Duration
	ReadChunk   int
	QueueDepth  int
	StderrLimit int
}

func NewRunner(timeout time.Duration) *Runner {
	return &Runner{
		Timeout:     timeout,
		ReadChunk:   DefaultReadChunk,
		QueueDepth:  DefaultQueueDepth,
		StderrLimit: DefaultStderrLimit,
	}
}

// Process is a started merge. Call Wait exactly once, concurrently with
// reading Output.
type Process struct {
	cmd        *exec.Cmd
	ctx        context.Context
	cancel     context.CancelFunc
	stdout     io.ReadCloser
	queue      *chunkQueue
	preview    *headBuffer
	stderrDone chan struct{}
	readChunk  int
	log        zerolog.Logger
}

// Start launches cmd. The process is killed when ctx ends or the runner
// timeout elapses.
func (r *Runner) Start(ctx context.Context, c Command) (*Process, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultMergeTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)

	cmd := exec.CommandContext(pctx, c.Binary, c.Args...)
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	lg := logx.FromCtx(ctx)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &ProcessError{ExitCode: -1, Err: fmt.Errorf("start %s: %w", c.Binary, err)}
	}
	lg.Info().Int("pid", cmd.Process.Pid).Str("cmd", c.String()).Msg("merge process started")

	readChunk := r.ReadChunk
	if readChunk <= 0 {
		readChunk = DefaultReadChunk
	}
	limit := r.StderrLimit
	if limit <= 0 {
		limit = DefaultStderrLimit
	}

	p := &Process{
		cmd:        cmd,
		ctx:        pctx,
		cancel:     cancel,
		stdout:     stdout,
		queue:      newChunkQueue(r.QueueDepth),
		preview:    &headBuffer{max: limit},
		stderrDone: make(chan struct{}),
		readChunk:  readChunk,
		log:        lg,
	}

	lw := logx.NewLineWriter(lg, map[string]string{"stream": "ffmpeg"}, zerolog.WarnLevel)
	go func() {
		defer close(p.stderrDone)
		lw.Pipe(io.TeeReader(stderr, p.preview))
	}()
	return p, nil
}

// Output is the container bytes in order. It returns io.EOF after a clean
// exit and the process error otherwise.
func (p *Process) Output() io.Reader { return p.queue }

// Stderr returns the bounded stderr preview collected so far.
func (p *Process) Stderr() string { return p.preview.String() }

// Kill stops the process early.
func (p *Process) Kill() { p.cancel() }

// Wait pumps stdout into Output until the process closes it, then reaps
// the process. Any failure is a *ProcessError and also poisons Output.
func (p *Process) Wait() (err error) {
	defer p.cancel()
	defer func() { p.queue.close(err) }()

	var pumpErr error
	for {
		buf := make([]byte, p.readChunk)
		n, rerr := p.stdout.Read(buf)
		if n > 0 {
			if serr := p.queue.send(p.ctx, buf[:n]); serr != nil {
				pumpErr = serr
				break
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				pumpErr = rerr
			}
			break
		}
	}
	if pumpErr != nil {
		p.cancel()
	}

	<-p.stderrDone
	werr := p.cmd.Wait()

	if werr == nil && pumpErr == nil {
		p.log.Info().Msg("merge process exited")
		return nil
	}

	pe := &ProcessError{ExitCode: -1, Stderr: p.Stderr()}
	var ee *exec.ExitError
	if errors.As(werr, &ee) {
		pe.ExitCode = ee.ExitCode()
	}
	switch {
	case errors.Is(p.ctx.Err(), context.DeadlineExceeded):
		pe.Err = fmt.Errorf("timed out: %w", context.DeadlineExceeded)
	case p.ctx.Err() != nil:
		pe.Err = p.ctx.Err()
	case werr != nil:
		pe.Err = werr
	default:
		pe.Err = pumpErr
	}
	p.log.Warn().Int("exit_code", pe.ExitCode).Str("stderr", pe.Stderr).Err(pe.Err).Msg("merge process failed")
	return pe
}
