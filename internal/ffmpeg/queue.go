package ffmpeg

import (
	"context"
	"io"
	"sync"
)

// chunkQueue carries stdout chunks from the pump to a single reader.
// Only the pump sends and closes.
type chunkQueue struct {
	ch   chan []byte
	once sync.Once
	err  error // set before ch is closed
	cur  []byte
}

func newChunkQueue(depth int) *chunkQueue {
	if depth <= 0 {
		depth = 1
	}
	return &chunkQueue{ch: make(chan []byte, depth)}
}

// send blocks while the queue is full. It fails only when ctx ends.
func (q *chunkQueue) send(ctx context.Context, b []byte) error {
	select {
	case q.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close ends the stream. A nil err reads as io.EOF.
func (q *chunkQueue) close(err error) {
	q.once.Do(func() {
		if err == nil {
			err = io.EOF
		}
		q.err = err
		close(q.ch)
	})
}

func (q *chunkQueue) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(q.cur) == 0 {
		b, ok := <-q.ch
		if !ok {
			return 0, q.err
		}
		q.cur = b
	}
	n := copy(p, q.cur)
	q.cur = q.cur[n:]
	return n, nil
}

// headBuffer keeps the first max bytes written to it.
type headBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (h *headBuffer) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room := h.max - len(h.buf); room > 0 {
		h.buf = append(h.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (h *headBuffer) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return string(h.buf)
}
