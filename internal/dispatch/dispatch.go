// Package dispatch runs work for one key strictly in submission order while
// different keys proceed in parallel.
package dispatch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Task is one unit of work for a key.
type Task func(ctx context.Context)

type lane struct {
	queue []Task
}

// Dispatcher starts one goroutine per busy key. The goroutine exits when the
// key's queue drains and is started again on the next submission.
type Dispatcher struct {
	ctx   context.Context
	mu    sync.Mutex
	lanes map[int64]*lane
	wg    sync.WaitGroup
}

// New returns a dispatcher whose tasks receive ctx.
func New(ctx context.Context) *Dispatcher {
	return &Dispatcher{ctx: ctx, lanes: make(map[int64]*lane)}
}

// Submit queues t behind any pending work for key.
func (d *Dispatcher) Submit(key int64, t Task) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if l, ok := d.lanes[key]; ok {
		l.queue = append(l.queue, t)
		return
	}
	l := &lane{queue: []Task{t}}
	d.lanes[key] = l
	d.wg.Add(1)
	go d.run(key, l)
}

func (d *Dispatcher) run(key int64, l *lane) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			delete(d.lanes, key)
			d.mu.Unlock()
			return
		}
		t := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		d.mu.Unlock()

		d.safe(key, t)
	}
}

func (d *Dispatcher) safe(key int64, t Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int64("user_id", key).Interface("panic", r).Msg("dispatch: task panicked")
		}
	}()
	t(d.ctx)
}

// pending returns the number of queued tasks for key, excluding a running one.
func (d *Dispatcher) pending(key int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.lanes[key]; ok {
		return len(l.queue)
	}
	return 0
}

// Wait blocks until every submitted task has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
