// Package queue runs device work in submission order on a single
// goroutine per device.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/born-ml/volconv/internal/logger"
	"github.com/google/uuid"
)

// ErrClosed is returned when work is submitted to a closed queue.
var ErrClosed = errors.New("queue: closed")

// DefaultDepth is the number of tasks that may wait before Enqueue blocks.
const DefaultDepth = 1024

// Task is one unit of enqueued work.
type Task struct {
	ID   uuid.UUID
	Name string

	fn   func(ctx context.Context) error
	done chan struct{}
	err  error
}

// Done is closed once the task has run.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task's error. Only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task has run or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queue executes tasks one at a time, in the order they were enqueued.
type Queue struct {
	name string
	log  logger.Logger

	mu     sync.Mutex
	closed bool
	tasks  chan *Task

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New starts a queue. depth <= 0 selects DefaultDepth.
func New(name string, log logger.Logger, depth int) *Queue {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:    name,
		log:     log.With("queue", name),
		tasks:   make(chan *Task, depth),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go q.worker()
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue submits fn and returns immediately.
func (q *Queue) Enqueue(name string, fn func(ctx context.Context) error) (*Task, error) {
	t := &Task{
		ID:   uuid.New(),
		Name: name,
		fn:   fn,
		done: make(chan struct{}),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	q.tasks <- t
	return t, nil
}

// Run enqueues fn and waits for it.
func (q *Queue) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	t, err := q.Enqueue(name, fn)
	if err != nil {
		return err
	}
	return t.Wait(ctx)
}

// Sync waits until every task enqueued before the call has run.
func (q *Queue) Sync(ctx context.Context) error {
	return q.Run(ctx, "sync", func(context.Context) error { return nil })
}

// Close stops accepting work, lets queued tasks finish and stops the worker.
// It is safe to call more than once.
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	<-q.stopped
	q.cancel()
	return nil
}

func (q *Queue) worker() {
	defer close(q.stopped)
	for t := range q.tasks {
		q.execute(t)
	}
}

func (q *Queue) execute(t *Task) {
	start := time.Now()
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("queue %s: task %q panicked: %v", q.name, t.Name, r)
			q.log.Error("task panicked", "task", t.Name, "id", t.ID, "panic", r)
		}
	}()

	t.err = t.fn(q.ctx)
	if t.err != nil {
		q.log.Error("task failed", "task", t.Name, "id", t.ID, "error", t.err)
		return
	}
	q.log.Debug("task done", "task", t.Name, "id", t.ID, "elapsed", time.Since(start))
}
