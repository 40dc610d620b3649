// Package jobs provides the in-process job runner: independently
// retryable work units dispatched onto separate named queues, each with
// its own bounded worker concurrency, so import backlog cannot starve
// search and vice versa.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/metrics"
)

var (
	// ErrDuplicate means an identical job is already within the dedup window
	ErrDuplicate = errors.New("duplicate job within dedup window")
	// ErrQueueFull means the queue buffer has no room for the job
	ErrQueueFull = errors.New("queue is full")
	// ErrUnknownQueue means no queue with the given name is registered
	ErrUnknownQueue = errors.New("unknown queue")
)

// Permanent wraps an error so the runner will not retry the job.
// Not-found conditions are fatal for a job instance, not retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Handler processes one job. Handlers must be safely re-entrant:
// rerunning after a crash must not duplicate side effects.
type Handler func(ctx context.Context, payload Payload) error

// QueueConfig describes one named queue
type QueueConfig struct {
	Name        string
	Workers     int
	Buffer      int
	MaxRetries  uint64
	DedupWindow time.Duration // 0 disables deduplication
	Handler     Handler
}

type queue struct {
	cfg QueueConfig
	ch  chan Payload
}

// Dispatcher owns the named queues and their workers
type Dispatcher struct {
	queues map[string]*queue
	dedup  *cache.Cache
	logger *logrus.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		queues: make(map[string]*queue),
		dedup:  cache.New(time.Minute, 5*time.Minute),
		logger: logger,
	}
}

// AddQueue registers a named queue. Must be called before Start.
func (d *Dispatcher) AddQueue(cfg QueueConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("cannot add queue %q after start", cfg.Name)
	}
	if _, ok := d.queues[cfg.Name]; ok {
		return fmt.Errorf("queue %q already registered", cfg.Name)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = 64
	}
	d.queues[cfg.Name] = &queue{
		cfg: cfg,
		ch:  make(chan Payload, cfg.Buffer),
	}
	return nil
}

// Start launches the workers for every registered queue
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true

	for _, q := range d.queues {
		for i := 0; i < q.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx, q)
		}
	}
}

// Stop closes the queues and waits for in-flight jobs to finish
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, q := range d.queues {
		close(q.ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// Enqueue submits a job to a named queue. Jobs are deduplicated within
// the queue's window keyed by their full argument set.
func (d *Dispatcher) Enqueue(name string, payload Payload) error {
	d.mu.Lock()
	q, ok := d.queues[name]
	stopped := d.stopped
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	if stopped {
		return fmt.Errorf("queue %q is stopped", name)
	}

	if q.cfg.DedupWindow > 0 {
		key := name + "|" + payload.Canonical()
		if err := d.dedup.Add(key, struct{}{}, q.cfg.DedupWindow); err != nil {
			return ErrDuplicate
		}
	}

	select {
	case q.ch <- payload:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, name)
	}
}

// Depth returns the number of queued jobs per queue
func (d *Dispatcher) Depth() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()

	depths := make(map[string]int, len(d.queues))
	for name, q := range d.queues {
		depths[name] = len(q.ch)
	}
	return depths
}

func (d *Dispatcher) worker(ctx context.Context, q *queue) {
	defer d.wg.Done()

	for payload := range q.ch {
		d.runJob(ctx, q, payload)
	}
}

// runJob executes one job with bounded exponential-backoff retries.
// A Permanent error stops retrying immediately.
func (d *Dispatcher) runJob(ctx context.Context, q *queue, payload Payload) {
	start := time.Now()

	op := func() error {
		return q.cfg.Handler(ctx, payload)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), q.cfg.MaxRetries), ctx)
	err := backoff.Retry(op, bo)

	entry := d.logger.WithFields(logrus.Fields{
		"queue":       q.cfg.Name,
		"payload":     payload.Canonical(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if err != nil {
		metrics.JobsProcessed.WithLabelValues(q.cfg.Name, "failed").Inc()
		entry.WithError(err).Error("Job failed")
		return
	}

	metrics.JobsProcessed.WithLabelValues(q.cfg.Name, "ok").Inc()
	entry.Debug("Job completed")
}
