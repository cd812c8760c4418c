package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/oltiss/mattermost-bot/internal/engine"
	"github.com/oltiss/mattermost-bot/internal/observe"
)

var (
	// ErrDispatcherClosed is returned by [Dispatcher.Submit] after Shutdown.
	ErrDispatcherClosed = errors.New("app: dispatcher is shut down")

	// ErrNoAnswer is passed to a [DeliverFunc] when the engine returned an
	// empty answer.
	ErrNoAnswer = errors.New("app: engine produced no answer")
)

// DeliverFunc receives the outcome of one job. Exactly one of answer and err
// is meaningful. ctx is the job context and may already be done; deliveries
// that do I/O should detach from it.
type DeliverFunc func(ctx context.Context, answer string, err error)

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithJobTimeout bounds each job, including the wait for a worker slot.
// Zero disables the bound.
func WithJobTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithMaxWorkers caps the number of jobs running the engine at once. Zero
// means unbounded.
func WithMaxWorkers(n int) DispatcherOption {
	return func(disp *Dispatcher) {
		if n > 0 {
			disp.sem = semaphore.NewWeighted(int64(n))
		} else {
			disp.sem = nil
		}
	}
}

// WithDispatcherMetrics sets the metric instruments.
func WithDispatcherMetrics(m *observe.Metrics) DispatcherOption {
	return func(disp *Dispatcher) { disp.metrics = m }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(disp *Dispatcher) { disp.log = l }
}

// Dispatcher runs answer jobs in the background, one goroutine per job, so
// the webhook can acknowledge a request before the engine finishes. Jobs
// share nothing but the engine. All methods are safe for concurrent use.
type Dispatcher struct {
	engine  engine.Engine
	timeout time.Duration
	sem     *semaphore.Weighted
	metrics *observe.Metrics
	log     *slog.Logger
	newID   func() string

	// base is cancelled when Shutdown gives up waiting.
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher running jobs on eng.
func NewDispatcher(eng engine.Engine, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		engine: eng,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.base, d.cancel = context.WithCancel(context.Background())
	return d
}

// Submit starts a job for utterance and returns its ID without waiting for
// it. The job keeps the values of ctx (trace context) but not its
// cancellation, so it outlives the HTTP request that submitted it.
func (d *Dispatcher) Submit(ctx context.Context, utterance string, deliver DeliverFunc) (string, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	id := d.newID()
	jobCtx := observe.WithJobID(context.WithoutCancel(ctx), id)
	go d.run(jobCtx, utterance, deliver)
	return id, nil
}

func (d *Dispatcher) run(ctx context.Context, utterance string, deliver DeliverFunc) {
	defer d.wg.Done()

	var cancel context.CancelFunc
	if d.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	stop := context.AfterFunc(d.base, cancel)
	defer stop()

	log := observe.Logger(ctx)
	start := time.Now()

	answer, err := d.answer(ctx, utterance)
	if err != nil {
		log.Warn("job failed", "err", err, "duration", time.Since(start))
	} else {
		log.Info("job finished", "duration", time.Since(start), "answer_len", len(answer))
	}
	deliver(ctx, answer, err)
}

func (d *Dispatcher) answer(ctx context.Context, utterance string) (answer string, err error) {
	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("app: wait for worker: %w", err)
		}
		defer d.sem.Release(1)
	}

	d.metrics.ActiveJobs.Add(ctx, 1)
	defer d.metrics.ActiveJobs.Add(ctx, -1)

	defer func() {
		if r := recover(); r != nil {
			answer, err = "", fmt.Errorf("app: engine panicked: %v", r)
		}
	}()

	answer = d.engine.Answer(ctx, utterance)
	if answer == "" {
		return "", ErrNoAnswer
	}
	return answer, nil
}

// Shutdown stops accepting jobs and waits for in-flight jobs. When ctx ends
// first the remaining jobs are cancelled and ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		d.log.Warn("dispatcher shutdown deadline exceeded; cancelling jobs")
		return ctx.Err()
	}
}
