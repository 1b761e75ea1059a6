// Package dispatch runs background jobs asynchronously with per-kind FIFO
// ordering, bounded concurrency and bounded retries.
//
// A Dispatcher is built by the composition root, kinds are registered on it
// explicitly, and Submit returns once a job is queued:
//
//	d := dispatch.New(logger)
//	def := dispatch.NewDefinition(dispatch.Kind{Name: "mail", Concurrency: 1, Attempts: 3}, send)
//	_ = dispatch.Register(d, def)
//	_ = d.Start(ctx)
//	id, err := dispatch.Submit(ctx, d, def, payload)
//
// Each job moves Queued -> Running -> Succeeded | Queued (retry) | Failed.
// Jobs cannot be cancelled once submitted; they run until success or until
// their attempt budget is spent.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const minRetryDelay = time.Millisecond

// Listener observes job lifecycle transitions. Methods are called from worker
// goroutines and must not block for long.
type Listener interface {
	JobStarted(ctx context.Context, j Job)
	JobSucceeded(ctx context.Context, j Job, elapsed time.Duration)
	JobRetrying(ctx context.Context, j Job, delay time.Duration)
	JobFailed(ctx context.Context, j Job, err error)
}

// Dispatcher owns the registered kinds and their worker goroutines.
type Dispatcher struct {
	logger   *slog.Logger
	listener Listener
	now      func() time.Time

	mu      sync.Mutex
	lanes   map[string]*lane
	started bool
	stopped bool

	ctx     context.Context
	cancel  context.CancelFunc
	pending sync.WaitGroup
	workers sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithListener registers a lifecycle listener.
func WithListener(l Listener) Option {
	return func(d *Dispatcher) { d.listener = l }
}

// New creates a Dispatcher with no kinds registered.
func New(logger *slog.Logger, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger: logger,
		now:    time.Now,
		lanes:  make(map[string]*lane),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) register(kind Kind, handler HandlerFunc) error {
	kind, err := kind.withDefaults()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrAlreadyStarted
	}
	if _, ok := d.lanes[kind.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKind, kind.Name)
	}
	d.lanes[kind.Name] = newLane(kind, handler)
	return nil
}

// Start launches Concurrency workers per registered kind. It returns immediately.
// Jobs submitted before Start wait in their queue.
//
// The context is not retained: cancelling it does not stop the workers. Only Stop
// ends them.
func (d *Dispatcher) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrStopped
	}
	if d.started {
		return nil
	}
	d.started = true

	for name, l := range d.lanes {
		d.logger.Info("dispatcher lane starting",
			slog.String("kind", name),
			slog.Int("concurrency", l.kind.Concurrency),
			slog.Int("attempts", l.kind.Attempts),
		)
		for range l.kind.Concurrency {
			d.workers.Add(1)
			go d.work(l)
		}
	}
	return nil
}

// Stop rejects new submissions and waits for queued and retrying jobs to reach
// a terminal state. When ctx expires first, running handlers are cancelled,
// unfinished jobs are failed and ctx.Err() is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	started := d.started
	d.mu.Unlock()

	var err error
	if started {
		done := make(chan struct{})
		go func() {
			d.pending.Wait()
			close(done)
		}()

		select {
		case <-done:
			d.logger.Info("dispatcher drained")
		case <-ctx.Done():
			err = ctx.Err()
			d.logger.Warn("dispatcher shutdown timed out, abandoning unfinished jobs")
		}
	}

	d.cancel()
	d.workers.Wait()

	d.mu.Lock()
	lanes := make([]*lane, 0, len(d.lanes))
	for _, l := range d.lanes {
		lanes = append(lanes, l)
	}
	d.mu.Unlock()
	for _, l := range lanes {
		for _, j := range l.drain() {
			d.abandon(j, ErrStopped)
		}
	}
	return err
}

func (d *Dispatcher) submit(ctx context.Context, kind string, payload any, opts ...SubmitOption) (JobID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return "", ErrStopped
	}
	l, ok := d.lanes[kind]
	if !ok {
		d.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	now := d.now().UTC()
	j := &Job{
		ID:          JobID(uuid.NewString()),
		Kind:        kind,
		Payload:     payload,
		State:       StateQueued,
		MaxAttempts: l.kind.Attempts,
		SubmittedAt: now,
		RunAt:       now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		opt(j)
	}
	d.pending.Add(1)
	d.mu.Unlock()

	if !l.push(j) {
		d.pending.Done()
		return "", ErrStopped
	}
	d.logger.DebugContext(ctx, "job submitted",
		slog.String("job_id", string(j.ID)),
		slog.String("kind", kind),
		slog.Int("max_attempts", j.MaxAttempts),
	)
	return j.ID, nil
}

func (d *Dispatcher) work(l *lane) {
	defer d.workers.Done()
	for {
		j, ok := l.next(d.ctx)
		if !ok {
			return
		}
		d.execute(l, j)
	}
}

// execute runs one attempt of j and moves it to its next state.
func (d *Dispatcher) execute(l *lane, j *Job) {
	ctx := d.ctx
	if err := l.waitTurn(ctx); err != nil {
		d.abandon(j, err)
		return
	}

	j.Attempt++
	j.State = StateRunning
	j.UpdatedAt = d.now().UTC()
	d.emitStarted(ctx, j)

	start := time.Now()
	err := invoke(ctx, l.handler, j.Payload)
	elapsed := time.Since(start)
	j.UpdatedAt = d.now().UTC()

	if err == nil {
		j.State = StateSucceeded
		j.LastError = ""
		d.logger.Debug("job succeeded",
			slog.String("job_id", string(j.ID)),
			slog.String("kind", j.Kind),
			slog.Int("attempt", j.Attempt),
			slog.Duration("elapsed", elapsed),
		)
		if d.listener != nil {
			d.listener.JobSucceeded(ctx, *j, elapsed)
		}
		d.pending.Done()
		return
	}

	j.LastError = err.Error()
	if IsPermanent(err) || j.Attempt >= j.MaxAttempts {
		d.fail(ctx, j, err)
		return
	}
	d.scheduleRetry(ctx, l, j)
}

func (d *Dispatcher) scheduleRetry(ctx context.Context, l *lane, j *Job) {
	delay := l.retryDelay(j.Attempt)
	j.State = StateQueued
	j.RunAt = j.UpdatedAt.Add(delay)

	d.logger.Info("job scheduled for retry",
		slog.String("job_id", string(j.ID)),
		slog.String("kind", j.Kind),
		slog.Int("attempt", j.Attempt),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
		slog.String("error", j.LastError),
	)
	if d.listener != nil {
		d.listener.JobRetrying(ctx, *j, delay)
	}

	time.AfterFunc(delay, func() {
		if !l.push(j) {
			d.abandon(j, ErrStopped)
		}
	})
}

func (d *Dispatcher) fail(ctx context.Context, j *Job, err error) {
	j.State = StateFailed
	d.logger.Warn("job failed permanently",
		slog.String("job_id", string(j.ID)),
		slog.String("kind", j.Kind),
		slog.Int("attempt", j.Attempt),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.String("error", err.Error()),
	)
	if d.listener != nil {
		d.listener.JobFailed(ctx, *j, err)
	}
	d.pending.Done()
}

// abandon fails a job the dispatcher can no longer run because it is shutting down.
func (d *Dispatcher) abandon(j *Job, cause error) {
	j.UpdatedAt = d.now().UTC()
	j.LastError = cause.Error()
	d.fail(context.Background(), j, fmt.Errorf("job abandoned: %w", cause))
}

func (d *Dispatcher) emitStarted(ctx context.Context, j *Job) {
	d.logger.Debug("job started",
		slog.String("job_id", string(j.ID)),
		slog.String("kind", j.Kind),
		slog.Int("attempt", j.Attempt),
	)
	if d.listener != nil {
		d.listener.JobStarted(ctx, *j)
	}
}

// invoke calls handler and converts a panic into an ordinary failed attempt.
func invoke(ctx context.Context, handler HandlerFunc, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, payload)
}
