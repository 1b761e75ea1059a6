package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultAttempts is the attempt budget of kinds registered without one.
const DefaultAttempts = 3

// Kind describes a category of jobs sharing one FIFO, one concurrency limit
// and one retry policy.
type Kind struct {
	// Name is the unique key of the kind.
	Name string

	// Concurrency is the number of jobs of this kind that may run at once.
	// Zero means 1.
	Concurrency int

	// Attempts is the default budget per job, first attempt included.
	// Zero means DefaultAttempts.
	Attempts int

	// Backoff spaces retries. Nil means DefaultStrategy().
	Backoff Strategy

	// RateLimit caps attempts per second across the kind. Zero disables it.
	RateLimit rate.Limit

	// RateBurst is the token bucket size; defaults to 1 when RateLimit is set.
	RateBurst int
}

func (k Kind) withDefaults() (Kind, error) {
	if k.Name == "" {
		return k, fmt.Errorf("%w: name is required", ErrInvalidKind)
	}
	if k.Concurrency < 0 || k.Attempts < 0 || k.RateLimit < 0 || k.RateBurst < 0 {
		return k, fmt.Errorf("%w: %q has negative limits", ErrInvalidKind, k.Name)
	}
	if k.Concurrency == 0 {
		k.Concurrency = 1
	}
	if k.Attempts == 0 {
		k.Attempts = DefaultAttempts
	}
	if k.Backoff == nil {
		k.Backoff = DefaultStrategy()
	}
	if k.RateLimit > 0 && k.RateBurst == 0 {
		k.RateBurst = 1
	}
	return k, nil
}

// HandlerFunc is a type-erased job handler.
type HandlerFunc func(ctx context.Context, payload any) error

// Definition binds a kind to a typed handler. T is the payload type.
type Definition[T any] struct {
	Kind    Kind
	Handler func(ctx context.Context, payload T) error
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](kind Kind, handler func(ctx context.Context, payload T) error) *Definition[T] {
	return &Definition[T]{Kind: kind, Handler: handler}
}

// Register adds def to d. Kinds must be registered before Start.
func Register[T any](d *Dispatcher, def *Definition[T]) error {
	name := def.Kind.Name
	handler := func(ctx context.Context, payload any) error {
		p, ok := payload.(T)
		if !ok {
			return Permanent(fmt.Errorf("job %q: unexpected payload type %T", name, payload))
		}
		return def.Handler(ctx, p)
	}
	return d.register(def.Kind, handler)
}

// Submit enqueues payload under def's kind and returns as soon as the job is
// accepted. Delivery happens later on the dispatcher's workers.
func Submit[T any](ctx context.Context, d *Dispatcher, def *Definition[T], payload T, opts ...SubmitOption) (JobID, error) {
	return d.submit(ctx, def.Kind.Name, payload, opts...)
}

// lane is the runtime state of one registered kind.
type lane struct {
	kind    Kind
	handler HandlerFunc
	limiter *rate.Limiter

	mu     sync.Mutex
	queue  []*Job
	closed bool
	ready  chan struct{}
}

func newLane(kind Kind, handler HandlerFunc) *lane {
	l := &lane{
		kind:    kind,
		handler: handler,
		ready:   make(chan struct{}, 1),
	}
	if kind.RateLimit > 0 {
		l.limiter = rate.NewLimiter(kind.RateLimit, kind.RateBurst)
	}
	return l
}

// push appends j to the FIFO. It returns false once the lane has been drained.
func (l *lane) push(j *Job) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, j)
	l.mu.Unlock()
	l.signal()
	return true
}

func (l *lane) signal() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// next blocks until a job is available or ctx is done.
func (l *lane) next(ctx context.Context) (*Job, bool) {
	for {
		if ctx.Err() != nil {
			return nil, false
		}
		l.mu.Lock()
		if len(l.queue) > 0 {
			j := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			more := len(l.queue) > 0
			l.mu.Unlock()
			if more {
				l.signal()
			}
			return j, true
		}
		l.mu.Unlock()

		select {
		case <-l.ready:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// drain closes the lane and returns every job still queued.
func (l *lane) drain() []*Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	jobs := l.queue
	l.queue = nil
	return jobs
}

func (l *lane) waitTurn(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// retryDelay never returns less than minRetryDelay so retries cannot spin.
func (l *lane) retryDelay(attempt int) time.Duration {
	d := l.kind.Backoff.Delay(attempt)
	if d < minRetryDelay {
		return minRetryDelay
	}
	return d
}
