package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

// recordingListener keeps every transition and signals terminal ones on done.
type recordingListener struct {
	mu       sync.Mutex
	started  []Job
	retrying []Job
	terminal map[JobID]Job
	done     chan Job
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		terminal: make(map[JobID]Job),
		done:     make(chan Job, 64),
	}
}

func (r *recordingListener) JobStarted(_ context.Context, j Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, j)
}

func (r *recordingListener) JobSucceeded(_ context.Context, j Job, _ time.Duration) {
	r.finish(j)
}

func (r *recordingListener) JobRetrying(_ context.Context, j Job, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retrying = append(r.retrying, j)
}

func (r *recordingListener) JobFailed(_ context.Context, j Job, _ error) {
	r.finish(j)
}

func (r *recordingListener) finish(j Job) {
	r.mu.Lock()
	r.terminal[j.ID] = j
	r.mu.Unlock()
	r.done <- j
}

func (r *recordingListener) await(t *testing.T, n int) []Job {
	t.Helper()
	out := make([]Job, 0, n)
	for len(out) < n {
		select {
		case j := <-r.done:
			out = append(out, j)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d terminal jobs, got %d", n, len(out))
		}
	}
	return out
}

func testKind(name string) Kind {
	return Kind{Name: name, Concurrency: 1, Attempts: 3, Backoff: NewConstant(5 * time.Millisecond)}
}

func startDispatcher(t *testing.T, l Listener) *Dispatcher {
	t.Helper()
	d := New(testLogger, WithListener(l))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d
}

func TestDispatcher_SucceedsOnFirstAttempt(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	var calls atomic.Int32
	def := NewDefinition(testKind("mail"), func(_ context.Context, p string) error {
		calls.Add(1)
		assert.Equal(t, "hello", p)
		return nil
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(ctx))

	id, err := Submit(ctx, d, def, "hello")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	jobs := rec.await(t, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, StateSucceeded, jobs[0].State)
	assert.True(t, jobs[0].State.Terminal())
	assert.Equal(t, 1, jobs[0].Attempt)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcher_StartContextDoesNotStopWorkers(t *testing.T) {
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	def := NewDefinition(testKind("mail"), func(_ context.Context, _ string) error { return nil })
	require.NoError(t, Register(d, def))

	startCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(startCtx))
	cancel()

	_, err := Submit(context.Background(), d, def, "after cancel")
	require.NoError(t, err)

	jobs := rec.await(t, 1)
	assert.Equal(t, StateSucceeded, jobs[0].State)
}

func TestDispatcher_ExhaustsAttemptBudget(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	var calls atomic.Int32
	def := NewDefinition(testKind("mail"), func(_ context.Context, _ string) error {
		calls.Add(1)
		return errors.New("smtp unavailable")
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(ctx))

	_, err := Submit(ctx, d, def, "x")
	require.NoError(t, err)

	jobs := rec.await(t, 1)
	assert.Equal(t, StateFailed, jobs[0].State)
	assert.Equal(t, 3, jobs[0].Attempt)
	assert.Equal(t, "smtp unavailable", jobs[0].LastError)

	// Give a would-be fourth attempt time to show up.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.retrying, 2)
	for _, j := range rec.retrying {
		assert.Equal(t, StateQueued, j.State)
	}
	assert.Len(t, rec.started, 3)
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	var calls atomic.Int32
	def := NewDefinition(testKind("mail"), func(_ context.Context, _ int) error {
		if calls.Add(1) < 3 {
			return errors.New("throttled")
		}
		return nil
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(ctx))

	_, err := Submit(ctx, d, def, 1)
	require.NoError(t, err)

	jobs := rec.await(t, 1)
	assert.Equal(t, StateSucceeded, jobs[0].State)
	assert.Equal(t, 3, jobs[0].Attempt)
	assert.Empty(t, jobs[0].LastError)
}

func TestDispatcher_RetrySpacing(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	var mu sync.Mutex
	var at []time.Time
	kind := testKind("mail")
	kind.Backoff = NewConstant(30 * time.Millisecond)
	def := NewDefinition(kind, func(_ context.Context, _ string) error {
		mu.Lock()
		at = append(at, time.Now())
		mu.Unlock()
		return errors.New("fail")
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(ctx))

	_, err := Submit(ctx, d, def, "x")
	require.NoError(t, err)
	rec.await(t, 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, at, 3)
	for i := 1; i < len(at); i++ {
		assert.GreaterOrEqual(t, at[i].Sub(at[i-1]), 30*time.Millisecond)
	}
}

func TestDispatcher_PermanentErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	var calls atomic.Int32
	def := NewDefinition(testKind("mail"), func(_ context.Context, _ string) error {
		calls.Add(1)
		return Permanent(errors.New("template missing"))
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(ctx))

	_, err := Submit(ctx, d, def, "x")
	require.NoError(t, err)

	jobs := rec.await(t, 1)
	assert.Equal(t, StateFailed, jobs[0].State)
	assert.Equal(t, 1, jobs[0].Attempt)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatcher_PanicCountsAsFailedAttempt(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	var calls atomic.Int32
	def := NewDefinition(testKind("mail"), func(_ context.Context, _ string) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(ctx))

	_, err := Submit(ctx, d, def, "x")
	require.NoError(t, err)

	jobs := rec.await(t, 1)
	assert.Equal(t, StateSucceeded, jobs[0].State)
	assert.Equal(t, 2, jobs[0].Attempt)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.retrying, 1)
	assert.Contains(t, rec.retrying[0].LastError, "panicked")
}

func TestDispatcher_WithAttemptsOverridesKind(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	def := NewDefinition(testKind("mail"), func(_ context.Context, _ string) error {
		return errors.New("fail")
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(ctx))

	_, err := Submit(ctx, d, def, "x", WithAttempts(1))
	require.NoError(t, err)

	jobs := rec.await(t, 1)
	assert.Equal(t, StateFailed, jobs[0].State)
	assert.Equal(t, 1, jobs[0].Attempt)
	assert.Equal(t, 1, jobs[0].MaxAttempts)
}

func TestDispatcher_SerializesKindUnderConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	var active, maxActive atomic.Int32
	def := NewDefinition(testKind("mail"), func(_ context.Context, _ int) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(ctx))

	const n = 8
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Submit(ctx, d, def, i)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	jobs := rec.await(t, n)
	for _, j := range jobs {
		assert.Equal(t, StateSucceeded, j.State)
	}
	assert.Equal(t, int32(1), maxActive.Load(), "jobs of one kind must never overlap")
}

func TestDispatcher_ConcurrencyAboveOne(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	release := make(chan struct{})
	var active atomic.Int32
	kind := testKind("bulk")
	kind.Concurrency = 2
	def := NewDefinition(kind, func(_ context.Context, _ int) error {
		active.Add(1)
		<-release
		return nil
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(ctx))

	for i := range 3 {
		_, err := Submit(ctx, d, def, i)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return active.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), active.Load(), "third job waits for a free slot")

	close(release)
	rec.await(t, 3)
}

func TestDispatcher_FIFOOrder(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingListener()
	d := startDispatcher(t, rec)

	var mu sync.Mutex
	var order []int
	def := NewDefinition(testKind("mail"), func(_ context.Context, p int) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, p)
		return nil
	})
	require.NoError(t, Register(d, def))

	for i := 1; i <= 5; i++ {
		_, err := Submit(ctx, d, def, i)
		require.NoError(t, err)
	}
	require.NoError(t, d.Start(ctx))
	rec.await(t, 5)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, order)
}

func TestDispatcher_Register(t *testing.T) {
	noop := func(context.Context, string) error { return nil }

	t.Run("duplicate kind", func(t *testing.T) {
		d := New(testLogger)
		require.NoError(t, Register(d, NewDefinition(testKind("mail"), noop)))
		err := Register(d, NewDefinition(testKind("mail"), noop))
		require.ErrorIs(t, err, ErrDuplicateKind)
	})

	t.Run("missing name", func(t *testing.T) {
		d := New(testLogger)
		err := Register(d, NewDefinition(Kind{}, noop))
		require.ErrorIs(t, err, ErrInvalidKind)
	})

	t.Run("negative attempts", func(t *testing.T) {
		d := New(testLogger)
		err := Register(d, NewDefinition(Kind{Name: "x", Attempts: -1}, noop))
		require.ErrorIs(t, err, ErrInvalidKind)
	})

	t.Run("after start", func(t *testing.T) {
		d := New(testLogger)
		require.NoError(t, d.Start(context.Background()))
		defer func() { _ = d.Stop(context.Background()) }()
		err := Register(d, NewDefinition(testKind("mail"), noop))
		require.ErrorIs(t, err, ErrAlreadyStarted)
	})
}

func TestKind_withDefaults(t *testing.T) {
	k, err := Kind{Name: "mail", RateLimit: 2}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, 1, k.Concurrency)
	assert.Equal(t, DefaultAttempts, k.Attempts)
	assert.NotNil(t, k.Backoff)
	assert.Equal(t, 1, k.RateBurst)
}

func TestDispatcher_Submit_errors(t *testing.T) {
	noop := func(context.Context, string) error { return nil }
	def := NewDefinition(testKind("mail"), noop)

	t.Run("unknown kind", func(t *testing.T) {
		d := New(testLogger)
		_, err := Submit(context.Background(), d, def, "x")
		require.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("cancelled context", func(t *testing.T) {
		d := New(testLogger)
		require.NoError(t, Register(d, def))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Submit(ctx, d, def, "x")
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("after stop", func(t *testing.T) {
		d := New(testLogger)
		require.NoError(t, Register(d, def))
		require.NoError(t, d.Start(context.Background()))
		require.NoError(t, d.Stop(context.Background()))
		_, err := Submit(context.Background(), d, def, "x")
		require.ErrorIs(t, err, ErrStopped)
	})
}

func TestDispatcher_StopDrainsRetries(t *testing.T) {
	rec := newRecordingListener()
	d := New(testLogger, WithListener(rec))

	var calls atomic.Int32
	def := NewDefinition(testKind("mail"), func(_ context.Context, _ string) error {
		if calls.Add(1) == 1 {
			return errors.New("first attempt fails")
		}
		return nil
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(context.Background()))

	_, err := Submit(context.Background(), d, def, "x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	jobs := rec.await(t, 1)
	assert.Equal(t, StateSucceeded, jobs[0].State)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDispatcher_StopTimeoutAbandonsJobs(t *testing.T) {
	rec := newRecordingListener()
	d := New(testLogger, WithListener(rec))

	started := make(chan struct{})
	def := NewDefinition(testKind("mail"), func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, Register(d, def))
	require.NoError(t, d.Start(context.Background()))

	_, err := Submit(context.Background(), d, def, "x")
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)

	jobs := rec.await(t, 1)
	assert.Equal(t, StateFailed, jobs[0].State)
}

func TestDispatcher_StopBeforeStartFailsQueuedJobs(t *testing.T) {
	rec := newRecordingListener()
	d := New(testLogger, WithListener(rec))
	def := NewDefinition(testKind("mail"), func(context.Context, string) error { return nil })
	require.NoError(t, Register(d, def))

	_, err := Submit(context.Background(), d, def, "x")
	require.NoError(t, err)
	require.NoError(t, d.Stop(context.Background()))

	jobs := rec.await(t, 1)
	assert.Equal(t, StateFailed, jobs[0].State)
	assert.Equal(t, 0, jobs[0].Attempt)
	require.ErrorIs(t, d.Start(context.Background()), ErrStopped)
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad template")
	assert.Nil(t, Permanent(nil))
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}
