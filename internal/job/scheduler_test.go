package job

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coinchart/internal/metrics"
	"coinchart/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) NewTicker(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *fakeClock) ticker(t *testing.T, i int) *fakeTicker {
	t.Helper()
	waitUntil(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.tickers) > i
	})
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers[i]
}

// tick blocks until the loop owning ft receives the tick.
func (f *fakeClock) tick(t *testing.T, ft *fakeTicker) {
	t.Helper()
	f.mu.Lock()
	f.now = f.now.Add(time.Minute)
	now := f.now
	f.mu.Unlock()
	select {
	case ft.c <- now:
	case <-time.After(time.Second):
		t.Fatal("tick not received")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func newTestScheduler(clock Clock) *Scheduler {
	return NewScheduler(testTracer, nil, logger.Nop()).WithClock(clock)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestScheduler(newFakeClock())
	noop := func(context.Context) error { return nil }

	assert.ErrorIs(t, s.Register(Task{Interval: time.Second, Run: noop}), ErrInvalidTask)
	assert.ErrorIs(t, s.Register(Task{Name: "x", Run: noop}), ErrInvalidTask)
	assert.ErrorIs(t, s.Register(Task{Name: "x", Interval: time.Second}), ErrInvalidTask)

	require.NoError(t, s.Register(Task{Name: "x", Interval: time.Second, Run: noop}))
	assert.ErrorIs(t, s.Register(Task{Name: "x", Interval: time.Second, Run: noop}), ErrTaskExists)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.ErrorIs(t, s.Register(Task{Name: "y", Interval: time.Second, Run: noop}), ErrSchedulerStarted)
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerStarted)
}

func TestStartRunsImmediatelyThenOnTicks(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(clock)

	var runs atomic.Int32
	require.NoError(t, s.Register(Task{Name: "ingest", Interval: time.Minute, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))

	require.NoError(t, s.Start(context.Background()))
	ft := clock.ticker(t, 0)
	assert.Equal(t, int32(1), runs.Load())

	clock.tick(t, ft)
	clock.tick(t, ft)
	waitUntil(t, func() bool { return runs.Load() == 3 })

	s.Stop()
	assert.True(t, ft.stopped.Load())

	status := s.Tasks()
	require.Len(t, status, 1)
	assert.Equal(t, "ingest", status[0].Name)
	assert.Equal(t, 3, status[0].Runs)
	assert.Equal(t, 0, status[0].Failures)
	assert.False(t, status[0].Running)
}

func TestFailuresAndPanicsDoNotStopTasks(t *testing.T) {
	clock := newFakeClock()
	reg := prometheus.NewRegistry()
	s := NewScheduler(testTracer, metrics.New(reg), logger.Nop()).WithClock(clock)

	var calls atomic.Int32
	require.NoError(t, s.Register(Task{Name: "flaky", Interval: time.Minute, Run: func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("upstream down")
		}
		return nil
	}}))

	require.NoError(t, s.Start(context.Background()))
	ft := clock.ticker(t, 0)
	clock.tick(t, ft)
	clock.tick(t, ft)
	waitUntil(t, func() bool { return calls.Load() == 3 })
	s.Stop()

	status := s.Tasks()[0]
	assert.Equal(t, 3, status.Runs)
	assert.Equal(t, 2, status.Failures)
	assert.Empty(t, status.LastError)

	n, err := testutil.GatherAndCount(reg, "coinchart_task_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTasksRunIndependently(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(clock)

	block := make(chan struct{})
	var fast atomic.Int32
	require.NoError(t, s.Register(Task{Name: "slow", Interval: time.Minute, Run: func(ctx context.Context) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}}))
	require.NoError(t, s.Register(Task{Name: "fast", Interval: time.Minute, Run: func(context.Context) error {
		fast.Add(1)
		return nil
	}}))

	require.NoError(t, s.Start(context.Background()))
	waitUntil(t, func() bool { return fast.Load() == 1 })
	close(block)
	s.Stop()
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(newFakeClock())
	errUpstream := errors.New("upstream")

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var fail atomic.Bool
	require.NoError(t, s.Register(Task{Name: "signals", Interval: time.Hour, Run: func(context.Context) error {
		started <- struct{}{}
		<-release
		if fail.Load() {
			return errUpstream
		}
		return nil
	}}))

	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrUnknownTask)

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "signals") }()
	<-started

	assert.ErrorIs(t, s.RunNow(context.Background(), "signals"), ErrTaskBusy)
	waitUntil(t, func() bool { return s.Tasks()[0].Running })

	close(release)
	require.NoError(t, <-done)

	fail.Store(true)
	err := s.RunNow(context.Background(), "signals")
	<-started
	assert.ErrorIs(t, err, errUpstream)

	status := s.Tasks()[0]
	assert.Equal(t, 2, status.Runs)
	assert.Equal(t, 1, status.Failures)
	assert.Equal(t, "upstream", status.LastError)
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	s := newTestScheduler(newFakeClock())

	var finished atomic.Bool
	entered := make(chan struct{})
	require.NoError(t, s.Register(Task{Name: "long", Interval: time.Minute, Run: func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	}}))

	require.NoError(t, s.Start(context.Background()))
	<-entered
	s.Stop()
	assert.True(t, finished.Load())
}

func TestStopWithoutStart(t *testing.T) {
	s := newTestScheduler(newFakeClock())
	assert.NotPanics(t, s.Stop)
	assert.Empty(t, s.Tasks())
}

func TestFailingTaskDoesNotAffectOthers(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(clock)

	var ok atomic.Int32
	for _, name := range []string{"ingest-binance", "ingest-bybit"} {
		require.NoError(t, s.Register(Task{Name: name, Interval: 10 * time.Minute, Run: func(context.Context) error {
			ok.Add(1)
			return nil
		}}))
	}
	require.NoError(t, s.Register(Task{Name: "ingest-cookiefun", Interval: 5 * time.Minute, Run: func(context.Context) error {
		return errors.New("dial tcp: connection refused")
	}}))

	require.NoError(t, s.Start(context.Background()))
	for i := 0; i < 3; i++ {
		clock.tick(t, clock.ticker(t, i))
	}
	waitUntil(t, func() bool {
		return ok.Load() == 4 && s.Tasks()[2].Runs == 2
	})
	s.Stop()

	for _, st := range s.Tasks() {
		assert.Equal(t, 2, st.Runs, st.Name)
		if st.Name == "ingest-cookiefun" {
			assert.Equal(t, 2, st.Failures)
		} else {
			assert.Zero(t, st.Failures, st.Name)
		}
	}
}
