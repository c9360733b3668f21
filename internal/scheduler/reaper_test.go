package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSweeper struct {
	mu     sync.Mutex
	calls  []time.Time
	result []string
	err    error
	block  chan struct{}
}

func (m *mockSweeper) Sweep(_ context.Context, now time.Time) ([]string, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, now)
	return m.result, m.err
}

func (m *mockSweeper) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestReaper(t *testing.T, s Sweeper, spec string) *Reaper {
	t.Helper()
	r, err := NewReaper(s, spec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return r
}

func TestNewReaper_DefaultSchedule(t *testing.T) {
	r := newTestReaper(t, &mockSweeper{}, "")
	assert.Equal(t, DefaultSweepSchedule, r.Spec())

	from := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(5*time.Minute), r.Next(from))
}

func TestNewReaper_CronExpression(t *testing.T) {
	r := newTestReaper(t, &mockSweeper{}, "*/15 * * * *")
	from := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC), r.Next(from))

	r = newTestReaper(t, &mockSweeper{}, "@hourly")
	assert.Equal(t, time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC), r.Next(from))
}

func TestNewReaper_InvalidSchedule(t *testing.T) {
	_, err := NewReaper(&mockSweeper{}, "invalid cron", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse sweep schedule")
}

func TestRunOnce(t *testing.T) {
	s := &mockSweeper{result: []string{"a", "b"}}
	r := newTestReaper(t, s, "")
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	expired, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, expired)
	require.Equal(t, 1, s.callCount())
	assert.Equal(t, fixed, s.calls[0])
}

func TestRunOnce_Error(t *testing.T) {
	s := &mockSweeper{err: errors.New("store down")}
	r := newTestReaper(t, s, "")

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestRunOnce_DedupWhileRunning(t *testing.T) {
	s := &mockSweeper{block: make(chan struct{})}
	r := newTestReaper(t, s, "")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.RunOnce(context.Background())
	}()

	require.Eventually(t, func() bool { return r.running.Load() }, time.Second, 5*time.Millisecond)

	expired, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, expired)

	close(s.block)
	<-done
	assert.Equal(t, 1, s.callCount())
	assert.False(t, r.running.Load())
}

func TestStartStop(t *testing.T) {
	r := newTestReaper(t, &mockSweeper{}, "")
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))

	err := r.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
}

func TestLoopRunsOnSchedule(t *testing.T) {
	s := &mockSweeper{}
	r := newTestReaper(t, s, "@every 1s")

	require.NoError(t, r.Start(context.Background()))
	defer func() { _ = r.Stop() }()

	require.Eventually(t, func() bool { return s.callCount() >= 1 }, 3*time.Second, 20*time.Millisecond)
}
