package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/metrics"
)

type fakePruneable struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	removed int64
	err     error
}

func (f *fakePruneable) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.removed, f.err
}

func (f *fakePruneable) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPruner_RunOnce(t *testing.T) {
	store := &fakePruneable{removed: 4}
	reg := metrics.NewRegistry()
	p := NewPruner(store, time.Hour, time.Minute, reg, nil)

	p.runOnce(context.Background())

	assert.Equal(t, 1, store.callCount())
	assert.WithinDuration(t, time.Now().Add(-time.Hour), store.cutoffs[0], time.Second)
	assert.Equal(t, int64(1), reg.Value(metrics.HistoryPruneRunsTotal))
	assert.Equal(t, int64(4), reg.Value(metrics.HistoryRowsPrunedTotal))
}

func TestPruner_ErrorDoesNotPanic(t *testing.T) {
	store := &fakePruneable{err: errors.New("locked")}
	p := NewPruner(store, time.Hour, time.Minute, nil, nil)

	assert.NotPanics(t, func() { p.runOnce(context.Background()) })
}

func TestPruner_StartRunsPeriodically(t *testing.T) {
	store := &fakePruneable{}
	p := NewPruner(store, time.Hour, 5*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	assert.Eventually(t, func() bool { return store.callCount() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestPruner_StopsOnCancel(t *testing.T) {
	p := NewPruner(&fakePruneable{}, time.Hour, time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NotPanics(t, func() { p.Start(ctx) })
}

func TestPruner_DisabledReturnsImmediately(t *testing.T) {
	store := &fakePruneable{}
	p := NewPruner(store, 0, time.Millisecond, nil, nil)

	p.Start(context.Background())
	assert.Equal(t, 0, store.callCount())
}
