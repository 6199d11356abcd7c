package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
)

type fakeSweeper struct {
	subscriptions atomic.Int32
	grace         atomic.Int32
	free          atomic.Int32
}

func (f *fakeSweeper) ProcessExpiredSubscriptions(ctx context.Context) (billing.SweepResult, error) {
	f.subscriptions.Add(1)
	return billing.SweepResult{Sweep: billing.SweepSubscriptions, Processed: 2}, nil
}

func (f *fakeSweeper) ProcessExpiredGracePeriods(ctx context.Context) (billing.SweepResult, error) {
	f.grace.Add(1)
	return billing.SweepResult{Sweep: billing.SweepGracePeriods}, nil
}

func (f *fakeSweeper) ProcessExpiredFreeAccess(ctx context.Context) (billing.SweepResult, error) {
	f.free.Add(1)
	return billing.SweepResult{Sweep: billing.SweepFreeAccess}, nil
}

func TestManager_Jobs(t *testing.T) {
	m := NewManager(&fakeSweeper{}, nil, nil)
	assert.Equal(t, []string{JobFreeAccess, JobGracePeriods, JobSubscriptions}, m.Jobs())

	m.Register(JobUsageArchive, func(models.BillingSettings) time.Duration { return time.Hour }, func(ctx context.Context) (billing.SweepResult, error) {
		return billing.SweepResult{}, nil
	})
	assert.Contains(t, m.Jobs(), JobUsageArchive)
}

func TestManager_RunOnce(t *testing.T) {
	sweeper := &fakeSweeper{}
	m := NewManager(sweeper, nil, NewLocalLocker())

	res, err := m.RunOnce(context.Background(), JobSubscriptions)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, int32(1), sweeper.subscriptions.Load())

	_, err = m.RunOnce(context.Background(), "nightly_report")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestManager_RunAll(t *testing.T) {
	sweeper := &fakeSweeper{}
	m := NewManager(sweeper, nil, nil)

	results, err := m.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, billing.SweepSubscriptions, results[0].Sweep)
	assert.Equal(t, billing.SweepGracePeriods, results[1].Sweep)
	assert.Equal(t, billing.SweepFreeAccess, results[2].Sweep)
}

func TestManager_RunOnceSkipsWhenLocked(t *testing.T) {
	sweeper := &fakeSweeper{}
	locker := NewLocalLocker()
	m := NewManager(sweeper, nil, locker)

	_, ok, err := locker.Acquire(context.Background(), JobGracePeriods, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.RunOnce(context.Background(), JobGracePeriods)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Zero(t, sweeper.grace.Load())
}

type failingLocker struct{}

func (failingLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (failingLocker) Release(ctx context.Context, name, token string) error { return nil }

func TestManager_RunOnceLockError(t *testing.T) {
	sweeper := &fakeSweeper{}
	m := NewManager(sweeper, nil, failingLocker{})

	_, err := m.RunOnce(context.Background(), JobFreeAccess)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
	assert.Zero(t, sweeper.free.Load())
}

func TestManager_ReleasesLockAfterRun(t *testing.T) {
	locker := NewLocalLocker()
	m := NewManager(&fakeSweeper{}, nil, locker)

	_, err := m.RunOnce(context.Background(), JobSubscriptions)
	require.NoError(t, err)

	_, ok, err := locker.Acquire(context.Background(), JobSubscriptions, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager(&fakeSweeper{}, nil, nil)

	var mu sync.Mutex
	runs := 0
	m.Register("tick", func(models.BillingSettings) time.Duration { return 10 * time.Millisecond }, func(ctx context.Context) (billing.SweepResult, error) {
		mu.Lock()
		defer mu.Unlock()
		runs++
		return billing.SweepResult{}, nil
	})

	m.Stop()
	assert.False(t, m.IsRunning())

	m.Start()
	m.Start()
	assert.True(t, m.IsRunning())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 2
	}, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
	assert.False(t, m.IsRunning())

	mu.Lock()
	after := runs
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, after, runs, "no runs after Stop")
	mu.Unlock()

	// Restartable
	m.Start()
	assert.True(t, m.IsRunning())
	m.Stop()
}

func TestGlobalManager(t *testing.T) {
	t.Cleanup(func() { SetManager(nil) })
	assert.Nil(t, GetManager())

	m := NewManager(&fakeSweeper{}, nil, nil)
	SetManager(m)
	assert.Same(t, m, GetManager())
}
