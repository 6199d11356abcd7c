package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/gofiber/fiber/v2/log"
)

// Job names. The sweep names match billing.SweepResult.Sweep.
const (
	JobSubscriptions = billing.SweepSubscriptions
	JobGracePeriods  = billing.SweepGracePeriods
	JobFreeAccess    = billing.SweepFreeAccess
	JobUsageArchive  = "usage_archive"
)

const defaultLockTTL = 15 * time.Minute

var (
	// ErrUnknownJob is returned by RunOnce for names that were never registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrLocked is returned by RunOnce when another run holds the job's lock.
	ErrLocked = errors.New("job is already running")
)

// Sweeper runs the lifecycle sweeps. Implemented by *billing.Service.
type Sweeper interface {
	ProcessExpiredSubscriptions(ctx context.Context) (billing.SweepResult, error)
	ProcessExpiredGracePeriods(ctx context.Context) (billing.SweepResult, error)
	ProcessExpiredFreeAccess(ctx context.Context) (billing.SweepResult, error)
}

// JobFunc performs one run of a job.
type JobFunc func(ctx context.Context) (billing.SweepResult, error)

// IntervalFunc derives a job's cadence from the current settings.
type IntervalFunc func(s models.BillingSettings) time.Duration

type job struct {
	name     string
	interval IntervalFunc
	run      JobFunc
}

// Manager runs the sweeps on their configured cadence
type Manager struct {
	settings *models.SettingsStore
	locker   Locker
	lockTTL  time.Duration
	jobs     map[string]*job

	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLockTTL bounds how long a crashed run can block the next one.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.lockTTL = ttl }
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// NewManager creates a manager with the three lifecycle sweeps registered.
func NewManager(sweeper Sweeper, settings *models.SettingsStore, locker Locker, opts ...Option) *Manager {
	if locker == nil {
		locker = NewLocalLocker()
	}
	m := &Manager{
		settings: settings,
		locker:   locker,
		lockTTL:  defaultLockTTL,
		jobs:     map[string]*job{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Register(JobSubscriptions, func(s models.BillingSettings) time.Duration { return minutes(s.SubscriptionSweepMinutes) }, sweeper.ProcessExpiredSubscriptions)
	m.Register(JobGracePeriods, func(s models.BillingSettings) time.Duration { return minutes(s.GracePeriodSweepMinutes) }, sweeper.ProcessExpiredGracePeriods)
	m.Register(JobFreeAccess, func(s models.BillingSettings) time.Duration { return minutes(s.FreeAccessSweepMinutes) }, sweeper.ProcessExpiredFreeAccess)
	return m
}

// Register adds or replaces a job. Jobs registered after Start run from the next Start on.
func (m *Manager) Register(name string, interval IntervalFunc, run JobFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[name] = &job{name: name, interval: interval, run: run}
}

// Jobs returns the registered job names in sorted order.
func (m *Manager) Jobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start starts one worker per job
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	log.Info("[Scheduler] Starting sweeps")

	for _, j := range m.jobs {
		m.wg.Add(1)
		go m.worker(ctx, j, m.stopCh)
	}

	log.Info("[Scheduler] Started successfully")
}

// Stop signals all workers and waits for running sweeps to return
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	log.Info("[Scheduler] Stopping sweeps...")
	close(m.stopCh)
	m.cancel()
	m.stopCh = nil
	m.running = false
	m.mu.Unlock()

	// Wait for background workers to finish
	m.wg.Wait()
	log.Info("[Scheduler] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) worker(ctx context.Context, j *job, stopCh chan struct{}) {
	defer m.wg.Done()
	interval := m.intervalOf(j)
	log.Infof("[Scheduler] Started %s worker (interval: %v)", j.name, interval)

	// A timer instead of a ticker so cadence changes in the settings apply after the next run.
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-stopCh:
			log.Infof("[Scheduler] %s worker stopping", j.name)
			return
		case <-timer.C:
			if _, err := m.runLocked(ctx, j); err != nil && !errors.Is(err, ErrLocked) && !errors.Is(err, context.Canceled) {
				log.Errorf("[Scheduler] %s run failed: %v", j.name, err)
			}
			timer.Reset(m.intervalOf(j))
		}
	}
}

func (m *Manager) intervalOf(j *job) time.Duration {
	interval := j.interval(m.settings.Get())
	if interval <= 0 {
		interval = time.Minute
	}
	return interval
}

// RunOnce runs the named job now, outside its schedule.
func (m *Manager) RunOnce(ctx context.Context, name string) (billing.SweepResult, error) {
	m.mu.Lock()
	j, ok := m.jobs[name]
	m.mu.Unlock()
	if !ok {
		return billing.SweepResult{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return m.runLocked(ctx, j)
}

// RunAll runs every lifecycle sweep once, in lifecycle order. The archive job is not included.
func (m *Manager) RunAll(ctx context.Context) ([]billing.SweepResult, error) {
	var results []billing.SweepResult
	for _, name := range []string{JobSubscriptions, JobGracePeriods, JobFreeAccess} {
		res, err := m.RunOnce(ctx, name)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (m *Manager) runLocked(ctx context.Context, j *job) (billing.SweepResult, error) {
	token, ok, err := m.locker.Acquire(ctx, j.name, m.lockTTL)
	if err != nil {
		return billing.SweepResult{}, fmt.Errorf("acquire lock for %s: %w", j.name, err)
	}
	if !ok {
		log.Debugf("[Scheduler] %s is locked by another run, skipping", j.name)
		return billing.SweepResult{}, fmt.Errorf("%w: %s", ErrLocked, j.name)
	}
	defer func() {
		// The run context may already be cancelled on shutdown.
		if err := m.locker.Release(context.Background(), j.name, token); err != nil {
			log.Warnf("[Scheduler] Failed to release lock for %s: %v", j.name, err)
		}
	}()

	log.Debugf("[Scheduler] Running %s", j.name)
	return j.run(ctx)
}

var (
	globalManager *Manager
	globalMu      sync.RWMutex
)

// SetManager installs the process-wide manager used by the HTTP handlers.
func SetManager(m *Manager) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalManager = m
}

// GetManager returns the manager installed with SetManager, or nil.
func GetManager() *Manager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}
