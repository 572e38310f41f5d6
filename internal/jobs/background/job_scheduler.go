package background

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

var ErrJobNotFound = errors.New("job not registered")

// SessionSweeper discards idle form sessions.
type SessionSweeper interface {
	SweepIdle() int
}

// CategoryRefresher reloads the category snapshot.
type CategoryRefresher interface {
	Refresh(ctx context.Context) error
}

// CategoryRefresherFunc adapts a function to CategoryRefresher.
type CategoryRefresherFunc func(ctx context.Context) error

func (f CategoryRefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// JobScheduler runs the service's periodic housekeeping
type JobScheduler struct {
	scheduler    gocron.Scheduler
	sessions     SessionSweeper
	categories   CategoryRefresher
	refreshEvery time.Duration
	logger       *zap.SugaredLogger
	jobs         map[string]gocron.Job
	mu           sync.RWMutex
}

// NewJobScheduler creates the scheduler and registers the built-in jobs.
func NewJobScheduler(sessions SessionSweeper, categories CategoryRefresher, refreshEvery time.Duration, logger *zap.SugaredLogger) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	js := &JobScheduler{
		scheduler:    scheduler,
		sessions:     sessions,
		categories:   categories,
		refreshEvery: refreshEvery,
		logger:       logger,
		jobs:         make(map[string]gocron.Job),
	}

	if err := js.registerJobs(); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	js.logger.Infow("starting background job scheduler", "jobs", len(js.jobs))
	js.scheduler.Start()
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() error {
	// Idle form sessions - every minute
	if err := js.AddJob("form-session-sweep", time.Minute, js.sweepSessions); err != nil {
		return fmt.Errorf("register session sweep: %w", err)
	}

	if js.categories != nil && js.refreshEvery > 0 {
		if err := js.AddJob("category-refresh", js.refreshEvery, js.refreshCategories); err != nil {
			return fmt.Errorf("register category refresh: %w", err)
		}
	}
	return nil
}

func (js *JobScheduler) sweepSessions() {
	if n := js.sessions.SweepIdle(); n > 0 {
		js.logger.Debugw("form session sweep finished", "removed", n)
	}
}

func (js *JobScheduler) refreshCategories() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := js.categories.Refresh(ctx); err != nil {
		js.logger.Warnw("scheduled category refresh failed", "error", err)
	}
}

// AddJob adds a job running task every interval. A running job is never started twice.
func (js *JobScheduler) AddJob(name string, interval time.Duration, task func()) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	js.jobs[name] = job
	js.logger.Debugw("registered job", "name", name, "interval", interval)
	return nil
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	jobs := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		jobs = append(jobs, name)
	}
	return map[string]interface{}{
		"total_jobs": len(js.jobs),
		"jobs":       jobs,
	}
}

// RunNow triggers a registered job outside its schedule.
func (js *JobScheduler) RunNow(name string) error {
	js.mu.RLock()
	job, exists := js.jobs[name]
	js.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return job.RunNow()
}
