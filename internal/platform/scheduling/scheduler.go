// Package scheduling runs periodic background jobs on cron schedules.
package scheduling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc is one run of a scheduled job.
type JobFunc func(ctx context.Context) error

// Scheduler wraps a cron runner. Runs of the same job never overlap; a
// run that is still going when the next tick fires causes that tick to be
// skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	timeout time.Duration

	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

type job struct {
	name    string
	fn      JobFunc
	entryID cron.EntryID
	running sync.Mutex
}

// New creates a scheduler. timeout bounds each run; zero means no bound.
func New(logger zerolog.Logger, timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger.With().Str("component", "scheduler").Logger(),
		timeout: timeout,
		jobs:    make(map[string]*job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers fn under name on a standard five-field cron expression or a
// descriptor such as "@daily".
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	j := &job{name: name, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { s.run(j) })
	if err != nil {
		return fmt.Errorf("schedule job %q with %q: %w", name, spec, err)
	}
	j.entryID = id
	s.jobs[name] = j
	return nil
}

// RunNow executes the named job synchronously, respecting the no-overlap rule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	if !s.run(j) {
		return fmt.Errorf("job %q is already running", name)
	}
	return nil
}

// Next reports the next scheduled run of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(j.entryID).Next, true
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run returns false when the job was skipped because a previous run is
// still in progress.
func (s *Scheduler) run(j *job) (ran bool) {
	if !j.running.TryLock() {
		s.logger.Warn().Str("job", j.name).Msg("previous run still in progress, skipping")
		return false
	}
	defer j.running.Unlock()
	ran = true

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", j.name).Interface("panic", r).Msg("job panicked")
		}
	}()

	if err := j.fn(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", j.name).Dur("duration", time.Since(start)).Msg("job failed")
		return ran
	}
	s.logger.Info().Str("job", j.name).Dur("duration", time.Since(start)).Msg("job completed")
	return ran
}
