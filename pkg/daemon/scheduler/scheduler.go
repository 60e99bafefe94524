// Package scheduler runs the day rollover on a cron schedule so a quiet day
// still gets its summary.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"

	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
)

// DefaultSchedule fires one minute after local midnight.
const DefaultSchedule = "1 0 * * *"

// ErrNotStarted is returned by RunNow before Start.
var ErrNotStarted = errors.New("scheduler not started")

// Roller is what the scheduler drives.
type Roller interface {
	// Rollover flushes and resets the tally when the day changed and
	// reports whether it did.
	Rollover() bool
}

// Scheduler owns the rollover job.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	roller   Roller
	loc      *time.Location
	now      func() time.Time
	logger   *logging.Logger

	mu      sync.Mutex
	sched   gocron.Scheduler
	job     gocron.Job
	lastRun time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the zone the cron spec is evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.loc = loc
	}
}

// WithClock overrides the time source used by NextRun.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Parse validates a five-field cron spec.
func Parse(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// New returns a stopped Scheduler. An empty spec uses DefaultSchedule.
func New(spec string, roller Roller, opts ...Option) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := Parse(spec)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		spec:     spec,
		schedule: schedule,
		roller:   roller,
		loc:      time.Local,
		now:      time.Now,
		logger:   logging.Get("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Spec returns the cron spec in use.
func (s *Scheduler) Spec() string {
	return s.spec
}

// Start registers the rollover job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched != nil {
		return nil
	}

	sched, err := gocron.NewScheduler(gocron.WithLocation(s.loc))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	job, err := sched.NewJob(
		gocron.CronJob(s.spec, false),
		gocron.NewTask(s.run),
		gocron.WithName("rollover"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("failed to register rollover job: %w", err)
	}

	sched.Start()
	s.sched, s.job = sched, job
	s.logger.Info("rollover scheduled", "schedule", s.spec, "next", s.nextRunLocked())
	return nil
}

func (s *Scheduler) run() {
	rolled := s.roller.Rollover()

	s.mu.Lock()
	s.lastRun = s.now()
	s.mu.Unlock()

	s.logger.Debug("rollover check", "rolled", rolled)
}

// RunNow triggers the rollover job immediately.
func (s *Scheduler) RunNow() error {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()

	if job == nil {
		return ErrNotStarted
	}
	return job.RunNow()
}

// LastRun returns when the job last ran, or the zero time.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// NextRun returns the next time the rollover job fires.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunLocked()
}

func (s *Scheduler) nextRunLocked() time.Time {
	return s.schedule.Next(s.now().In(s.loc))
}

// Stop shuts the scheduler down and waits for a running job.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	sched := s.sched
	s.sched, s.job = nil, nil
	s.mu.Unlock()

	if sched == nil {
		return nil
	}
	return sched.Shutdown()
}
