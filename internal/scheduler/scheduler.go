package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/eventbus"
)

// DefaultTickInterval is how often the scheduler polls for due jobs.
const DefaultTickInterval = 15 * time.Minute

// KindWorkflowRun is the eventbus.Job.Kind a scheduled fire enqueues. The
// worker pool dequeues it and calls Interpreter.Start with the decoded
// RunPayload.
const KindWorkflowRun = "workflow.run"

// RunPayload is the job-queue payload for a scheduler-triggered workflow
// run.
type RunPayload struct {
	TenantID       string `json:"tenant_id"`
	WorkflowID     string `json:"workflow_id"`
	ScheduledJobID string `json:"scheduled_job_id"`
	Trigger        string `json:"trigger"`
}

// KindWorkflowResume is the eventbus.Job.Kind an elapsed wait.delay deadline
// enqueues. The worker pool dequeues it and calls the orchestrator's
// internal resume endpoint, re-entering the interpreter loop for the
// execution parked on that task.
const KindWorkflowResume = "workflow.resume"

// ResumePayload is the job-queue payload for a due wait.delay resume.
type ResumePayload struct {
	TenantID    string `json:"tenant_id"`
	ExecutionID string `json:"execution_id"`
}

// Store is the narrow persistence surface the scheduler needs. Defined
// locally, the same way workflow.Store is, so this package doesn't import
// internal/store and create a dependency cycle.
type Store interface {
	GetDueScheduledJobs(ctx context.Context, asOf time.Time) ([]*domain.ScheduledJob, error)
	CompareAndSwapSchedule(ctx context.Context, jobID string, expectedNext, lastFire, nextFire time.Time, lastExecID string) (bool, error)
	GetDueWaitingExecutions(ctx context.Context, asOf time.Time) ([]*domain.WorkflowExecution, error)
}

// Scheduler polls Store for due ScheduledJobs and enqueues a workflow run
// for each one it successfully claims.
type Scheduler struct {
	Store  Store
	Bus    eventbus.Bus
	Logger *slog.Logger

	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval overrides the polling interval (default 15 minutes).
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Scheduler.
func New(store Store, bus eventbus.Bus, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		Store:        store,
		Bus:          bus,
		Logger:       logger.With("component", "scheduler"),
		now:          time.Now,
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Start runs the poll loop until ctx is cancelled. Calling Start twice is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.RunOnce(ctx); err != nil {
					s.Logger.Warn("scheduler tick failed", "error", err)
				} else if n > 0 {
					s.Logger.Info("scheduler fired jobs", "count", n)
				}
			}
		}
	}()
}

// Stop blocks until the poll loop exits.
func (s *Scheduler) Stop() {
	s.wg.Wait()
}

// RunOnce claims and enqueues every job due as of now. A job whose next
// fire time has already passed (the scheduler was down, or the previous
// tick was slow) fires exactly once; RunOnce never backfills the missed
// occurrences in between, so a restart after an outage coalesces to a
// single catch-up run per job instead of a burst.
//
// It also enqueues a resume job for every execution parked on a wait.delay
// task whose deadline has elapsed, the poll half of that task's
// suspend-then-resume pause (the interpreter side just persists a
// deadline and returns; nothing re-enters it on its own).
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.clock()
	due, err := s.Store.GetDueScheduledJobs(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due scheduled jobs: %w", err)
	}

	fired := 0
	for _, job := range due {
		if job == nil {
			continue
		}
		if err := s.fire(ctx, job, now); err != nil {
			s.Logger.Warn("scheduled job fire failed", "job_id", job.ID, "error", err)
			continue
		}
		fired++
	}

	waiting, err := s.Store.GetDueWaitingExecutions(ctx, now)
	if err != nil {
		return fired, fmt.Errorf("list due waiting executions: %w", err)
	}
	for _, exec := range waiting {
		if exec == nil {
			continue
		}
		if err := s.fireResume(ctx, exec, now); err != nil {
			s.Logger.Warn("execution resume enqueue failed", "execution_id", exec.ID, "error", err)
			continue
		}
		fired++
	}

	return fired, nil
}

func (s *Scheduler) fireResume(ctx context.Context, exec *domain.WorkflowExecution, now time.Time) error {
	payload, err := json.Marshal(ResumePayload{TenantID: exec.TenantID, ExecutionID: exec.ID})
	if err != nil {
		return fmt.Errorf("marshal resume payload: %w", err)
	}
	if s.Bus == nil {
		return fmt.Errorf("scheduler has no event bus configured")
	}
	return s.Bus.Enqueue(ctx, eventbus.Job{
		ID:         uuid.NewString(),
		TenantID:   exec.TenantID,
		Priority:   eventbus.PriorityDefault,
		Kind:       KindWorkflowResume,
		Payload:    payload,
		EnqueuedAt: now.UTC(),
	})
}

func (s *Scheduler) fire(ctx context.Context, job *domain.ScheduledJob, now time.Time) error {
	next, err := nextFire(job.CronExpr, job.Timezone, now)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	swapped, err := s.Store.CompareAndSwapSchedule(ctx, job.ID, job.NextFireAt, now, next, runID)
	if err != nil {
		return fmt.Errorf("compare and swap schedule: %w", err)
	}
	if !swapped {
		// Another scheduler instance claimed this tick first.
		return nil
	}

	payload, err := json.Marshal(RunPayload{
		TenantID:       job.TenantID,
		WorkflowID:     job.WorkflowID,
		ScheduledJobID: job.ID,
		Trigger:        string(domain.TriggerCron),
	})
	if err != nil {
		return fmt.Errorf("marshal run payload: %w", err)
	}

	if s.Bus == nil {
		return fmt.Errorf("scheduler has no event bus configured")
	}
	return s.Bus.Enqueue(ctx, eventbus.Job{
		ID:         runID,
		TenantID:   job.TenantID,
		Priority:   eventbus.PriorityDefault,
		Kind:       KindWorkflowRun,
		Payload:    payload,
		EnqueuedAt: now.UTC(),
	})
}
