// Package scheduler drives the orchestrator on a periodic, non-overlapping
// schedule: a single goroutine loop that never starts tick N+1 until tick
// N's call to orchestrator.RunCycle has returned, grounded on the
// teacher's Scheduler.tick (internal/server/scheduler.go) adapted from
// per-topic cron due-checking to this system's single recurring job.
package scheduler

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/riverwatch/riverwatch/internal/model"
	"github.com/riverwatch/riverwatch/internal/telemetry"
)

// Orchestrator is the narrow slice of *orchestrator.Orchestrator the
// scheduler drives, kept as an interface so tests can supply a fake.
type Orchestrator interface {
	RunCycle(ctx context.Context) model.AgentRunLog
}

// Scheduler fires one cycle per tick, serialized, with an optional
// cross-instance distributed lock so that running two scheduler processes
// against the same database never double-fires a cycle.
type Scheduler struct {
	orch     Orchestrator
	clock    clockwork.Clock
	rdb      *redis.Client
	cronExpr string
	interval time.Duration
	deadline time.Duration
	lockKey  string
	lockTTL  time.Duration
	logger   *log.Logger
	m        *telemetry.Metrics
}

// Config pins the scheduler's timing and locking parameters.
type Config struct {
	IntervalSeconds int
	DeadlineSeconds int
	CronExpr        string
	LockKey         string
	LockTTLSeconds  int
}

// New builds a Scheduler. rdb may be nil, disabling the distributed lock
// (safe for a single-instance deployment or for tests).
func New(orch Orchestrator, clock clockwork.Clock, rdb *redis.Client, cfg Config, m *telemetry.Metrics, logger *log.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = telemetry.NewComponentLogger("SCHED")
	}
	lockKey := cfg.LockKey
	if lockKey == "" {
		lockKey = "riverwatch:sched:lock"
	}
	lockTTL := time.Duration(cfg.LockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Scheduler{
		orch:     orch,
		clock:    clock,
		rdb:      rdb,
		cronExpr: cfg.CronExpr,
		interval: time.Duration(cfg.IntervalSeconds) * time.Second,
		deadline: time.Duration(cfg.DeadlineSeconds) * time.Second,
		lockKey:  lockKey,
		lockTTL:  lockTTL,
		logger:   logger,
		m:        m,
	}
}

// Run blocks, firing one cycle per tick until ctx is cancelled. Callers
// wrap ctx with signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
// for graceful shutdown, matching the ETL pipeline's shutdown convention.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Printf("scheduler starting, interval=%s cron=%q", s.interval, s.cronExpr)
	for {
		wait := s.nextWait()
		timer := s.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Printf("scheduler stopping: %v", ctx.Err())
			return
		case <-timer.Chan():
		}
		s.tick(ctx)
	}
}

// nextWait computes the delay until the next fire time. A configured
// cron expression takes precedence over the plain interval; an invalid
// cron expression falls back to the interval, matching the teacher's
// isDue fallback-to-daily behaviour.
func (s *Scheduler) nextWait() time.Duration {
	if s.cronExpr == "" {
		return s.interval
	}
	expr, err := cronexpr.Parse(s.cronExpr)
	if err != nil {
		s.logger.Printf("invalid cron_expr %q, falling back to interval: %v", s.cronExpr, err)
		return s.interval
	}
	now := s.clock.Now()
	next := expr.Next(now)
	if next.IsZero() {
		return s.interval
	}
	return next.Sub(now)
}

// tick acquires the distributed lock (if configured), jitters briefly to
// avoid a thundering herd across instances that woke at the same moment,
// then runs exactly one cycle to completion before returning.
func (s *Scheduler) tick(ctx context.Context) {
	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, s.lockKey, "1", s.lockTTL).Result()
		if err != nil {
			s.logger.Printf("lock acquire failed: %v", err)
			return
		}
		if !ok {
			if s.m != nil {
				s.m.SchedulerLockContended.Inc()
			}
			s.logger.Printf("lock %s held by another instance, skipping tick", s.lockKey)
			return
		}
		defer s.rdb.Del(ctx, s.lockKey)
	}

	jitter := time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
	select {
	case <-ctx.Done():
		return
	case <-s.clock.After(jitter):
	}

	cycleCtx := ctx
	var cancel context.CancelFunc
	if s.deadline > 0 {
		cycleCtx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}

	entry := s.orch.RunCycle(cycleCtx)
	if entry.Aborted {
		s.logger.Printf("cycle %s aborted: %s", entry.RunID, entry.AbortCause)
		return
	}
	s.logger.Printf("cycle %s complete: %d incidents created, %d duplicate, %d clusters",
		entry.RunID, entry.IncidentsCreated, entry.IncidentsDuplicate, entry.ClustersFound)
}
