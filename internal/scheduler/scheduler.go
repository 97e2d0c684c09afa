// Package scheduler maintains the three periodic jobs and the listing-insert
// event hook named in spec.md §4.8: inbox polling, centroid-and-drift
// evaluation, store backups, and synchronous post-insert classification.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"ronin/internal/archetype"
	"ronin/internal/centroid"
	"ronin/internal/external"
	"ronin/internal/outcome"
	"ronin/internal/rewrite"
	"ronin/internal/shared/storage/object"
	"ronin/internal/shared/telemetry"
	"ronin/internal/store"
)

const (
	lockTTL = 10 * time.Minute

	kindInboxPoll = "inbox_poll"
	kindDrift     = "centroid_drift"
	kindBackup    = "backup"

	// DefaultInboxSchedule matches spec.md §4.8's default of every 15 minutes.
	DefaultInboxSchedule = "*/15 * * * *"
	// DefaultDriftSchedule matches spec.md §4.8's default of weekly.
	DefaultDriftSchedule = "0 3 * * 0"
	// DefaultBackupSchedule runs the snapshot job nightly.
	DefaultBackupSchedule = "0 2 * * *"
)

// Scheduler owns the cron registration, the at-most-one-per-kind lock, and
// the collaborators each job needs.
type Scheduler struct {
	Store      store.Store
	Classifier *archetype.Classifier
	Inbox      external.Inbox
	Processor  *outcome.Processor
	Centroid   *centroid.Engine
	Rewrite    *rewrite.Trigger
	Backups    object.ObjectStore

	Locker Locker
	Now    func() time.Time

	MarketShiftThreshold float64
	StalenessThreshold   float64

	cron *cron.Cron
}

// New constructs a Scheduler with sensible defaults for the threshold
// fields and an in-process lock when the caller has no Redis configured.
func New(s store.Store, classifier *archetype.Classifier, inbox external.Inbox, processor *outcome.Processor, centroidEngine *centroid.Engine, rewriteTrigger *rewrite.Trigger, backups object.ObjectStore) *Scheduler {
	return &Scheduler{
		Store:                s,
		Classifier:           classifier,
		Inbox:                inbox,
		Processor:            processor,
		Centroid:             centroidEngine,
		Rewrite:              rewriteTrigger,
		Backups:              backups,
		Locker:               NewInProcessLocker(),
		Now:                  time.Now,
		MarketShiftThreshold: centroid.DefaultShiftThreshold,
		StalenessThreshold:   centroid.DefaultStalenessThreshold,
	}
}

// RedisOrInProcessLocker returns a RedisLocker when addr is non-empty,
// falling back to an InProcessLocker for single-instance deployments.
func RedisOrInProcessLocker(addr, password string, db int) Locker {
	if addr == "" {
		return NewInProcessLocker()
	}
	return NewRedisLocker(addr, password, db)
}

// Register builds the cron schedule. Call Start to begin running it.
func (s *Scheduler) Register(inboxSchedule, driftSchedule, backupSchedule string) error {
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(orDefault(inboxSchedule, DefaultInboxSchedule), s.runLocked(kindInboxPoll, s.PollInbox)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(orDefault(driftSchedule, DefaultDriftSchedule), s.runLocked(kindDrift, s.RunCentroidAndDrift)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(orDefault(backupSchedule, DefaultBackupSchedule), s.runLocked(kindBackup, s.RunBackup)); err != nil {
		return err
	}
	return nil
}

// Start begins running the registered cron schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron schedule and returns a context that is done once any
// in-flight job has returned; Stop itself does not wait.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// runLocked wraps a job so that a tick arriving while the previous run of
// the same kind is still in flight is skipped, not queued, per spec.md
// §4.8's at-most-one-at-a-time rule.
func (s *Scheduler) runLocked(kind string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx := context.Background()
		acquired, err := s.Locker.TryAcquire(ctx, kind, lockTTL)
		if err != nil {
			telemetry.Error("scheduler.lock_error", map[string]any{"kind": kind, "error": err.Error()})
			return
		}
		if !acquired {
			telemetry.Info("scheduler.tick_skipped", map[string]any{"kind": kind})
			return
		}
		defer s.Locker.Release(ctx, kind)

		start := s.now()
		if err := fn(ctx); err != nil {
			telemetry.Error("scheduler.job_failed", map[string]any{
				"kind":        kind,
				"duration_ms": s.now().Sub(start).Milliseconds(),
				"error":       err.Error(),
			})
			return
		}
		telemetry.Info("scheduler.job_completed", map[string]any{
			"kind":        kind,
			"duration_ms": s.now().Sub(start).Milliseconds(),
		})
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
