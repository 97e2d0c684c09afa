package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ronin/internal/shared/telemetry"
	"ronin/internal/store"
)

// RunBackup implements the periodic backups job: a point-in-time snapshot of
// the store, landed in the configured object store so it survives the host
// the core runs on. The snapshot is a JSON export of the funnel-relevant
// entities rather than a binary file-engine copy, so it works identically
// against the Postgres and SQLite backends.
func (s *Scheduler) RunBackup(ctx context.Context) error {
	if s.Backups == nil {
		return nil
	}

	snapshot, err := s.buildSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	key := fmt.Sprintf("backups/%s.json", s.Now().UTC().Format("20060102T150405Z"))
	if _, err := s.Backups.SaveWithKey(ctx, key, "application/json", bytes.NewReader(snapshot)); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	telemetry.Info("scheduler.backup.completed", map[string]any{"key": key, "bytes": len(snapshot)})
	return nil
}

type storeSnapshot struct {
	TakenAt        time.Time              `json:"taken_at"`
	Batches        []store.Batch          `json:"batches"`
	ResumeVariants []store.ResumeVariant  `json:"resume_variants"`
	Alerts         []store.DriftAlert     `json:"unacknowledged_alerts"`
	Funnel         store.FunnelReport     `json:"funnel"`
}

func (s *Scheduler) buildSnapshot(ctx context.Context) ([]byte, error) {
	openBatch, hasOpen, err := s.Store.GetOpenBatch(ctx)
	if err != nil {
		return nil, err
	}
	batches := []store.Batch{}
	if hasOpen {
		batches = append(batches, openBatch)
	}

	variants, err := s.Store.ListResumeVariants(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := s.Store.ListUnacknowledgedAlerts(ctx)
	if err != nil {
		return nil, err
	}
	funnel, err := s.Store.FunnelMetrics(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := storeSnapshot{
		TakenAt:        s.Now(),
		Batches:        batches,
		ResumeVariants: variants,
		Alerts:         alerts,
		Funnel:         funnel,
	}
	return json.MarshalIndent(snapshot, "", "  ")
}
