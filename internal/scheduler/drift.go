package scheduler

import (
	"context"

	"ronin/internal/shared/telemetry"
)

// RunCentroidAndDrift implements the periodic centroid-and-drift job: compute
// centroids, fire shift and staleness alerts, and evaluate the rewrite
// trigger state per archetype.
func (s *Scheduler) RunCentroidAndDrift(ctx context.Context) error {
	summary, err := s.Centroid.ComputeCentroids(ctx)
	if err != nil {
		return err
	}

	shiftAlerts, err := s.Centroid.CheckMarketShift(ctx, s.MarketShiftThreshold)
	if err != nil {
		return err
	}
	staleAlerts, err := s.Centroid.CheckResumeStaleness(ctx, s.StalenessThreshold)
	if err != nil {
		return err
	}

	triggered, err := s.Rewrite.Check(ctx)
	if err != nil {
		return err
	}

	telemetry.Info("scheduler.drift.evaluated", map[string]any{
		"centroids_computed": summary.Computed,
		"centroids_skipped":  summary.Skipped,
		"shift_alerts":       len(shiftAlerts),
		"stale_alerts":       len(staleAlerts),
		"rewrite_triggered":  len(triggered),
	})
	return nil
}
