package batch

import (
	"context"
	"fmt"

	"ronin/internal/errkind"
	"ronin/internal/store"
)

// QueueView is the list_queue() response: per-archetype counts and average
// top-scores, plus how many listings are sitting in intelligence-only.
type QueueView struct {
	ByArchetype                 []store.QueueSummary
	IntelligenceOnlyByArchetype map[store.Archetype]int
}

// Coordinator owns the batch lifecycle against a Store. It holds no
// in-process state of its own — the one-open-batch invariant lives in the
// Store's single-row lock, so a Coordinator is safe to construct per
// request.
type Coordinator struct {
	Store store.Store
}

// ListQueue implements list_queue(): per-archetype counts/average top score
// for listings eligible for a batch, plus the intelligence-only count.
func (c *Coordinator) ListQueue(ctx context.Context) (QueueView, error) {
	summaries, err := c.Store.ListQueueSummary(ctx)
	if err != nil {
		return QueueView{}, errkind.New(errkind.Internal, "batch.ListQueue: summary", err)
	}
	funnel, err := c.Store.FunnelMetrics(ctx)
	if err != nil {
		return QueueView{}, errkind.New(errkind.Internal, "batch.ListQueue: funnel", err)
	}
	intelligenceOnly := make(map[store.Archetype]int, len(funnel.ByArchetype))
	for archetype, f := range funnel.ByArchetype {
		intelligenceOnly[archetype] = f.IntelligenceOnly
	}
	return QueueView{ByArchetype: summaries, IntelligenceOnlyByArchetype: intelligenceOnly}, nil
}

// OpenBatch implements open_batch(archetype): the caller must assert the
// externally advertised profile state equals archetype — the Coordinator
// has no way to observe that state itself, so a mismatched assertion is
// rejected before it ever reaches the Store's lock.
func (c *Coordinator) OpenBatch(ctx context.Context, archetype store.Archetype, assertedProfileState store.Archetype) (store.Batch, error) {
	if assertedProfileState != archetype {
		return store.Batch{}, errkind.New(errkind.Validation, "batch.OpenBatch",
			fmt.Errorf("asserted profile state %q does not match requested archetype %q", assertedProfileState, archetype))
	}
	batch, err := c.Store.OpenBatch(ctx, archetype)
	if err != nil {
		if err == store.ErrBatchAlreadyOpen {
			return store.Batch{}, errkind.New(errkind.InvariantViolation, "batch.OpenBatch", err)
		}
		return store.Batch{}, errkind.New(errkind.Internal, "batch.OpenBatch", err)
	}
	return batch, nil
}

// CloseBatch implements close_batch(batch): sets the end timestamp and
// frees the lock for the next open_batch call.
func (c *Coordinator) CloseBatch(ctx context.Context, batchID string) (store.Batch, error) {
	batch, err := c.Store.CloseBatch(ctx, batchID)
	if err != nil {
		return store.Batch{}, errkind.New(errkind.Internal, "batch.CloseBatch", err)
	}
	return batch, nil
}

// Plan builds the Plan for the given open batch from the current queue
// candidates and the batch archetype's current résumé variant.
func (c *Coordinator) Plan(ctx context.Context, openBatch store.Batch) (Plan, error) {
	candidates, err := c.Store.ListQueueCandidates(ctx)
	if err != nil {
		return Plan{}, errkind.New(errkind.Internal, "batch.Plan: list candidates", err)
	}
	variantRecord, ok, err := c.Store.GetResumeVariant(ctx, openBatch.Archetype)
	if err != nil {
		return Plan{}, errkind.New(errkind.Internal, "batch.Plan: get variant", err)
	}
	if !ok {
		return Plan{}, errkind.New(errkind.InvariantViolation, "batch.Plan",
			fmt.Errorf("no résumé variant on file for archetype %q", openBatch.Archetype))
	}
	return BuildPlan(openBatch.ID, openBatch.Archetype, candidates, variantRecord), nil
}
