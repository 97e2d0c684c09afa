package batch

import (
	"context"
	"time"

	"ronin/internal/errkind"
	"ronin/internal/external"
	"ronin/internal/shared/metrics"
	"ronin/internal/store"
	"ronin/internal/variant"
)

// ExecutionResult is the outcome of running a Plan against a Submitter:
// how many applications were actually recorded as submitted, how many
// failed (transiently or permanently), and the per-item detail for callers
// that need it (the CLI's batch command reports this verbatim).
type ExecutionResult struct {
	Submitted int
	Failed    int
	Results   []ItemResult
}

// ItemResult pairs one plan item with the application record it produced
// and, on failure, the reason the Submitter gave.
type ItemResult struct {
	Item        PlanItem
	Application store.Application
	Err         error
}

// Execute runs every item in plan against submitter, recording an
// Application for each attempt regardless of outcome. A Submitter failure
// is captured on the Application's SubmitError field rather than aborting
// the batch — later items still run, and the batch may still close.
func Execute(ctx context.Context, repo store.Store, plan Plan, submitter external.Submitter, now time.Time) (ExecutionResult, error) {
	var result ExecutionResult
	for _, item := range plan.Items {
		existing, found, err := repo.GetApplicationByListingAndBatch(ctx, item.Listing.ID, plan.BatchID)
		if err != nil {
			return result, errkind.New(errkind.Internal, "batch.Execute: check existing application", err)
		}
		if found {
			result.Results = append(result.Results, ItemResult{Item: item, Application: existing})
			if existing.SubmitError == "" {
				result.Submitted++
			} else {
				result.Failed++
			}
			continue
		}

		sel := variant.Select(item.Listing.ArchetypeScores, nil, variant.DefaultThreshold)

		submission, err := submitter.Submit(ctx, external.SubmissionRequest{
			ListingExternalID: item.Listing.ExternalID,
			ProfileState:      string(plan.Archetype),
			VariantPath:       item.VariantPath,
			VariantIdentifier: item.VariantIdentifier,
		})
		if err != nil {
			submission = external.SubmissionResult{Success: false, Failure: external.FailureTransient, Detail: err.Error()}
		}

		app := store.Application{
			ListingID:         item.Listing.ID,
			VariantArchetype:  plan.Archetype,
			VersionIdentifier: item.VariantIdentifier,
			ProfileState:      plan.Archetype,
			BatchID:           plan.BatchID,
			SubmittedAt:       now,
			SelectionScores:   item.Listing.ArchetypeScores,
			NeedsReview:       sel.NeedsReview,
		}
		if !submission.Success {
			app.SubmitError = string(submission.Failure) + ": " + submission.Detail
		}

		created, err := repo.CreateApplication(ctx, app)
		if err != nil {
			return result, errkind.New(errkind.Internal, "batch.Execute: record application", err)
		}

		result.Results = append(result.Results, ItemResult{Item: item, Application: created, Err: submitErr(submission)})
		if submission.Success {
			result.Submitted++
			metrics.IncApplicationSubmitted(string(plan.Archetype))
		} else {
			result.Failed++
			metrics.IncApplicationFailed(string(plan.Archetype))
		}
	}
	return result, nil
}

func submitErr(result external.SubmissionResult) error {
	if result.Success {
		return nil
	}
	kind := errkind.TransientExternal
	if result.Failure == external.FailurePermanent {
		kind = errkind.PermanentExternal
	}
	return errkind.New(kind, "submitter", errString(result.Detail))
}

type errString string

func (e errString) Error() string { return string(e) }
