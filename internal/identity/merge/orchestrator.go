// Package merge performs the transactional consolidation of duplicate
// accounts into one canonical account.
package merge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mariner/internal/identity/models"
	"mariner/internal/identity/store"
	"mariner/internal/platform/metrics"
	dErrors "mariner/pkg/domain-errors"
	"mariner/pkg/platform/sentinel"
	"mariner/pkg/requestcontext"
)

// Orchestrator executes merge decisions. Every merge runs as a single
// all-or-nothing transaction: a failure at any step leaves no partial
// reassignment or archival behind.
type Orchestrator struct {
	store   store.MergeStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs an Orchestrator.
func New(mergeStore store.MergeStore, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{store: mergeStore, logger: logger, metrics: m}
}

// Merge consolidates the decision's duplicates into the primary account and
// returns the primary's post-merge state.
//
// A missing primary is a hard NotFound before any write. A missing or
// already-archived duplicate is skipped silently, which makes re-running the
// same decision safe: the second run finds the duplicates archived and sums
// nothing twice. Any other failure rolls the whole transaction back and
// surfaces as a merge failure.
func (o *Orchestrator) Merge(ctx context.Context, decision models.MergeDecision) (*models.Account, error) {
	if decision.PrimaryID.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "primary account id required")
	}
	if len(decision.DuplicateIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one duplicate account id required")
	}
	switch decision.Strategy {
	case models.StrategyKeepPrimary, models.StrategyMergeData:
	default:
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "strategy %q cannot be orchestrated", decision.Strategy)
	}

	now := requestcontext.Now(ctx)
	start := time.Now()
	var merged *models.Account

	err := o.store.RunInTx(ctx, func(tx store.MergeTx) error {
		primary, err := tx.GetForMerge(ctx, decision.PrimaryID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "primary account not found")
		}
		if err != nil {
			return err
		}

		archived := 0
		for _, dupID := range decision.DuplicateIDs {
			if dupID == decision.PrimaryID {
				return dErrors.New(dErrors.CodeBadRequest, "primary account cannot be its own duplicate")
			}
			dup, err := tx.GetForMerge(ctx, dupID)
			if errors.Is(err, sentinel.ErrNotFound) {
				// Already merged or cleaned up by an earlier run.
				continue
			}
			if err != nil {
				return err
			}

			if decision.Strategy == models.StrategyMergeData {
				mergeInto(primary, dup)
			}
			if err := tx.ReassignReferences(ctx, dupID, primary.ID); err != nil {
				return err
			}
			if err := tx.Archive(ctx, dupID, now); err != nil {
				return err
			}
			archived++
		}

		primary.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, primary); err != nil {
			return err
		}

		o.logger.Info("accounts merged",
			"primary_id", primary.ID.String(),
			"duplicates_requested", len(decision.DuplicateIDs),
			"duplicates_archived", archived,
			"strategy", string(decision.Strategy),
		)
		merged = primary
		return nil
	})

	if o.metrics != nil {
		o.metrics.MergeDurationSecs.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if o.metrics != nil {
			o.metrics.MergesTotal.WithLabelValues("rolled_back").Inc()
		}
		if dErrors.HasCode(err, dErrors.CodeNotFound) || dErrors.HasCode(err, dErrors.CodeBadRequest) {
			return nil, err
		}
		o.logger.Error("merge transaction rolled back", "primary_id", decision.PrimaryID.String(), "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeMergeFailed, "merge failed")
	}
	if o.metrics != nil {
		o.metrics.MergesTotal.WithLabelValues("committed").Inc()
	}
	return merged, nil
}

// mergeInto applies COALESCE semantics over the mergeable profile fields:
// the primary's value is never overwritten if present, otherwise the
// duplicate's value is taken. Activity counters are summed, not coalesced.
func mergeInto(primary, dup *models.Account) {
	primary.Rank = coalesce(primary.Rank, dup.Rank)
	primary.Ship = coalesce(primary.Ship, dup.Ship)
	primary.IMO = coalesce(primary.IMO, dup.IMO)
	primary.City = coalesce(primary.City, dup.City)
	primary.Country = coalesce(primary.Country, dup.Country)
	primary.Latitude = coalesce(primary.Latitude, dup.Latitude)
	primary.Longitude = coalesce(primary.Longitude, dup.Longitude)
	primary.WhatsAppNumber = coalesce(primary.WhatsAppNumber, dup.WhatsAppNumber)
	primary.VesselType = coalesce(primary.VesselType, dup.VesselType)

	primary.QuestionCount += dup.QuestionCount
	primary.AnswerCount += dup.AnswerCount
	primary.LoginCount += dup.LoginCount
}

func coalesce[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}
