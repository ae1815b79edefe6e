package models

import (
	"fmt"

	id "mariner/pkg/domain"
)

// MergeStrategy selects how duplicate data is handled during a merge.
type MergeStrategy string

const (
	// StrategyKeepPrimary archives duplicates and reassigns their references
	// without touching the primary's fields.
	StrategyKeepPrimary MergeStrategy = "keep_primary"
	// StrategyMergeData coalesces profile fields (primary wins if non-null)
	// and sums activity counters before archival.
	StrategyMergeData MergeStrategy = "merge_data"
	// StrategyManualReview defers the merge to an operator; no writes occur.
	StrategyManualReview MergeStrategy = "manual_review"
)

// ParseMergeStrategy validates the wire form of a strategy.
func ParseMergeStrategy(raw string) (MergeStrategy, error) {
	switch MergeStrategy(raw) {
	case StrategyKeepPrimary, StrategyMergeData, StrategyManualReview:
		return MergeStrategy(raw), nil
	default:
		return "", fmt.Errorf("unknown merge strategy %q", raw)
	}
}

// MergeDecision is the transient input to the merge orchestrator. It is
// consumed once and never persisted.
type MergeDecision struct {
	PrimaryID    id.AccountID
	DuplicateIDs []id.AccountID
	Strategy     MergeStrategy
}
