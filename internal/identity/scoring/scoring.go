// Package scoring deduplicates raw candidate rows and ranks them by a
// 0-100 profile completeness heuristic.
package scoring

import (
	"math"
	"sort"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
)

// totalFieldCount is the fixed profile field list the score is computed
// over: full name, email, alternate contact, rank, ship, IMO, city, country,
// coordinates (lat+lon as one field), WhatsApp number, vessel type.
const totalFieldCount = 11

// Recommendation strings surfaced with ranked candidates.
const (
	RecommendKeep    = "RECOMMENDED - most complete profile"
	RecommendMerge   = "MERGE - can be consolidated"
	RecommendArchive = "ARCHIVE - incomplete"
)

// Score computes the completeness score for one account, clamped to [0,100].
// Activity on the account earns a small bonus so an active thin profile
// outranks an idle thin one.
func Score(a *models.Account) int {
	populated := 0
	for _, filled := range []bool{
		a.FullName != "",
		a.Email != "",
		a.AltContact != "",
		a.Rank != nil,
		a.Ship != nil,
		a.IMO != nil,
		a.City != nil,
		a.Country != nil,
		a.Latitude != nil && a.Longitude != nil,
		a.WhatsAppNumber != nil,
		a.VesselType != nil,
	} {
		if filled {
			populated++
		}
	}

	bonus := 0
	if a.QuestionCount > 0 {
		bonus += 2
	}
	if a.AnswerCount > 0 {
		bonus += 2
	}
	if a.LoginCount > 1 {
		bonus++
	}

	score := int(math.Round(100 * float64(populated+bonus) / totalFieldCount))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ClassifySource tags where the account most plausibly originated.
func ClassifySource(a *models.Account) models.Source {
	if a.QuestionCount > 0 || a.AnswerCount > 0 {
		return models.SourceQaaqMain
	}
	hasContact := a.AltContact != "" || a.WhatsAppNumber != nil
	if hasContact && a.FullName != "" {
		return models.SourceWhatsAppBot
	}
	return models.SourceLocalApp
}

// Recommend maps a score to the human-readable merge suggestion.
func Recommend(score int) string {
	switch {
	case score >= 80:
		return RecommendKeep
	case score < 30:
		return RecommendArchive
	default:
		return RecommendMerge
	}
}

// Rank deduplicates raw rows by canonical id (first occurrence wins) and
// returns candidates sorted by completeness descending, ties broken by
// discovery order. The first entry is the default primary nomination.
func Rank(raw []*models.Account) []models.CandidateAccount {
	seen := make(map[id.AccountID]struct{}, len(raw))
	candidates := make([]models.CandidateAccount, 0, len(raw))
	for _, a := range raw {
		if a == nil {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		score := Score(a)
		candidates = append(candidates, models.CandidateAccount{
			Account:        *a,
			Completeness:   score,
			Source:         ClassifySource(a),
			Recommendation: Recommend(score),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Completeness > candidates[j].Completeness
	})
	return candidates
}
