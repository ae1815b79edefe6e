package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mariner/internal/identity/models"
	"mariner/internal/identity/store"
	id "mariner/pkg/domain"
	dErrors "mariner/pkg/domain-errors"
	"mariner/pkg/requestcontext"
)

type OrchestratorSuite struct {
	suite.Suite
	store *store.MemoryStore
	orch  *Orchestrator
	ctx   context.Context
	now   time.Time
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.store = store.NewMemory()
	s.orch = New(s.store, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	s.now = time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *OrchestratorSuite) seed(accountID, email string, mutate func(*models.Account)) id.AccountID {
	a := &models.Account{
		ID:       id.AccountID(accountID),
		FullName: "Deepak Iyer",
		Email:    email,
	}
	if mutate != nil {
		mutate(a)
	}
	s.Require().NoError(s.store.Create(context.Background(), a))
	return a.ID
}

func (s *OrchestratorSuite) TestMergeDataCoalescesAndSums() {
	rank, ship, city := "Chief Officer", "MV Ocean Pearl", "Mumbai"
	primaryID := s.seed("+919035283755", "iyer@oceanic.example", func(a *models.Account) {
		a.Rank = &rank
		a.QuestionCount = 4
		a.LoginCount = 12
	})
	dupID := s.seed("+918888888888", "deepak@wa.example", func(a *models.Account) {
		other := "Second Officer"
		a.Rank = &other
		a.Ship = &ship
		a.City = &city
		a.QuestionCount = 3
		a.AnswerCount = 7
		a.LoginCount = 2
	})
	s.store.AddReference(store.RefQuestionAuthor, dupID)
	s.store.AddReference(store.RefChatSender, dupID)

	merged, err := s.orch.Merge(s.ctx, models.MergeDecision{
		PrimaryID:    primaryID,
		DuplicateIDs: []id.AccountID{dupID},
		Strategy:     models.StrategyMergeData,
	})
	s.Require().NoError(err)

	s.Equal("Chief Officer", *merged.Rank) // primary wins over the duplicate's rank
	s.Equal(ship, *merged.Ship)
	s.Equal(city, *merged.City)
	s.Equal(7, merged.QuestionCount)
	s.Equal(7, merged.AnswerCount)
	s.Equal(14, merged.LoginCount)
	s.Equal(s.now, merged.UpdatedAt)

	s.Equal(0, s.store.ReferencesFor(dupID))
	s.Equal(2, s.store.ReferencesFor(primaryID))

	_, err = s.store.FindByID(context.Background(), dupID)
	s.Error(err, "archived duplicate must not be findable")

	stored, err := s.store.FindByID(context.Background(), primaryID)
	s.Require().NoError(err)
	s.Equal(7, stored.QuestionCount)
}

func (s *OrchestratorSuite) TestKeepPrimaryArchivesWithoutFieldMerge() {
	primaryID := s.seed("+919035283755", "iyer@oceanic.example", func(a *models.Account) {
		a.QuestionCount = 4
	})
	ship := "MV Ocean Pearl"
	dupID := s.seed("+918888888888", "deepak@wa.example", func(a *models.Account) {
		a.Ship = &ship
		a.QuestionCount = 3
	})
	s.store.AddReference(store.RefAnswerAuthor, dupID)

	merged, err := s.orch.Merge(s.ctx, models.MergeDecision{
		PrimaryID:    primaryID,
		DuplicateIDs: []id.AccountID{dupID},
		Strategy:     models.StrategyKeepPrimary,
	})
	s.Require().NoError(err)

	s.Nil(merged.Ship, "keep_primary must not pull fields from the duplicate")
	s.Equal(4, merged.QuestionCount, "keep_primary must not sum counters")
	s.Equal(0, s.store.ReferencesFor(dupID), "references move regardless of strategy")
	s.Equal(1, s.store.ReferencesFor(primaryID))

	_, err = s.store.FindByID(context.Background(), dupID)
	s.Error(err)
}

func (s *OrchestratorSuite) TestMissingPrimaryFailsBeforeAnyWrite() {
	dupID := s.seed("+918888888888", "deepak@wa.example", func(a *models.Account) {
		a.AnswerCount = 5
	})

	_, err := s.orch.Merge(s.ctx, models.MergeDecision{
		PrimaryID:    id.AccountID("+910000000000"),
		DuplicateIDs: []id.AccountID{dupID},
		Strategy:     models.StrategyMergeData,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	dup, err := s.store.FindByID(context.Background(), dupID)
	s.Require().NoError(err, "duplicate must be untouched when the primary is missing")
	s.Equal(5, dup.AnswerCount)
}

func (s *OrchestratorSuite) TestRerunSkipsArchivedDuplicates() {
	primaryID := s.seed("+919035283755", "iyer@oceanic.example", func(a *models.Account) {
		a.QuestionCount = 4
	})
	dupID := s.seed("+918888888888", "deepak@wa.example", func(a *models.Account) {
		a.QuestionCount = 3
	})

	decision := models.MergeDecision{
		PrimaryID:    primaryID,
		DuplicateIDs: []id.AccountID{dupID},
		Strategy:     models.StrategyMergeData,
	}
	_, err := s.orch.Merge(s.ctx, decision)
	s.Require().NoError(err)

	merged, err := s.orch.Merge(s.ctx, decision)
	s.Require().NoError(err, "re-running the same decision must succeed")
	s.Equal(7, merged.QuestionCount, "counters must not be summed twice")
}

func (s *OrchestratorSuite) TestFailureRollsBackEverything() {
	primaryID := s.seed("+919035283755", "iyer@oceanic.example", func(a *models.Account) {
		a.QuestionCount = 4
	})
	dupID := s.seed("+918888888888", "deepak@wa.example", func(a *models.Account) {
		a.QuestionCount = 3
	})
	s.store.AddReference(store.RefQuestionAuthor, dupID)

	orch := New(&failingStore{inner: s.store}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	_, err := orch.Merge(s.ctx, models.MergeDecision{
		PrimaryID:    primaryID,
		DuplicateIDs: []id.AccountID{dupID},
		Strategy:     models.StrategyMergeData,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeMergeFailed))

	dup, err := s.store.FindByID(context.Background(), dupID)
	s.Require().NoError(err, "duplicate must survive a rolled-back merge")
	s.Equal(3, dup.QuestionCount)
	s.Equal(1, s.store.ReferencesFor(dupID))

	primary, err := s.store.FindByID(context.Background(), primaryID)
	s.Require().NoError(err)
	s.Equal(4, primary.QuestionCount)
}

func (s *OrchestratorSuite) TestDecisionValidation() {
	primaryID := s.seed("+919035283755", "iyer@oceanic.example", nil)

	cases := []struct {
		name     string
		decision models.MergeDecision
	}{
		{"no duplicates", models.MergeDecision{PrimaryID: primaryID, Strategy: models.StrategyMergeData}},
		{"empty primary", models.MergeDecision{DuplicateIDs: []id.AccountID{"+918888888888"}, Strategy: models.StrategyMergeData}},
		{"primary listed as duplicate", models.MergeDecision{PrimaryID: primaryID, DuplicateIDs: []id.AccountID{primaryID}, Strategy: models.StrategyMergeData}},
		{"manual review", models.MergeDecision{PrimaryID: primaryID, DuplicateIDs: []id.AccountID{"+918888888888"}, Strategy: models.StrategyManualReview}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.orch.Merge(s.ctx, tc.decision)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		})
	}
}

// failingStore injects a failure after the duplicate has been loaded, so the
// rollback path is exercised mid-transaction.
type failingStore struct {
	inner *store.MemoryStore
}

func (f *failingStore) RunInTx(ctx context.Context, fn func(tx store.MergeTx) error) error {
	return f.inner.RunInTx(ctx, func(tx store.MergeTx) error {
		return fn(&failingTx{MergeTx: tx})
	})
}

type failingTx struct {
	store.MergeTx
}

func (f *failingTx) ReassignReferences(ctx context.Context, from, to id.AccountID) error {
	return errors.New("reference table unavailable")
}
