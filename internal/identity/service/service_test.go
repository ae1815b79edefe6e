package service

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mariner/internal/identity/finder"
	"mariner/internal/identity/merge"
	"mariner/internal/identity/models"
	"mariner/internal/identity/password"
	"mariner/internal/identity/service/mocks"
	"mariner/internal/identity/session"
	"mariner/internal/identity/store"
	id "mariner/pkg/domain"
	dErrors "mariner/pkg/domain-errors"
	"mariner/pkg/requestcontext"
)

// captureNotifier records reset code deliveries.
type captureNotifier struct {
	accountID id.AccountID
	email     string
	code      string
	calls     int
}

func (n *captureNotifier) SendResetCode(ctx context.Context, accountID id.AccountID, email, code string) error {
	n.accountID = accountID
	n.email = email
	n.code = code
	n.calls++
	return nil
}

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	accounts   *store.MemoryStore
	sessions   *session.MemoryStore
	notifier   *captureNotifier
	mockMerger *mocks.MockMerger
	mockTokens *mocks.MockTokenIssuer
	svc        *Service
	ctx        context.Context
	now        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.accounts = store.NewMemory()
	s.sessions = session.NewMemory()
	s.notifier = &captureNotifier{}
	s.mockMerger = mocks.NewMockMerger(s.ctrl)
	s.mockTokens = mocks.NewMockTokenIssuer(s.ctrl)
	s.now = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := password.NewGate(password.NewMemory(), discard, 0)
	find := finder.New(s.accounts, discard, nil)
	s.svc = New(s.accounts, find, gate, s.sessions, s.mockMerger, s.mockTokens, s.notifier, discard, nil, 0)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) seed(accountID, name, email string, mutate func(*models.Account)) id.AccountID {
	a := &models.Account{ID: id.AccountID(accountID), FullName: name, Email: email}
	if mutate != nil {
		mutate(a)
	}
	s.Require().NoError(s.accounts.Create(context.Background(), a))
	return a.ID
}

func (s *ServiceSuite) expectToken(accountID id.AccountID, token string) {
	s.mockTokens.EXPECT().
		IssueAccessToken(accountID, gomock.Any(), gomock.Any()).
		Return(token, nil)
}

func (s *ServiceSuite) TestAuthenticate_NoCandidates() {
	_, err := s.svc.Authenticate(s.ctx, "+910000000000", "whatever")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal("invalid credentials", dErrors.MessageOf(err))
}

func (s *ServiceSuite) TestAuthenticate_SingleCandidateBootstrapsPassword() {
	accountID := s.seed("+911111111111", "Asha Nair", "asha@oceanic.example", nil)
	s.expectToken(accountID, "tok-1")

	out, err := s.svc.Authenticate(s.ctx, "+911111111111", "mumbai")
	s.Require().NoError(err)
	s.Equal(StatusAuthenticated, out.Status)
	s.Equal("tok-1", out.Token)
	s.Equal(accountID, out.Account.ID)

	// Bootstrap is sticky: the same text logs in again, anything else fails.
	s.expectToken(accountID, "tok-2")
	_, err = s.svc.Authenticate(s.ctx, "+911111111111", "mumbai")
	s.Require().NoError(err)

	_, err = s.svc.Authenticate(s.ctx, "+911111111111", "chennai")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestAuthenticate_LoginBookkeeping() {
	accountID := s.seed("+911111111111", "Asha Nair", "asha@oceanic.example", nil)
	s.expectToken(accountID, "tok")

	ctx := requestcontext.WithDevice(s.ctx, "Android app")
	_, err := s.svc.Authenticate(ctx, "+911111111111", "mumbai")
	s.Require().NoError(err)

	stored, err := s.accounts.FindByID(context.Background(), accountID)
	s.Require().NoError(err)
	s.Equal(1, stored.LoginCount)
	s.Require().NotNil(stored.LastLogin)
	s.Equal(s.now, *stored.LastLogin)
	s.Equal("Android app", stored.LastLoginDevice)
}

func (s *ServiceSuite) TestAuthenticate_MultipleCandidatesOpenSession() {
	rank, ship := "Chief Officer", "MV Ocean Pearl"
	richID := s.seed("+919035283755", "Deepak Iyer", "iyer@oceanic.example", func(a *models.Account) {
		a.Rank = &rank
		a.Ship = &ship
		a.QuestionCount = 17
	})
	s.seed("+918888888888", "Deepak Iyer", "x@y.example", func(a *models.Account) {
		a.AltContact = "+919035283755"
	})

	out, err := s.svc.Authenticate(s.ctx, "+919035283755", "mumbai")
	s.Require().NoError(err)
	s.Equal(StatusMergeRequired, out.Status)
	s.False(out.SessionID.IsNil())
	s.Require().Len(out.Candidates, 2)
	s.Equal(richID, out.Candidates[0].Account.ID, "most complete candidate must rank first")
	s.Equal(s.now.Add(models.MergeSessionTTL), out.ExpiresAt)

	sess, err := s.svc.GetMergeSession(s.ctx, out.SessionID)
	s.Require().NoError(err)
	s.Len(sess.Candidates, 2)
}

func (s *ServiceSuite) TestGetMergeSession_UnknownOrExpired() {
	_, err := s.svc.GetMergeSession(s.ctx, id.NewMergeSessionID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal("session not found or expired", dErrors.MessageOf(err))
}

func (s *ServiceSuite) openSession(ids ...id.AccountID) id.MergeSessionID {
	var candidates []models.CandidateAccount
	for _, accountID := range ids {
		a, err := s.accounts.FindByID(context.Background(), accountID)
		s.Require().NoError(err)
		candidates = append(candidates, models.CandidateAccount{Account: *a})
	}
	sess := &models.MergeSession{
		ID:         id.NewMergeSessionID(),
		Identifier: ids[0].String(),
		Candidates: candidates,
		CreatedAt:  s.now,
		ExpiresAt:  s.now.Add(models.MergeSessionTTL),
	}
	s.Require().NoError(s.sessions.Create(s.ctx, sess))
	return sess.ID
}

func (s *ServiceSuite) TestMergeAccounts_RejectsForeignIDsBeforeAnyWrite() {
	primaryID := s.seed("+911111111111", "Asha Nair", "asha@oceanic.example", nil)
	dupID := s.seed("+912222222222", "Asha Nair", "a@b.example", nil)
	sessionID := s.openSession(primaryID, dupID)

	_, err := s.svc.MergeAccounts(s.ctx, sessionID, models.MergeDecision{
		PrimaryID:    primaryID,
		DuplicateIDs: []id.AccountID{"+919999999999"},
		Strategy:     models.StrategyMergeData,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	// Merger must never have been invoked; the controller would flag an
	// unexpected call.
}

func (s *ServiceSuite) TestMergeAccounts_HappyPathConsumesSession() {
	primaryID := s.seed("+911111111111", "Asha Nair", "asha@oceanic.example", func(a *models.Account) {
		a.QuestionCount = 4
	})
	dupID := s.seed("+912222222222", "Asha Nair", "a@b.example", nil)
	sessionID := s.openSession(primaryID, dupID)

	decision := models.MergeDecision{
		PrimaryID:    primaryID,
		DuplicateIDs: []id.AccountID{dupID},
		Strategy:     models.StrategyMergeData,
	}
	merged, err := s.accounts.FindByID(context.Background(), primaryID)
	s.Require().NoError(err)
	merged.QuestionCount = 7

	s.mockMerger.EXPECT().Merge(gomock.Any(), decision).Return(merged, nil)
	s.expectToken(primaryID, "tok-merged")

	out, err := s.svc.MergeAccounts(s.ctx, sessionID, decision)
	s.Require().NoError(err)
	s.Equal(StatusAuthenticated, out.Status)
	s.Equal("tok-merged", out.Token)
	s.Equal(7, out.Account.QuestionCount)

	_, err = s.svc.GetMergeSession(s.ctx, sessionID)
	s.Require().Error(err, "session must be consumed after a successful merge")
}

func (s *ServiceSuite) TestMergeAccounts_ManualReviewLeavesSessionOpen() {
	primaryID := s.seed("+911111111111", "Asha Nair", "asha@oceanic.example", nil)
	dupID := s.seed("+912222222222", "Asha Nair", "a@b.example", nil)
	sessionID := s.openSession(primaryID, dupID)
	s.expectToken(primaryID, "tok")

	out, err := s.svc.MergeAccounts(s.ctx, sessionID, models.MergeDecision{
		PrimaryID:    primaryID,
		DuplicateIDs: []id.AccountID{dupID},
		Strategy:     models.StrategyManualReview,
	})
	s.Require().NoError(err)
	s.Equal(StatusAuthenticated, out.Status)

	_, err = s.svc.GetMergeSession(s.ctx, sessionID)
	s.NoError(err, "manual review must keep the session for the operator")

	dup, err := s.accounts.FindByID(context.Background(), dupID)
	s.Require().NoError(err)
	s.False(dup.Archived)
}

func (s *ServiceSuite) TestSkipMerge() {
	firstID := s.seed("+911111111111", "Asha Nair", "asha@oceanic.example", nil)
	secondID := s.seed("+912222222222", "Asha Nair", "a@b.example", nil)
	sessionID := s.openSession(firstID, secondID)
	s.expectToken(secondID, "tok-skip")

	out, err := s.svc.SkipMerge(s.ctx, sessionID, secondID)
	s.Require().NoError(err)
	s.Equal(StatusAuthenticated, out.Status)
	s.Equal(secondID, out.Account.ID)

	first, err := s.accounts.FindByID(context.Background(), firstID)
	s.Require().NoError(err)
	s.False(first.Archived, "skipping must leave the other candidates untouched")

	_, err = s.svc.GetMergeSession(s.ctx, sessionID)
	s.Require().Error(err, "session must be consumed after a skip")
}

func (s *ServiceSuite) TestSkipMerge_SelectionMustComeFromSession() {
	firstID := s.seed("+911111111111", "Asha Nair", "asha@oceanic.example", nil)
	secondID := s.seed("+912222222222", "Asha Nair", "a@b.example", nil)
	outsiderID := s.seed("+913333333333", "Asha Nair", "c@d.example", nil)
	sessionID := s.openSession(firstID, secondID)

	_, err := s.svc.SkipMerge(s.ctx, sessionID, outsiderID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestSetPassword_Validation() {
	accountID := s.seed("+911111111111", "Asha Nair", "asha@oceanic.example", nil)

	err := s.svc.SetPassword(s.ctx, accountID, "ab")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	s.Require().NoError(s.svc.SetPassword(s.ctx, accountID, "abcdef"))

	err = s.svc.SetPassword(s.ctx, "+910000000000", "abcdef")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestPasswordResetFlow() {
	accountID := s.seed("+911111111111", "Asha Nair", "asha@oceanic.example", nil)

	_, err := s.svc.RequestPasswordReset(s.ctx, accountID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotEligible), "no password yet, nothing to reset")

	s.Require().NoError(s.svc.SetPassword(s.ctx, accountID, "firstpw"))

	code, err := s.svc.RequestPasswordReset(s.ctx, accountID)
	s.Require().NoError(err)
	s.Regexp(regexp.MustCompile(`^\d{6}$`), code)
	s.Equal(1, s.notifier.calls)
	s.Equal(code, s.notifier.code)
	s.Equal("asha@oceanic.example", s.notifier.email)

	err = s.svc.ResetPasswordWithCode(s.ctx, accountID, "000000", "secondpw")
	if code != "000000" {
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode))
	}

	code, err = s.svc.RequestPasswordReset(s.ctx, accountID)
	s.Require().NoError(err)
	s.Require().NoError(s.svc.ResetPasswordWithCode(s.ctx, accountID, code, "secondpw"))

	s.expectToken(accountID, "tok")
	_, err = s.svc.Authenticate(s.ctx, "+911111111111", "secondpw")
	s.Require().NoError(err)
}

// TestMergeEndToEnd drives the full flow against the real orchestrator:
// ambiguous login, ranked candidates, merge decision, consolidated result.
func (s *ServiceSuite) TestMergeEndToEnd() {
	rank, ship := "Chief Officer", "MV Ocean Pearl"
	city, country := "Mumbai", "India"
	richID := s.seed("+919035283755", "Deepak Iyer", "iyer@oceanic.example", func(a *models.Account) {
		a.Rank = &rank
		a.Ship = &ship
		a.City = &city
		a.Country = &country
		a.QuestionCount = 17
		a.AnswerCount = 9
		a.LoginCount = 30
	})
	bareID := s.seed("+918888888888", "Deepak Iyer", "deepak@wa.example", func(a *models.Account) {
		a.AltContact = "+919035283755"
		a.QuestionCount = 3
	})

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := password.NewGate(password.NewMemory(), discard, 0)
	find := finder.New(s.accounts, discard, nil)
	orch := merge.New(s.accounts, discard, nil)
	svc := New(s.accounts, find, gate, s.sessions, orch, s.mockTokens, s.notifier, discard, nil, 0)

	out, err := svc.Authenticate(s.ctx, "+919035283755", "mumbai")
	s.Require().NoError(err)
	s.Require().Equal(StatusMergeRequired, out.Status)
	s.Require().Len(out.Candidates, 2)
	s.Equal(richID, out.Candidates[0].Account.ID)
	s.Equal("RECOMMENDED - most complete profile", out.Candidates[0].Recommendation)
	s.Greater(out.Candidates[0].Completeness, out.Candidates[1].Completeness)

	s.expectToken(richID, "tok-final")
	final, err := svc.MergeAccounts(s.ctx, out.SessionID, models.MergeDecision{
		PrimaryID:    richID,
		DuplicateIDs: []id.AccountID{bareID},
		Strategy:     models.StrategyMergeData,
	})
	s.Require().NoError(err)
	s.Equal(StatusAuthenticated, final.Status)
	s.Equal(20, final.Account.QuestionCount, "duplicate's questions must be absorbed")

	_, err = s.accounts.FindByID(context.Background(), bareID)
	s.Require().Error(err, "duplicate must be archived")
}
