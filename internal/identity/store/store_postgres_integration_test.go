//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mariner/internal/identity/models"
	"mariner/internal/identity/store"
	id "mariner/pkg/domain"
	"mariner/pkg/platform/sentinel"
	"mariner/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *store.PostgresStore
	ctx   context.Context
	now   time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "chat_messages", "questions", "answers", "accounts"))
}

func (s *PostgresStoreSuite) seed(accountID, name, email string, mutate func(*models.Account)) id.AccountID {
	a := &models.Account{
		ID:        id.AccountID(accountID),
		FullName:  name,
		Email:     email,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
	if mutate != nil {
		mutate(a)
	}
	s.Require().NoError(s.store.Create(s.ctx, a))
	return a.ID
}

func (s *PostgresStoreSuite) countRefs(table, column string, accountID id.AccountID) int {
	var n int
	err := s.pg.DB.QueryRowContext(s.ctx,
		"SELECT COUNT(*) FROM "+table+" WHERE "+column+" = $1", accountID.String(),
	).Scan(&n)
	s.Require().NoError(err)
	return n
}

func (s *PostgresStoreSuite) rawEmail(accountID id.AccountID) string {
	var email string
	err := s.pg.DB.QueryRowContext(s.ctx,
		"SELECT email FROM accounts WHERE id = $1", accountID.String(),
	).Scan(&email)
	s.Require().NoError(err)
	return email
}

func (s *PostgresStoreSuite) TestCreateAndLookups() {
	s.seed("+919035283755", "Deepak Iyer", "Iyer@Oceanic.Example", func(a *models.Account) {
		a.AltContact = "9035283755"
	})

	found, err := s.store.FindByID(s.ctx, "+919035283755")
	s.Require().NoError(err)
	s.Equal("Deepak Iyer", found.FullName)

	byEmail, err := s.store.FindByEmailFold(s.ctx, "iyer@oceanic.example")
	s.Require().NoError(err)
	s.Len(byEmail, 1)

	byAlt, err := s.store.FindByAltContact(s.ctx, []string{"9035283755", "+919035283755"})
	s.Require().NoError(err)
	s.Len(byAlt, 1)

	byVariant, err := s.store.FindByIDVariants(s.ctx, []string{"919035283755", "+919035283755"})
	s.Require().NoError(err)
	s.Len(byVariant, 1)

	err = s.store.Create(s.ctx, &models.Account{ID: "+919035283755"})
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestFindFuzzy() {
	s.seed("+911111111111", "Deepak Iyer", "deepak.iyer@oceanic.example", nil)
	s.seed("+912222222222", "Asha Nair", "asha@oceanic.example", nil)

	got, err := s.store.FindFuzzy(s.ctx, "deepak")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(id.AccountID("+911111111111"), got[0].ID)
}

func (s *PostgresStoreSuite) TestMergeTransactionCoalescesAndArchives() {
	rank, ship, city := "Chief Officer", "MV Ocean Pearl", "Mumbai"
	primaryID := s.seed("+919035283755", "Deepak Iyer", "iyer@oceanic.example", func(a *models.Account) {
		a.Rank = &rank
		a.QuestionCount = 4
	})
	dupID := s.seed("+918888888888", "Deepak Iyer", "deepak@wa.example", func(a *models.Account) {
		other := "Second Officer"
		a.Rank = &other
		a.Ship = &ship
		a.City = &city
		a.QuestionCount = 3
		a.AnswerCount = 7
	})

	_, err := s.pg.DB.ExecContext(s.ctx,
		`INSERT INTO questions (author_id, body) VALUES ($1, 'engine room query')`, dupID.String())
	s.Require().NoError(err)
	_, err = s.pg.DB.ExecContext(s.ctx,
		`INSERT INTO chat_messages (sender_id, receiver_id, body) VALUES ($1, $2, 'hello')`,
		dupID.String(), primaryID.String())
	s.Require().NoError(err)

	err = s.store.RunInTx(s.ctx, func(tx store.MergeTx) error {
		primary, err := tx.GetForMerge(s.ctx, primaryID)
		if err != nil {
			return err
		}
		dup, err := tx.GetForMerge(s.ctx, dupID)
		if err != nil {
			return err
		}

		// Primary wins on rank; ship and city come from the duplicate.
		primary.Ship = dup.Ship
		primary.City = dup.City
		primary.QuestionCount += dup.QuestionCount
		primary.AnswerCount += dup.AnswerCount
		primary.UpdatedAt = s.now

		if err := tx.ReassignReferences(s.ctx, dupID, primaryID); err != nil {
			return err
		}
		if err := tx.Archive(s.ctx, dupID, s.now); err != nil {
			return err
		}
		return tx.UpdateAccount(s.ctx, primary)
	})
	s.Require().NoError(err)

	merged, err := s.store.FindByID(s.ctx, primaryID)
	s.Require().NoError(err)
	s.Equal("Chief Officer", *merged.Rank)
	s.Equal(ship, *merged.Ship)
	s.Equal(city, *merged.City)
	s.Equal(7, merged.QuestionCount)
	s.Equal(7, merged.AnswerCount)

	_, err = s.store.FindByID(s.ctx, dupID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound, "archived duplicate must be invisible")
	s.Equal("deepak@wa.example_archived_1700000000", s.rawEmail(dupID))

	s.Equal(0, s.countRefs("questions", "author_id", dupID))
	s.Equal(1, s.countRefs("questions", "author_id", primaryID))
	s.Equal(0, s.countRefs("chat_messages", "sender_id", dupID))
	s.Equal(1, s.countRefs("chat_messages", "sender_id", primaryID))
}

func (s *PostgresStoreSuite) TestMergeTransactionRollsBackOnFailure() {
	primaryID := s.seed("+919035283755", "Deepak Iyer", "iyer@oceanic.example", func(a *models.Account) {
		a.QuestionCount = 4
	})
	dupID := s.seed("+918888888888", "Deepak Iyer", "deepak@wa.example", func(a *models.Account) {
		a.QuestionCount = 3
	})

	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(tx store.MergeTx) error {
		primary, err := tx.GetForMerge(s.ctx, primaryID)
		if err != nil {
			return err
		}
		primary.QuestionCount = 99
		if err := tx.UpdateAccount(s.ctx, primary); err != nil {
			return err
		}
		if err := tx.Archive(s.ctx, dupID, s.now); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	primary, err := s.store.FindByID(s.ctx, primaryID)
	s.Require().NoError(err)
	s.Equal(4, primary.QuestionCount, "update must be rolled back")

	dup, err := s.store.FindByID(s.ctx, dupID)
	s.Require().NoError(err, "archive must be rolled back")
	s.Equal("deepak@wa.example", dup.Email)
}

func (s *PostgresStoreSuite) TestGetForMergeExcludesArchived() {
	dupID := s.seed("+918888888888", "Deepak Iyer", "deepak@wa.example", nil)

	err := s.store.RunInTx(s.ctx, func(tx store.MergeTx) error {
		return tx.Archive(s.ctx, dupID, s.now)
	})
	s.Require().NoError(err)

	err = s.store.RunInTx(s.ctx, func(tx store.MergeTx) error {
		_, err := tx.GetForMerge(s.ctx, dupID)
		return err
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRecordLogin() {
	accountID := s.seed("+919035283755", "Deepak Iyer", "iyer@oceanic.example", nil)

	at := s.now.Add(time.Hour)
	s.Require().NoError(s.store.RecordLogin(s.ctx, accountID, at, "Chrome on Linux"))
	s.Require().NoError(s.store.RecordLogin(s.ctx, accountID, at.Add(time.Minute), ""))

	got, err := s.store.FindByID(s.ctx, accountID)
	s.Require().NoError(err)
	s.Equal(2, got.LoginCount)
	s.Equal("Chrome on Linux", got.LastLoginDevice, "empty device must not clobber the last one")
}
