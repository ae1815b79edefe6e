package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
	"mariner/pkg/platform/sentinel"
	pkgtx "mariner/pkg/platform/tx"
)

//go:embed schema.sql
var schemaSQL string

const defaultMergeTxTimeout = 5 * time.Second

const accountColumns = `id, full_name, email, alt_contact,
	rank, ship, imo, city, country, latitude, longitude, whatsapp_number, vessel_type,
	question_count, answer_count, login_count, last_login, last_login_device,
	archived, created_at, updated_at`

// PostgresStore persists accounts in PostgreSQL. It implements both
// AccountStore and MergeStore.
type PostgresStore struct {
	db        *sql.DB
	txTimeout time.Duration
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, txTimeout: defaultMergeTxTimeout}
}

// EnsureSchema applies the account schema. Intended for tests and local
// development; production deployments run migrations out of band.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// querier abstracts *sql.DB and *sql.Tx so reads work inside and outside a
// merge transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := pkgtx.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, account *models.Account) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		account.ID.String(), account.FullName, account.Email, account.AltContact,
		account.Rank, account.Ship, account.IMO, account.City, account.Country,
		account.Latitude, account.Longitude, account.WhatsAppNumber, account.VesselType,
		account.QuestionCount, account.AnswerCount, account.LoginCount,
		account.LastLogin, account.LastLoginDevice,
		account.Archived, account.CreatedAt, account.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE id = $1 AND NOT archived`,
		accountID.String(),
	)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) FindByEmailFold(ctx context.Context, email string) ([]*models.Account, error) {
	return s.findMany(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE email <> '' AND LOWER(email) = LOWER($1) AND NOT archived`,
		email,
	)
}

func (s *PostgresStore) FindByAltContact(ctx context.Context, variants []string) ([]*models.Account, error) {
	return s.findMany(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE alt_contact <> '' AND alt_contact = ANY($1) AND NOT archived`,
		pq.Array(variants),
	)
}

func (s *PostgresStore) FindByIDVariants(ctx context.Context, variants []string) ([]*models.Account, error) {
	return s.findMany(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE id = ANY($1) AND NOT archived`,
		pq.Array(variants),
	)
}

func (s *PostgresStore) FindFuzzy(ctx context.Context, identifier string) ([]*models.Account, error) {
	pattern := "%" + identifier + "%"
	return s.findMany(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE full_name ILIKE $1
		  AND (email ILIKE $1 OR alt_contact = $2)
		  AND NOT archived`,
		pattern, identifier,
	)
}

func (s *PostgresStore) RecordLogin(ctx context.Context, accountID id.AccountID, at time.Time, device string) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE accounts
		SET login_count = login_count + 1,
		    last_login = $2,
		    last_login_device = CASE WHEN $3 <> '' THEN $3 ELSE last_login_device END,
		    updated_at = $2
		WHERE id = $1 AND NOT archived`,
		accountID.String(), at, device,
	)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return requireRow(res)
}

// RunInTx implements MergeStore on top of a SQL transaction. The transaction
// is placed in context so MergeTx reads and writes run inside it.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx MergeTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	ctx = pkgtx.WithTx(ctx, sqlTx)
	if err := fn(&postgresTx{store: s, ctx: ctx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// postgresTx routes MergeTx calls through the transaction bound in ctx.
type postgresTx struct {
	store *PostgresStore
	ctx   context.Context
}

func (t *postgresTx) GetForMerge(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	row := t.store.q(t.ctx).QueryRowContext(t.ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE id = $1 AND NOT archived
		FOR UPDATE`,
		accountID.String(),
	)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock account for merge: %w", err)
	}
	return account, nil
}

func (t *postgresTx) UpdateAccount(ctx context.Context, account *models.Account) error {
	res, err := t.store.q(t.ctx).ExecContext(t.ctx, `
		UPDATE accounts
		SET rank = $2, ship = $3, imo = $4, city = $5, country = $6,
		    latitude = $7, longitude = $8, whatsapp_number = $9, vessel_type = $10,
		    question_count = $11, answer_count = $12, login_count = $13,
		    updated_at = $14
		WHERE id = $1`,
		account.ID.String(),
		account.Rank, account.Ship, account.IMO, account.City, account.Country,
		account.Latitude, account.Longitude, account.WhatsAppNumber, account.VesselType,
		account.QuestionCount, account.AnswerCount, account.LoginCount,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update merged account: %w", err)
	}
	return requireRow(res)
}

func (t *postgresTx) ReassignReferences(ctx context.Context, from, to id.AccountID) error {
	for _, stmt := range []string{
		`UPDATE chat_messages SET sender_id = $2 WHERE sender_id = $1`,
		`UPDATE chat_messages SET receiver_id = $2 WHERE receiver_id = $1`,
		`UPDATE questions SET author_id = $2 WHERE author_id = $1`,
		`UPDATE answers SET author_id = $2 WHERE author_id = $1`,
	} {
		if _, err := t.store.q(t.ctx).ExecContext(t.ctx, stmt, from.String(), to.String()); err != nil {
			return fmt.Errorf("reassign references: %w", err)
		}
	}
	return nil
}

func (t *postgresTx) Archive(ctx context.Context, accountID id.AccountID, at time.Time) error {
	res, err := t.store.q(t.ctx).ExecContext(t.ctx, `
		UPDATE accounts
		SET email = email || $2, archived = TRUE, updated_at = $3
		WHERE id = $1 AND NOT archived`,
		accountID.String(), models.ArchivedEmailSuffix(at), at,
	)
	if err != nil {
		return fmt.Errorf("archive account: %w", err)
	}
	// Already-archived rows are fine: archival is idempotent.
	_ = res
	return nil
}

func (s *PostgresStore) findMany(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccount maps one row to the domain model. The storage row shape never
// leaks past this function.
func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a     models.Account
		rawID string
	)
	err := row.Scan(
		&rawID, &a.FullName, &a.Email, &a.AltContact,
		&a.Rank, &a.Ship, &a.IMO, &a.City, &a.Country,
		&a.Latitude, &a.Longitude, &a.WhatsAppNumber, &a.VesselType,
		&a.QuestionCount, &a.AnswerCount, &a.LoginCount,
		&a.LastLogin, &a.LastLoginDevice,
		&a.Archived, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ID = id.AccountID(rawID)
	return &a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
