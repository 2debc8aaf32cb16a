// Package postgres is the Transfer store: Postgres-backed persistence for
// the single aggregate this system owns, built the way
// storage/postgres/client.go builds its ledger client (DSN-based Config,
// pool tuning, context-aware queries, an explicit whitelist for any SET
// command) but carrying Transfer CRUD and optimistic-concurrency logic
// instead of hash-chain verification.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/selcukyavuz/moneybee/internal/models"
	"github.com/selcukyavuz/moneybee/internal/store"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN               string
	MaxOpenConns      int
	MaxIdleConns      int
	SynchronousCommit bool
}

func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:               dsn,
		MaxOpenConns:      50,
		MaxIdleConns:      10,
		SynchronousCommit: true,
	}
}

// Store wraps a *sql.DB with the Transfer table's operations.
type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	var setSyncQuery string
	if cfg.SynchronousCommit {
		setSyncQuery = "SET synchronous_commit = on"
	} else {
		setSyncQuery = "SET synchronous_commit = off"
	}
	if _, err := db.ExecContext(ctx, setSyncQuery); err != nil {
		return nil, fmt.Errorf("store: set synchronous_commit: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS transfers (
	id                       UUID PRIMARY KEY,
	sender_id                TEXT NOT NULL,
	receiver_id              TEXT NOT NULL,
	sender_national_id       TEXT NOT NULL,
	receiver_national_id     TEXT NOT NULL,
	amount                   NUMERIC NOT NULL,
	currency                 TEXT NOT NULL,
	amount_in_try            NUMERIC NOT NULL,
	exchange_rate            NUMERIC,
	transaction_fee          NUMERIC NOT NULL,
	transaction_code         TEXT NOT NULL,
	status                   TEXT NOT NULL,
	risk_level               TEXT,
	idempotency_key          TEXT,
	approval_required_until  TIMESTAMPTZ,
	concurrency_token        TEXT NOT NULL,
	created_at               TIMESTAMPTZ NOT NULL,
	completed_at             TIMESTAMPTZ,
	cancelled_at             TIMESTAMPTZ,
	cancellation_reason      TEXT,
	description              TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS transfers_code_uq ON transfers (transaction_code);
CREATE UNIQUE INDEX IF NOT EXISTS transfers_idempotency_uq ON transfers (idempotency_key) WHERE idempotency_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS transfers_sender_created_idx ON transfers (sender_id, created_at);
CREATE INDEX IF NOT EXISTS transfers_sender_status_idx ON transfers (sender_id, status);
CREATE INDEX IF NOT EXISTS transfers_receiver_status_idx ON transfers (receiver_id, status);
`

// Migrate applies the table/index definitions. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const insertQuery = `
INSERT INTO transfers (
	id, sender_id, receiver_id, sender_national_id, receiver_national_id,
	amount, currency, amount_in_try, exchange_rate, transaction_fee,
	transaction_code, status, risk_level, idempotency_key,
	approval_required_until, concurrency_token, created_at, description
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`

// Insert writes a new Pending or Failed aggregate. On a unique-key
// collision on idempotency_key, it returns store.ErrIdempotencyConflict so the
// engine can read back the committed row per the idempotency contract; on
// a transaction_code collision it returns store.ErrCodeConflict so the engine
// retries with a freshly drawn code.
func (s *Store) Insert(ctx context.Context, t *models.Transfer) error {
	var riskLevel *string
	if t.RiskLevel != nil {
		rl := string(*t.RiskLevel)
		riskLevel = &rl
	}

	_, err := s.db.ExecContext(ctx, insertQuery,
		t.ID, t.SenderID, t.ReceiverID, t.SenderNationalID, t.ReceiverNationalID,
		t.Amount, string(t.Currency), t.AmountInTRY, t.ExchangeRate, t.TransactionFee,
		t.TransactionCode, string(t.Status), riskLevel, t.IdempotencyKey,
		t.ApprovalRequiredUntil, t.ConcurrencyToken, t.CreatedAt, t.Description,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "transfers_idempotency_uq":
				return store.ErrIdempotencyConflict
			case "transfers_code_uq":
				return store.ErrCodeConflict
			}
		}
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

const selectCols = `
	id, sender_id, receiver_id, sender_national_id, receiver_national_id,
	amount, currency, amount_in_try, exchange_rate, transaction_fee,
	transaction_code, status, risk_level, idempotency_key,
	approval_required_until, concurrency_token, created_at,
	completed_at, cancelled_at, cancellation_reason, description
`

func scanTransfer(row interface{ Scan(dest ...interface{}) error }) (*models.Transfer, error) {
	var t models.Transfer
	var currency, status string
	var riskLevel sql.NullString

	err := row.Scan(
		&t.ID, &t.SenderID, &t.ReceiverID, &t.SenderNationalID, &t.ReceiverNationalID,
		&t.Amount, &currency, &t.AmountInTRY, &t.ExchangeRate, &t.TransactionFee,
		&t.TransactionCode, &status, &riskLevel, &t.IdempotencyKey,
		&t.ApprovalRequiredUntil, &t.ConcurrencyToken, &t.CreatedAt,
		&t.CompletedAt, &t.CancelledAt, &t.CancellationReason, &t.Description,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan: %w", err)
	}

	t.Currency = models.Currency(currency)
	t.Status = models.Status(status)
	if riskLevel.Valid {
		rl := models.RiskLevel(riskLevel.String)
		t.RiskLevel = &rl
	}
	return &t, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Transfer, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectCols+" FROM transfers WHERE id = $1", id)
	return scanTransfer(row)
}

func (s *Store) GetByCode(ctx context.Context, code string) (*models.Transfer, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectCols+" FROM transfers WHERE transaction_code = $1", code)
	return scanTransfer(row)
}

func (s *Store) GetByIdempotencyKey(ctx context.Context, key string) (*models.Transfer, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectCols+" FROM transfers WHERE idempotency_key = $1", key)
	return scanTransfer(row)
}

// CodeExists implements txcode.Checker.
func (s *Store) CodeExists(code string) (bool, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM transfers WHERE transaction_code = $1)", code).Scan(&exists)
	return exists, err
}

// SumDailyTotalTRY sums amount_in_try for sender across Pending/Completed
// transfers created since startOfDayUTC, the read half of the daily-limit
// critical section.
func (s *Store) SumDailyTotalTRY(ctx context.Context, senderID string, startOfDayUTC time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_in_try), 0) FROM transfers
		WHERE sender_id = $1 AND created_at >= $2 AND status IN ('Pending', 'Completed')
	`, senderID, startOfDayUTC).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: sum daily total: %w", err)
	}
	return total.Float64, nil
}

// ListByCustomer returns the most recent transfers for a customer as
// either sender or receiver, capped at limit.
func (s *Store) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectCols+` FROM transfers
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list by customer: %w", err)
	}
	defer rows.Close()
	return collectTransfers(rows)
}

// ListPendingForCustomer returns all Pending transfers where customerID is
// sender or receiver, used by the cascade-cancel sweep.
func (s *Store) ListPendingForCustomer(ctx context.Context, customerID string) ([]*models.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectCols+` FROM transfers
		WHERE (sender_id = $1 OR receiver_id = $1) AND status = 'Pending'
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("store: list pending for customer: %w", err)
	}
	defer rows.Close()
	return collectTransfers(rows)
}

func collectTransfers(rows *sql.Rows) ([]*models.Transfer, error) {
	var out []*models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateWithToken performs the optimistic-concurrency write for Complete
// and Cancel: the update only applies if concurrency_token still matches
// priorToken, and always stamps a freshly generated token. Returns false
// (no error) on a token mismatch so the caller can retry with a reload.
func (s *Store) UpdateWithToken(ctx context.Context, t *models.Transfer, priorToken, newToken string) (bool, error) {
	var riskLevel *string
	if t.RiskLevel != nil {
		rl := string(*t.RiskLevel)
		riskLevel = &rl
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transfers SET
			status = $1, risk_level = $2, completed_at = $3, cancelled_at = $4,
			cancellation_reason = $5, concurrency_token = $6
		WHERE id = $7 AND concurrency_token = $8
	`, string(t.Status), riskLevel, t.CompletedAt, t.CancelledAt,
		t.CancellationReason, newToken, t.ID, priorToken)
	if err != nil {
		return false, fmt.Errorf("store: update with token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: rows affected: %w", err)
	}
	return n == 1, nil
}
