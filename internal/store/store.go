// Package store defines the Transfer store's capability interface and the
// sentinel errors every implementation (Postgres, in-memory fake) must
// return, so the engine depends on the interface and never a concrete
// database driver.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/selcukyavuz/moneybee/internal/models"
)

var (
	// ErrIdempotencyConflict is returned by Insert when idempotency_key is
	// already committed; the caller must read that row back.
	ErrIdempotencyConflict = errors.New("store: idempotency key already used")
	// ErrCodeConflict is returned by Insert on a transaction_code collision.
	ErrCodeConflict = errors.New("store: transaction code already used")
	// ErrNotFound is returned when a lookup finds no row.
	ErrNotFound = errors.New("store: not found")
)

// TransferStore is the narrow persistence capability the engine and
// reactor depend on.
type TransferStore interface {
	Insert(ctx context.Context, t *models.Transfer) error
	GetByID(ctx context.Context, id string) (*models.Transfer, error)
	GetByCode(ctx context.Context, code string) (*models.Transfer, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Transfer, error)
	CodeExists(code string) (bool, error)
	SumDailyTotalTRY(ctx context.Context, senderID string, startOfDayUTC time.Time) (float64, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.Transfer, error)
	ListPendingForCustomer(ctx context.Context, customerID string) ([]*models.Transfer, error)
	UpdateWithToken(ctx context.Context, t *models.Transfer, priorToken, newToken string) (bool, error)
}
