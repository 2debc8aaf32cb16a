// Package memory is an in-memory TransferStore test double, standing in
// for internal/store/postgres in engine and reactor unit tests the way the
// example pack's fakes stand in for their Redis/Postgres clients.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/selcukyavuz/moneybee/internal/models"
	"github.com/selcukyavuz/moneybee/internal/store"
)

type Store struct {
	mu          sync.Mutex
	byID        map[string]*models.Transfer
	byCode      map[string]string
	byIdempKey  map[string]string
}

func New() *Store {
	return &Store{
		byID:       make(map[string]*models.Transfer),
		byCode:     make(map[string]string),
		byIdempKey: make(map[string]string),
	}
}

func clone(t *models.Transfer) *models.Transfer {
	cp := *t
	return &cp
}

func (s *Store) Insert(ctx context.Context, t *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.IdempotencyKey != nil {
		if _, ok := s.byIdempKey[*t.IdempotencyKey]; ok {
			return store.ErrIdempotencyConflict
		}
	}
	if _, ok := s.byCode[t.TransactionCode]; ok {
		return store.ErrCodeConflict
	}

	s.byID[t.ID] = clone(t)
	s.byCode[t.TransactionCode] = t.ID
	if t.IdempotencyKey != nil {
		s.byIdempKey[*t.IdempotencyKey] = t.ID
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(t), nil
}

func (s *Store) GetByCode(ctx context.Context, code string) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) GetByIdempotencyKey(ctx context.Context, key string) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIdempKey[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) CodeExists(code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byCode[code]
	return ok, nil
}

func (s *Store) SumDailyTotalTRY(ctx context.Context, senderID string, startOfDayUTC time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, t := range s.byID {
		if t.SenderID != senderID {
			continue
		}
		if t.CreatedAt.Before(startOfDayUTC) {
			continue
		}
		if t.Status != models.Pending && t.Status != models.Completed {
			continue
		}
		total += t.AmountInTRY
	}
	return total, nil
}

func (s *Store) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transfer
	for _, t := range s.byID {
		if t.SenderID == customerID || t.ReceiverID == customerID {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListPendingForCustomer(ctx context.Context, customerID string) ([]*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transfer
	for _, t := range s.byID {
		if t.Status != models.Pending {
			continue
		}
		if t.SenderID == customerID || t.ReceiverID == customerID {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func (s *Store) UpdateWithToken(ctx context.Context, t *models.Transfer, priorToken, newToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[t.ID]
	if !ok {
		return false, store.ErrNotFound
	}
	if existing.ConcurrencyToken != priorToken {
		return false, nil
	}

	updated := clone(existing)
	updated.Status = t.Status
	updated.RiskLevel = t.RiskLevel
	updated.CompletedAt = t.CompletedAt
	updated.CancelledAt = t.CancelledAt
	updated.CancellationReason = t.CancellationReason
	updated.ConcurrencyToken = newToken
	s.byID[t.ID] = updated
	return true, nil
}

var _ store.TransferStore = (*Store)(nil)
