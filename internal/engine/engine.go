// Package engine is the Transfer Engine: the aggregate's only writer,
// expressed as one method per lifecycle operation on a single Engine
// struct, taking explicit request structs and returning (value, error)
// rather than going through a handler hierarchy. It
// composes the shared primitives (distributed lock, optimistic-concurrency
// store, transaction-code generator, fee calculator) with the collaborator
// and event-bus interfaces, the way engine/processor.go in this codebase's
// lineage composes its own collaborators, generalized from liquidity
// routing to transfer lifecycle management.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/selcukyavuz/moneybee/internal/collaborators"
	"github.com/selcukyavuz/moneybee/internal/config"
	"github.com/selcukyavuz/moneybee/internal/events"
	"github.com/selcukyavuz/moneybee/internal/feecalc"
	"github.com/selcukyavuz/moneybee/internal/logging"
	"github.com/selcukyavuz/moneybee/internal/merr"
	"github.com/selcukyavuz/moneybee/internal/models"
	"github.com/selcukyavuz/moneybee/internal/store"
	"github.com/selcukyavuz/moneybee/internal/txcode"
)

// Locker is the narrow capability the engine needs from internal/lock: a
// distributed execute-with-lock closure. internal/lock.Locker and
// internal/lock.InProcess (the test double) both implement it.
type Locker interface {
	WithLock(ctx context.Context, name string, lease time.Duration, maxAttempts int, fn func(ctx context.Context) error) error
}

// Engine is the Transfer aggregate's sole writer.
type Engine struct {
	store     store.TransferStore
	locker    Locker
	customer  collaborators.Customer
	fraud     collaborators.Fraud
	fx        collaborators.ExchangeRate
	publisher events.Publisher
	cfg       *config.Config
	log       *logging.Logger
}

func New(cfg *config.Config, st store.TransferStore, locker Locker, customer collaborators.Customer, fraud collaborators.Fraud, fx collaborators.ExchangeRate, publisher events.Publisher) *Engine {
	return &Engine{
		store:     st,
		locker:    locker,
		customer:  customer,
		fraud:     fraud,
		fx:        fx,
		publisher: publisher,
		cfg:       cfg,
		log:       logging.New("engine"),
	}
}

// CreateRequest is the inbound shape for CreateTransfer.
type CreateRequest struct {
	SenderNationalID   string
	ReceiverNationalID string
	Amount             float64
	Currency           models.Currency
	Description        string
}

// DailyLimit is the read-model GetDailyLimit returns.
type DailyLimit struct {
	TotalTodayTRY float64
	DailyLimitTRY float64
}

func startOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CreateTransfer runs the ten-step creation pipeline: idempotency
// admission, customer resolution, FX normalization, lock-guarded
// daily-limit gate, fraud check, fee computation, approval hold, code
// generation, persist, publish.
func (e *Engine) CreateTransfer(ctx context.Context, req CreateRequest, idempotencyKey string) (*models.Transfer, error) {
	if idempotencyKey == "" {
		return nil, merr.NewInvalidArgument("idempotency key required")
	}

	if existing, err := e.store.GetByIdempotencyKey(ctx, idempotencyKey); err == nil {
		return existing, replayError(existing)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, merr.Wrap(err, "store")
	}

	if req.Amount <= 0 {
		return nil, merr.NewInvalidArgument("amount must be positive")
	}
	if !req.Currency.Valid() {
		return nil, merr.NewInvalidArgument("unknown currency %q", req.Currency)
	}

	sender, err := e.customer.GetByNationalID(ctx, req.SenderNationalID)
	if err != nil {
		if merr.KindOf(err) == merr.NotFound {
			return nil, merr.NewNotFound("sender not found")
		}
		return nil, merr.Wrap(err, "customer service")
	}
	if sender.Status != collaborators.CustomerActive {
		return nil, merr.NewFailedPrecondition("sender not active")
	}

	receiver, err := e.customer.GetByNationalID(ctx, req.ReceiverNationalID)
	if err != nil {
		if merr.KindOf(err) == merr.NotFound {
			return nil, merr.NewNotFound("receiver not found")
		}
		return nil, merr.Wrap(err, "customer service")
	}
	if receiver.Status == collaborators.CustomerBlocked {
		return nil, merr.NewFailedPrecondition("receiver blocked")
	}

	var exchangeRate *float64
	amountInTRY := req.Amount
	if req.Currency != models.TRY {
		rate, err := e.fx.GetRate(ctx, string(req.Currency), string(models.TRY))
		if err != nil {
			return nil, merr.NewUnavailable("exchange rate service: %v", err)
		}
		exchangeRate = &rate
		amountInTRY = feecalc.Round2(req.Amount * rate)
	}

	var created *models.Transfer
	var replay bool

	lockErr := e.locker.WithLock(ctx, "daily-limit:"+sender.ID, e.cfg.LockLease, e.cfg.LockAcquireAttempts, func(ctx context.Context) error {
		total, err := e.store.SumDailyTotalTRY(ctx, sender.ID, startOfDayUTC(time.Now()))
		if err != nil {
			return merr.Wrap(err, "store")
		}
		if total+amountInTRY > e.cfg.DailyLimitTRY {
			remaining := e.cfg.DailyLimitTRY - total
			if remaining < 0 {
				remaining = 0
			}
			return merr.NewFailedPrecondition("daily limit exceeded; remaining=%.2f", remaining)
		}

		risk, err := e.fraud.Check(ctx, sender.ID, receiver.ID, amountInTRY, req.SenderNationalID)
		if err != nil {
			return merr.Wrap(err, "fraud service")
		}

		now := time.Now().UTC()
		t := &models.Transfer{
			ID:                 uuid.NewString(),
			SenderID:           sender.ID,
			ReceiverID:         receiver.ID,
			SenderNationalID:   req.SenderNationalID,
			ReceiverNationalID: req.ReceiverNationalID,
			Amount:             req.Amount,
			Currency:           req.Currency,
			AmountInTRY:        amountInTRY,
			ExchangeRate:       exchangeRate,
			IdempotencyKey:     &idempotencyKey,
			CreatedAt:          now,
			ConcurrencyToken:   uuid.NewString(),
			Description:        req.Description,
		}

		if risk == models.RiskHigh {
			rl := models.RiskHigh
			t.Status = models.Failed
			t.RiskLevel = &rl
			t.TransactionFee = 0

			code, err := txcode.Generate(e.store)
			if err != nil {
				return merr.Wrap(err, "code generation")
			}
			t.TransactionCode = code

			if err := e.insertOrReadBack(ctx, t, idempotencyKey, &created, &replay); err != nil {
				return err
			}
			return replayError(created)
		}

		rl := risk
		t.RiskLevel = &rl
		t.TransactionFee = feecalc.Fee(e.cfg.FeeBaseTRY, e.cfg.FeePercent, amountInTRY)
		if amountInTRY > e.cfg.HighAmountThresholdTRY {
			until := now.Add(e.cfg.ApprovalWait)
			t.ApprovalRequiredUntil = &until
		}
		t.Status = models.Pending

		code, err := txcode.Generate(e.store)
		if err != nil {
			return merr.Wrap(err, "code generation")
		}
		t.TransactionCode = code

		if err := e.insertOrReadBack(ctx, t, idempotencyKey, &created, &replay); err != nil {
			return err
		}
		return replayError(created)
	})

	if lockErr != nil {
		return created, lockErr
	}

	if !replay && created.Status == models.Pending {
		if pubErr := e.publisher.PublishTransferCreated(ctx, events.TransferCreated{
			TransferID: created.ID,
			SenderID:   created.SenderID,
			ReceiverID: created.ReceiverID,
			Amount:     created.Amount,
			Currency:   string(created.Currency),
		}); pubErr != nil {
			e.log.Printf("⚠️  publish transfer.created failed for %s: %v", created.ID, pubErr)
		}
	}

	return created, nil
}

// replayError reconstructs the response a repeated Create with the same
// idempotency key must return verbatim: the original fraud rejection for
// a row that was screened out, or no error for a row that was actually
// admitted (§4.1.1 step 1, §8's Create/Create round-trip law).
func replayError(t *models.Transfer) error {
	if t.Status == models.Failed {
		return merr.NewFailedPrecondition("high fraud risk")
	}
	return nil
}

// insertOrReadBack persists t; on an idempotency-key collision it reads
// back the already-committed row instead, satisfying the idempotency
// contract's requirement that a race between two Creates for the same key
// never produces two Pending rows (§4.1.5).
func (e *Engine) insertOrReadBack(ctx context.Context, t *models.Transfer, idempotencyKey string, out **models.Transfer, replay *bool) error {
	err := e.store.Insert(ctx, t)
	if err == nil {
		*out = t
		return nil
	}
	if errors.Is(err, store.ErrIdempotencyConflict) {
		existing, rerr := e.store.GetByIdempotencyKey(ctx, idempotencyKey)
		if rerr != nil {
			return merr.Wrap(rerr, "store")
		}
		*out = existing
		*replay = true
		return nil
	}
	if errors.Is(err, store.ErrCodeConflict) {
		code, gerr := txcode.Generate(e.store)
		if gerr != nil {
			return merr.Wrap(gerr, "code generation")
		}
		t.TransactionCode = code
		return e.insertOrReadBack(ctx, t, idempotencyKey, out, replay)
	}
	return merr.Wrap(err, "store")
}

// casUpdate loads the row by code, runs mutate (which must enforce every
// business-rule precondition against the freshly loaded state), and writes
// back under the optimistic-concurrency token, retrying on a token
// mismatch up to ConcurrencyRetryAttempts times with exponential backoff.
func (e *Engine) casUpdate(ctx context.Context, code string, mutate func(t *models.Transfer) error) (*models.Transfer, error) {
	backoff := e.cfg.ConcurrencyBaseBackoff

	for attempt := 0; attempt < e.cfg.ConcurrencyRetryAttempts; attempt++ {
		t, err := e.store.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, merr.NewNotFound("transfer %s not found", code)
			}
			return nil, merr.Wrap(err, "store")
		}

		priorToken := t.ConcurrencyToken
		if err := mutate(t); err != nil {
			return nil, err
		}

		newToken := uuid.NewString()
		ok, err := e.store.UpdateWithToken(ctx, t, priorToken, newToken)
		if err != nil {
			return nil, merr.Wrap(err, "store")
		}
		if ok {
			t.ConcurrencyToken = newToken
			return t, nil
		}

		if attempt == e.cfg.ConcurrencyRetryAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, merr.NewUnavailable("context cancelled during concurrency retry")
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, merr.NewAborted("concurrent modification")
}

// CompleteTransfer validates state, receiver identity, and the approval
// clock, then transitions Pending to Completed.
func (e *Engine) CompleteTransfer(ctx context.Context, code, receiverNationalID string) (*models.Transfer, error) {
	updated, err := e.casUpdate(ctx, code, func(t *models.Transfer) error {
		if t.Status != models.Pending {
			return merr.NewFailedPrecondition("status=%s", t.Status)
		}
		if t.ReceiverNationalID != receiverNationalID {
			return merr.NewPermissionDenied("receiver verification failed")
		}
		now := time.Now().UTC()
		if t.ApprovalRequiredUntil != nil && t.ApprovalRequiredUntil.After(now) {
			mins := int(math.Ceil(t.ApprovalRequiredUntil.Sub(now).Minutes()))
			return merr.NewFailedPrecondition("wait %d more minute(s)", mins)
		}
		t.Status = models.Completed
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if pubErr := e.publisher.PublishTransferCompleted(ctx, events.TransferCompleted{
		TransferID:      updated.ID,
		TransactionCode: updated.TransactionCode,
	}); pubErr != nil {
		e.log.Printf("⚠️  publish transfer.completed failed for %s: %v", updated.ID, pubErr)
	}
	return updated, nil
}

// CancelTransfer transitions a Pending transfer to Cancelled. Used both by
// the public cancel endpoint and by the reactor's cascade-cancel sweep,
// which supplies a system-authored reason.
func (e *Engine) CancelTransfer(ctx context.Context, code, reason string) (*models.Transfer, error) {
	updated, err := e.casUpdate(ctx, code, func(t *models.Transfer) error {
		if t.Status != models.Pending {
			return merr.NewFailedPrecondition("status=%s", t.Status)
		}
		now := time.Now().UTC()
		t.Status = models.Cancelled
		t.CancelledAt = &now
		if reason != "" {
			r := reason
			t.CancellationReason = &r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if pubErr := e.publisher.PublishTransferCancelled(ctx, events.TransferCancelled{
		TransferID: updated.ID,
		Reason:     reason,
	}); pubErr != nil {
		e.log.Printf("⚠️  publish transfer.cancelled failed for %s: %v", updated.ID, pubErr)
	}
	return updated, nil
}

func (e *Engine) GetTransferByCode(ctx context.Context, code string) (*models.Transfer, error) {
	t, err := e.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, merr.NewNotFound("transfer %s not found", code)
		}
		return nil, merr.Wrap(err, "store")
	}
	return t, nil
}

// GetCustomerTransfers returns the 50 most recent transfers where
// customerID is sender or receiver.
func (e *Engine) GetCustomerTransfers(ctx context.Context, customerID string) ([]*models.Transfer, error) {
	const cap_ = 50
	ts, err := e.store.ListByCustomer(ctx, customerID, cap_)
	if err != nil {
		return nil, merr.Wrap(err, "store")
	}
	return ts, nil
}

func (e *Engine) GetDailyLimit(ctx context.Context, customerID string) (DailyLimit, error) {
	total, err := e.store.SumDailyTotalTRY(ctx, customerID, startOfDayUTC(time.Now()))
	if err != nil {
		return DailyLimit{}, merr.Wrap(err, "store")
	}
	return DailyLimit{TotalTodayTRY: total, DailyLimitTRY: e.cfg.DailyLimitTRY}, nil
}

// CascadeCancelCustomer loads every Pending transfer where customerID is
// sender or receiver and cancels each through the same state-machine path
// CancelTransfer uses, so the optimistic-concurrency and terminal-stability
// invariants hold for system-driven cancellation exactly as they do for a
// caller-driven one. It is idempotent: a retry of the same block event
// finds no Pending rows left and cancels nothing. Returns the count
// actually cancelled.
func (e *Engine) CascadeCancelCustomer(ctx context.Context, customerID, reason string) (int, error) {
	pending, err := e.store.ListPendingForCustomer(ctx, customerID)
	if err != nil {
		return 0, merr.Wrap(err, "store")
	}

	cancelled := 0
	for _, t := range pending {
		if _, err := e.CancelTransfer(ctx, t.TransactionCode, reason); err != nil {
			if merr.KindOf(err) == merr.FailedPrecondition {
				// Already left Pending by a concurrent completion or a
				// previous delivery of this same event; not an error.
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// ReconcileCustomer is the manual recovery path for a missed or
// undeliverable customer-status event: an operator supplies the customer's
// authoritative current status and the engine cascades the same
// cancellation CascadeCancelCustomer would have performed, had the event
// arrived. A no-op unless status is Blocked.
func (e *Engine) ReconcileCustomer(ctx context.Context, customerID string, status collaborators.CustomerStatus) (int, error) {
	if status != collaborators.CustomerBlocked {
		return 0, nil
	}
	return e.CascadeCancelCustomer(ctx, customerID, fmt.Sprintf("manual reconciliation: customer %s was blocked", customerID))
}
