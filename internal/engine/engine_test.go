package engine_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/selcukyavuz/moneybee/internal/collaborators"
	"github.com/selcukyavuz/moneybee/internal/config"
	"github.com/selcukyavuz/moneybee/internal/engine"
	"github.com/selcukyavuz/moneybee/internal/events"
	"github.com/selcukyavuz/moneybee/internal/lock"
	"github.com/selcukyavuz/moneybee/internal/merr"
	"github.com/selcukyavuz/moneybee/internal/models"
	"github.com/selcukyavuz/moneybee/internal/store/memory"
)

const (
	senderNationalID   = "15054682652"
	receiverNationalID = "98765432109"
)

type harness struct {
	eng       *engine.Engine
	customers *collaborators.FakeCustomer
	fraud     *collaborators.FakeFraud
	fx        *collaborators.FakeExchangeRate
	bus       *events.FakePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cust := collaborators.NewFakeCustomer()
	cust.Add(&collaborators.CustomerInfo{ID: "sender-1", NationalID: senderNationalID, Status: collaborators.CustomerActive, KYCVerified: true})
	cust.Add(&collaborators.CustomerInfo{ID: "receiver-1", NationalID: receiverNationalID, Status: collaborators.CustomerActive, KYCVerified: true})

	fraud := collaborators.NewFakeFraud(models.RiskLow)
	fx := collaborators.NewFakeExchangeRate()
	bus := events.NewFakePublisher()

	eng := engine.New(config.Default(), memory.New(), lock.NewInProcess(), cust, fraud, fx, bus)
	return &harness{eng: eng, customers: cust, fraud: fraud, fx: fx, bus: bus}
}

func req(amount float64, currency models.Currency) engine.CreateRequest {
	return engine.CreateRequest{
		SenderNationalID:   senderNationalID,
		ReceiverNationalID: receiverNationalID,
		Amount:             amount,
		Currency:           currency,
	}
}

// S1: happy send/complete, TRY.
func TestCreateAndComplete_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tr, err := h.eng.CreateTransfer(ctx, req(500, models.TRY), "k1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tr.Status != models.Pending {
		t.Fatalf("status = %s, want Pending", tr.Status)
	}
	if tr.TransactionFee != 10.00 {
		t.Fatalf("fee = %v, want 10.00", tr.TransactionFee)
	}
	if tr.AmountInTRY != 500 {
		t.Fatalf("amount_in_try = %v, want 500", tr.AmountInTRY)
	}
	if tr.ApprovalRequiredUntil != nil {
		t.Fatalf("approval_required_until set, want nil")
	}
	if len(tr.TransactionCode) != 10 {
		t.Fatalf("code length = %d, want 10", len(tr.TransactionCode))
	}
	if len(h.bus.Created) != 1 {
		t.Fatalf("created events = %d, want 1", len(h.bus.Created))
	}

	completed, err := h.eng.CompleteTransfer(ctx, tr.TransactionCode, receiverNationalID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != models.Completed {
		t.Fatalf("status = %s, want Completed", completed.Status)
	}
	if len(h.bus.Completed) != 1 {
		t.Fatalf("completed events = %d, want 1", len(h.bus.Completed))
	}
}

// S2: idempotent replay.
func TestCreateTransfer_IdempotentReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.eng.CreateTransfer(ctx, req(500, models.TRY), "k1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	second, err := h.eng.CreateTransfer(ctx, req(500, models.TRY), "k1")
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}

	if second.ID != first.ID || second.TransactionCode != first.TransactionCode || second.Status != first.Status {
		t.Fatalf("replay mismatch: first=%+v second=%+v", first, second)
	}
	if len(h.bus.Created) != 1 {
		t.Fatalf("created events = %d, want 1 (no second publish)", len(h.bus.Created))
	}
}

// S3: high-value approval wait.
func TestCreateTransfer_ApprovalHold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tr, err := h.eng.CreateTransfer(ctx, req(2000, models.TRY), "k2")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tr.ApprovalRequiredUntil == nil {
		t.Fatalf("approval_required_until not set for high-value transfer")
	}

	_, err = h.eng.CompleteTransfer(ctx, tr.TransactionCode, receiverNationalID)
	if merr.KindOf(err) != merr.FailedPrecondition {
		t.Fatalf("complete before wait: kind = %v, want FailedPrecondition", merr.KindOf(err))
	}
}

// Boundary: exactly 1000.00 does not hold; 1000.01 does.
func TestCreateTransfer_ApprovalThresholdBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	atThreshold, err := h.eng.CreateTransfer(ctx, req(1000.00, models.TRY), "k-at")
	if err != nil {
		t.Fatalf("create at threshold: %v", err)
	}
	if atThreshold.ApprovalRequiredUntil != nil {
		t.Fatalf("1000.00 should not require approval")
	}

	h2 := newHarness(t)
	justOver, err := h2.eng.CreateTransfer(ctx, req(1000.01, models.TRY), "k-over")
	if err != nil {
		t.Fatalf("create just over threshold: %v", err)
	}
	if justOver.ApprovalRequiredUntil == nil {
		t.Fatalf("1000.01 should require approval")
	}
}

// S5: fraud reject.
func TestCreateTransfer_FraudRejection(t *testing.T) {
	h := newHarness(t)
	h.fraud.Default = models.RiskHigh
	ctx := context.Background()

	tr, err := h.eng.CreateTransfer(ctx, req(500, models.TRY), "k5")
	if merr.KindOf(err) != merr.FailedPrecondition {
		t.Fatalf("kind = %v, want FailedPrecondition", merr.KindOf(err))
	}
	if tr == nil {
		t.Fatalf("expected a persisted Failed row alongside the error")
	}
	if tr.Status != models.Failed {
		t.Fatalf("status = %s, want Failed", tr.Status)
	}
	if tr.TransactionFee != 0 {
		t.Fatalf("fee = %v, want 0", tr.TransactionFee)
	}
	if len(h.bus.Created) != 0 {
		t.Fatalf("created events = %d, want 0 on fraud rejection", len(h.bus.Created))
	}

	replay, replayErr := h.eng.CreateTransfer(ctx, req(500, models.TRY), "k5")
	if merr.KindOf(replayErr) != merr.FailedPrecondition {
		t.Fatalf("replay kind = %v, want FailedPrecondition", merr.KindOf(replayErr))
	}
	if replay == nil || replay.TransactionCode != tr.TransactionCode {
		t.Fatalf("replay should return the original Failed row verbatim: got %+v", replay)
	}
}

// S7: multi-currency normalization and fee.
func TestCreateTransfer_MultiCurrency(t *testing.T) {
	h := newHarness(t)
	h.fx.Set("USD", "TRY", 30.00)
	ctx := context.Background()

	tr, err := h.eng.CreateTransfer(ctx, req(100, models.USD), "k7")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tr.AmountInTRY != 3000 {
		t.Fatalf("amount_in_try = %v, want 3000", tr.AmountInTRY)
	}
	if tr.ExchangeRate == nil || *tr.ExchangeRate != 30.00 {
		t.Fatalf("exchange_rate = %v, want 30.00", tr.ExchangeRate)
	}
	if tr.ApprovalRequiredUntil == nil {
		t.Fatalf("3000 TRY should require approval")
	}
	if tr.TransactionFee != 35.00 {
		t.Fatalf("fee = %v, want 35.00", tr.TransactionFee)
	}
}

// S4: three concurrent creates of 4000 TRY each; exactly two succeed.
func TestCreateTransfer_DailyLimitRace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	keys := []string{"k3a", "k3b", "k3c"}
	var wg sync.WaitGroup
	var succeeded int32
	errs := make([]error, len(keys))

	for i, k := range keys {
		wg.Add(1)
		go func(i int, k string) {
			defer wg.Done()
			_, err := h.eng.CreateTransfer(ctx, req(4000, models.TRY), k)
			errs[i] = err
			if err == nil {
				atomic.AddInt32(&succeeded, 1)
			}
		}(i, k)
	}
	wg.Wait()

	if succeeded != 2 {
		t.Fatalf("succeeded = %d, want 2; errs=%v", succeeded, errs)
	}

	limit, err := h.eng.GetDailyLimit(ctx, "sender-1")
	if err != nil {
		t.Fatalf("get daily limit: %v", err)
	}
	if limit.TotalTodayTRY > limit.DailyLimitTRY {
		t.Fatalf("total %v exceeds limit %v", limit.TotalTodayTRY, limit.DailyLimitTRY)
	}
	if limit.TotalTodayTRY != 8000 {
		t.Fatalf("total = %v, want 8000", limit.TotalTodayTRY)
	}
}

func TestCancelTransfer_SecondCallFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tr, err := h.eng.CreateTransfer(ctx, req(500, models.TRY), "k-cancel")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := h.eng.CancelTransfer(ctx, tr.TransactionCode, "changed my mind"); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if len(h.bus.Cancelled) != 1 {
		t.Fatalf("cancelled events = %d, want 1", len(h.bus.Cancelled))
	}

	_, err = h.eng.CancelTransfer(ctx, tr.TransactionCode, "again")
	if merr.KindOf(err) != merr.FailedPrecondition {
		t.Fatalf("second cancel kind = %v, want FailedPrecondition", merr.KindOf(err))
	}
	if len(h.bus.Cancelled) != 1 {
		t.Fatalf("cancelled events after second call = %d, want 1", len(h.bus.Cancelled))
	}
}

func TestCompleteTransfer_ReceiverIdentityMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tr, err := h.eng.CreateTransfer(ctx, req(500, models.TRY), "k-id")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = h.eng.CompleteTransfer(ctx, tr.TransactionCode, "00000000000")
	if merr.KindOf(err) != merr.PermissionDenied {
		t.Fatalf("kind = %v, want PermissionDenied", merr.KindOf(err))
	}
}
