package reactor_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/selcukyavuz/moneybee/internal/collaborators"
	"github.com/selcukyavuz/moneybee/internal/config"
	"github.com/selcukyavuz/moneybee/internal/engine"
	"github.com/selcukyavuz/moneybee/internal/events"
	"github.com/selcukyavuz/moneybee/internal/lock"
	"github.com/selcukyavuz/moneybee/internal/models"
	"github.com/selcukyavuz/moneybee/internal/reactor"
	"github.com/selcukyavuz/moneybee/internal/store/memory"
)

const (
	senderNationalID   = "15054682652"
	receiverNationalID = "98765432109"
	thirdNationalID    = "12345678950"
)

// S6: cascade cancel on block.
func TestDispatch_CascadeCancelOnBlock(t *testing.T) {
	cust := collaborators.NewFakeCustomer()
	cust.Add(&collaborators.CustomerInfo{ID: "C", NationalID: senderNationalID, Status: collaborators.CustomerActive})
	cust.Add(&collaborators.CustomerInfo{ID: "other", NationalID: receiverNationalID, Status: collaborators.CustomerActive})
	cust.Add(&collaborators.CustomerInfo{ID: "third", NationalID: thirdNationalID, Status: collaborators.CustomerActive})

	fraud := collaborators.NewFakeFraud(models.RiskLow)
	fx := collaborators.NewFakeExchangeRate()
	bus := events.NewFakePublisher()
	eng := engine.New(config.Default(), memory.New(), lock.NewInProcess(), cust, fraud, fx, bus)

	ctx := context.Background()

	// Two Pending transfers with C as sender.
	if _, err := eng.CreateTransfer(ctx, engine.CreateRequest{
		SenderNationalID: senderNationalID, ReceiverNationalID: receiverNationalID,
		Amount: 100, Currency: models.TRY,
	}, "rk1"); err != nil {
		t.Fatalf("create 1: %v", err)
	}
	if _, err := eng.CreateTransfer(ctx, engine.CreateRequest{
		SenderNationalID: senderNationalID, ReceiverNationalID: thirdNationalID,
		Amount: 100, Currency: models.TRY,
	}, "rk2"); err != nil {
		t.Fatalf("create 2: %v", err)
	}
	// One Pending transfer with C as receiver.
	if _, err := eng.CreateTransfer(ctx, engine.CreateRequest{
		SenderNationalID: thirdNationalID, ReceiverNationalID: senderNationalID,
		Amount: 100, Currency: models.TRY,
	}, "rk3"); err != nil {
		t.Fatalf("create 3: %v", err)
	}

	r := reactor.NewForDispatchTesting(eng)

	payload, _ := json.Marshal(events.CustomerStatusChanged{
		CustomerID: "C", PreviousStatus: "Active", NewStatus: "Blocked", Reason: "fraud flag",
	})
	if err := r.Dispatch(ctx, events.SubjectCustomerStatusChanged, payload); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	transfers, err := eng.GetCustomerTransfers(ctx, "C")
	if err != nil {
		t.Fatalf("get customer transfers: %v", err)
	}
	if len(transfers) != 3 {
		t.Fatalf("transfers = %d, want 3", len(transfers))
	}
	for _, tr := range transfers {
		if tr.Status != models.Cancelled {
			t.Fatalf("transfer %s status = %s, want Cancelled", tr.TransactionCode, tr.Status)
		}
	}
	if len(bus.Cancelled) != 3 {
		t.Fatalf("cancelled events = %d, want 3", len(bus.Cancelled))
	}

	// Redelivery of the same event must not error or double-cancel.
	if err := r.Dispatch(ctx, events.SubjectCustomerStatusChanged, payload); err != nil {
		t.Fatalf("redelivered dispatch: %v", err)
	}
	if len(bus.Cancelled) != 3 {
		t.Fatalf("cancelled events after redelivery = %d, want 3", len(bus.Cancelled))
	}
}

func TestDispatch_UnknownRoutingKeyIsAcknowledged(t *testing.T) {
	cust := collaborators.NewFakeCustomer()
	eng := engine.New(config.Default(), memory.New(), lock.NewInProcess(), cust, collaborators.NewFakeFraud(models.RiskLow), collaborators.NewFakeExchangeRate(), events.NewFakePublisher())
	r := reactor.NewForDispatchTesting(eng)
	if err := r.Dispatch(context.Background(), "moneybee.events.customer.unknown", []byte("{}")); err != nil {
		t.Fatalf("dispatch unknown: %v", err)
	}
}
