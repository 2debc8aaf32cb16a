package collaborators

import (
	"context"
	"sync"

	"github.com/selcukyavuz/moneybee/internal/merr"
	"github.com/selcukyavuz/moneybee/internal/models"
)

// FakeCustomer is an in-memory test double keyed by national ID.
type FakeCustomer struct {
	mu        sync.Mutex
	customers map[string]*CustomerInfo
}

func NewFakeCustomer() *FakeCustomer {
	return &FakeCustomer{customers: make(map[string]*CustomerInfo)}
}

func (f *FakeCustomer) Add(c *CustomerInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[c.NationalID] = c
}

func (f *FakeCustomer) GetByNationalID(ctx context.Context, nationalID string) (*CustomerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[nationalID]
	if !ok {
		return nil, merr.NewNotFound("customer %s not found", nationalID)
	}
	cp := *c
	return &cp, nil
}

// FakeFraud always returns a fixed verdict, or one keyed by sender id.
type FakeFraud struct {
	mu      sync.Mutex
	Default models.RiskLevel
	BySender map[string]models.RiskLevel
}

func NewFakeFraud(def models.RiskLevel) *FakeFraud {
	return &FakeFraud{Default: def, BySender: make(map[string]models.RiskLevel)}
}

func (f *FakeFraud) Check(ctx context.Context, senderID, receiverID string, amountInTRY float64, senderNationalID string) (models.RiskLevel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rl, ok := f.BySender[senderID]; ok {
		return rl, nil
	}
	return f.Default, nil
}

// FakeExchangeRate returns a fixed rate per currency pair.
type FakeExchangeRate struct {
	mu    sync.Mutex
	Rates map[string]float64
}

func NewFakeExchangeRate() *FakeExchangeRate {
	return &FakeExchangeRate{Rates: make(map[string]float64)}
}

func (f *FakeExchangeRate) Set(from, to string, rate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Rates[from+"->"+to] = rate
}

func (f *FakeExchangeRate) GetRate(ctx context.Context, from, to string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rate, ok := f.Rates[from+"->"+to]
	if !ok {
		return 0, merr.NewUnavailable("exchange rate service: no rate for %s->%s", from, to)
	}
	return rate, nil
}

// FakeAuth validates against a fixed set of keys.
type FakeAuth struct {
	mu        sync.Mutex
	ValidKeys map[string]bool
}

func NewFakeAuth() *FakeAuth {
	return &FakeAuth{ValidKeys: make(map[string]bool)}
}

func (f *FakeAuth) Validate(ctx context.Context, apiKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ValidKeys[apiKey], nil
}
