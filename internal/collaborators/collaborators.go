// Package collaborators defines the narrow interfaces the Transfer Engine
// and Admission Filter consume for the four external bounded contexts
// named in the specification: Customer, Fraud, Exchange-Rate, and Auth.
// These are "names, not wire shapes" — production implementations are
// plain net/http JSON clients (the style of payments/stripe.go and
// workers/fxrates/worker.go: a *http.Client with a bounded timeout, a
// dry-run fallback when unconfigured) wrapped by a circuit breaker; test
// doubles are plain structs implementing the same interfaces.
package collaborators

import (
	"context"

	"github.com/selcukyavuz/moneybee/internal/models"
)

// CustomerStatus mirrors the bounded context's own status enum, only the
// members this system's policy cares about.
type CustomerStatus string

const (
	CustomerActive  CustomerStatus = "Active"
	CustomerBlocked CustomerStatus = "Blocked"
)

// CustomerInfo is the shape returned by get_by_national_id.
type CustomerInfo struct {
	ID          string
	NationalID  string
	Status      CustomerStatus
	KYCVerified bool
}

// Customer resolves a natural ID to the owning customer's current state.
type Customer interface {
	GetByNationalID(ctx context.Context, nationalID string) (*CustomerInfo, error)
}

// Fraud evaluates a proposed transfer for risk.
type Fraud interface {
	Check(ctx context.Context, senderID, receiverID string, amountInTRY float64, senderNationalID string) (models.RiskLevel, error)
}

// ExchangeRate converts between two ISO currency codes.
type ExchangeRate interface {
	GetRate(ctx context.Context, from, to string) (float64, error)
}

// Auth validates a caller-presented API key.
type Auth interface {
	Validate(ctx context.Context, apiKey string) (bool, error)
}
