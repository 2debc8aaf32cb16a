package collaborators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/selcukyavuz/moneybee/internal/breaker"
	"github.com/selcukyavuz/moneybee/internal/merr"
	"github.com/selcukyavuz/moneybee/internal/models"
)

// httpClient is the shared shape of every collaborator's HTTP transport:
// a base URL, a bounded-timeout *http.Client, a circuit breaker, and a
// retry budget for the transient failures a breaker attempt surfaces.
type httpClient struct {
	baseURL       string
	client        *http.Client
	brk           *breaker.Breaker
	cfg           *breaker.Config
	retryAttempts int
}

func newHTTPClient(baseURL string, timeout time.Duration, retryAttempts int, brk *breaker.Breaker, name string) *httpClient {
	return &httpClient{
		baseURL:       baseURL,
		client:        &http.Client{Timeout: timeout},
		brk:           brk,
		cfg:           breaker.DefaultConfig(name),
		retryAttempts: retryAttempts,
	}
}

// getJSON is only ever used for GET requests against these four
// collaborators, so every call here is idempotent and safe to retry.
// Each attempt still runs through the breaker; a request that never
// leaves the breaker open (ErrOpen) or a definitive 404 (errNotFound)
// is not worth retrying and returns immediately, matching
// internal/lock.Locker.AcquireWithRetry's capped-exponential-backoff
// shape.
func (h *httpClient) getJSON(ctx context.Context, path string, out interface{}) error {
	backoff := 50 * time.Millisecond
	const cap_ = 800 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < h.retryAttempts; attempt++ {
		err := h.brk.Call(ctx, h.cfg, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			resp, err := h.client.Do(req)
			if err != nil {
				return fmt.Errorf("do request: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return errNotFound
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
			if out == nil {
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(out)
		})

		if err == nil || errors.Is(err, errNotFound) || errors.Is(err, breaker.ErrOpen) {
			return err
		}
		lastErr = err

		if attempt == h.retryAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > cap_ {
			backoff = cap_
		}
	}
	return lastErr
}

var errNotFound = fmt.Errorf("collaborator: not found")

// ---- Customer ----

type HTTPCustomerClient struct{ *httpClient }

func NewHTTPCustomerClient(baseURL string, timeout time.Duration, retryAttempts int, brk *breaker.Breaker) *HTTPCustomerClient {
	return &HTTPCustomerClient{newHTTPClient(baseURL, timeout, retryAttempts, brk, "customer")}
}

func (c *HTTPCustomerClient) GetByNationalID(ctx context.Context, nationalID string) (*CustomerInfo, error) {
	var resp struct {
		ID          string `json:"id"`
		NationalID  string `json:"national_id"`
		Status      string `json:"status"`
		KYCVerified bool   `json:"kyc_verified"`
	}
	err := c.getJSON(ctx, "/customers/by-national-id/"+nationalID, &resp)
	if err == errNotFound {
		return nil, merr.NewNotFound("customer %s not found", nationalID)
	}
	if err != nil {
		return nil, merr.Wrap(err, "customer service")
	}
	return &CustomerInfo{
		ID:          resp.ID,
		NationalID:  resp.NationalID,
		Status:      CustomerStatus(resp.Status),
		KYCVerified: resp.KYCVerified,
	}, nil
}

// ---- Fraud ----

type HTTPFraudClient struct{ *httpClient }

func NewHTTPFraudClient(baseURL string, timeout time.Duration, retryAttempts int, brk *breaker.Breaker) *HTTPFraudClient {
	return &HTTPFraudClient{newHTTPClient(baseURL, timeout, retryAttempts, brk, "fraud")}
}

func (c *HTTPFraudClient) Check(ctx context.Context, senderID, receiverID string, amountInTRY float64, senderNationalID string) (models.RiskLevel, error) {
	path := fmt.Sprintf("/fraud/check?sender_id=%s&receiver_id=%s&amount_in_try=%f&sender_national_id=%s",
		senderID, receiverID, amountInTRY, senderNationalID)
	var resp struct {
		RiskLevel string `json:"risk_level"`
	}
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return "", merr.Wrap(err, "fraud service")
	}
	return models.RiskLevel(resp.RiskLevel), nil
}

// ---- Exchange rate ----

type HTTPExchangeRateClient struct {
	*httpClient
	apiKey string
}

// NewHTTPExchangeRateClient mirrors workers/fxrates/worker.go's dry-run
// fallback: an empty/placeholder key runs in dry-run mode rather than
// failing outright, logged once at construction.
func NewHTTPExchangeRateClient(baseURL, apiKey string, timeout time.Duration, retryAttempts int, brk *breaker.Breaker) *HTTPExchangeRateClient {
	if apiKey == "" {
		log.Println("[exchangerate] ⚠️  no API key configured - running in dry-run mode")
	}
	return &HTTPExchangeRateClient{httpClient: newHTTPClient(baseURL, timeout, retryAttempts, brk, "exchangerate"), apiKey: apiKey}
}

func (c *HTTPExchangeRateClient) GetRate(ctx context.Context, from, to string) (float64, error) {
	if c.apiKey == "" {
		return 0, merr.NewUnavailable("exchange rate service: dry-run mode, no API key configured")
	}
	var resp struct {
		Rate float64 `json:"rate"`
	}
	path := fmt.Sprintf("/rates/%s/%s?key=%s", from, to, c.apiKey)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return 0, merr.NewUnavailable("exchange rate service: %v", err)
	}
	return resp.Rate, nil
}

// ---- Auth ----

type HTTPAuthClient struct{ *httpClient }

func NewHTTPAuthClient(baseURL string, timeout time.Duration, retryAttempts int, brk *breaker.Breaker) *HTTPAuthClient {
	return &HTTPAuthClient{newHTTPClient(baseURL, timeout, retryAttempts, brk, "auth")}
}

func (c *HTTPAuthClient) Validate(ctx context.Context, apiKey string) (bool, error) {
	var resp struct {
		IsValid bool `json:"is_valid"`
	}
	path := "/auth/validate?api_key=" + apiKey
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return false, err
	}
	return resp.IsValid, nil
}
