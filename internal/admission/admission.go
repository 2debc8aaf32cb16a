// Package admission is the Auth Admission Filter: API key format check,
// TTL-cached validation against the Auth collaborator, and fail-closed
// behavior on an Auth transport error (a cache transport error falls back
// to asking Auth directly). It is transport-agnostic — the HTTP
// middleware in api/middleware calls it and maps its errors to status
// codes, the way auth's token verification in this codebase's lineage is
// kept separate from the HTTP layer that calls it.
package admission

import (
	"context"
	"errors"
	"strings"

	"github.com/selcukyavuz/moneybee/internal/cache"
	"github.com/selcukyavuz/moneybee/internal/collaborators"
	"github.com/selcukyavuz/moneybee/internal/config"
	"github.com/selcukyavuz/moneybee/internal/logging"
	"github.com/selcukyavuz/moneybee/internal/merr"
)

const keyPrefix = "mb_"
const minKeyLength = 20

// Filter validates a caller-presented API key.
type Filter struct {
	auth  collaborators.Auth
	cache cache.APIKeyCache
	cfg   *config.Config
	log   *logging.Logger
}

func New(cfg *config.Config, auth collaborators.Auth, apiKeyCache cache.APIKeyCache) *Filter {
	return &Filter{auth: auth, cache: apiKeyCache, cfg: cfg, log: logging.New("admission")}
}

// Validate returns nil when apiKey may proceed, or a *merr.Error
// (PermissionDenied in every rejection case) otherwise. It never returns a
// retryable kind: a missing key, a bad format, an invalid key, or an
// unreachable Auth service is rejected. An unreachable cache is not by
// itself a rejection: the key is then checked against Auth directly.
func (f *Filter) Validate(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return merr.NewPermissionDenied("API Key is missing")
	}
	if !strings.HasPrefix(apiKey, keyPrefix) || len(apiKey) < minKeyLength {
		return merr.NewPermissionDenied("invalid API key format")
	}

	valid, err := f.cache.Get(ctx, apiKey)
	switch {
	case err == nil:
		if !valid {
			return merr.NewPermissionDenied("invalid or expired API key")
		}
		return nil

	case errors.Is(err, cache.ErrMiss):
		return f.validateAndCache(ctx, apiKey)

	default:
		// Cache transport error: bypass the cache and consult Auth
		// directly rather than admitting on a broken cache.
		f.log.Printf("⚠️  cache unavailable, consulting auth service directly: %v", err)
		valid, authErr := f.auth.Validate(ctx, apiKey)
		if authErr != nil {
			return merr.NewPermissionDenied("auth service unavailable")
		}
		if !valid {
			return merr.NewPermissionDenied("invalid or expired API key")
		}
		return nil
	}
}

func (f *Filter) validateAndCache(ctx context.Context, apiKey string) error {
	valid, err := f.auth.Validate(ctx, apiKey)
	if err != nil {
		return merr.NewPermissionDenied("auth service unavailable")
	}

	if cacheErr := f.cache.Set(ctx, apiKey, valid, f.cfg.APIKeyValidTTL, f.cfg.APIKeyInvalidTTL); cacheErr != nil {
		f.log.Printf("⚠️  failed to cache API key validation result: %v", cacheErr)
	}

	if !valid {
		return merr.NewPermissionDenied("invalid or expired API key")
	}
	return nil
}
