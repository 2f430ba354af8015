package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dyorwellness/storefront/internal/domain/auth"
)

// HeaderAdminKey carries the admin API key.
const HeaderAdminKey = "X-Admin-Key"

type adminKeyCtx struct{}

// AdminKeyFromContext returns the key that authenticated the request.
func AdminKeyFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	k, ok := ctx.Value(adminKeyCtx{}).(*auth.APIKeyInfo)
	return k, ok
}

// AdminAuth authenticates back office requests by the HMAC-SHA256 hash of
// the X-Admin-Key header and requires the admin scope.
type AdminAuth struct {
	keys   auth.Repository
	pepper []byte
}

// NewAdminAuth creates an AdminAuth over keys hashed with pepper.
func NewAdminAuth(keys auth.Repository, pepper []byte) *AdminAuth {
	return &AdminAuth{keys: keys, pepper: pepper}
}

// Authenticate resolves raw to a stored key holding the admin scope.
func (a *AdminAuth) Authenticate(ctx context.Context, raw string) (*auth.APIKeyInfo, int, error) {
	if raw == "" {
		return nil, http.StatusUnauthorized, errors.New("missing admin key")
	}
	hash := auth.HashKey(a.pepper, raw)

	info, err := a.keys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, http.StatusUnauthorized, errors.New("invalid admin key")
		}
		return nil, http.StatusInternalServerError, errors.Wrap(err, "find admin key")
	}

	// The stored row must hash-match even if the lookup matched loosely.
	want, err1 := hex.DecodeString(hash)
	got, err2 := hex.DecodeString(info.KeyHash)
	if err1 != nil || err2 != nil || subtle.ConstantTimeCompare(want, got) != 1 {
		return nil, http.StatusUnauthorized, errors.New("invalid admin key")
	}
	if !info.HasScope(auth.ScopeAdmin) {
		return nil, http.StatusForbidden, errors.New("admin scope required")
	}
	return info, http.StatusOK, nil
}

// Middleware rejects requests without a valid admin key.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, status, err := a.Authenticate(ctx, r.Header.Get(HeaderAdminKey))
		if err != nil {
			if status == http.StatusInternalServerError {
				zctx.From(ctx).Error("Admin auth failed", zap.Error(err))
				writeError(w, status, "internal server error")
				return
			}
			zctx.From(ctx).Warn("Admin request rejected", zap.Int("status", status), zap.Error(err))
			writeError(w, status, err.Error())
			return
		}

		ctx = context.WithValue(ctx, adminKeyCtx{}, info)
		ctx = zctx.With(ctx, zap.String("admin_key", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
