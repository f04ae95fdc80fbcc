// Package middleware provides the HTTP middleware chain: authentication,
// CORS and rate limiting.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nutrilink/platform/internal/app/auth"
	"github.com/nutrilink/platform/internal/app/domain/user"
	apperrors "github.com/nutrilink/platform/internal/errors"
	"github.com/nutrilink/platform/pkg/logger"
)

// Principal is the authenticated caller extracted from the access token.
type Principal struct {
	UserID string
	Role   user.Role
}

type principalKey struct{}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal injects a caller into the context. Exposed for tests.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, p)
	ctx = logger.WithUserID(ctx, p.UserID)
	ctx = logger.WithRole(ctx, string(p.Role))
	return ctx
}

// Authenticator verifies bearer tokens and attaches the principal to the
// request context.
type Authenticator struct {
	tokens *auth.Manager
	log    *logger.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens *auth.Manager, log *logger.Logger) *Authenticator {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Authenticator{tokens: tokens, log: log}
}

// Require rejects requests without a valid access token.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeServiceError(w, apperrors.Unauthorized("missing bearer token"))
			return
		}

		claims, err := a.tokens.VerifyAccess(raw)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		ctx := WithPrincipal(r.Context(), Principal{UserID: claims.UserID, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Trace assigns every request a trace ID for log correlation.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithTraceID(r.Context(), logger.NewTraceID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeServiceError(w http.ResponseWriter, err error) {
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil {
		svcErr = apperrors.Internal("internal error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": svcErr.Message,
		"code":  svcErr.Code,
	})
}
