package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/benvon/voiceflow/internal/request"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
)

// KeySource supplies the keys bearer tokens are verified against.
type KeySource interface {
	Keys(ctx context.Context) (jwk.Set, error)
}

var _ KeySource = (*JWKSCache)(nil)

// Verifier checks bearer JWTs.
type Verifier struct {
	keys     KeySource
	issuer   string
	audience string
}

// NewVerifier creates a verifier. Empty issuer or audience skips that check.
func NewVerifier(keys KeySource, issuer, audience string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer, audience: audience}
}

// Verify validates the token signature and claims and returns the caller.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*request.Principal, error) {
	keys, err := v.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParseOption{jwt.WithKeySet(keys), jwt.WithValidate(true)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}
	if token.Subject() == "" {
		return nil, errors.New("token missing subject claim")
	}

	p := &request.Principal{Subject: token.Subject(), Issuer: token.Issuer()}
	if scope, ok := token.Get("scope"); ok {
		if s, ok := scope.(string); ok {
			p.Scopes = strings.Fields(s)
		}
	}
	return p, nil
}

// Auth requires a valid bearer token and stores the principal on the request context.
func Auth(verifier *Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeErrorResponse(w, r, http.StatusUnauthorized, "Missing Authorization header", logger)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || scheme != "Bearer" || strings.TrimSpace(token) == "" {
				writeErrorResponse(w, r, http.StatusUnauthorized, "Invalid Authorization header format", logger)
				return
			}

			principal, err := verifier.Verify(r.Context(), strings.TrimSpace(token))
			if err != nil {
				logger.Info("token_verification_failed", zap.Error(err))
				writeErrorResponse(w, r, http.StatusUnauthorized, "Invalid or expired token", logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithPrincipal(r.Context(), principal)))
		})
	}
}
