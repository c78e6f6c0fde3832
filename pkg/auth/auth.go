// Package auth implements the pairing-key token exchange: a device that
// proves knowledge of the pairing key receives a signed JWT, and every
// protected surface verifies that JWT.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odvcencio/pocketdev/pkg/errors"
	"github.com/odvcencio/pocketdev/pkg/logging"
)

// TokenLifetime is how long a paired device stays authenticated. Pairing is
// a deliberate act on a trusted network, so tokens are long-lived.
const TokenLifetime = 30 * 24 * time.Hour

// Claims are the JWT claims issued to a paired device.
type Claims struct {
	Device string `json:"device"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies device tokens.
type TokenManager struct {
	secret     []byte
	pairingKey string
	logger     *logging.Logger
}

// NewTokenManager creates a TokenManager signing with secret and accepting
// pairingKey during the exchange.
func NewTokenManager(secret, pairingKey string, logger *logging.Logger) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		pairingKey: pairingKey,
		logger:     logger,
	}
}

// Pair exchanges a pairing key for a signed token. The comparison is
// constant-time.
func (tm *TokenManager) Pair(pairingKey, device string) (string, error) {
	if tm.pairingKey == "" {
		return "", errors.New(errors.ErrCodeUnauthorized, "pairing is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(pairingKey), []byte(tm.pairingKey)) != 1 {
		tm.logger.Warn(logging.CategoryAuth, "pairing_rejected", "", map[string]any{"device": device})
		return "", errors.New(errors.ErrCodeUnauthorized, "invalid pairing key")
	}

	if device == "" {
		device = "mobile_app"
	}

	now := time.Now()
	claims := &Claims{
		Device: device,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   device,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to sign token")
	}

	tm.logger.Info(logging.CategoryAuth, "device_paired", device, nil)
	return signed, nil
}

// Verify checks a token and returns its claims.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf(errors.ErrCodeUnauthorized, "unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New(errors.ErrCodeUnauthorized, "invalid token")
	}
	return claims, nil
}

type claimsContextKey struct{}

// ContextWithClaims stores verified claims on the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts verified claims, if the request was
// authenticated.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok
}

// Middleware verifies the Bearer token on every request and stores the
// claims on the context. Unauthenticated requests get 401.
func (tm *TokenManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			unauthorized(w, "missing token")
			return
		}

		claims, err := tm.Verify(token)
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// bearerToken pulls the token from the Authorization header, falling back to
// the token query parameter for websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"status":"error","message":"` + msg + `"}`))
}

// GeneratePairingKey returns a random key suitable for first-run setup.
func GeneratePairingKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to generate pairing key")
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
