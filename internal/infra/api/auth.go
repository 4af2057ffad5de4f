package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// OperatorClaims identify the administrator behind a request.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthManager accepts either the static automation key or an HS256 operator token.
type AuthManager struct {
	apiKey []byte
	secret []byte
	ttl    time.Duration
}

func NewAuthManager(apiKey, jwtSecret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &AuthManager{apiKey: []byte(apiKey), secret: []byte(jwtSecret), ttl: ttl}
}

// Mint signs an operator token for subject (usually the operator email).
func (a *AuthManager) Mint(subject string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := OperatorClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate returns the caller identity. The static key authenticates as "api-key".
func (a *AuthManager) Authenticate(r *http.Request) (string, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return "", errMissingToken
	}
	tok := strings.TrimSpace(hdr[7:])
	if tok == "" {
		return "", errMissingToken
	}
	if len(a.apiKey) > 0 && subtle.ConstantTimeCompare([]byte(tok), a.apiKey) == 1 {
		return "api-key", nil
	}
	claims, err := a.parse(tok)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (a *AuthManager) parse(tok string) (*OperatorClaims, error) {
	if len(a.secret) == 0 {
		return nil, errInvalidToken
	}
	claims := &OperatorClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Role != "admin" {
		return nil, errInvalidToken
	}
	return claims, nil
}

type operatorKey struct{}

// Middleware rejects unauthenticated requests and stores the operator in the context.
func (a *AuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.apiKey) == 0 && len(a.secret) == 0 {
			writeError(w, http.StatusForbidden, "admin authentication is not configured")
			return
		}
		sub, err := a.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), operatorKey{}, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Operator returns the authenticated subject, or "" outside the auth middleware.
func Operator(ctx context.Context) string {
	s, _ := ctx.Value(operatorKey{}).(string)
	return s
}
