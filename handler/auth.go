package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried by ingestion tokens. The anon key is the one shipped with the
// form; it may only create leads.
const (
	RoleAnon    = "anon"
	RoleService = "service_role"
)

// Claims are the JWT claims of an ingestion token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

// ClaimsFromContext returns the claims stored by Auth.Authenticate.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}

// Auth verifies HS256 bearer tokens on the ingestion endpoint.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) (*Auth, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &Auth{secret: []byte(secret)}, nil
}

// Authenticate rejects requests without a valid bearer token.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			respondErr(ctx, rw, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(
			strings.TrimSpace(strings.TrimPrefix(header, prefix)),
			claims,
			func(*jwt.Token) (interface{}, error) { return a.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		)
		if err != nil || !token.Valid || claims.Role == "" {
			respondErr(ctx, rw, http.StatusUnauthorized, errors.New("invalid bearer token"))
			return
		}

		next.ServeHTTP(rw, r.WithContext(context.WithValue(ctx, claimsKey{}, claims)))
	})
}

// RequireRole only lets through requests whose token carries one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				respondErr(r.Context(), rw, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				respondErr(r.Context(), rw, http.StatusForbidden, errors.New("token role is not allowed here"))
				return
			}
			next.ServeHTTP(rw, r)
		})
	}
}

// SignToken mints an ingestion token for role. A zero ttl mints a token that
// never expires.
func SignToken(secret, role string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("auth: jwt secret is required")
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "leadcapture-ingest",
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
