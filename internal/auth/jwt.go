// Package auth trusts identities issued by the account service's JWTs.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"corpchat-backend/internal/i18n"
)

type ctxKey string

const (
	ctxUserID ctxKey = "user_id"
	ctxRoles  ctxKey = "roles"
)

type Claims struct {
	UserID string   `json:"user_id"`
	Role   []string `json:"role"`
	jwt.RegisteredClaims
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	if parts[1] == "" {
		return "", errors.New("empty token")
	}
	return parts[1], nil
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user_id")
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's user id and roles in the request context.
func Middleware(secret string) func(http.Handler) http.Handler {
	secretBytes := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := bearerToken(r)
			if err != nil {
				deny(w, r, http.StatusUnauthorized, "auth.unauthorized")
				return
			}
			claims, err := ParseToken(tokenStr, secretBytes)
			if err != nil {
				deny(w, r, http.StatusUnauthorized, "auth.unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
			ctx = context.WithValue(ctx, ctxRoles, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles lets the request through when the caller holds any of allowed.
func RequireRoles(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, role := range RolesFromContext(r.Context()) {
				if _, ok := set[role]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			deny(w, r, http.StatusForbidden, "auth.forbidden")
		})
	}
}

func UserIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxUserID).(string)
	return s
}

func RolesFromContext(ctx context.Context) []string {
	s, _ := ctx.Value(ctxRoles).([]string)
	return s
}

// WithUserID is used by callers that authenticate by other means.
func WithUserID(ctx context.Context, userID string, roles ...string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxRoles, roles)
}

func deny(w http.ResponseWriter, r *http.Request, status int, messageID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": i18n.T(r.Context(), messageID),
		"code":  messageID,
	})
}
