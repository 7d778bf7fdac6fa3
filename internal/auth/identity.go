// Package auth resolves the caller identity attached to each request.
//
// The drive does not authenticate users itself. When a JWT secret is
// configured, a Bearer token signed with it is trusted and its email claim
// becomes the caller. Without a token the X-User-Email header set by an
// upstream proxy is used. No identity at all yields the anonymous caller.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/logging"
)

type contextKey string

const callerContextKey contextKey = "caller"

// EmailHeader carries the caller email from a trusted proxy.
const EmailHeader = "X-User-Email"

// Claims holds JWT token claims.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Auth extracts caller identity.
type Auth struct {
	secret []byte
}

// New creates an Auth. An empty secret disables token validation.
func New(jwtSecret string) *Auth {
	return &Auth{secret: []byte(jwtSecret)}
}

// Middleware stores the resolved caller in the request context. A present
// but invalid token is rejected with 401.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := strings.TrimSpace(r.Header.Get(EmailHeader))

		if tokenStr := extractToken(r); tokenStr != "" && len(a.secret) > 0 {
			claims, err := a.validateToken(tokenStr)
			if err != nil {
				logging.WithContext(r.Context()).Debug("rejected token", zap.Error(err))
				sendAuthError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
				return
			}
			caller = claims.Email
		}

		ctx := WithCaller(r.Context(), caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithCaller returns ctx carrying caller.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// Caller returns the caller email from ctx, or "" for anonymous.
func Caller(ctx context.Context) string {
	c, _ := ctx.Value(callerContextKey).(string)
	return c
}

// IssueToken signs a token for email valid for ttl.
func (a *Auth) IssueToken(email string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("no jwt secret configured")
	}
	now := time.Now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "bucketdrive",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Email == "" {
		return nil, errors.New("token has no email claim")
	}
	return claims, nil
}

func extractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": message,
		"code":  code,
	})
}
