package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, a *Auth, req *http.Request) (string, int) {
	t.Helper()
	var got string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = Caller(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return got, rec.Code
}

func TestHeaderIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(EmailHeader, " alice@example.com ")

	got, code := resolve(t, New(""), req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice@example.com", got)
}

func TestAnonymous(t *testing.T) {
	got, code := resolve(t, New("secret"), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, got)
}

func TestBearerOverridesHeader(t *testing.T) {
	a := New("secret")
	tok, err := a.IssueToken("bob@example.com", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set(EmailHeader, "mallory@example.com")

	got, code := resolve(t, a, req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bob@example.com", got)
}

func TestInvalidTokens(t *testing.T) {
	a := New("secret")
	expired, err := a.IssueToken("bob@example.com", -time.Minute)
	require.NoError(t, err)
	foreign, err := New("other").IssueToken("bob@example.com", time.Hour)
	require.NoError(t, err)
	noEmail, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage":  "not-a-jwt",
		"expired":  expired,
		"foreign":  foreign,
		"no email": noEmail,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tok)
			_, code := resolve(t, a, req)
			assert.Equal(t, http.StatusUnauthorized, code)
		})
	}
}

func TestTokenIgnoredWithoutSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	req.Header.Set(EmailHeader, "carol@example.com")

	got, code := resolve(t, New(""), req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "carol@example.com", got)

	_, err := New("").IssueToken("x@example.com", time.Hour)
	assert.Error(t, err)
}
