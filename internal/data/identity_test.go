package data

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestIdentityLocalJWT(t *testing.T) {
	r := NewIdentityRepo("test-secret", "", "", 0)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	id, err := r.ResolveUser(ctx, signToken(t, "test-secret", jwt.MapClaims{"sub": "user-123", "exp": exp}, jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, "user-123", id)

	id, err = r.ResolveUser(ctx, signToken(t, "test-secret", jwt.MapClaims{"user_id": "user-456", "exp": exp}, jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, "user-456", id)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signToken(t, "other", jwt.MapClaims{"sub": "u", "exp": exp}, jwt.SigningMethodHS256)},
		{"expired", signToken(t, "test-secret", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()}, jwt.SigningMethodHS256)},
		{"wrong algorithm", signToken(t, "test-secret", jwt.MapClaims{"sub": "u", "exp": exp}, jwt.SigningMethodHS512)},
		{"no subject", signToken(t, "test-secret", jwt.MapClaims{"exp": exp}, jwt.SigningMethodHS256)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ResolveUser(ctx, tt.token)
			assert.ErrorIs(t, err, repo.ErrUnauthorized)
		})
	}
}

func TestIdentityRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/auth/v1/user", req.URL.Path)
		assert.Equal(t, "anon", req.Header.Get("apikey"))
		if req.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"id":"user-789","email":"a@b.c"}`)
	}))
	defer srv.Close()

	r := NewIdentityRepo("", srv.URL+"/", "anon", time.Second)

	id, err := r.ResolveUser(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-789", id)

	_, err = r.ResolveUser(context.Background(), "bad")
	assert.ErrorIs(t, err, repo.ErrUnauthorized)
}

func TestIdentityUnconfigured(t *testing.T) {
	_, err := NewIdentityRepo("", "", "", 0).ResolveUser(context.Background(), "token")
	assert.ErrorIs(t, err, repo.ErrUnauthorized)
}
