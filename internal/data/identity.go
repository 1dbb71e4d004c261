package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
)

const (
	claimSubject = "sub"
	claimUserID  = "user_id"
)

// identityRepo resolves bearer tokens locally with a shared HS256 secret,
// or remotely through the identity provider's user endpoint.
type identityRepo struct {
	secret  []byte
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewIdentityRepo creates the identity repository.
// A non-empty secret verifies tokens locally; otherwise baseURL is queried.
func NewIdentityRepo(secret, baseURL, apiKey string, timeout time.Duration) repo.IdentityRepo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &identityRepo{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// ResolveUser returns the subscriber id behind token
func (r *identityRepo) ResolveUser(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", repo.ErrUnauthorized
	}
	if len(r.secret) > 0 {
		return r.verifyLocal(token)
	}
	if r.baseURL == "" {
		return "", fmt.Errorf("%w: no identity provider configured", repo.ErrUnauthorized)
	}
	return r.verifyRemote(ctx, token)
}

func (r *identityRepo) verifyLocal(token string) (string, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", repo.ErrUnauthorized)
	}
	if userID := claimString(claims, claimSubject); userID != "" {
		return userID, nil
	}
	if userID := claimString(claims, claimUserID); userID != "" {
		return userID, nil
	}
	return "", fmt.Errorf("%w: user id missing", repo.ErrUnauthorized)
}

func (r *identityRepo) verifyRemote(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", repo.ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("identity provider: status %d", resp.StatusCode)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("identity provider: %w", err)
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: user id missing", repo.ErrUnauthorized)
	}
	return user.ID, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	default:
		return fmt.Sprint(raw)
	}
}
