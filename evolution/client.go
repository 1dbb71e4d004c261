// Package evolution is a small client for the Evolution WhatsApp gateway API.
package evolution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Error describes a failed gateway call, carrying the last attempt's status
type Error struct {
	Op     string
	Status int
	Body   string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("evolution %s failed: %s", e.Op, e.Body)
	}
	return fmt.Sprintf("evolution %s failed: %d %s", e.Op, e.Status, e.Body)
}

// ErrMediaNotFound is returned when no media endpoint answered with base64 content
var ErrMediaNotFound = errors.New("media base64 not found in response")

// Client talks to one Evolution API deployment
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a new Evolution client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Deployments differ on singular/plural route prefixes and media endpoint names
var (
	mediaPostPaths = []string{
		"/chat/getBase64FromMediaMessage/%s",
		"/chat/get-base64-from-media-message/%s",
		"/chat/get-media-base64/%s",
		"/message/getBase64FromMediaMessage/%s",
	}
	mediaGetPaths = []string{
		"/chat/getBase64FromMediaMessage/%s",
		"/message/getBase64FromMediaMessage/%s",
		"/chat/get-media-base64/%s",
	}
)

// SendText delivers a text message
func (c *Client) SendText(ctx context.Context, instance, number, text string) error {
	payload := map[string]any{"number": number, "text": text}
	return c.postWithFallback(ctx, "sendText", instance, payload)
}

// SendAudio delivers an mp3 voice message as base64
func (c *Client) SendAudio(ctx context.Context, instance, number string, mp3 []byte) error {
	payload := map[string]any{"number": number, "audio": base64.StdEncoding.EncodeToString(mp3)}
	return c.postWithFallback(ctx, "sendAudio", instance, payload)
}

func (c *Client) postWithFallback(ctx context.Context, action, instance string, payload any) error {
	var last error
	for _, prefix := range []string{"/message/", "/messages/"} {
		_, err := c.do(ctx, http.MethodPost, prefix+action+"/"+url.PathEscape(instance), payload)
		if err == nil {
			return nil
		}
		last = err
	}
	return last
}

// FetchMediaBase64 returns the base64 media content of a message
func (c *Client) FetchMediaBase64(ctx context.Context, instance, messageID string) (string, error) {
	inst := url.PathEscape(instance)
	payloads := []map[string]any{
		{"messageId": messageID},
		{"id": messageID},
		{"message": map[string]any{"key": map[string]any{"id": messageID}}},
		{"key": map[string]any{"id": messageID}},
	}

	var last error
	for _, path := range mediaPostPaths {
		for _, payload := range payloads {
			body, err := c.do(ctx, http.MethodPost, fmt.Sprintf(path, inst), payload)
			if err != nil {
				last = err
				continue
			}
			return extractBase64(body)
		}
	}
	for _, path := range mediaGetPaths {
		for _, key := range []string{"messageId", "id"} {
			query := url.Values{key: {messageID}}
			body, err := c.do(ctx, http.MethodGet, fmt.Sprintf(path, inst)+"?"+query.Encode(), nil)
			if err != nil {
				last = err
				continue
			}
			return extractBase64(body)
		}
	}
	return "", last
}

// FetchMedia returns the decoded media bytes of a message
func (c *Client) FetchMedia(ctx context.Context, instance, messageID string) ([]byte, error) {
	b64, err := c.FetchMediaBase64(ctx, instance, messageID)
	if err != nil {
		return nil, err
	}
	return DecodeBase64(b64)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Op: path, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: path, Status: resp.StatusCode, Body: err.Error()}
	}
	if resp.StatusCode >= 300 {
		return nil, &Error{Op: path, Status: resp.StatusCode, Body: truncate(string(respBody), 300)}
	}
	return respBody, nil
}

// extractBase64 looks for data.base64, base64 or data.message.base64
func extractBase64(body []byte) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMediaNotFound, truncate(string(body), 200))
	}
	for _, path := range [][]string{{"data", "base64"}, {"base64"}, {"data", "message", "base64"}} {
		var cur any = doc
		for _, key := range path {
			m, ok := cur.(map[string]any)
			if !ok {
				cur = nil
				break
			}
			cur = m[key]
		}
		if s, ok := cur.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMediaNotFound, truncate(string(body), 200))
}

// DecodeBase64 decodes media content, dropping any data URL prefix
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("failed to decode media: %w", err)
	}
	return b, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
