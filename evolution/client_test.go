package evolution

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	APIKey string
	Body   map[string]any
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    []recorded
	response func(r recorded) (int, string)
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	rec := recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, APIKey: r.Header.Get("apikey")}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &rec.Body)
	}
	g.mu.Lock()
	g.calls = append(g.calls, rec)
	g.mu.Unlock()

	status, body := g.response(rec)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, respond func(r recorded) (int, string)) (*Client, *fakeGateway) {
	t.Helper()
	g := &fakeGateway{response: respond}
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "secret", 5*time.Second), g
}

func TestSendText(t *testing.T) {
	c, g := newTestClient(t, func(r recorded) (int, string) { return http.StatusCreated, `{}` })

	require.NoError(t, c.SendText(context.Background(), "Summi", "5562911112222", "olá"))
	require.Len(t, g.calls, 1)
	call := g.calls[0]
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Equal(t, "/message/sendText/Summi", call.Path)
	assert.Equal(t, "secret", call.APIKey)
	assert.Equal(t, map[string]any{"number": "5562911112222", "text": "olá"}, call.Body)
}

func TestSendTextFallsBackToPluralRoute(t *testing.T) {
	c, g := newTestClient(t, func(r recorded) (int, string) {
		if r.Path == "/message/sendText/Summi" {
			return http.StatusNotFound, `not found`
		}
		return http.StatusOK, `{}`
	})

	require.NoError(t, c.SendText(context.Background(), "Summi", "1", "x"))
	require.Len(t, g.calls, 2)
	assert.Equal(t, "/messages/sendText/Summi", g.calls[1].Path)
}

func TestSendAudioFailure(t *testing.T) {
	c, g := newTestClient(t, func(r recorded) (int, string) { return http.StatusBadGateway, `boom` })

	err := c.SendAudio(context.Background(), "Summi", "1", []byte("mp3"))
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusBadGateway, gwErr.Status)
	require.Len(t, g.calls, 2)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("mp3")), g.calls[0].Body["audio"])
}

func TestFetchMediaShapes(t *testing.T) {
	media := []byte("OggS-audio")
	b64 := base64.StdEncoding.EncodeToString(media)

	tests := []struct {
		name string
		body string
	}{
		{"data.base64", `{"data":{"base64":"` + b64 + `"}}`},
		{"base64", `{"base64":"` + b64 + `"}`},
		{"data.message.base64", `{"data":{"message":{"base64":"` + b64 + `"}}}`},
		{"data url prefix", `{"base64":"data:audio/ogg;base64,` + b64 + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(r recorded) (int, string) { return http.StatusOK, tt.body })
			got, err := c.FetchMedia(context.Background(), "inst", "MSG1")
			require.NoError(t, err)
			assert.Equal(t, media, got)
		})
	}
}

func TestFetchMediaWalksEndpoints(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("img"))
	c, g := newTestClient(t, func(r recorded) (int, string) {
		if r.Method == http.MethodPost && r.Path == "/chat/get-media-base64/inst" {
			if key, ok := r.Body["key"].(map[string]any); ok && key["id"] == "MSG1" {
				return http.StatusOK, `{"base64":"` + b64 + `"}`
			}
		}
		return http.StatusNotFound, `{}`
	})

	got, err := c.FetchMedia(context.Background(), "inst", "MSG1")
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), got)
	assert.Len(t, g.calls, 12, "two paths of four shapes each, then the fourth shape on the third path")
}

func TestFetchMediaGetFallback(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("img"))
	c, g := newTestClient(t, func(r recorded) (int, string) {
		if r.Method == http.MethodGet && r.Path == "/message/getBase64FromMediaMessage/inst" && r.Query == "id=MSG1" {
			return http.StatusOK, `{"data":{"base64":"` + b64 + `"}}`
		}
		return http.StatusNotFound, `{}`
	})

	got, err := c.FetchMedia(context.Background(), "inst", "MSG1")
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), got)
	assert.Len(t, g.calls, 16+4)
}

func TestFetchMediaMissingContent(t *testing.T) {
	c, _ := newTestClient(t, func(r recorded) (int, string) { return http.StatusOK, `{"data":{}}` })

	_, err := c.FetchMedia(context.Background(), "inst", "MSG1")
	assert.ErrorIs(t, err, ErrMediaNotFound)
}

func TestFetchMediaAllEndpointsFail(t *testing.T) {
	c, g := newTestClient(t, func(r recorded) (int, string) { return http.StatusInternalServerError, `down` })

	_, err := c.FetchMedia(context.Background(), "inst", "MSG1")
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Len(t, g.calls, 16+6)
}

func TestDecodeBase64(t *testing.T) {
	got, err := DecodeBase64("  data:image/png;base64,aGVsbG8=  ")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got, err = DecodeBase64("aGVsbG8")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	_, err = DecodeBase64("!!!")
	assert.Error(t, err)
}
