package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:          "sk-test",
		BaseURL:         srv.URL + "/v1",
		TranscribeModel: "whisper-test",
		TTSModel:        "tts-1",
		TTSVoice:        "alloy",
		Timeout:         5 * time.Second,
	})
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func TestChatJSONMode(t *testing.T) {
	var got map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, chatReply("  {\"Prioridade\":\"2\"}  "))
	})

	out, err := c.Chat(context.Background(), "gpt-test", "sys", "user", 0.2, true)
	require.NoError(t, err)
	assert.Equal(t, `{"Prioridade":"2"}`, out)
	assert.Equal(t, "gpt-test", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestChatError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
	})

	_, err := c.Chat(context.Background(), "m", "s", "u", 0, false)
	assert.Error(t, err)
}

func TestVisionSendsDataURL(t *testing.T) {
	var body string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		_, _ = io.WriteString(w, chatReply("um gato"))
	})

	png := []byte("\x89PNG\r\n\x1a\nrest")
	out, err := c.Vision(context.Background(), "vision", "Descreva", png)
	require.NoError(t, err)
	assert.Equal(t, "um gato", out)
	assert.Contains(t, body, "data:image/png;base64,")
	assert.Contains(t, body, "Descreva")
}

func TestTranscribe(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-test", r.FormValue("model"))
		if _, header, err := r.FormFile("file"); assert.NoError(t, err) {
			assert.Equal(t, "audio.ogg", header.Filename)
		}
		_, _ = io.WriteString(w, `{"text":" olá mundo ","duration":12.5}`)
	})

	text, seconds, err := c.Transcribe(context.Background(), []byte("OggS\x00\x02rest"))
	require.NoError(t, err)
	assert.Equal(t, "olá mundo", text)
	assert.InDelta(t, 12.5, seconds, 0.001)
}

func TestSpeech(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(raw), `"voice":"alloy"`))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3mp3bytes")
	})

	audio, err := c.Speech(context.Background(), "bom dia")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3mp3bytes"), audio)
}
