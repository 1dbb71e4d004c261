package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAudioFilename(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"ogg", []byte("OggS\x00\x02"), "audio.ogg"},
		{"mp3 id3", []byte("ID3\x04\x00"), "audio.mp3"},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90}, "audio.mp3"},
		{"wav", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), "audio.wav"},
		{"flac", []byte("fLaC\x00"), "audio.flac"},
		{"m4a", []byte("\x00\x00\x00\x20ftypM4A "), "audio.m4a"},
		{"unknown", []byte("hello"), "audio.mp3"},
		{"empty", nil, "audio.mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AudioFilename(tt.head))
		})
	}
}

func TestImageMIME(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\n...."), "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"gif", []byte("GIF89a..."), "image/gif"},
		{"webp", []byte("RIFF\x10\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"unknown", []byte("????"), "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ImageMIME(tt.head))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	got, ok := ExtractJSONObject("```json\n{\"a\": {\"b\": 1}}\n```")
	assert.True(t, ok)
	assert.Equal(t, `{"a": {"b": 1}}`, got)

	_, ok = ExtractJSONObject("sem json")
	assert.False(t, ok)

	_, ok = ExtractJSONObject("} {")
	assert.False(t, ok)
}
