package inference

import (
	"bytes"
	"strings"
)

// AudioFilename picks an upload filename the transcription endpoint will accept
func AudioFilename(audio []byte) string {
	head := audio
	if len(head) > 32 {
		head = head[:32]
	}
	switch {
	case bytes.HasPrefix(head, []byte("OggS")):
		return "audio.ogg"
	case bytes.HasPrefix(head, []byte("ID3")), len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return "audio.mp3"
	case bytes.HasPrefix(head, []byte("RIFF")) && bytes.Contains(head, []byte("WAVE")):
		return "audio.wav"
	case bytes.HasPrefix(head, []byte("fLaC")):
		return "audio.flac"
	case len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")):
		return "audio.m4a"
	default:
		return "audio.mp3"
	}
}

// ImageMIME sniffs the image type, defaulting to jpeg
func ImageMIME(image []byte) string {
	head := image
	if len(head) > 32 {
		head = head[:32]
	}
	switch {
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(head, []byte("\xff\xd8\xff")):
		return "image/jpeg"
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return "image/gif"
	case bytes.HasPrefix(head, []byte("RIFF")) && len(head) >= 12 && bytes.Contains(head[:min(16, len(head))], []byte("WEBP")):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ExtractJSONObject returns the outermost {...} span of a model answer
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
