package repo

import (
	"context"
	"errors"
)

// ChatRequest is a single-turn completion request
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Temperature float32
}

// Transcription is the speech-to-text result
type Transcription struct {
	Text     string
	Duration float64 // seconds reported by the service, zero when unknown
}

// InferenceRepo is the language-model service interface
type InferenceRepo interface {
	// CompleteJSON requests a JSON object answer and decodes it
	CompleteJSON(ctx context.Context, req ChatRequest) (map[string]any, error)

	// CompleteText requests a plain text answer
	CompleteText(ctx context.Context, req ChatRequest) (string, error)

	// DescribeImage asks a vision model to describe an image
	DescribeImage(ctx context.Context, model, prompt string, image []byte) (string, error)

	// Transcribe converts audio to text
	Transcribe(ctx context.Context, audio []byte) (*Transcription, error)

	// Synthesize renders text as mp3 speech
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AudioProbe reads the duration from an audio container
type AudioProbe interface {
	Duration(audio []byte) (float64, bool)
}

// ErrMalformedResponse is returned when the model answer cannot be decoded
var ErrMalformedResponse = errors.New("malformed model response")
