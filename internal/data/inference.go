package data

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agenciageraleads/summi-worker/inference"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
)

// inferenceRepo implements the inference repository
type inferenceRepo struct {
	client *inference.Client
}

// NewInferenceRepo creates an inference repository
func NewInferenceRepo(client *inference.Client) repo.InferenceRepo {
	if client == nil {
		return nil
	}
	return &inferenceRepo{client: client}
}

// CompleteJSON requests a JSON object and decodes the outermost object in the answer
func (r *inferenceRepo) CompleteJSON(ctx context.Context, req repo.ChatRequest) (map[string]any, error) {
	text, err := r.client.Chat(ctx, req.Model, req.System, req.User, req.Temperature, true)
	if err != nil {
		return nil, err
	}
	raw, ok := inference.ExtractJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: %.200s", repo.ErrMalformedResponse, text)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", repo.ErrMalformedResponse, err)
	}
	return out, nil
}

// CompleteText requests a plain text answer
func (r *inferenceRepo) CompleteText(ctx context.Context, req repo.ChatRequest) (string, error) {
	return r.client.Chat(ctx, req.Model, req.System, req.User, req.Temperature, false)
}

// DescribeImage asks the vision model for a description
func (r *inferenceRepo) DescribeImage(ctx context.Context, model, prompt string, image []byte) (string, error) {
	return r.client.Vision(ctx, model, prompt, image)
}

// Transcribe converts audio to text
func (r *inferenceRepo) Transcribe(ctx context.Context, audio []byte) (*repo.Transcription, error) {
	text, seconds, err := r.client.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}
	return &repo.Transcription{Text: text, Duration: seconds}, nil
}

// Synthesize renders text as mp3 speech
func (r *inferenceRepo) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return r.client.Speech(ctx, text)
}
