package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/conf"
)

const (
	// DigestHeader opens every digest
	DigestHeader = "✨ *Summi da Hora*"

	// FallbackDigestText is sent when nothing qualifies
	FallbackDigestText = DigestHeader + "\n\nVocê não tem nenhuma demanda importante por agora, fique tranquilo. ✅"

	// FallbackAudioScript is spoken when the digest is the fallback text
	FallbackAudioScript = "Summi da Hora: não há nada de importante por agora."

	// CountryPrefix is prepended to numbers that lack it
	CountryPrefix = "55"

	sectionSeparator = "\n\n---\n\n"
)

type digestSection struct {
	priority domain.Priority
	title    string
	marker   string
}

var digestSections = []digestSection{
	{priority: domain.PriorityUrgent, title: "*🔥 Urgentes:*", marker: "🔥"},
	{priority: domain.PriorityToday, title: "*🚨 Importantes:*", marker: "🚨"},
}

// NormalizePhone keeps digits and ensures the country prefix
func NormalizePhone(phone string) string {
	digits := domain.Digits(phone)
	if !strings.HasPrefix(digits, CountryPrefix) {
		digits = CountryPrefix + digits
	}
	return digits
}

// ComposeDigest renders digest items, urgent first.
// Items without a rationale are left out; nothing left yields FallbackDigestText.
func ComposeDigest(items []domain.DigestItem) string {
	var parts []string
	for _, section := range digestSections {
		var lines []string
		for _, it := range items {
			if it.Priority != section.priority || strings.TrimSpace(it.Rationale) == "" {
				continue
			}
			phone := NormalizePhone(it.Phone)
			lines = append(lines, fmt.Sprintf("%s *%s*\n%s\nResponder: wa.me/%s", section.marker, it.Name, it.Rationale, phone))
		}
		if len(lines) > 0 {
			parts = append(parts, section.title+"\n\n"+strings.Join(lines, "\n\n"))
		}
	}
	if len(parts) == 0 {
		return FallbackDigestText
	}
	return DigestHeader + "\n\n" + strings.Join(parts, sectionSeparator)
}

// IsFallbackDigest reports whether text is the empty-state digest
func IsFallbackDigest(text string) bool {
	return compactFold(text) == compactFold(FallbackDigestText)
}

func compactFold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// AudioScripter turns a digest into a spoken script
type AudioScripter struct {
	inference repo.InferenceRepo
	prompts   *conf.PromptsConfig
	model     string
}

// NewAudioScripter creates a new audio scripter
func NewAudioScripter(inference repo.InferenceRepo, prompts *conf.PromptsConfig, model string) *AudioScripter {
	if prompts == nil {
		prompts = conf.DefaultPromptsConfig()
	}
	return &AudioScripter{inference: inference, prompts: prompts, model: model}
}

// Script returns the fixed script for the fallback digest and asks the model otherwise
func (s *AudioScripter) Script(ctx context.Context, digest string) (string, error) {
	if IsFallbackDigest(digest) {
		return FallbackAudioScript, nil
	}
	vars := map[string]string{"digest": digest}
	out, err := s.inference.CompleteText(ctx, repo.ChatRequest{
		Model:       s.model,
		System:      conf.Render(s.prompts.AudioScript.System, vars),
		User:        conf.Render(s.prompts.AudioScript.User, vars),
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("audio script: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("audio script: empty model response")
	}
	return out, nil
}
