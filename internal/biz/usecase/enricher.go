package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/conf"
)

// LightningReaction is the emoji that asks for an audio transcript
const LightningReaction = "⚡"

// Outbound destinations
const (
	DestinationConversation = "conversation"
	DestinationPrivate      = "private"
)

// EnricherConfig holds the models and the private sender instance
type EnricherConfig struct {
	VisionModel    string
	SummaryModel   string
	SenderInstance string
}

// Outbound describes an auxiliary message sent back through the gateway
type Outbound struct {
	Sent           bool   `json:"sent"`
	Destination    string `json:"destination,omitempty"`
	TargetInstance string `json:"target_instance,omitempty"`
	TargetNumber   string `json:"target_number,omitempty"`
}

// Enrichment is the outcome of enriching one event
type Enrichment struct {
	// Text is what enters the conversation log; empty means nothing to store
	Text     string
	Extras   map[string]any
	Outbound Outbound
	// AudioSeconds is the resolved duration of a transcribed audio
	AudioSeconds int
	// Err is the failure that interrupted enrichment, if any
	Err error
}

// Enricher turns media events into text and sends transcripts back when asked
type Enricher struct {
	gateway   repo.GatewayRepo
	inference repo.InferenceRepo
	probe     repo.AudioProbe
	prompts   *conf.PromptsConfig
	cfg       EnricherConfig
}

// NewEnricher creates a new enricher
func NewEnricher(
	gateway repo.GatewayRepo,
	inference repo.InferenceRepo,
	probe repo.AudioProbe,
	prompts *conf.PromptsConfig,
	cfg EnricherConfig,
) *Enricher {
	if prompts == nil {
		prompts = conf.DefaultPromptsConfig()
	}
	return &Enricher{
		gateway:   gateway,
		inference: inference,
		probe:     probe,
		prompts:   prompts,
		cfg:       cfg,
	}
}

// Enrich produces the text to store for ev. It never panics on bad input and
// never returns an error directly: failures are carried in Enrichment.Err and
// text or unknown events degrade to their normalized text.
func (e *Enricher) Enrich(ctx context.Context, ev domain.MessageEvent, profile *domain.SubscriberProfile) Enrichment {
	res := Enrichment{Extras: map[string]any{}, Outbound: Outbound{Sent: false}}

	var err error
	switch ev.Kind {
	case domain.KindText:
		res.Text = strings.TrimSpace(ev.Text)
	case domain.KindImage:
		err = e.enrichImage(ctx, ev, &res)
	case domain.KindAudio:
		err = e.enrichAudio(ctx, ev, profile, &res)
	case domain.KindReaction:
		err = e.enrichReaction(ctx, ev, profile, &res)
		// reactions never enter the log
		res.Text = ""
	}

	if err != nil {
		res.Err = err
		res.Text = ""
		switch ev.Kind {
		case domain.KindText, domain.KindUnknown, domain.KindImage:
			res.Text = strings.TrimSpace(ev.Text)
		}
	}
	return res
}

// enrichImage describes the image; the caption stands in when there is no description
func (e *Enricher) enrichImage(ctx context.Context, ev domain.MessageEvent, res *Enrichment) error {
	res.Text = strings.TrimSpace(ev.Text)
	if ev.MessageID == "" {
		return nil
	}
	image, err := e.gateway.FetchMedia(ctx, ev.Instance, ev.MessageID)
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	desc, err := e.inference.DescribeImage(ctx, e.cfg.VisionModel, e.prompts.Image.Instruction, image)
	if err != nil {
		return fmt.Errorf("describe image: %w", err)
	}
	if desc = strings.TrimSpace(desc); desc != "" {
		res.Text = "Imagem: " + desc
	}
	res.Extras["image_described"] = true
	return nil
}

func (e *Enricher) enrichAudio(ctx context.Context, ev domain.MessageEvent, profile *domain.SubscriberProfile, res *Enrichment) error {
	if ev.MessageID == "" {
		return nil
	}
	audio, err := e.gateway.FetchMedia(ctx, ev.Instance, ev.MessageID)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}
	tr, err := e.inference.Transcribe(ctx, audio)
	if err != nil {
		return fmt.Errorf("transcribe audio: %w", err)
	}
	if tr == nil {
		tr = &repo.Transcription{}
	}
	transcript := strings.TrimSpace(tr.Text)

	seconds, known := e.audioSeconds(tr, ev.AudioSeconds, audio)
	summarize := profile.ResumeAudio && seconds > profile.SummarizeAfterSeconds

	text := transcript
	if summarize && transcript != "" {
		text, err = e.summarize(ctx, profile, transcript, seconds)
		if err != nil {
			return err
		}
	}
	res.Text = strings.TrimSpace(text)
	res.AudioSeconds = seconds
	res.Extras["audio_transcribed"] = transcript != ""
	res.Extras["audio_summarized"] = summarize
	if known {
		res.Extras["audio_seconds"] = seconds
	} else {
		res.Extras["audio_seconds"] = nil
	}

	sendByOrigin := profile.TranscribeReceived
	if ev.FromMe {
		sendByOrigin = profile.TranscribeSent
	}
	if sendByOrigin && !profile.SendOnReaction && res.Text != "" {
		out, err := e.sendAux(ctx, ev, profile, res.Text)
		res.Outbound = out
		if err != nil {
			// the transcript is still stored
			res.Err = fmt.Errorf("send transcript: %w", err)
		}
	}
	return nil
}

func (e *Enricher) enrichReaction(ctx context.Context, ev domain.MessageEvent, profile *domain.SubscriberProfile, res *Enrichment) error {
	res.Extras["reaction_text"] = ev.ReactionText
	res.Extras["reaction_target_message_id"] = ev.ReactionTargetID

	if !ev.FromMe || !profile.SendOnReaction || !strings.Contains(ev.ReactionText, LightningReaction) || ev.ReactionTargetID == "" {
		return nil
	}
	audio, err := e.gateway.FetchMedia(ctx, ev.Instance, ev.ReactionTargetID)
	if err != nil {
		return fmt.Errorf("fetch reaction target: %w", err)
	}
	tr, err := e.inference.Transcribe(ctx, audio)
	if err != nil {
		return fmt.Errorf("transcribe reaction target: %w", err)
	}
	if tr == nil {
		tr = &repo.Transcription{}
	}
	transcript := strings.TrimSpace(tr.Text)
	text := transcript

	// the reacted-to message carries no seconds field of its own
	seconds, _ := e.audioSeconds(tr, nil, audio)
	if profile.ResumeAudio && seconds > profile.SummarizeAfterSeconds && transcript != "" {
		text, err = e.summarize(ctx, profile, transcript, seconds)
		if err != nil {
			return err
		}
		res.Extras["reaction_audio_summarized"] = true
	}
	if text = strings.TrimSpace(text); text == "" {
		return nil
	}
	out, err := e.sendAux(ctx, ev, profile, text)
	res.Outbound = out
	if err != nil {
		return fmt.Errorf("send reaction transcript: %w", err)
	}
	res.Extras["reaction_audio_transcribed"] = true
	return nil
}

// audioSeconds prefers the service duration, then the payload, then the container
func (e *Enricher) audioSeconds(tr *repo.Transcription, payload *int, audio []byte) (int, bool) {
	if tr != nil && tr.Duration > 0 {
		return int(tr.Duration), true
	}
	if payload != nil {
		return *payload, true
	}
	if e.probe != nil {
		if d, ok := e.probe.Duration(audio); ok && d > 0 {
			return int(d), true
		}
	}
	return 0, false
}

// AudioSummaryMode selects the audio summary template
type AudioSummaryMode string

const (
	SummaryDirect     AudioSummaryMode = "direct"
	SummaryStructured AudioSummaryMode = "structured"
)

const (
	directMaxWords   = 90
	directMaxSeconds = 120
)

// SummaryMode picks a short prose summary for brief audios and structured
// blocks otherwise. seconds <= 0 means the duration is unknown.
func SummaryMode(transcript string, seconds int) AudioSummaryMode {
	if len(strings.Fields(transcript)) <= directMaxWords && seconds <= directMaxSeconds {
		return SummaryDirect
	}
	return SummaryStructured
}

func (e *Enricher) summarize(ctx context.Context, profile *domain.SubscriberProfile, transcript string, seconds int) (string, error) {
	prompt := e.prompts.AudioSummaryDirect
	if SummaryMode(transcript, seconds) == SummaryStructured {
		prompt = e.prompts.AudioSummaryStructured
	}
	vars := map[string]string{
		"urgent_topics":    formatKeywords(profile.UrgentTopics),
		"important_topics": formatKeywords(profile.ImportantTopics),
		"transcript":       transcript,
	}
	out, err := e.inference.CompleteText(ctx, repo.ChatRequest{
		Model:       e.cfg.SummaryModel,
		System:      conf.Render(prompt.System, vars),
		User:        conf.Render(prompt.User, vars),
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("summarize audio: %w", err)
	}
	return out, nil
}

// sendAux delivers text to the conversation, or privately to the subscriber
// through the sender instance when the profile asks for it
func (e *Enricher) sendAux(ctx context.Context, ev domain.MessageEvent, profile *domain.SubscriberProfile, text string) (Outbound, error) {
	out := Outbound{
		Destination:    DestinationConversation,
		TargetInstance: ev.Instance,
		TargetNumber:   domain.Digits(ev.RemoteJID),
	}
	if profile.SendPrivateOnly {
		out.Destination = DestinationPrivate
		out.TargetInstance = e.cfg.SenderInstance
		if n := domain.Digits(ev.SenderJID); n != "" {
			out.TargetNumber = n
		} else if n := profile.Phone(); n != "" {
			out.TargetNumber = n
		}
	}
	if strings.TrimSpace(text) == "" || out.TargetNumber == "" {
		return Outbound{Sent: false, Destination: out.Destination}, nil
	}
	if err := e.gateway.SendText(ctx, out.TargetInstance, out.TargetNumber, text); err != nil {
		return Outbound{Sent: false, Destination: out.Destination}, err
	}
	out.Sent = true
	return out, nil
}
