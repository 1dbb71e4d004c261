package repo

import (
	"context"
)

// GatewayRepo is the messaging gateway interface
// Responsible for delivering messages and fetching media from WhatsApp instances
type GatewayRepo interface {
	// SendText sends a text message from instance to number
	SendText(ctx context.Context, instance, number, text string) error

	// SendAudio sends an mp3 voice message from instance to number
	SendAudio(ctx context.Context, instance, number string, mp3 []byte) error

	// FetchMedia downloads the decoded media bytes of a message
	FetchMedia(ctx context.Context, instance, messageID string) ([]byte, error)
}
