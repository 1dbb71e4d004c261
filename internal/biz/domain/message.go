package domain

import (
	"strings"
	"time"
)

// MessageKind is the closed set of message shapes the gateway delivers
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindAudio    MessageKind = "audio"
	KindReaction MessageKind = "reaction"
	KindUnknown  MessageKind = "unknown"
)

// Storable reports whether events of this kind may enter a conversation log
func (k MessageKind) Storable() bool {
	switch k {
	case KindText, KindImage, KindAudio:
		return true
	default:
		return false
	}
}

// EventUpsert is the only gateway event that carries a new message
const EventUpsert = "messages.upsert"

// DefaultAuthorName is used when the sender has no display name
const DefaultAuthorName = "Sem nome"

// MessageEvent is the canonical record produced from one webhook delivery.
// It is built once by the normalizer and never mutated afterwards; use
// WithText to derive an enriched copy.
type MessageEvent struct {
	Event            string
	Instance         string
	RemoteJID        string // contact id without the domain suffix
	RawRemoteJID     string // contact id as delivered, e.g. 5562...@s.whatsapp.net
	RemoteJIDAlt     string // alternate address sent with @lid contacts
	PushName         string
	FromMe           bool
	MessageID        string
	Kind             MessageKind
	Timestamp        time.Time
	Participant      string // author inside a group chat
	SenderJID        string // the connected account that received the event
	Text             string
	ReactionText     string
	ReactionTargetID string
	AudioSeconds     *int
	ReceivedAt       time.Time
	Raw              any
}

// IsGroup reports whether the event belongs to a group chat
func (e MessageEvent) IsGroup() bool {
	return strings.HasSuffix(e.RawRemoteJID, "@g.us")
}

// ChatJID returns the identifier a conversation is filed under.
// Groups keep their full jid; @lid contacts resolve to the digits of
// their alternate address.
func (e MessageEvent) ChatJID() string {
	if strings.HasSuffix(e.RawRemoteJID, "@lid") && e.RemoteJIDAlt != "" {
		if d := Digits(e.RemoteJIDAlt); d != "" {
			return d
		}
	}
	if e.IsGroup() {
		return e.RawRemoteJID
	}
	return e.RemoteJID
}

// AuthorName returns the display name to attribute the message to
func (e MessageEvent) AuthorName() string {
	if name := strings.TrimSpace(e.PushName); name != "" {
		return name
	}
	return DefaultAuthorName
}

// WithText returns a copy of the event carrying the given text
func (e MessageEvent) WithText(text string) MessageEvent {
	e.Text = text
	return e
}

// Digits keeps only ASCII digits
func Digits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
