package usecase

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
)

// Candidate paths per field, tried in order; the first usable value wins.
// The gateway emits several payload shapes at once (bare, wrapped in "body",
// data as an object or as an array for messages.update).
var (
	eventPaths = []string{"body.event", "event"}

	instancePaths = []string{
		"body.instance", "body.instanceName",
		"instance", "instanceName",
		"data.instance", "data.instanceName",
		"data.instance.instanceName", "data.instance.name",
	}

	remoteJIDPaths = []string{
		"body.data.key.remoteJid", "body.data.remoteJid",
		"data.key.remoteJid", "data.remoteJid",
		"data.0.key.remoteJid", "data.0.remoteJid",
		"remoteJid", "key.remoteJid",
	}

	remoteJIDAltPaths = []string{
		"body.data.key.remoteJidAlt", "data.key.remoteJidAlt",
		"data.0.key.remoteJidAlt", "key.remoteJidAlt",
	}

	pushNamePaths = []string{
		"body.data.pushName", "data.pushName", "data.sender.pushName",
		"data.0.pushName", "pushName",
	}

	fromMePaths = []string{
		"body.data.key.fromMe", "data.key.fromMe", "data.0.key.fromMe", "key.fromMe",
	}

	messageIDPaths = []string{
		"body.data.key.id", "data.key.id", "data.0.key.id", "data.keyId", "data.0.keyId", "key.id",
	}

	participantPaths = []string{
		"body.data.key.participant", "data.key.participant", "data.participant",
		"data.0.key.participant", "key.participant",
	}

	senderPaths = []string{"body.sender", "sender"}

	timestampPaths = []string{
		"body.data.messageTimestamp", "data.messageTimestamp", "data.0.messageTimestamp", "messageTimestamp",
	}

	messagePaths = []string{"body.data.message", "data.message", "data.0.message", "message"}

	// relative to the message object
	textPaths = []string{"conversation", "extendedTextMessage.text", "imageMessage.caption"}
)

// NormalizeEvent maps one gateway delivery into a MessageEvent.
// Missing or malformed fields are left empty; it never fails.
func NormalizeEvent(payload any, receivedAt time.Time) domain.MessageEvent {
	rawJID := firstString(payload, remoteJIDPaths)
	ev := domain.MessageEvent{
		Event:        firstString(payload, eventPaths),
		Instance:     firstString(payload, instancePaths),
		RawRemoteJID: rawJID,
		RemoteJID:    stripJIDDomain(rawJID),
		RemoteJIDAlt: firstString(payload, remoteJIDAltPaths),
		PushName:     firstString(payload, pushNamePaths),
		MessageID:    firstString(payload, messageIDPaths),
		Participant:  firstString(payload, participantPaths),
		SenderJID:    firstString(payload, senderPaths),
		ReceivedAt:   receivedAt,
		Raw:          payload,
	}
	if fromMe, ok := firstBool(payload, fromMePaths); ok {
		ev.FromMe = fromMe
	}
	if ts, ok := firstInt(payload, timestampPaths); ok && ts > 0 {
		ev.Timestamp = time.Unix(ts, 0).UTC()
	}

	msg := messageObject(payload)
	ev.Kind = classifyMessage(msg)
	ev.Text = firstString(msg, textPaths)
	switch ev.Kind {
	case domain.KindReaction:
		ev.ReactionText, _ = lookupString(msg, "reactionMessage.text")
		ev.ReactionTargetID, _ = lookupString(msg, "reactionMessage.key.id")
	case domain.KindAudio:
		if secs, ok := firstInt(msg, []string{"audioMessage.seconds"}); ok {
			s := int(secs)
			ev.AudioSeconds = &s
		}
	}
	return ev
}

// stripJIDDomain drops everything from the first "@"
func stripJIDDomain(jid string) string {
	if i := strings.Index(jid, "@"); i >= 0 {
		return jid[:i]
	}
	return jid
}

func messageObject(payload any) map[string]any {
	for _, p := range messagePaths {
		if v, ok := lookup(payload, p); ok {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func classifyMessage(msg map[string]any) domain.MessageKind {
	if msg == nil {
		return domain.KindUnknown
	}
	has := func(k string) bool {
		_, ok := msg[k]
		return ok
	}
	switch {
	case has("audioMessage"):
		return domain.KindAudio
	case has("imageMessage"):
		return domain.KindImage
	case has("reactionMessage"):
		return domain.KindReaction
	case has("extendedTextMessage"), has("conversation"):
		return domain.KindText
	default:
		return domain.KindUnknown
	}
}

// lookup walks a dot path through maps and arrays; numeric segments index arrays
func lookup(tree any, path string) (any, bool) {
	cur := tree
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func lookupString(tree any, path string) (string, bool) {
	v, ok := lookup(tree, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func firstString(tree any, paths []string) string {
	for _, p := range paths {
		if s, ok := lookupString(tree, p); ok {
			return s
		}
	}
	return ""
}

func firstBool(tree any, paths []string) (bool, bool) {
	for _, p := range paths {
		if v, ok := lookup(tree, p); ok {
			if b, ok := v.(bool); ok {
				return b, true
			}
		}
	}
	return false, false
}

func firstInt(tree any, paths []string) (int64, bool) {
	for _, p := range paths {
		v, ok := lookup(tree, p)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			if !math.IsNaN(n) && !math.IsInf(n, 0) {
				return int64(n), true
			}
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i, true
			}
			if f, err := n.Float64(); err == nil {
				return int64(f), true
			}
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}
