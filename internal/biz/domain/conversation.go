package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Priority is the urgency symbol assigned by the classifier
type Priority string

const (
	PriorityNone   Priority = "0"
	PriorityLater  Priority = "1"
	PriorityToday  Priority = "2"
	PriorityUrgent Priority = "3"
)

// MaxRationaleRunes bounds the stored classification rationale
const MaxRationaleRunes = 250

// ParsePriority clamps any classifier output to a valid priority.
// Missing, malformed and out-of-range values become PriorityNone.
func ParsePriority(v any) Priority {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		if t != float64(int(t)) {
			return PriorityNone
		}
		s = fmt.Sprintf("%d", int(t))
	case int:
		s = fmt.Sprintf("%d", t)
	case json.Number:
		s = t.String()
	default:
		return PriorityNone
	}
	switch Priority(s) {
	case PriorityNone, PriorityLater, PriorityToday, PriorityUrgent:
		return Priority(s)
	}
	return PriorityNone
}

// Digestible reports whether the priority belongs in a digest
func (p Priority) Digestible() bool {
	return p == PriorityToday || p == PriorityUrgent
}

// TruncateRunes cuts s to at most n runes
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// LogEntry is one stored message inside a conversation log.
// Keys written by older producers are kept verbatim in extra.
type LogEntry struct {
	ReceivedAt string          `json:"received_at,omitempty"`
	Event      string          `json:"event,omitempty"`
	Instance   string          `json:"instance_name,omitempty"`
	RemoteJID  string          `json:"remote_jid,omitempty"`
	PushName   string          `json:"push_name,omitempty"`
	FromMe     bool            `json:"from_me"`
	MessageID  string          `json:"message_id,omitempty"`
	Kind       MessageKind     `json:"message_type,omitempty"`
	Author     string          `json:"author,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Text       string          `json:"text"`
	Raw        json.RawMessage `json:"raw,omitempty"`

	extra map[string]json.RawMessage
}

var logEntryKeys = map[string]bool{
	"received_at": true, "event": true, "instance_name": true, "remote_jid": true,
	"push_name": true, "from_me": true, "message_id": true, "message_type": true,
	"author": true, "timestamp": true, "text": true, "raw": true,
}

type logEntryAlias LogEntry

// UnmarshalJSON decodes known keys leniently and keeps the rest
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*e = LogEntry{}
	for k, v := range fields {
		if !logEntryKeys[k] {
			if e.extra == nil {
				e.extra = make(map[string]json.RawMessage)
			}
			e.extra[k] = v
			continue
		}
		switch k {
		case "from_me":
			var b bool
			if json.Unmarshal(v, &b) == nil {
				e.FromMe = b
			}
		case "raw":
			if !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				e.Raw = v
			}
		default:
			var s string
			if json.Unmarshal(v, &s) != nil {
				continue
			}
			e.setString(k, s)
		}
	}
	return nil
}

func (e *LogEntry) setString(key, value string) {
	switch key {
	case "received_at":
		e.ReceivedAt = value
	case "event":
		e.Event = value
	case "instance_name":
		e.Instance = value
	case "remote_jid":
		e.RemoteJID = value
	case "push_name":
		e.PushName = value
	case "message_id":
		e.MessageID = value
	case "message_type":
		e.Kind = MessageKind(value)
	case "author":
		e.Author = value
	case "timestamp":
		e.Timestamp = value
	case "text":
		e.Text = value
	}
}

// MarshalJSON writes known keys and any preserved foreign keys
func (e LogEntry) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(logEntryAlias(e))
	if err != nil {
		return nil, err
	}
	if len(e.extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(e.extra)+len(logEntryKeys))
	for k, v := range e.extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Speaker returns the best available author label
func (e LogEntry) Speaker() string {
	if e.Author != "" {
		return e.Author
	}
	if e.PushName != "" {
		return e.PushName
	}
	return DefaultAuthorName
}

// NewLogEntry builds a log entry from an event; raw is attached only when keepRaw is set
func NewLogEntry(ev MessageEvent, keepRaw bool) LogEntry {
	entry := LogEntry{
		Event:     ev.Event,
		Instance:  ev.Instance,
		RemoteJID: ev.RemoteJID,
		PushName:  ev.PushName,
		FromMe:    ev.FromMe,
		MessageID: ev.MessageID,
		Kind:      ev.Kind,
		Author:    ev.AuthorName(),
		Text:      ev.Text,
	}
	if !ev.ReceivedAt.IsZero() {
		entry.ReceivedAt = ev.ReceivedAt.UTC().Format(time.RFC3339)
	}
	if !ev.Timestamp.IsZero() {
		entry.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339)
	}
	if keepRaw && ev.Raw != nil {
		if raw, err := json.Marshal(ev.Raw); err == nil {
			entry.Raw = raw
		}
	}
	return entry
}

// LogShape is the on-disk representation a conversation log arrived in
type LogShape int

const (
	LogShapeEmpty LogShape = iota
	LogShapeList
	LogShapeTranscript
)

// ConversationLog is the append-only message history of one conversation.
// Legacy transcripts stay transcripts on write; everything else is a list.
type ConversationLog struct {
	shape      LogShape
	entries    []LogEntry
	transcript string
}

// NewListLog builds a structured log
func NewListLog(entries ...LogEntry) ConversationLog {
	return ConversationLog{shape: LogShapeList, entries: entries}
}

// NewTranscriptLog wraps a legacy free-text transcript
func NewTranscriptLog(text string) ConversationLog {
	return ConversationLog{shape: LogShapeTranscript, transcript: text}
}

// Shape returns the log's storage shape
func (l ConversationLog) Shape() LogShape {
	return l.shape
}

// Transcript returns the raw transcript text of a legacy log
func (l ConversationLog) Transcript() string {
	return l.transcript
}

// Len returns the number of messages in the log
func (l ConversationLog) Len() int {
	return len(l.Entries())
}

// Entries returns the log in canonical form. Transcript lines of the form
// "- author: text" become entries; continuation lines join the previous one.
func (l ConversationLog) Entries() []LogEntry {
	if l.shape != LogShapeTranscript {
		out := make([]LogEntry, len(l.entries))
		copy(out, l.entries)
		return out
	}
	var out []LogEntry
	for _, line := range strings.Split(l.transcript, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "- ") {
			body := strings.TrimPrefix(line, "- ")
			author, text, ok := strings.Cut(body, ": ")
			if !ok {
				out = append(out, LogEntry{Text: body})
				continue
			}
			out = append(out, LogEntry{Author: author, Text: text})
			continue
		}
		if len(out) == 0 {
			out = append(out, LogEntry{Text: line})
			continue
		}
		out[len(out)-1].Text += "\n" + line
	}
	return out
}

// Last returns the most recent entry
func (l ConversationLog) Last() (LogEntry, bool) {
	if l.shape != LogShapeTranscript {
		if len(l.entries) == 0 {
			return LogEntry{}, false
		}
		return l.entries[len(l.entries)-1], true
	}
	entries := l.Entries()
	if len(entries) == 0 {
		return LogEntry{}, false
	}
	return entries[len(entries)-1], true
}

// Append adds an entry at the end, keeping the existing shape.
// An empty log becomes a structured list.
func (l ConversationLog) Append(entry LogEntry) ConversationLog {
	switch l.shape {
	case LogShapeTranscript:
		line := strings.TrimSpace(fmt.Sprintf("- %s: %s", entry.Speaker(), entry.Text))
		if strings.TrimSpace(l.transcript) == "" {
			return NewTranscriptLog(line)
		}
		return NewTranscriptLog(strings.TrimRight(l.transcript, " \t\r\n") + "\n" + line)
	default:
		entries := make([]LogEntry, 0, len(l.entries)+1)
		entries = append(entries, l.entries...)
		entries = append(entries, entry)
		return NewListLog(entries...)
	}
}

// Retention bounds the size of a conversation log
type Retention struct {
	MaxEntries int // structured logs keep the newest MaxEntries entries
	MaxChars   int // transcripts keep the newest MaxChars runes, cut at a line start
}

// Trim drops the oldest content beyond the retention bounds.
// Order of the surviving messages is unchanged.
func (l ConversationLog) Trim(r Retention) ConversationLog {
	switch l.shape {
	case LogShapeList:
		if r.MaxEntries > 0 && len(l.entries) > r.MaxEntries {
			kept := make([]LogEntry, r.MaxEntries)
			copy(kept, l.entries[len(l.entries)-r.MaxEntries:])
			return NewListLog(kept...)
		}
	case LogShapeTranscript:
		runes := []rune(l.transcript)
		if r.MaxChars > 0 && len(runes) > r.MaxChars {
			tail := string(runes[len(runes)-r.MaxChars:])
			if i := strings.Index(tail, "\n"); i >= 0 && i < len(tail)-1 {
				tail = tail[i+1:]
			}
			return NewTranscriptLog(tail)
		}
	}
	return l
}

// MarshalJSON writes the log in its storage shape: array, string or null
func (l ConversationLog) MarshalJSON() ([]byte, error) {
	switch l.shape {
	case LogShapeTranscript:
		return json.Marshal(l.transcript)
	case LogShapeList:
		if l.entries == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(l.entries)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts an array of entries, a transcript string or null.
// Array elements that are not objects are kept as text entries.
func (l *ConversationLog) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*l = ConversationLog{}
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*l = NewTranscriptLog(s)
		return nil
	case trimmed[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		entries := make([]LogEntry, 0, len(items))
		for _, item := range items {
			var entry LogEntry
			if err := json.Unmarshal(item, &entry); err != nil {
				entry = LogEntry{Text: strings.Trim(string(item), `"`)}
			}
			entries = append(entries, entry)
		}
		*l = NewListLog(entries...)
		return nil
	default:
		return fmt.Errorf("unsupported conversation log shape: %.20s", trimmed)
	}
}

// Conversation is the persistent per-contact aggregate
type Conversation struct {
	ID         string
	UserID     string
	RemoteJID  string
	Name       string
	Group      string // full group jid, empty for direct chats
	Log        ConversationLog
	Priority   Priority
	Context    string
	AnalyzedAt *time.Time
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// NeedsClassification reports whether the conversation changed since it was last classified
func (c *Conversation) NeedsClassification() bool {
	if c.AnalyzedAt == nil {
		return true
	}
	return c.ModifiedAt.After(*c.AnalyzedAt)
}

// IsGroup reports whether the conversation is a group chat
func (c *Conversation) IsGroup() bool {
	return c.Group != "" || strings.HasSuffix(c.RemoteJID, "@g.us")
}

// Classification is the normalized classifier verdict for one conversation
type Classification struct {
	ConversationID string
	Priority       Priority
	Rationale      string
	Name           string
	Phone          string
	FirstMessageAt string
}

// DigestItem is one line of a digest, derived from a classified conversation
type DigestItem struct {
	Name           string
	Phone          string
	Priority       Priority
	Rationale      string
	FirstMessageAt time.Time
}

// DigestItemFrom builds a digest item from a classified conversation
func DigestItemFrom(c *Conversation) DigestItem {
	return DigestItem{
		Name:           c.Name,
		Phone:          c.RemoteJID,
		Priority:       c.Priority,
		Rationale:      TruncateRunes(c.Context, MaxRationaleRunes),
		FirstMessageAt: c.CreatedAt,
	}
}
