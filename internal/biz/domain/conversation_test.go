package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   any
		want Priority
	}{
		{"3", PriorityUrgent},
		{" 2 ", PriorityToday},
		{"1", PriorityLater},
		{"0", PriorityNone},
		{"4", PriorityNone},
		{"-1", PriorityNone},
		{"urgent", PriorityNone},
		{"", PriorityNone},
		{nil, PriorityNone},
		{float64(3), PriorityUrgent},
		{float64(2.5), PriorityNone},
		{float64(7), PriorityNone},
		{true, PriorityNone},
	}
	for _, tt := range tests {
		if got := ParsePriority(tt.in); got != tt.want {
			t.Errorf("ParsePriority(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("ç", 300)
	got := TruncateRunes(long, MaxRationaleRunes)
	if n := len([]rune(got)); n != MaxRationaleRunes {
		t.Errorf("Expected %d runes, got %d", MaxRationaleRunes, n)
	}
	if TruncateRunes("short", 250) != "short" {
		t.Error("Short strings should be unchanged")
	}
}

func TestConversationLog_UnmarshalShapes(t *testing.T) {
	var list ConversationLog
	if err := json.Unmarshal([]byte(`[{"text":"oi","from_me":false,"received_at":"x","custom":1}]`), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.Shape() != LogShapeList || list.Len() != 1 {
		t.Fatalf("Expected list with 1 entry, got shape=%d len=%d", list.Shape(), list.Len())
	}

	var transcript ConversationLog
	if err := json.Unmarshal([]byte(`"- Ana: oi\n- Ana: tudo bem?"`), &transcript); err != nil {
		t.Fatalf("unmarshal transcript: %v", err)
	}
	if transcript.Shape() != LogShapeTranscript {
		t.Fatalf("Expected transcript shape, got %d", transcript.Shape())
	}
	entries := transcript.Entries()
	if len(entries) != 2 || entries[1].Author != "Ana" || entries[1].Text != "tudo bem?" {
		t.Errorf("Unexpected transcript entries: %+v", entries)
	}

	var empty ConversationLog
	if err := json.Unmarshal([]byte(`null`), &empty); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if empty.Shape() != LogShapeEmpty || empty.Len() != 0 {
		t.Errorf("Expected empty log")
	}
}

func TestConversationLog_PreservesForeignKeys(t *testing.T) {
	var log ConversationLog
	if err := json.Unmarshal([]byte(`[{"text":"oi","custom":{"a":1}}]`), &log); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(log)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"custom":{"a":1}`) {
		t.Errorf("Foreign key lost on rewrite: %s", out)
	}
}

func TestConversationLog_AppendKeepsShapeAndOrder(t *testing.T) {
	list := NewListLog(LogEntry{Text: "a"}).Append(LogEntry{Text: "b"}).Append(LogEntry{Text: "c"})
	entries := list.Entries()
	if len(entries) != 3 || entries[0].Text != "a" || entries[2].Text != "c" {
		t.Errorf("Unexpected order: %+v", entries)
	}

	transcript := NewTranscriptLog("- Ana: oi").Append(LogEntry{Author: "Bruno", Text: "olá"})
	if transcript.Shape() != LogShapeTranscript {
		t.Fatalf("Transcript should stay a transcript")
	}
	if transcript.Transcript() != "- Ana: oi\n- Bruno: olá" {
		t.Errorf("Unexpected transcript: %q", transcript.Transcript())
	}

	var empty ConversationLog
	appended := empty.Append(LogEntry{Text: "first"})
	if appended.Shape() != LogShapeList || appended.Len() != 1 {
		t.Errorf("Empty log should become a singleton list")
	}
	if empty.Len() != 0 {
		t.Errorf("Append must not mutate the receiver")
	}
}

func TestConversationLog_Trim(t *testing.T) {
	log := NewListLog()
	for i := 0; i < 10; i++ {
		log = log.Append(LogEntry{Text: string(rune('a' + i))})
	}
	trimmed := log.Trim(Retention{MaxEntries: 3})
	entries := trimmed.Entries()
	if len(entries) != 3 || entries[0].Text != "h" || entries[2].Text != "j" {
		t.Errorf("Expected newest 3 entries in order, got %+v", entries)
	}

	transcript := NewTranscriptLog("- A: 111111\n- B: 222222\n- C: 333333")
	cut := transcript.Trim(Retention{MaxChars: 20})
	if cut.Transcript() != "- C: 333333" {
		t.Errorf("Expected cut at a line start, got %q", cut.Transcript())
	}
}

func TestConversation_NeedsClassification(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	c := &Conversation{ModifiedAt: now}
	if !c.NeedsClassification() {
		t.Error("Never classified conversation should need classification")
	}

	c.AnalyzedAt = &earlier
	if !c.NeedsClassification() {
		t.Error("Modified after classification should need classification")
	}

	later := now.Add(time.Minute)
	c.AnalyzedAt = &later
	if c.NeedsClassification() {
		t.Error("Classified after last change should not need classification")
	}
}

func TestMessageEvent_ChatJID(t *testing.T) {
	tests := []struct {
		name string
		ev   MessageEvent
		want string
	}{
		{"direct", MessageEvent{RawRemoteJID: "5562999@s.whatsapp.net", RemoteJID: "5562999"}, "5562999"},
		{"group", MessageEvent{RawRemoteJID: "1203@g.us", RemoteJID: "1203"}, "1203@g.us"},
		{"lid with alt", MessageEvent{RawRemoteJID: "99887@lid", RemoteJID: "99887", RemoteJIDAlt: "5511888@s.whatsapp.net"}, "5511888"},
		{"lid without alt", MessageEvent{RawRemoteJID: "99887@lid", RemoteJID: "99887"}, "99887"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.ChatJID(); got != tt.want {
				t.Errorf("ChatJID() = %q, want %q", got, tt.want)
			}
		})
	}
}
