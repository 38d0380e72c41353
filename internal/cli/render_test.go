package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/codevelop/roomchat-go/roomchat"
)

func entry(sender int64, text string, minute int, date string, boundary bool) roomchat.Entry {
	at := time.Date(2024, 1, 1, 9, minute, 0, 0, time.UTC)
	return roomchat.Entry{
		Message: roomchat.Message{
			SenderID:    sender,
			ChatContent: text,
			SendAt:      roomchat.At(at),
			ChatRoomID:  "7",
			DBSendAt:    date,
		},
		DateBoundary: boundary,
	}
}

func TestRendererIncremental(t *testing.T) {
	var out bytes.Buffer
	r := &renderer{out: &out, self: 1}

	first := []roomchat.Entry{entry(1, "a", 0, "2024-01-01", true)}
	r.render(roomchat.Snapshot{Room: "7", Entries: first})
	if !strings.Contains(out.String(), "# room 7") || !strings.Contains(out.String(), "a") {
		t.Fatalf("first render:\n%s", out.String())
	}

	out.Reset()
	second := append(append([]roomchat.Entry(nil), first...), entry(2, "b", 1, "2024-01-01", false))
	r.render(roomchat.Snapshot{Room: "7", Entries: second})
	got := out.String()
	if strings.Contains(got, "# room") || strings.Count(got, "\n") != 1 || !strings.Contains(got, "b") {
		t.Fatalf("incremental render printed:\n%s", got)
	}
}

func TestRendererReprintsOnPrepend(t *testing.T) {
	var out bytes.Buffer
	r := &renderer{out: &out}

	r.render(roomchat.Snapshot{Room: "7", Entries: []roomchat.Entry{entry(1, "recent", 5, "2024-01-01", true)}})
	out.Reset()

	r.render(roomchat.Snapshot{Room: "7", Entries: []roomchat.Entry{
		entry(1, "older", 1, "2024-01-01", true),
		entry(1, "recent", 5, "2024-01-01", false),
	}})
	got := out.String()
	if !strings.Contains(got, "# room 7") || !strings.Contains(got, "older") || !strings.Contains(got, "recent") {
		t.Fatalf("prepend render:\n%s", got)
	}
}

func TestFormatMessage(t *testing.T) {
	e := entry(4, "hi", 3, "", false)
	if got := formatMessage(e.Message, 4); !strings.Contains(got, "(you)") || !strings.Contains(got, "hi") {
		t.Fatalf("own message = %q", got)
	}
	if got := formatMessage(e.Message, 9); strings.Contains(got, "(you)") || !strings.Contains(got, "#4") {
		t.Fatalf("other message = %q", got)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		cmd  string
		arg  string
	}{
		{"hello world", "", "hello world"},
		{"/quit", "quit", ""},
		{"/room 42", "room", "42"},
		{"  /OLDER ", "older", ""},
		{"/room   7  ", "room", "7"},
	}
	for _, tt := range tests {
		cmd, arg := parseLine(tt.line)
		if cmd != tt.cmd || arg != tt.arg {
			t.Errorf("parseLine(%q) = (%q, %q), want (%q, %q)", tt.line, cmd, arg, tt.cmd, tt.arg)
		}
	}
}
