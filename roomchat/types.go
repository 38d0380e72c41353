package roomchat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	channelPrefix     = "/chatroom/"
	destinationPrefix = "/ws/"
)

// RoomID identifies a chat room. The server may encode it as a JSON number or string.
type RoomID string

// UnmarshalJSON accepts both `"12"` and `12`.
func (r *RoomID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RoomID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("room id: %w", err)
	}
	*r = RoomID(n.String())
	return nil
}

// ChannelPath is the broker channel live events for room are published to.
func ChannelPath(room RoomID) string {
	return channelPrefix + string(room)
}

// DestinationPath is the broker destination outbound messages for room are sent to.
func DestinationPath(room RoomID) string {
	return destinationPrefix + string(room)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Timestamp is a client-observed send time.
// It decodes RFC3339, a few zone-less layouts and unix milliseconds, and encodes RFC3339.
// Clients format sendAt themselves, so any other string is kept verbatim in Raw
// with a zero Time.
type Timestamp struct {
	time.Time
	Raw string
}

// At wraps t as a Timestamp.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON encodes the zero time as null, or as Raw when it is set.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		if t.Raw != "" {
			return json.Marshal(t.Raw)
		}
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*t = Timestamp{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Time = time.UnixMilli(ms)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Raw = s
	return nil
}

// String returns the RFC3339 form, or Raw for an unparsed timestamp.
func (t Timestamp) String() string {
	if t.IsZero() {
		return t.Raw
	}
	return t.Format(time.RFC3339Nano)
}

// Message is a single chat line, either pushed live or fetched from history.
type Message struct {
	SenderID    int64     `json:"senderId"`
	ChatContent string    `json:"chatContent"`
	SendAt      Timestamp `json:"sendAt"`
	ChatRoomID  RoomID    `json:"chatRoomId"`
	// DBSendAt is the server-assigned display date; only persisted messages carry it.
	DBSendAt string `json:"dbSendAt,omitempty"`
}

// DisplayDate returns DBSendAt, falling back to the local date of SendAt.
func (m Message) DisplayDate() string {
	if m.DBSendAt != "" {
		return m.DBSendAt
	}
	if m.SendAt.IsZero() {
		return ""
	}
	return m.SendAt.Local().Format("2006-01-02")
}

// fingerprint identifies a message for duplicate suppression.
func (m Message) fingerprint() string {
	return fmt.Sprintf("%s|%d|%d|%s|%s", m.ChatRoomID, m.SenderID, m.SendAt.UnixNano(), m.SendAt.Raw, m.ChatContent)
}

// SendPayload is the body published to DestinationPath.
type SendPayload struct {
	SenderID    int64     `json:"senderId"`
	ChatContent string    `json:"chatContent"`
	SendAt      Timestamp `json:"sendAt"`
	ChatRoomID  RoomID    `json:"chatRoomId"`
}

// Frame is one raw event delivered by a subscription.
type Frame struct {
	Body []byte
	Err  error
}

// DecodeMessage parses a raw subscription payload.
func DecodeMessage(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, WrapError(ErrorSubscription, "malformed message payload", err)
	}
	return m, nil
}
