package roomchat

// MessageLog is the ordered message store of one room.
// It is not safe for concurrent use; a Session only touches it from its event loop.
type MessageLog struct {
	room    RoomID
	entries []Message
	seen    map[string]struct{}
	dedupe  bool
}

// NewMessageLog returns an empty log that only accepts messages for room.
func NewMessageLog(room RoomID, dedupe bool) *MessageLog {
	return &MessageLog{
		room:   room,
		seen:   make(map[string]struct{}),
		dedupe: dedupe,
	}
}

// Room returns the room this log belongs to.
func (l *MessageLog) Room() RoomID { return l.room }

// Len returns the number of messages.
func (l *MessageLog) Len() int { return len(l.entries) }

// Messages returns a copy of the log in display order.
func (l *MessageLog) Messages() []Message {
	out := make([]Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Append inserts a live message. It lands at the tail unless the tail is newer,
// in which case it moves back just far enough to keep sendAt non-decreasing.
// With dedupe on, a redelivery of a message already in the log is dropped.
// It reports whether the message was stored.
func (l *MessageLog) Append(m Message) bool {
	if m.ChatRoomID != l.room || l.redelivered(m) {
		return false
	}
	l.remember(m)
	i := len(l.entries)
	for i > 0 && newer(l.entries[i-1], m) {
		i--
	}
	l.entries = append(l.entries, Message{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = m
	return true
}

// Prepend places an older history page in front of the current entries.
// Server pages are stored as delivered. It returns how many messages were stored.
func (l *MessageLog) Prepend(page []Message) int {
	kept := l.filter(page)
	if len(kept) == 0 {
		return 0
	}
	l.entries = append(kept, l.entries...)
	return len(kept)
}

// Replace discards the current entries in favour of snapshot.
func (l *MessageLog) Replace(snapshot []Message) {
	l.seen = make(map[string]struct{})
	l.entries = l.filter(snapshot)
}

// ReplaceMerged replaces the log with snapshot and weaves in the live messages
// that arrived while it was in flight, as Reconcile does. With dedupe on, live
// messages the snapshot already holds are dropped.
func (l *MessageLog) ReplaceMerged(snapshot, live []Message) {
	l.Replace(snapshot)
	fresh := make([]Message, 0, len(live))
	for _, m := range live {
		if m.ChatRoomID != l.room || l.redelivered(m) {
			continue
		}
		l.remember(m)
		fresh = append(fresh, m)
	}
	l.entries = Reconcile(l.entries, fresh)
}

// DateBoundaryFor reports whether entry i starts a new date group.
// The first entry always does; later ones do when dbSendAt differs from their predecessor.
func (l *MessageLog) DateBoundaryFor(i int) bool {
	return dateBoundary(l.entries, i)
}

// DateBoundaries returns every index that starts a date group.
func (l *MessageLog) DateBoundaries() []int {
	return DateBoundaries(l.entries)
}

// Entries returns the log with boundary flags attached.
func (l *MessageLog) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	for i, m := range l.entries {
		out[i] = Entry{Message: m, DateBoundary: dateBoundary(l.entries, i)}
	}
	return out
}

// DateBoundaries returns the indices of msgs that start a date group.
func DateBoundaries(msgs []Message) []int {
	var idx []int
	for i := range msgs {
		if dateBoundary(msgs, i) {
			idx = append(idx, i)
		}
	}
	return idx
}

func dateBoundary(msgs []Message, i int) bool {
	if i < 0 || i >= len(msgs) {
		return false
	}
	return i == 0 || msgs[i].DBSendAt != msgs[i-1].DBSendAt
}

// filter keeps the messages of this log's room and records them as seen.
func (l *MessageLog) filter(in []Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		if m.ChatRoomID == l.room {
			l.remember(m)
			out = append(out, m)
		}
	}
	return out
}

func (l *MessageLog) remember(m Message) {
	if l.dedupe {
		l.seen[m.fingerprint()] = struct{}{}
	}
}

func (l *MessageLog) redelivered(m Message) bool {
	if !l.dedupe {
		return false
	}
	_, dup := l.seen[m.fingerprint()]
	return dup
}

// newer reports whether a was sent strictly after b. Messages without a
// timestamp never move.
func newer(a, b Message) bool {
	if a.SendAt.IsZero() || b.SendAt.IsZero() {
		return false
	}
	return a.SendAt.After(b.SendAt.Time)
}
