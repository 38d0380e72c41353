package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/codevelop/roomchat-go/roomchat"
)

var (
	roomHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	dateSeparatorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	selfStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// renderer prints a room log incrementally. When the log is replaced or older
// history is prepended it prints the whole log again.
type renderer struct {
	out   io.Writer
	self  int64
	room  roomchat.RoomID
	shown []roomchat.Entry
}

func (r *renderer) render(snap roomchat.Snapshot) {
	entries := snap.Entries
	if snap.Room != r.room || !r.extends(entries) {
		r.room = snap.Room
		fmt.Fprintln(r.out, roomHeaderStyle.Render(fmt.Sprintf("# room %s", snap.Room)))
		writeEntries(r.out, entries, r.self)
	} else {
		writeEntries(r.out, entries[len(r.shown):], r.self)
	}
	r.shown = entries
}

// extends reports whether entries starts with everything already shown.
func (r *renderer) extends(entries []roomchat.Entry) bool {
	if len(entries) < len(r.shown) {
		return false
	}
	for i := range r.shown {
		if !sameMessage(r.shown[i].Message, entries[i].Message) {
			return false
		}
	}
	return true
}

func sameMessage(a, b roomchat.Message) bool {
	return a.SenderID == b.SenderID &&
		a.ChatContent == b.ChatContent &&
		a.ChatRoomID == b.ChatRoomID &&
		a.SendAt.Raw == b.SendAt.Raw &&
		a.SendAt.Equal(b.SendAt.Time)
}

func writeEntries(w io.Writer, entries []roomchat.Entry, self int64) {
	for _, e := range entries {
		if e.DateBoundary {
			if d := e.DisplayDate(); d != "" {
				fmt.Fprintln(w, dateSeparatorStyle.Render(fmt.Sprintf("──── %s ────", d)))
			}
		}
		fmt.Fprintln(w, formatMessage(e.Message, self))
	}
}

func formatMessage(m roomchat.Message, self int64) string {
	var b strings.Builder
	switch {
	case !m.SendAt.IsZero():
		b.WriteString(timeStyle.Render(m.SendAt.Local().Format("15:04")))
		b.WriteByte(' ')
	case m.SendAt.Raw != "":
		b.WriteString(timeStyle.Render(m.SendAt.Raw))
		b.WriteByte(' ')
	}
	name := fmt.Sprintf("#%d", m.SenderID)
	if self != 0 && m.SenderID == self {
		b.WriteString(selfStyle.Render(name + " (you)"))
	} else {
		b.WriteString(senderStyle.Render(name))
	}
	b.WriteString(": ")
	b.WriteString(m.ChatContent)
	return b.String()
}
