package roomchat

import "github.com/rs/zerolog"

// Log field names used across the package.
const (
	FieldRoomID    = "room_id"
	FieldSessionID = "session_id"
	FieldPage      = "page"
	FieldState     = "state"
	FieldCount     = "count"
	FieldAttempt   = "attempt"
	FieldComponent = "component"
)

// defaultLogger discards everything until a logger is supplied.
func defaultLogger() zerolog.Logger {
	return zerolog.Nop()
}
