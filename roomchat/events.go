package roomchat

// Entry is a log message paired with its date-boundary flag, ready for rendering.
type Entry struct {
	Message
	// DateBoundary is true when a date separator should precede this entry.
	DateBoundary bool
}

// Snapshot is a consistent view of the active room at one point of the event loop.
type Snapshot struct {
	Room    RoomID
	State   SessionState
	Page    int
	Entries []Entry
	Input   string
}
