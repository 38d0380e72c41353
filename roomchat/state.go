package roomchat

// SessionState represents the lifecycle state of a transport session.
type SessionState int

const (
	// StateIdle means no socket is open.
	StateIdle SessionState = iota

	// StateConnecting means the socket or protocol handshake is in progress,
	// or the handshake finished and no subscription exists yet.
	StateConnecting

	// StateSubscribed means the room channel is subscribed and sends are accepted.
	StateSubscribed

	// StateDisconnecting means teardown is in progress.
	StateDisconnecting

	// StateFailed means the handshake did not complete.
	StateFailed
)

// String returns the string representation of a SessionState.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateEvent represents a state change event.
type StateEvent struct {
	Room     RoomID
	OldState SessionState
	NewState SessionState
	Error    error // Optional error that caused the state change
}
