package roomchat

import (
	"net/http"
	"time"
)

// HeartBeat holds STOMP keep-alive intervals in milliseconds.
// Zero leaves the protocol default in place.
type HeartBeat struct {
	Outgoing int `mapstructure:"outgoing"`
	Incoming int `mapstructure:"incoming"`
}

// Config controls how the SDK connects.
type Config struct {
	URL              string // WebSocket endpoint carrying STOMP frames
	Token            string // bearer token, also sent as a STOMP connect header
	Host             string // STOMP virtual host, "/" when empty
	SenderID         int64  // used by Submit; derived from Token when zero
	HeartBeat        HeartBeat
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	Header           http.Header

	// Dedupe drops live redeliveries of messages already in the log (same room,
	// sender, sendAt and content). History pages and snapshots are never deduplicated.
	Dedupe bool

	AutoReconnect     bool
	ReconnectInterval time.Duration
	MaxReconnectDelay time.Duration
	MaxReconnectTries uint
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartBeat:         HeartBeat{Outgoing: 1000, Incoming: 1000},
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadLimit:         1 << 20,
		Dedupe:            true,
		AutoReconnect:     true,
		ReconnectInterval: time.Second,
		MaxReconnectDelay: 10 * time.Second,
		MaxReconnectTries: 3,
	}
}

// Validate reports configuration the session cannot work with.
func (c Config) Validate() error {
	if c.URL == "" {
		return NewError(ErrorInvalidConfig, "empty URL")
	}
	if c.HeartBeat.Outgoing < 0 || c.HeartBeat.Incoming < 0 {
		return NewError(ErrorInvalidConfig, "negative heart-beat interval")
	}
	return nil
}
