package internal

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// stompSubprotocols are offered during the WebSocket upgrade; brokers such as
// Spring's pick one of them for STOMP over WebSocket.
var stompSubprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// DialOptions tunes the WebSocket dial.
type DialOptions struct {
	Header       http.Header
	ReadLimit    int64
	WriteTimeout time.Duration
}

// Conn wraps websocket.Conn as the byte stream a STOMP session runs on.
type Conn struct {
	ws           *websocket.Conn
	nc           net.Conn
	cancel       context.CancelFunc
	writeTimeout time.Duration
}

// Dial opens the WebSocket. ctx bounds the upgrade only; the returned Conn lives
// until Close.
func Dial(ctx context.Context, url string, opts DialOptions) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader:   opts.Header,
		Subprotocols: stompSubprotocols,
	})
	if err != nil {
		return nil, err
	}
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}

	life, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:           ws,
		nc:           websocket.NetConn(life, ws, websocket.MessageText),
		cancel:       cancel,
		writeTimeout: opts.WriteTimeout,
	}, nil
}

// Subprotocol returns the negotiated STOMP subprotocol, if any.
func (c *Conn) Subprotocol() string {
	return c.ws.Subprotocol()
}

func (c *Conn) Read(p []byte) (int, error) {
	return c.nc.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.nc.Write(p)
}

// Close sends a normal closure and releases the connection.
func (c *Conn) Close() error {
	err := c.nc.Close()
	c.cancel()
	return err
}
