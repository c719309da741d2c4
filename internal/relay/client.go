package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// connectTimeout bounds the websocket handshake so a dead relay host cannot
// stall the connection tick.
const connectTimeout = 30 * time.Second

// CloseInfo describes why a connection ended. Code and Reason carry the
// server's close frame when one was received; Err is the transport error
// otherwise.
type CloseInfo struct {
	Code   int
	Reason string
	Err    error
}

// Client is one live relay connection. It is not reused: a new Client is
// dialed for every (re)connection attempt and torn down fully on close.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

// Dial opens a relay connection. The caller owns the read loop.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, done: make(chan struct{})}, nil
}

// Send writes one JSON frame. Safe for concurrent use.
func (c *Client) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close tears the connection down and stops the read loop.
func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	_ = c.conn.Close()
}

// ReadLoop blocks reading frames until the connection dies, invoking
// onMessage per parsed frame and onClose exactly once at the end. Run it on
// its own goroutine.
func (c *Client) ReadLoop(onMessage func(any), onClose func(CloseInfo)) {
	var info CloseInfo
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Local close; no close frame to report.
			default:
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					info = CloseInfo{Code: ce.Code, Reason: ce.Text}
				} else {
					info = CloseInfo{Err: err}
				}
			}
			break
		}
		msg, err := parseMessage(data)
		if err != nil {
			// Unknown or malformed frame; the connection stays up.
			continue
		}
		onMessage(msg)
	}
	onClose(info)
}
