package notify

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Upgrader accepts display connections from any origin; the kiosk page may be
// served from a different host than the API.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketConn adapts a gorilla connection to Conn. Protocol-level pings
// run on their own goroutine so that a silent peer times out even when no
// events are flowing.
type WebSocketConn struct {
	conn      *websocket.Conn
	stop      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketConn wraps an upgraded connection and starts its ping ticker.
func NewWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	c := &WebSocketConn{
		conn: conn,
		stop: make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.pingLoop()
	return c
}

// ReadText returns the next data message. Close frames with a normal or
// going-away code are reported as io.EOF.
func (c *WebSocketConn) ReadText() (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return "", io.EOF
		}
		return "", err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	return string(data), nil
}

// WriteEvent sends e as a JSON text frame.
func (c *WebSocketConn) WriteEvent(e Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(e)
}

// WriteText sends a plain text frame.
func (c *WebSocketConn) WriteText(text string) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close stops the ping ticker, says goodbye and closes the socket. Safe to
// call more than once.
func (c *WebSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *WebSocketConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			// WriteControl may run concurrently with the data writer.
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
