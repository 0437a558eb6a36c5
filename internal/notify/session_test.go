package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Conn. Tests push inbound text on in and read
// everything the session wrote from out.
type fakeConn struct {
	in     chan string
	out    chan string
	closed chan struct{}
	once   sync.Once

	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan string),
		out:    make(chan string, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadText() (string, error) {
	select {
	case msg, ok := <-c.in:
		if !ok {
			return "", io.EOF
		}
		return msg, nil
	case <-c.closed:
		return "", errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteEvent(e Event) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	c.out <- string(data)
	return nil
}

func (c *fakeConn) WriteText(text string) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.out <- text
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func serve(t *testing.T, h *Hub, conn Conn) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- h.Serve(context.Background(), conn) }()
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)
	return done
}

func expectOut(t *testing.T, conn *fakeConn) string {
	t.Helper()
	select {
	case msg := <-conn.out:
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a message from the session")
		return ""
	}
}

func expectSilence(t *testing.T, conn *fakeConn) {
	t.Helper()
	select {
	case msg := <-conn.out:
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIsKeepalive(t *testing.T) {
	t.Parallel()

	for _, msg := range []string{"ping", "PING", "  PiNg\n", "\tping "} {
		assert.True(t, isKeepalive(msg), msg)
	}
	for _, msg := range []string{"", "pong", "ping!", "hello", "p ing"} {
		assert.False(t, isKeepalive(msg), msg)
	}
}

func TestServe_KeepaliveRepliesPong(t *testing.T) {
	t.Parallel()

	h := NewHub(DefaultQueueSize)
	conn := newFakeConn()
	done := serve(t, h, conn)

	conn.in <- "  PING \n"
	assert.Equal(t, "pong", expectOut(t, conn))

	close(conn.in)
	require.NoError(t, <-done)
}

func TestServe_OtherTextIsIgnored(t *testing.T) {
	t.Parallel()

	h := NewHub(DefaultQueueSize)
	conn := newFakeConn()
	done := serve(t, h, conn)

	conn.in <- "hello"
	expectSilence(t, conn)
	assert.Equal(t, 1, h.Len(), "session must stay open")

	h.Broadcast(Refresh(ReasonConfig))
	assert.JSONEq(t, `{"type":"refresh","reason":"config"}`, expectOut(t, conn))

	close(conn.in)
	require.NoError(t, <-done)
}

func TestServe_RelaysEventsInOrder(t *testing.T) {
	t.Parallel()

	h := NewHub(DefaultQueueSize)
	conn := newFakeConn()
	done := serve(t, h, conn)

	h.Broadcast(Refresh(ReasonFolders))
	h.Broadcast(Refresh(ReasonImages))

	assert.JSONEq(t, `{"type":"refresh","reason":"folders"}`, expectOut(t, conn))
	assert.JSONEq(t, `{"type":"refresh","reason":"images"}`, expectOut(t, conn))

	close(conn.in)
	require.NoError(t, <-done)
}

func TestServe_PeerCloseDeregisters(t *testing.T) {
	t.Parallel()

	h := NewHub(DefaultQueueSize)
	conn := newFakeConn()
	done := serve(t, h, conn)

	close(conn.in)

	require.NoError(t, <-done)
	assert.Equal(t, 0, h.Len())
	assert.True(t, conn.isClosed())
}

func TestServe_WriteFailureEndsSession(t *testing.T) {
	t.Parallel()

	h := NewHub(DefaultQueueSize)
	conn := newFakeConn()
	conn.writeErr = errors.New("broken pipe")
	done := serve(t, h, conn)

	h.Broadcast(Refresh(ReasonConfig))

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, 0, h.Len())
	assert.True(t, conn.isClosed())

	assert.NotPanics(t, func() { h.Broadcast(Refresh(ReasonConfig)) })
}

func TestServe_ContextCancelEndsSession(t *testing.T) {
	t.Parallel()

	h := NewHub(DefaultQueueSize)
	conn := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, conn) }()
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, h.Len())
}

func TestServe_HubCloseEndsSession(t *testing.T) {
	t.Parallel()

	h := NewHub(DefaultQueueSize)
	conn := newFakeConn()
	done := serve(t, h, conn)

	h.Close()

	assert.ErrorIs(t, <-done, ErrHubClosed)
	assert.True(t, conn.isClosed())
}

func TestWebSocketConn_RoundTrip(t *testing.T) {
	t.Parallel()

	h := NewHub(DefaultQueueSize)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = h.Serve(r.Context(), NewWebSocketConn(ws))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(" Ping ")))
	_, reply, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(reply))

	// "hello" gets no answer, so the next frame must be the broadcast.
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hello")))
	time.Sleep(20 * time.Millisecond)
	h.Broadcast(Refresh(ReasonImages))

	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"refresh","reason":"images"}`, string(data))

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, 5*time.Millisecond)
}
