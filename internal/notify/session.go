package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	keepaliveToken = "ping"
	keepaliveReply = "pong"
)

// ErrHubClosed is returned by Serve when the hub shuts down under a session.
var ErrHubClosed = errors.New("hub closed")

// Conn is the transport of one display connection. ReadText blocks until the
// next inbound message and returns io.EOF on an orderly close. Close must
// unblock a pending ReadText.
type Conn interface {
	ReadText() (string, error)
	WriteEvent(e Event) error
	WriteText(text string) error
	Close() error
}

// Serve registers conn with the hub and relays events to it until the
// transport fails, ctx is cancelled or the hub is closed. The session is
// deregistered and conn closed before Serve returns. An orderly close by the
// peer returns nil.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	s := h.Connect()
	slog.Info("display connected", "session_id", s.id, "sessions", h.Len())

	inbound := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			msg, err := conn.ReadText()
			if err != nil {
				readErr <- err
				return
			}
			// Unbuffered: a message is only taken when the loop picks it.
			select {
			case inbound <- msg:
			case <-stop:
				return
			}
		}
	}()

	err := h.loop(ctx, s, conn, inbound, readErr)

	h.Disconnect(s)
	close(stop)
	_ = conn.Close()
	wg.Wait()

	slog.Info("display disconnected", "session_id", s.id, "sessions", h.Len())

	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Hub) loop(ctx context.Context, s *Session, conn Conn, inbound <-chan string, readErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.done:
			return ErrHubClosed

		case e := <-s.queue:
			if err := conn.WriteEvent(e); err != nil {
				return fmt.Errorf("sending event: %w", err)
			}

		case msg := <-inbound:
			if !isKeepalive(msg) {
				continue
			}
			if err := conn.WriteText(keepaliveReply); err != nil {
				return fmt.Errorf("sending keepalive reply: %w", err)
			}

		case err := <-readErr:
			return err
		}
	}
}

func isKeepalive(msg string) bool {
	return strings.EqualFold(strings.TrimSpace(msg), keepaliveToken)
}
