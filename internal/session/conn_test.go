package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// pair returns a server side Conn and the client websocket talking to it.
func pair(t *testing.T, buffer int) (*Conn, *websocket.Conn) {
	t.Helper()
	connC := make(chan *Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		connC <- NewConn(ws, buffer, 0, time.Second)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-connC:
		t.Cleanup(func() { c.Close() })
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side connection not created")
	}
	return nil, nil
}

func TestConnDeliversInOrder(t *testing.T) {
	c, client := pair(t, 16)
	go c.WritePump()

	for _, m := range []string{"one", "two", "three"} {
		if err := c.Send([]byte(m)); err != nil {
			t.Fatalf("Send(%q) error = %v", m, err)
		}
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{"one", "two", "three"} {
		_, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		if string(data) != want {
			t.Errorf("ReadMessage() = %q, want %q", data, want)
		}
	}
}

func TestConnQueueFull(t *testing.T) {
	c, _ := pair(t, 1)
	// no write pump: the queue never drains
	if err := c.Send([]byte("a")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := c.Send([]byte("b")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Send() error = %v, want ErrQueueFull", err)
	}
}

func TestConnSendAfterClose(t *testing.T) {
	c, _ := pair(t, 4)
	c.Close()
	if err := c.Send([]byte("a")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() error = %v, want ErrClosed", err)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after Close()")
	}
	if c.ID() == "" {
		t.Error("ID() is empty")
	}
}
