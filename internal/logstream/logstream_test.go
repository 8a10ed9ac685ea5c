package logstream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubBroadcastsWrites(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	srv := httptest.NewServer(hub.Handler(func(*http.Request) bool { return true }))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Registration is asynchronous; keep writing until the client sees a line.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Write([]byte("device says hello\n"))
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got := string(msg); got != "device says hello\n" {
		t.Errorf("message = %q", got)
	}
}

func TestHubRejectsOrigin(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	srv := httptest.NewServer(hub.Handler(func(*http.Request) bool { return false }))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if err == nil {
		t.Fatal("Dial succeeded; want handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v; want 403", resp)
	}
}

func TestWriteCopiesBuffer(t *testing.T) {
	hub := NewHub()
	buf := []byte("first")
	if n, err := hub.Write(buf); n != len(buf) || err != nil {
		t.Fatalf("Write = (%d, %v)", n, err)
	}
	copy(buf, "XXXXX")
	if got := string(<-hub.broadcast); got != "first" {
		t.Errorf("queued message = %q; want %q", got, "first")
	}
}

func TestWriteDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(hub.broadcast)+10; i++ {
			if n, err := hub.Write([]byte("line")); n != 4 || err != nil {
				t.Errorf("Write = (%d, %v)", n, err)
			}
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked on a full hub")
	}
	if got := len(hub.broadcast); got != cap(hub.broadcast) {
		t.Errorf("queued %d messages; want %d", got, cap(hub.broadcast))
	}
}

func TestFanOutDropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := &client{hub: hub, send: make(chan []byte)}
	fast := &client{hub: hub, send: make(chan []byte, 1)}
	hub.clients[slow] = true
	hub.clients[fast] = true

	hub.fanOut([]byte("hello"))

	if hub.clients[slow] {
		t.Error("slow client still registered")
	}
	if _, ok := <-slow.send; ok {
		t.Error("slow client send channel not closed")
	}
	if got := string(<-fast.send); got != "hello" {
		t.Errorf("fast client got %q", got)
	}
}
