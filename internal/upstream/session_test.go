package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(server *httptest.Server) Config {
	cfg := DefaultConfig()
	cfg.Endpoint = wsURL(server)
	return cfg
}

func TestSession_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	sess := NewSession(testConfig(server), nil)

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !sess.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := sess.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if sess.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	sess := NewSession(testConfig(server), nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestSession_SendJSON(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	sess := NewSession(testConfig(server), nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	if err := sess.SendJSON(map[string]string{"ticks": "R_100"}); err != nil {
		t.Fatalf("SendJSON failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != `{"ticks":"R_100"}` {
		t.Errorf("received %q, want %q", received, `{"ticks":"R_100"}`)
	}
}

func TestSession_SendNotConnected(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {})
	defer server.Close()

	sess := NewSession(testConfig(server), nil)
	if err := sess.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send = %v, want ErrNotConnected", err)
	}
}

func TestSession_MessagesInOrder(t *testing.T) {
	frames := []string{
		`{"msg_type":"tick","tick":{"symbol":"R_100","quote":1}}`,
		`{"msg_type":"tick","tick":{"symbol":"R_100","quote":2}}`,
		`{"msg_type":"tick","tick":{"symbol":"R_100","quote":3}}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	sess := NewSession(testConfig(server), nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	for i, want := range frames {
		select {
		case env := <-sess.Messages():
			if string(env.Raw) != want {
				t.Errorf("message %d = %s, want %s", i, env.Raw, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestSession_MalformedFrameSkipped(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"msg_type":"tick","tick":{"quote":1}}`))
		time.Sleep(time.Second)
	})
	defer server.Close()

	sess := NewSession(testConfig(server), nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	select {
	case env := <-sess.Messages():
		if env.MsgType != "tick" {
			t.Errorf("MsgType = %q, want tick (malformed frame should be skipped)", env.MsgType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for valid message")
	}
}

func TestSession_ServerCloseEndsStream(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Close immediately
	})
	defer server.Close()

	sess := NewSession(testConfig(server), nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	// Either the messages channel closes or an error surfaces; the
	// owner must observe session end exactly once.
	select {
	case _, ok := <-sess.Messages():
		if ok {
			t.Error("expected closed messages channel")
		}
	case <-sess.Errors():
	case <-time.After(2 * time.Second):
		t.Fatal("session end not observable")
	}
}

func TestWSDialer_EndpointURL(t *testing.T) {
	cfg := Config{Endpoint: "wss://example.test/v3", AppID: 64508}
	if got := endpointURL(cfg); got != "wss://example.test/v3?app_id=64508" {
		t.Errorf("endpointURL = %q", got)
	}

	cfg.AppID = 0
	if got := endpointURL(cfg); got != "wss://example.test/v3" {
		t.Errorf("endpointURL without app id = %q", got)
	}
}

func TestWSDialer_Dial(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	dialer := NewWSDialer(testConfig(server), nil)
	sess, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	if !sess.IsConnected() {
		t.Error("dialed session should be connected")
	}
}

func TestWSDialer_DialFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoint = "ws://127.0.0.1:1" // nothing listening

	dialer := NewWSDialer(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := dialer.Dial(ctx); err == nil {
		t.Error("expected dial error")
	}
}
