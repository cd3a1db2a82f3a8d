package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/derivhub/relay/internal/account"
	"github.com/derivhub/relay/internal/catalog"
	"github.com/derivhub/relay/internal/deriv"
	"github.com/derivhub/relay/internal/feed"
	"github.com/derivhub/relay/internal/hub"
	"github.com/derivhub/relay/internal/upstream"
)

// fakeSession is an in-memory upstream.Session. onSend, when set, runs
// after each send with the marshalled payload so tests can script the
// upstream side of a flow.
type fakeSession struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool

	messages chan deriv.Envelope
	errs     chan error
	once     sync.Once

	onSend func(data []byte)
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		messages: make(chan deriv.Envelope, 16),
		errs:     make(chan error, 1),
	}
}

func (s *fakeSession) Connect(ctx context.Context) error { return nil }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.messages) })
	return nil
}

func (s *fakeSession) Send(data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return upstream.ErrNotConnected
	}
	s.sent = append(s.sent, data)
	cb := s.onSend
	s.mu.Unlock()
	if cb != nil {
		cb(data)
	}
	return nil
}

func (s *fakeSession) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(data)
}

func (s *fakeSession) Messages() <-chan deriv.Envelope { return s.messages }
func (s *fakeSession) Errors() <-chan error            { return s.errs }

func (s *fakeSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *fakeSession) push(t *testing.T, raw string) {
	t.Helper()
	env, err := deriv.ParseEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("bad test frame: %v", err)
	}
	s.messages <- env
}

// fakeDialer hands out scripted fake sessions.
type fakeDialer struct {
	mu       sync.Mutex
	dials    int32
	sessions []*fakeSession
	err      error
	prepare  func(*fakeSession)
}

func (d *fakeDialer) Dial(ctx context.Context) (upstream.Session, error) {
	atomic.AddInt32(&d.dials, 1)
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeSession()
	d.mu.Lock()
	if d.prepare != nil {
		d.prepare(s)
	}
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDialer) dialCount() int32 { return atomic.LoadInt32(&d.dials) }

func (d *fakeDialer) waitSession(t *testing.T, i int) *fakeSession {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		if len(d.sessions) > i {
			s := d.sessions[i]
			d.mu.Unlock()
			return s
		}
		d.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for upstream session %d", i)
	return nil
}

// testGateway wires a full gateway over one fake upstream dialer.
func testGateway(t *testing.T, dialer *fakeDialer) (*httptest.Server, *hub.Hub) {
	t.Helper()

	h := hub.NewHub(hub.DefaultConfig(), nil)
	fd := feed.NewMultiplexer(dialer, h, nil)
	acct := account.NewOrchestrator(dialer, h, nil)
	cat := catalog.NewService(dialer, 2*time.Second, nil)

	flowCtx, cancelFlows := context.WithCancel(context.Background())
	g := New(flowCtx, Config{LoginTimeout: 2 * time.Second}, fd, acct, cat, h, nil)
	srv := httptest.NewServer(g.Router())

	t.Cleanup(func() {
		srv.Close()
		fd.Close()
		cancelFlows()
		acct.Wait()
		h.Close()
	})
	return srv, h
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) hub.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f hub.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	return f
}

func TestHealth(t *testing.T) {
	srv, _ := testGateway(t, &fakeDialer{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestAssets_Success(t *testing.T) {
	dialer := &fakeDialer{prepare: func(s *fakeSession) {
		s.onSend = func([]byte) {
			s.push(t, `{"msg_type":"active_symbols","active_symbols":[{"symbol":"R_100"}]}`)
		}
	}}
	srv, _ := testGateway(t, dialer)

	resp, err := http.Get(srv.URL + "/api/v1/user/assests")
	if err != nil {
		t.Fatalf("GET assets failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status  int             `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&body)

	if body.Status != 1 {
		t.Errorf("status field = %d, want 1", body.Status)
	}
	if body.Message != "Assets retrieved successfully" {
		t.Errorf("message = %q", body.Message)
	}
	var symbols []map[string]any
	if err := json.Unmarshal(body.Data, &symbols); err != nil || len(symbols) != 1 {
		t.Errorf("data = %s", body.Data)
	}
}

func TestAssets_UpstreamFailure(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	srv, _ := testGateway(t, dialer)

	resp, err := http.Get(srv.URL + "/api/v1/user/assests")
	if err != nil {
		t.Fatalf("GET assets failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != float64(0) {
		t.Errorf("status field = %v, want 0", body["status"])
	}
	if body["error"] == "" {
		t.Error("error detail missing")
	}
}

func TestLogin_Success(t *testing.T) {
	dialer := &fakeDialer{prepare: func(s *fakeSession) {
		s.onSend = func(data []byte) {
			if bytes.Contains(data, []byte("authorize")) {
				s.push(t, `{"msg_type":"authorize","authorize":{"loginid":"VRTC42","balance":10000,"is_virtual":1,"currency":"USD"}}`)
			}
		}
	}}
	srv, _ := testGateway(t, dialer)

	resp, err := http.Post(srv.URL+"/api/v1/user/auth/deriv/login", "application/json",
		strings.NewReader(`{"token":"tok-abc"}`))
	if err != nil {
		t.Fatalf("POST login failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Data    map[string]any `json:"data"`
		Token   string         `json:"token"`
		Message string         `json:"message"`
		Status  int            `json:"status"`
	}
	json.NewDecoder(resp.Body).Decode(&body)

	if body.Status != 1 {
		t.Errorf("status field = %d, want 1", body.Status)
	}
	if body.Token != "tok-abc" {
		t.Errorf("token = %q, want echo of the credential", body.Token)
	}
	if body.Data["loginid"] != "VRTC42" {
		t.Errorf("data.loginid = %v, want VRTC42", body.Data["loginid"])
	}
	if body.Data["deriv_token"] != "tok-abc" {
		t.Errorf("data.deriv_token = %v", body.Data["deriv_token"])
	}
}

func TestLogin_InvalidToken(t *testing.T) {
	dialer := &fakeDialer{prepare: func(s *fakeSession) {
		s.onSend = func([]byte) {
			s.push(t, `{"msg_type":"authorize","error":{"code":"InvalidToken","message":"The token is invalid."}}`)
		}
	}}
	srv, _ := testGateway(t, dialer)

	resp, err := http.Post(srv.URL+"/api/v1/user/auth/deriv/login", "application/json",
		strings.NewReader(`{"token":"bad"}`))
	if err != nil {
		t.Fatalf("POST login failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != float64(0) {
		t.Errorf("status field = %v, want 0", body["status"])
	}
}

func TestLogin_MissingToken(t *testing.T) {
	dialer := &fakeDialer{}
	srv, _ := testGateway(t, dialer)

	resp, err := http.Post(srv.URL+"/api/v1/user/auth/deriv/login", "application/json",
		strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST login failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if got := dialer.dialCount(); got != 0 {
		t.Errorf("dial count = %d, want 0 for rejected payload", got)
	}
}

func TestWS_JoinAssetRoomStreamsTicks(t *testing.T) {
	dialer := &fakeDialer{}
	srv, _ := testGateway(t, dialer)

	conn := dialWS(t, srv)
	sendEvent(t, conn, "joinAssetRoom", "R_100")

	sess := dialer.waitSession(t, 0)
	sess.push(t, `{"msg_type":"tick","tick":{"symbol":"R_100","quote":321.5}}`)

	f := readFrame(t, conn)
	if f.Event != "assetData" || f.Topic != "R_100" {
		t.Errorf("frame = %s/%s, want assetData/R_100", f.Event, f.Topic)
	}
}

func TestWS_LeaveAssetRoomTearsDownFeed(t *testing.T) {
	dialer := &fakeDialer{}
	srv, _ := testGateway(t, dialer)

	conn := dialWS(t, srv)
	sendEvent(t, conn, "joinAssetRoom", "R_100")
	sess := dialer.waitSession(t, 0)

	sendEvent(t, conn, "leaveAssetRoom", "R_100")

	deadline := time.Now().Add(2 * time.Second)
	for sess.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sess.IsConnected() {
		t.Error("feed session should be closed after leave")
	}
}

func TestWS_FetchBalanceDeliversWalletUpdates(t *testing.T) {
	dialer := &fakeDialer{prepare: func(s *fakeSession) {
		s.onSend = func(data []byte) {
			if bytes.Contains(data, []byte(`"authorize"`)) {
				s.push(t, `{"msg_type":"authorize","authorize":{"loginid":"CR1"}}`)
			}
			if bytes.Contains(data, []byte(`"balance"`)) {
				s.push(t, `{"msg_type":"balance","balance":{"balance":100,"currency":"USD"}}`)
			}
		}
	}}
	srv, _ := testGateway(t, dialer)

	conn := dialWS(t, srv)
	sendEvent(t, conn, "fetchBalance", map[string]any{"loginid": "CR1", "token": "tok"})

	f := readFrame(t, conn)
	if f.Event != "walletUpdate" || f.Topic != "CR1" {
		t.Errorf("frame = %s/%s, want walletUpdate/CR1", f.Event, f.Topic)
	}
}

func TestWS_InvalidPayloadDropped(t *testing.T) {
	dialer := &fakeDialer{}
	srv, _ := testGateway(t, dialer)

	conn := dialWS(t, srv)
	// Missing token fails validation; no flow starts
	sendEvent(t, conn, "fetchBalance", map[string]any{"loginid": "CR1"})
	// Malformed symbol payload is dropped too
	sendEvent(t, conn, "joinAssetRoom", 42)

	time.Sleep(100 * time.Millisecond)
	if got := dialer.dialCount(); got != 0 {
		t.Errorf("dial count = %d, want 0 for rejected payloads", got)
	}
}

func TestWS_UnknownEventIgnored(t *testing.T) {
	dialer := &fakeDialer{}
	srv, _ := testGateway(t, dialer)

	conn := dialWS(t, srv)
	sendEvent(t, conn, "definitelyNotAnEvent", "x")
	conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))

	// Connection must survive both
	sendEvent(t, conn, "joinAssetRoom", "R_100")
	dialer.waitSession(t, 0)
}
