package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tcplink/internal/auth"
	"github.com/nerrad567/tcplink/internal/infrastructure/config"
	"github.com/nerrad567/tcplink/internal/infrastructure/logging"
	"github.com/nerrad567/tcplink/internal/link"
	"github.com/nerrad567/tcplink/internal/peer"
	"github.com/nerrad567/tcplink/internal/telemetry"
)

const testSecret = "api-test-secret-0123456789abcdef"

// fakeLink records the calls the API makes.
type fakeLink struct {
	mu         sync.Mutex
	connects   int
	closes     int
	sent       []string
	subscribed []string
	published  [][2]string
	err        error
	stats      link.Stats
	listeners  map[int]link.Listener
	nextID     int
}

func newFakeLink() *fakeLink {
	return &fakeLink{listeners: make(map[int]link.Listener)}
}

func (f *fakeLink) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.stats.State = link.StateConnected
}

func (f *fakeLink) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.stats.State = link.StateClosed
}

func (f *fakeLink) SendString(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, s)
	return nil
}

func (f *fakeLink) Subscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeLink) Publish(topic, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, [2]string{topic, message})
	return nil
}

func (f *fakeLink) Stats() link.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeLink) Addresses() []netip.Addr {
	return []netip.Addr{netip.MustParseAddr("192.0.2.10"), netip.MustParseAddr("2001:db8::10")}
}

func (f *fakeLink) Port() int { return 7000 }

func (f *fakeLink) RemoteEndpoint() netip.AddrPort {
	return netip.MustParseAddrPort("192.0.2.10:7000")
}

func (f *fakeLink) LocalEndpoint() netip.AddrPort {
	return netip.MustParseAddrPort("192.0.2.1:50123")
}

func (f *fakeLink) Observe(fn link.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeLink) emit(ev link.Event) {
	f.mu.Lock()
	fns := make([]link.Listener, 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeLink) observerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// stubSessions serves stored sessions from a map.
type stubSessions map[string]*peer.Session

func (s stubSessions) GetSession(_ context.Context, id string) (*peer.Session, error) {
	if sess, ok := s[id]; ok {
		return sess, nil
	}
	return nil, peer.ErrSessionNotFound
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
}

func testAPIConfig(secret string) config.APIConfig {
	return config.APIConfig{
		Enabled:     true,
		Host:        "127.0.0.1",
		Port:        0,
		MetricsPath: "/metrics",
		Timeouts:    config.APITimeoutConfig{Read: 5 * time.Second, Write: 5 * time.Second, Idle: 5 * time.Second},
		Auth:        config.APIAuthConfig{JWTSecret: secret},
		WebSocket:   config.WebSocketConfig{PingInterval: time.Second, PongTimeout: time.Second, MaxMessageSize: 4096},
	}
}

func newTestServer(t *testing.T, secret string, mutate func(*Deps)) (*Server, *fakeLink) {
	t.Helper()
	fl := newFakeLink()
	deps := Deps{
		Config:  testAPIConfig(secret),
		Logger:  testLogger(),
		Link:    fl,
		Metrics: telemetry.New("test"),
		Version: "test",
	}
	if mutate != nil {
		mutate(&deps)
	}
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, fl
}

func tokenFor(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateToken("tester", role, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return tok
}

func do(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	base := Deps{Logger: testLogger(), Link: newFakeLink(), Metrics: telemetry.New("test")}

	for name, mutate := range map[string]func(*Deps){
		"logger":  func(d *Deps) { d.Logger = nil },
		"link":    func(d *Deps) { d.Link = nil },
		"metrics": func(d *Deps) { d.Metrics = nil },
	} {
		d := base
		mutate(&d)
		if _, err := New(d); err == nil {
			t.Errorf("New() without %s should fail", name)
		}
	}
}

func TestHealth_NoAuth(t *testing.T) {
	s, _ := newTestServer(t, testSecret, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
	if body := decode[map[string]any](t, rec); body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealth_Components(t *testing.T) {
	s, _ := newTestServer(t, testSecret, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"database": checkFunc(func(context.Context) error { return nil }),
			"mqtt":     checkFunc(func(context.Context) error { return errors.New("broker gone") }),
		}
	})

	rec := do(t, s, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decode[HealthStatus](t, rec)
	if body.Status != "degraded" || body.Components["database"] != "ok" || body.Components["mqtt"] != "broker gone" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuth_Enforced(t *testing.T) {
	s, fl := newTestServer(t, testSecret, nil)
	viewer := tokenFor(t, auth.RoleViewer)
	operator := tokenFor(t, auth.RoleOperator)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/link", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/link", "garbage", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/api/v1/link", viewer, http.StatusOK},
		{"viewer cannot connect", http.MethodPost, "/api/v1/link/connect", viewer, http.StatusForbidden},
		{"operator connects", http.MethodPost, "/api/v1/link/connect", operator, http.StatusAccepted},
		{"viewer status", http.MethodGet, "/api/v1/status", viewer, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, tt.method, tt.path, tt.token, ""); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if fl.connects != 1 {
		t.Errorf("connects = %d, want 1", fl.connects)
	}
}

func TestLink_StatusAndControl(t *testing.T) {
	s, fl := newTestServer(t, "", nil)

	st := decode[LinkStatus](t, do(t, s, http.MethodGet, "/api/v1/link", "", ""))
	if st.State != "idle" || st.Connected || st.Remote != "" || st.Port != 7000 || len(st.Addresses) != 2 {
		t.Errorf("idle status = %+v", st)
	}

	st = decode[LinkStatus](t, do(t, s, http.MethodPost, "/api/v1/link/connect", "", ""))
	if !st.Connected || st.Remote != "192.0.2.10:7000" || st.Local != "192.0.2.1:50123" {
		t.Errorf("connected status = %+v", st)
	}

	st = decode[LinkStatus](t, do(t, s, http.MethodPost, "/api/v1/link/close", "", ""))
	if st.State != "closed" || fl.closes != 1 {
		t.Errorf("closed status = %+v, closes = %d", st, fl.closes)
	}
}

func TestLink_Writes(t *testing.T) {
	s, fl := newTestServer(t, "", nil)

	if rec := do(t, s, http.MethodPost, "/api/v1/link/send", "", `{"message":"hello"}`); rec.Code != http.StatusAccepted {
		t.Errorf("send status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/link/send", "", `{"message":""}`); rec.Code != http.StatusAccepted {
		t.Errorf("empty send status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/link/subscribe", "", `{"topic":"weather"}`); rec.Code != http.StatusAccepted {
		t.Errorf("subscribe status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/link/publish", "", `{"topic":"weather","message":"sunny"}`); rec.Code != http.StatusAccepted {
		t.Errorf("publish status = %d", rec.Code)
	}

	if len(fl.sent) != 2 || fl.sent[0] != "hello" || fl.sent[1] != "" {
		t.Errorf("sent = %q", fl.sent)
	}
	if len(fl.subscribed) != 1 || fl.subscribed[0] != "weather" {
		t.Errorf("subscribed = %q", fl.subscribed)
	}
	if len(fl.published) != 1 || fl.published[0] != [2]string{"weather", "sunny"} {
		t.Errorf("published = %q", fl.published)
	}
}

func TestLink_WriteErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		err  error
		want int
	}{
		{"bad json", "/api/v1/link/send", `{`, nil, http.StatusBadRequest},
		{"missing message", "/api/v1/link/send", `{}`, nil, http.StatusBadRequest},
		{"missing topic", "/api/v1/link/subscribe", `{"topic":""}`, nil, http.StatusBadRequest},
		{"publish without topic", "/api/v1/link/publish", `{"message":"x"}`, nil, http.StatusBadRequest},
		{"not connected", "/api/v1/link/send", `{"message":"x"}`, link.ErrNotConnected, http.StatusConflict},
		{"queue full", "/api/v1/link/publish", `{"topic":"t","message":"x"}`, link.ErrQueueFull, http.StatusServiceUnavailable},
		{"unencodable", "/api/v1/link/send", `{"message":"x"}`, link.ErrEncodeFailed, http.StatusBadRequest},
		{"shut down", "/api/v1/link/subscribe", `{"topic":"t"}`, link.ErrShutdown, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fl := newTestServer(t, "", nil)
			fl.err = tt.err
			rec := do(t, s, http.MethodPost, tt.path, "", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			body := decode[ErrorBody](t, rec)
			if body.Error.Code == "" || body.Error.Message == "" {
				t.Errorf("error body = %s", rec.Body.String())
			}
		})
	}
}

func TestPeers(t *testing.T) {
	registry := peer.NewRegistry()
	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	live := peer.NewRecord(c1, 1, 64, time.Now())
	live.Subscribe("weather")
	registry.Register(live)

	ended := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	gone := uuid.NewString()
	sessions := stubSessions{gone: {
		ID:             gone,
		Seq:            7,
		Remote:         "192.0.2.50:40000",
		ConnectedAt:    ended.Add(-time.Hour),
		DisconnectedAt: &ended,
		Topics:         []string{},
	}}

	s, _ := newTestServer(t, "", func(d *Deps) {
		d.Peers = registry
		d.Sessions = sessions
	})

	list := decode[struct {
		Peers []PeerView `json:"peers"`
		Count int        `json:"count"`
	}](t, do(t, s, http.MethodGet, "/api/v1/peers", "", ""))
	if list.Count != 1 || list.Peers[0].ID != live.ID.String() || !list.Peers[0].Live || list.Peers[0].Topics[0] != "weather" {
		t.Errorf("list = %+v", list)
	}

	one := decode[PeerView](t, do(t, s, http.MethodGet, "/api/v1/peers/"+live.ID.String(), "", ""))
	if one.Seq != 1 || !one.Live {
		t.Errorf("live peer = %+v", one)
	}

	stored := decode[PeerView](t, do(t, s, http.MethodGet, "/api/v1/peers/"+gone, "", ""))
	if stored.Live || stored.Seq != 7 || stored.DisconnectedAt != "2026-03-01T12:30:00Z" {
		t.Errorf("stored peer = %+v", stored)
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/peers/"+uuid.NewString(), "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown peer status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/peers/not-a-uuid", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
}

func TestPeers_NoServer(t *testing.T) {
	s, _ := newTestServer(t, "", nil)
	if rec := do(t, s, http.MethodGet, "/api/v1/peers", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, testSecret, nil)
	do(t, s, http.MethodGet, "/api/v1/link", tokenFor(t, auth.RoleViewer), "")

	rec := do(t, s, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `tcplink_api_requests_total{op="link",status="2xx"} 1`) {
		t.Errorf("metrics missing link request counter:\n%s", rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, "", func(d *Deps) { d.Peers = peer.NewRegistry() })
	st := decode[SystemStatus](t, do(t, s, http.MethodGet, "/api/v1/status", "", ""))
	if st.Version != "test" || st.Runtime.Goroutines == 0 || st.Peers == nil || st.Link.Port != 7000 {
		t.Errorf("status = %+v", st)
	}
}

func TestTicketStore(t *testing.T) {
	ts := newTicketStore()
	now := time.Now()
	ts.now = func() time.Time { return now }

	ticket := ts.issue("tester", auth.RoleViewer)
	entry, ok := ts.consume(ticket)
	if !ok || entry.subject != "tester" || entry.role != auth.RoleViewer {
		t.Fatalf("consume() = %+v, %v", entry, ok)
	}
	if _, ok := ts.consume(ticket); ok {
		t.Error("ticket reused")
	}

	stale := ts.issue("tester", auth.RoleViewer)
	now = now.Add(2 * ticketTTL)
	if _, ok := ts.consume(stale); ok {
		t.Error("expired ticket accepted")
	}

	ts.issue("tester", auth.RoleViewer)
	now = now.Add(2 * ticketTTL)
	ts.clean()
	if ts.size() != 0 {
		t.Errorf("size after clean = %d", ts.size())
	}
}

func TestServer_Lifecycle(t *testing.T) {
	s, fl := newTestServer(t, "", nil)

	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if fl.observerCount() != 1 {
		t.Errorf("observers = %d, want 1", fl.observerCount())
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if fl.observerCount() != 0 {
		t.Errorf("observers after Close = %d, want 0", fl.observerCount())
	}
}
