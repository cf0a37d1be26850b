package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/tcplink/internal/infrastructure/config"
)

// fakeToken completes immediately with err.
type fakeToken struct {
	pahomqtt.Token
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakePublish struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records calls made through the paho client interface.
type fakePaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	publishes    []fakePublish
	subscribed   map[string]pahomqtt.MessageHandler
	disconnected bool
	token        *fakeToken
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, subscribed: make(map[string]pahomqtt.MessageHandler), token: &fakeToken{}}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := payload.([]byte)
	f.publishes = append(f.publishes, fakePublish{topic: topic, qos: qos, retained: retained, payload: b})
	return f.token
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[topic] = cb
	return f.token
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	f.connected = false
}

func (f *fakePaho) lastPublish() fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.publishes) == 0 {
		return fakePublish{}
	}
	return f.publishes[len(f.publishes)-1]
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type captureLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *captureLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:      config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883, ClientID: "tcplink-test"},
		QoS:         1,
		TopicPrefix: "lab",
		Reconnect:   config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 5},
	}
}

func connectedClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fp := newFakePaho()
	c := newClient(testConfig(), fp)
	c.connected.Store(true)
	return c, fp
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "user", Password: "pass"}
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "tcplink-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto reconnect and clean session")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set with TLS enabled")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, Topics{Prefix: "lab"}, "tcplink-test")

	if !opts.WillEnabled || opts.WillTopic != "lab/system/status" || !opts.WillRetained {
		t.Fatalf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var msg StatusMessage
	if err := json.Unmarshal(opts.WillPayload, &msg); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if msg.Status != "offline" || msg.Reason != "unexpected_disconnect" || msg.ClientID != "tcplink-test" {
		t.Errorf("will payload = %+v", msg)
	}
}

func TestPublish_Validation(t *testing.T) {
	c, _ := connectedClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"wildcard topic", "lab/topics/#", []byte("x"), 0, ErrInvalidTopic},
		{"qos too high", "lab/x", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "lab/x", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublish_NotConnected(t *testing.T) {
	c, fp := connectedClient(t)
	fp.connected = false

	if err := c.Publish("lab/x", []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_TokenErrors(t *testing.T) {
	c, fp := connectedClient(t)

	fp.token = &fakeToken{err: errors.New("broker said no")}
	if err := c.Publish("lab/x", []byte("x"), 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}

	fp.token = &fakeToken{timeout: true}
	err := c.Publish("lab/x", []byte("x"), 1, false)
	if !errors.Is(err, ErrPublishFailed) || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("Publish() error = %v, want timeout", err)
	}
}

func TestSubscribe_TracksAndRestores(t *testing.T) {
	c, fp := connectedClient(t)

	received := make(chan string, 1)
	err := c.Subscribe("lab/topics/+", 1, func(topic string, payload []byte) error {
		received <- topic + "=" + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", c.SubscriptionCount())
	}

	delete(fp.subscribed, "lab/topics/+")
	c.handleConnect()

	cb, ok := fp.subscribed["lab/topics/+"]
	if !ok {
		t.Fatal("subscription not restored after reconnect")
	}
	cb(fp, fakeMessage{topic: "lab/topics/weather", payload: []byte("sunny")})
	if got := <-received; got != "lab/topics/weather=sunny" {
		t.Errorf("handler got %q", got)
	}

	status := fp.lastPublish()
	if status.topic != "lab/system/status" || !status.retained {
		t.Errorf("online status = %+v", status)
	}
}

func TestSubscribe_FailureIsForgotten(t *testing.T) {
	c, fp := connectedClient(t)
	fp.token = &fakeToken{err: errors.New("denied")}

	err := c.Subscribe("lab/x", 0, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}

	if err := c.Subscribe("lab/x", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}
}

func TestWrapHandler_RecoversAndLogs(t *testing.T) {
	c, fp := connectedClient(t)
	logger := &captureLogger{}
	c.SetLogger(logger)

	c.wrapHandler(func(string, []byte) error { panic("boom") })(fp, fakeMessage{topic: "t"})
	c.wrapHandler(func(string, []byte) error { return errors.New("bad") })(fp, fakeMessage{topic: "t"})

	if len(logger.errs) != 1 || len(logger.warns) != 1 {
		t.Errorf("errs=%v warns=%v", logger.errs, logger.warns)
	}
}

func TestConnectionLossAndReconnect(t *testing.T) {
	c, _ := connectedClient(t)
	logger := &captureLogger{}
	c.SetLogger(logger)

	c.handleDisconnect(errors.New("eof"))
	if st := c.Stats(); st.Connected || st.Losses != 1 {
		t.Errorf("after loss: %+v", st)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v", logger.warns)
	}

	c.handleConnect()
	if st := c.Stats(); !st.Connected || st.Connects == 0 {
		t.Errorf("after reconnect: %+v", st)
	}
}

func TestClose_PublishesGracefulOffline(t *testing.T) {
	c, fp := connectedClient(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fp.disconnected || c.IsConnected() {
		t.Error("client not disconnected")
	}

	var msg StatusMessage
	if err := json.Unmarshal(fp.lastPublish().payload, &msg); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if msg.Status != "offline" || msg.Reason != "graceful_shutdown" {
		t.Errorf("status = %+v", msg)
	}

	var nilClient Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

func TestHealthCheck_CancelledContext(t *testing.T) {
	c, _ := connectedClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
