package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/detection"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func completedToken(err error) *fakeToken {
	ch := make(chan struct{})
	close(ch)
	return &fakeToken{err: err, done: ch}
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records publishes instead of talking to a broker
type fakePaho struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	hangPublish bool
	messages    []published
	opts        *paho.ClientOptions
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr == nil {
		f.connected = true
	}
	return completedToken(f.connectErr)
}
func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}
func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hangPublish {
		return pendingToken()
	}
	b, _ := payload.([]byte)
	f.messages = append(f.messages, published{topic, qos, retained, b})
	return completedToken(nil)
}
func (f *fakePaho) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return completedToken(nil)
}
func (f *fakePaho) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return completedToken(nil)
}
func (f *fakePaho) Unsubscribe(...string) paho.Token             { return completedToken(nil) }
func (f *fakePaho) AddRoute(string, paho.MessageHandler)         {}
func (f *fakePaho) OptionsReader() paho.ClientOptionsReader      { return paho.ClientOptionsReader{} }

func testConfig() Config {
	c := DefaultConfig()
	c.Broker = "tcp://127.0.0.1:1883"
	c.ReconnectCooldown = 0
	c.PublishTimeout = 50 * time.Millisecond
	c.ConnectTimeout = time.Second
	return c
}

func newFakeClient(t *testing.T, cfg Config, fake *fakePaho) (*client, *metrics.MQTTMetrics) {
	t.Helper()
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	c := newClient(cfg, m, func(o *paho.ClientOptions) paho.Client {
		fake.opts = o
		return fake
	})
	t.Cleanup(c.Disconnect)
	return c, m
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	c := ConfigFromSettings(&conf.MQTTSettings{Broker: "tcp://b:1883", Retain: true, QoS: 1})
	assert.Equal(t, "spamguard", c.ClientID)
	assert.Equal(t, "spamguard/classifications", c.Topic)
	assert.True(t, c.Retain)
	assert.Equal(t, byte(1), c.QoS)

	c = ConfigFromSettings(&conf.MQTTSettings{ClientID: "edge-1", Topic: "alerts"})
	assert.Equal(t, "edge-1", c.ClientID)
	assert.Equal(t, "alerts", c.Topic)
}

func TestConnectAndPublish(t *testing.T) {
	t.Parallel()

	fake := &fakePaho{}
	cfg := testConfig()
	cfg.Retain = true
	cfg.QoS = 1
	c, m := newFakeClient(t, cfg, fake)

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ConnectionStatus), 0)
	require.NotNil(t, fake.opts)
	assert.Equal(t, "spamguard", fake.opts.ClientID)

	pub := NewPublisher(c, "spamguard/classifications/")
	ts := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	ev := detection.Event{Type: "sms", Label: "Spam", IsSpam: true, Confidence: 97.1, Verification: "Model Detection", Stage: detection.StageModel, Timestamp: ts}
	require.NoError(t, pub.PublishClassification(context.Background(), ev))

	require.Len(t, fake.messages, 1)
	msg := fake.messages[0]
	assert.Equal(t, "spamguard/classifications/sms", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var decoded detection.Event
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.True(t, ts.Equal(decoded.Timestamp))
	decoded.Timestamp = ev.Timestamp
	assert.Equal(t, ev, decoded)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.MessagesDelivered), 0)
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	c, m := newFakeClient(t, testConfig(), &fakePaho{})
	err := c.Publish(context.Background(), "t", []byte("x"))
	require.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Errors), 0)
}

func TestPublishTimeout(t *testing.T) {
	t.Parallel()

	fake := &fakePaho{hangPublish: true}
	c, _ := newFakeClient(t, testConfig(), fake)
	require.NoError(t, c.Connect(context.Background()))

	err := c.Publish(context.Background(), "t", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Publish(ctx, "t", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestConnectErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Broker = "://bad"
	c, _ := newFakeClient(t, cfg, &fakePaho{})
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	c, _ = newFakeClient(t, testConfig(), &fakePaho{connectErr: errors.NewStd("not authorized")})
	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
	assert.False(t, c.IsConnected())

	cfg = testConfig()
	cfg.ReconnectCooldown = time.Hour
	c, _ = newFakeClient(t, cfg, &fakePaho{})
	require.NoError(t, c.Connect(context.Background()))
	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
}

func TestDisconnectIsIdempotent(t *testing.T) {
	t.Parallel()

	fake := &fakePaho{}
	c, m := newFakeClient(t, testConfig(), fake)
	require.NoError(t, c.Connect(context.Background()))

	c.Disconnect()
	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.ConnectionStatus), 0)
}
