package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/dispatch"
)

// withClient builds an emitter around an existing client.
func withClient(client mqtt.Client, cfg config.MQTTConfig) *MQTTEmitter {
	e := newEmitter(cfg, nil)
	e.client = client
	e.connected = client.IsConnectionOpen()
	return e
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
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

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements the parts of mqtt.Client the emitter uses.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	open         bool
	publishErr   error
	hang         bool
	messages     []published
	disconnected bool
}

func (c *fakeClient) IsConnected() bool { return c.open }

func (c *fakeClient) IsConnectionOpen() bool { return c.open }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newFakeToken(c.publishErr, !c.hang)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.open = false
}

var testCfg = config.MQTTConfig{Topic: "rollcall/attendance", QoS: 1}

func TestDeliverPublishesPayload(t *testing.T) {
	client := &fakeClient{open: true}
	e := withClient(client, testCfg)

	id := int64(12)
	err := e.Deliver(context.Background(), dispatch.Event{
		Label:      "alice",
		Confidence: 0.75,
		Timestamp:  time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		MemberID:   &id,
		Status:     dispatch.StatusPresent,
	})
	if err != nil {
		t.Fatalf("Deliver() error: %v", err)
	}

	if len(client.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(client.messages))
	}
	msg := client.messages[0]
	if msg.topic != "rollcall/attendance" || msg.qos != 1 {
		t.Errorf("topic/qos = %s/%d", msg.topic, msg.qos)
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	for _, key := range []string{"name", "confidence", "timestamp", "member_id", "status"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("payload missing %q: %s", key, msg.payload)
		}
	}
	if payload["name"] != "alice" || payload["member_id"] != float64(12) {
		t.Errorf("payload = %s", msg.payload)
	}

	if st := e.Stats(); st.Published != 1 || st.Errors != 0 || !st.Connected {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestPublishNotConnected(t *testing.T) {
	e := withClient(&fakeClient{open: false}, testCfg)
	err := e.Publish(context.Background(), "t", []byte("{}"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if e.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", e.Stats().Errors)
	}
}

func TestPublishBrokerError(t *testing.T) {
	brokerErr := errors.New("not authorized")
	e := withClient(&fakeClient{open: true, publishErr: brokerErr}, testCfg)
	if err := e.Publish(context.Background(), "t", []byte("{}")); !errors.Is(err, brokerErr) {
		t.Errorf("Publish() error = %v, want broker error", err)
	}
}

func TestPublishHonorsDeadline(t *testing.T) {
	e := withClient(&fakeClient{open: true, hang: true}, testCfg)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := e.Publish(ctx, "t", []byte("{}"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Publish() ignored the context deadline")
	}
}

func TestClose(t *testing.T) {
	client := &fakeClient{open: true}
	e := withClient(client, testCfg)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if !client.disconnected {
		t.Error("Close() did not disconnect")
	}
	if e.Stats().Connected {
		t.Error("emitter still reports connected")
	}
}

func TestConnectRequiresBroker(t *testing.T) {
	if _, err := Connect(context.Background(), config.MQTTConfig{}, nil); err == nil {
		t.Error("expected error without broker")
	}
}
