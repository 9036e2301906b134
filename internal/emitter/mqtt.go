// Package emitter publishes identity events to an MQTT broker.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/dispatch"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	disconnectMs   = 250
)

// ErrNotConnected is returned when publishing while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// MQTTEmitter publishes events as JSON to a single topic.
type MQTTEmitter struct {
	client mqtt.Client
	topic  string
	qos    byte
	log    *slog.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

// clientOptions builds paho options for cfg. OnConnect and OnConnectionLost
// are wired to e.
func (e *MQTTEmitter) clientOptions(cfg config.MQTTConfig) *mqtt.ClientOptions {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "rollcall-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.log.Info("mqtt connection established", "broker", cfg.Broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}
	return opts
}

// Connect creates a client for cfg and waits for the first connection.
func Connect(ctx context.Context, cfg config.MQTTConfig, logger *slog.Logger) (*MQTTEmitter, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}
	e := newEmitter(cfg, logger)
	e.client = mqtt.NewClient(e.clientOptions(cfg))

	e.log.Info("connecting to mqtt broker", "broker", cfg.Broker)
	token := e.client.Connect()
	if err := waitToken(ctx, token, connectTimeout); err != nil {
		e.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return e, nil
}

func newEmitter(cfg config.MQTTConfig, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{
		topic: cfg.Topic,
		qos:   byte(cfg.QoS),
		log:   logger.With("sink", "mqtt"),
	}
}

func (e *MQTTEmitter) Name() string { return "mqtt" }

// Deliver publishes the event payload to the configured topic.
func (e *MQTTEmitter) Deliver(ctx context.Context, event dispatch.Event) error {
	payload, err := event.MarshalJSON()
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return e.Publish(ctx, e.topic, payload)
}

// Publish sends payload to topic and waits for the broker acknowledgement
// allowed by the QoS level.
func (e *MQTTEmitter) Publish(ctx context.Context, topic string, payload []byte) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	token := e.client.Publish(topic, e.qos, false, payload)
	if err := waitToken(ctx, token, publishTimeout); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	e.log.Debug("event published", "topic", topic, "qos", e.qos, "size", len(payload))
	return nil
}

// Close disconnects from the broker.
func (e *MQTTEmitter) Close() error {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(disconnectMs)
		e.log.Info("mqtt disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Published: e.published,
		Errors:    e.errors,
	}
}

// waitToken waits for token until ctx is done or fallback elapses when ctx
// has no deadline.
func waitToken(ctx context.Context, token mqtt.Token, fallback time.Duration) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fallback)
		defer cancel()
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

var _ dispatch.Sink = (*MQTTEmitter)(nil)
