// Package mqtt wraps the Eclipse Paho client for the fleet-plane side of
// the bridge.
//
// The wrapper narrows the paho surface to context-aware connect, subscribe
// and publish calls with explicit error returns, keeps a subscription table
// so topics survive broker reconnects, and routes paho's callback noise
// into structured logs.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Sentinel errors for client configuration.
var (
	// ErrEmptyBrokerURL indicates a missing broker address.
	ErrEmptyBrokerURL = errors.New("broker URL must not be empty")

	// ErrEmptyClientPrefix indicates a missing client-id prefix.
	ErrEmptyClientPrefix = errors.New("client-id prefix must not be empty")
)

const (
	// qosAtMostOnce is the delivery class for all bridge traffic. State
	// topics repeat on a fixed cadence, so a lost sample is replaced by
	// the next one; commands arriving twice would be worse than commands
	// arriving late.
	qosAtMostOnce = 0

	// disconnectQuiesce is how long Disconnect waits for in-flight work.
	disconnectQuiesce = 250 * time.Millisecond

	defaultKeepAlive      = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	connectRetryInterval  = 5 * time.Second
	maxReconnectInterval  = 30 * time.Second
)

// Config holds broker connection parameters.
type Config struct {
	// BrokerURL is the broker address, e.g. "tcp://10.0.0.1:1883".
	BrokerURL string

	// ClientIDPrefix is combined with a random suffix to form the MQTT
	// client id, so multiple bridge instances never collide on the broker.
	ClientIDPrefix string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// KeepAlive is the MQTT keepalive interval. Zero means the default.
	KeepAlive time.Duration

	// ConnectTimeout bounds a single broker connection attempt. Zero
	// means the default.
	ConnectTimeout time.Duration
}

// MessageHandler receives one inbound MQTT message.
type MessageHandler func(topic string, payload []byte)

// Client is a broker connection with reconnect-safe subscriptions.
type Client struct {
	client   paho.Client
	clientID string
	logger   *slog.Logger

	// mu guards subs, the resubscribe table replayed on every reconnect.
	// Paho forgets clean-session subscriptions when the link drops.
	mu   sync.Mutex
	subs map[string]paho.MessageHandler
}

// NewClient creates a broker client. The connection is established by
// Connect; paho then maintains it with automatic reconnects.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("new mqtt client: %w", ErrEmptyBrokerURL)
	}
	if cfg.ClientIDPrefix == "" {
		return nil, fmt.Errorf("new mqtt client: %w", ErrEmptyClientPrefix)
	}
	if logger == nil {
		logger = slog.Default()
	}

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	c := &Client{
		clientID: fmt.Sprintf("%s-%08x", cfg.ClientIDPrefix, rand.Uint32()),
		subs:     make(map[string]paho.MessageHandler),
	}
	c.logger = logger.With(
		slog.String("component", "mqtt.client"),
		slog.String("client_id", c.clientID),
	)

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(c.clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)

	return c, nil
}

// ClientID returns the full client id including the random suffix.
func (c *Client) ClientID() string {
	return c.clientID
}

// Connected reports whether the broker link is currently up.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Connect establishes the broker connection, bounded by ctx.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.waitToken(ctx, c.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Subscribe registers handler for topic and replays the subscription after
// every reconnect. topic may contain MQTT wildcards.
func (c *Client) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	wrapped := func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	}

	c.mu.Lock()
	c.subs[topic] = wrapped
	c.mu.Unlock()

	if err := c.waitToken(ctx, c.client.Subscribe(topic, qosAtMostOnce, wrapped)); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}

	c.logger.Info("subscribed", slog.String("topic", topic))
	return nil
}

// Publish sends payload to topic at QoS 0.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if err := c.waitToken(ctx, c.client.Publish(topic, qosAtMostOnce, retain, payload)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the broker connection after a short quiesce.
func (c *Client) Disconnect() {
	c.client.Disconnect(uint(disconnectQuiesce.Milliseconds()))
	c.logger.Info("disconnected from broker")
}

// waitToken waits for a paho token to complete or ctx to expire.
func (c *Client) waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onConnect replays the subscription table. Fires on the initial connect
// (table still empty) and after every automatic reconnect.
func (c *Client) onConnect(client paho.Client) {
	c.logger.Info("connected to broker")

	c.mu.Lock()
	subs := make(map[string]paho.MessageHandler, len(c.subs))
	for topic, handler := range c.subs {
		subs[topic] = handler
	}
	c.mu.Unlock()

	for topic, handler := range subs {
		if token := client.Subscribe(topic, qosAtMostOnce, handler); token.Wait() && token.Error() != nil {
			c.logger.Error("resubscribe failed",
				slog.String("topic", topic),
				slog.String("error", token.Error().Error()),
			)
		}
	}
}

// onConnectionLost logs the drop; paho handles the reconnect itself.
func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("broker connection lost", slog.String("error", err.Error()))
}
