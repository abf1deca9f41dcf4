package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rackmesh/telemetry-core/internal/infrastructure/config"
)

// ConnState represents the adapter's connection lifecycle state:
// Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected.
type ConnState string

const (
	StateDisconnected  ConnState = "disconnected"
	StateConnecting    ConnState = "connecting"
	StateConnected     ConnState = "connected"
	StateDisconnecting ConnState = "disconnecting"
)

// Client wraps paho.mqtt.golang with telemetry-core-specific functionality:
// wildcard-aware handler dispatch, connection state tracking, and
// subscription replay on reconnect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// subscriptions tracks active subscriptions for dispatch and for
	// re-subscription on reconnect. Keyed by pattern.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	state   ConnState
	stateMu sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// subscription holds subscription details for dispatch and re-subscription.
type subscription struct {
	pattern string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines. They should not block for
// extended periods.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth)
//  2. Configures Last Will and Testament (LWT) for offline detection
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts initial connection with a bounded timeout (5s)
//
// On timeout, Connect returns ErrConnectionFailed rather than aborting the
// host process — callers run in degraded mode.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Options.ClientID)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		subscriptions: make(map[string]subscription),
		state:         StateDisconnected,
	}

	opts.SetDefaultPublishHandler(c.routeMessage)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.setState(StateConnecting)

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.setState(StateConnected)

	return c, nil
}

// routeMessage is the single paho-level callback for all subscriptions. It
// re-checks the topic against every registered pattern with MatchWildcard
// and invokes every matching handler.
func (c *Client) routeMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	c.subMu.RLock()
	matches := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		if MatchWildcard(sub.pattern, topic) {
			matches = append(matches, sub)
		}
	}
	c.subMu.RUnlock()

	for _, sub := range matches {
		go c.invokeHandler(sub.handler, topic, payload)
	}
}

// invokeHandler runs a handler with panic recovery so one broken handler
// cannot take down message dispatch for others.
func (c *Client) invokeHandler(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.setState(StateConnected)
	c.restoreSubscriptions()
	c.publishOnlineStatus()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setState(StateDisconnected)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topic patterns after a
// reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.pattern, sub.qos, nil)
	}
}

func (c *Client) publishOnlineStatus() {
	topic := Topics{}.SystemStatus()
	payload := buildOnlinePayload(c.cfg.Options.ClientID)
	c.client.Publish(topic, byte(c.cfg.Options.QoS), true, payload)
}

// Close gracefully disconnects from the MQTT broker.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.setState(StateDisconnecting)

	if c.IsConnected() {
		topic := Topics{}.SystemStatus()
		payload := buildOfflinePayload(c.cfg.Options.ClientID)
		token := c.client.Publish(topic, byte(c.cfg.Options.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setState(StateDisconnected)

	return nil
}

// HealthCheck verifies the MQTT connection is alive and functioning.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.client != nil && c.client.IsConnected()
}

// State returns the adapter's current connection lifecycle state.
func (c *Client) State() ConnState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Client) setState(s ConnState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// SetOnConnect sets a callback invoked when connection is established.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
