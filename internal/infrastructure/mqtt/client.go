package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/statuslogger/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for a single long-lived subscriber connection.
//
// Instead of invoking user callbacks, the client turns protocol activity into
// typed Events delivered, in order, on the channel returned by Events. The
// consumer of that channel decides what each event means.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	// subscriptions tracks active topic filters and their QoS.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// logger for dropped-event warnings (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// New creates a Client for the configured broker. It does not connect.
func New(cfg config.MQTTConfig) *Client {
	opts := buildClientOptions(cfg)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		events:        make(chan Event, eventBufferSize),
		done:          make(chan struct{}),
		subscriptions: make(map[string]byte),
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	// Messages for which paho has no subscription route (for example
	// deliveries racing an unsubscribe) land here.
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if !c.matchesSubscription(msg.Topic()) {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("dropping MQTT message outside subscriptions", "topic", msg.Topic())
			}
			return
		}
		c.deliverMessage(msg)
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

// Events returns the channel on which message and connection-lost events
// are delivered. The channel is never closed.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connect performs one connection attempt and waits for its outcome.
//
// Returns:
//   - (0, nil) when the broker accepted the connection
//   - (rc, nil) when the broker answered with a refusal return code (1-5)
//   - (0, error) for network failures, timeouts or ctx cancellation; the
//     error wraps ErrConnectionFailed unless ctx ended first
func (c *Client) Connect(ctx context.Context) (byte, error) {
	token := c.client.Connect()

	timer := time.NewTimer(defaultConnectTimeout + time.Second)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return 0, fmt.Errorf("mqtt connect: %w", ctx.Err())
	case <-timer.C:
		return 0, fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, defaultConnectTimeout)
	}

	if err := token.Error(); err != nil {
		if ct, ok := token.(*pahomqtt.ConnectToken); ok && isBrokerRefusal(ct.ReturnCode()) {
			return ct.ReturnCode(), nil
		}
		return 0, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return packets.Accepted, nil
}

// isBrokerRefusal reports whether rc is a CONNACK refusal rather than a
// client-side failure code.
func isBrokerRefusal(rc byte) bool {
	return rc >= packets.ErrRefusedBadProtocolVersion && rc <= packets.ErrRefusedNotAuthorised
}

// handleConnectionLost is called by paho when an established connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.deliver(Event{Kind: EventDisconnect, Code: CodeUnexpectedDisconnect, Err: err})
}

// deliverMessage copies the payload out of paho's buffer and enqueues it.
func (c *Client) deliverMessage(msg pahomqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	c.deliver(Event{Kind: EventMessage, Topic: msg.Topic(), Payload: payload})
}

// deliver blocks until the event is queued or the client is closed.
func (c *Client) deliver(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
		if logger := c.getLogger(); logger != nil {
			logger.Warn("dropping MQTT event after close", "kind", ev.Kind.String(), "topic", ev.Topic)
		}
	}
}

// Close unsubscribes from tracked topics and disconnects from the broker.
// Calling Close more than once is safe.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.closeOnce.Do(func() {
		if c.IsConnected() {
			for _, topic := range c.subscribedTopics() {
				if err := c.Unsubscribe(topic); err != nil {
					if logger := c.getLogger(); logger != nil {
						logger.Warn("unsubscribe on close failed", "topic", topic, "error", err)
					}
				}
			}
		}

		// Disconnect with quiesce period for pending operations
		c.client.Disconnect(defaultDisconnectQuiesce)

		c.connMu.Lock()
		c.connected = false
		c.connMu.Unlock()

		if c.done != nil {
			close(c.done)
		}
	})

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetLogger sets a logger for dropped-event warnings.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// Broker returns the broker address in host:port form.
func (c *Client) Broker() string {
	return fmt.Sprintf("%s:%d", c.cfg.Broker.Host, c.cfg.Broker.Port)
}
