package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"switchbot-sensor-gateway/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// Client owns the broker connection for one meter. On every (re-)connect it
// publishes Home Assistant discovery configs, the availability payload and
// the last known status, all retained.
type Client struct {
	client    mqtt.Client
	cfg       config.Config
	device    DeviceInfo
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	// last retained payloads, replayed after a reconnect
	lastAvailability string
	lastStatus       []byte

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(cfg config.Config, version string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:              cfg,
		device:           NewDeviceInfo(cfg.MeterAddress, cfg.MeterName, version),
		logger:           logger,
		lastAvailability: payloadOffline,
		stopCh:           make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// The broker flips the meter to unavailable if the gateway itself dies.
	opts.SetWill(c.availabilityTopic(cfg.MeterAddress), payloadOffline, 1, true)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		c.publishRetainedState()
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect establishes connection to the MQTT broker.
// This function waits for the initial connection, and respects ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry(true), paho keeps retrying internally.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// The OnConnect handler runs on its own goroutine and may lag.
			c.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect publishes "offline" for the meter, then closes the connection.
// Idempotent; after Disconnect, Connect returns "client stopped".
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.IsConnected() {
		if err := c.publish(c.availabilityTopic(c.cfg.MeterAddress), true, []byte(payloadOffline)); err != nil {
			c.logger.Warn("mqtt: publish offline on shutdown", "error", err)
		}
	}

	// Paho Disconnect quiesces in-flight work for the given ms.
	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) publish(topic string, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	c.logger.Debug("mqtt published", "topic", topic, "retained", retained, "size", len(payload))
	return nil
}

func (c *Client) publishJSON(topic string, retained bool, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return c.publish(topic, retained, data)
}

// publishRetainedState runs after each connect: discovery first so Home
// Assistant knows the entities before their availability arrives.
func (c *Client) publishRetainedState() {
	if err := c.PublishDiscovery(); err != nil {
		c.logger.Warn("mqtt: publish discovery", "error", err)
	}

	c.mu.RLock()
	availability, status := c.lastAvailability, c.lastStatus
	c.mu.RUnlock()

	if err := c.publish(c.availabilityTopic(c.cfg.MeterAddress), true, []byte(availability)); err != nil {
		c.logger.Warn("mqtt: publish availability", "error", err)
	}
	if status != nil {
		if err := c.publish(c.statusTopic(c.cfg.MeterAddress), true, status); err != nil {
			c.logger.Warn("mqtt: publish status", "error", err)
		}
	}
}

// --- Topic helpers ---

// DeviceID turns a MAC address into the lower-case hex id used in topics.
func DeviceID(address string) string {
	return strings.ToLower(strings.NewReplacer(":", "", "-", "").Replace(address))
}

func (c *Client) baseTopic(address string) string {
	return c.cfg.MQTTTopicPrefix + "/" + DeviceID(address)
}

func (c *Client) stateTopic(address string) string {
	return c.baseTopic(address) + "/state"
}

func (c *Client) availabilityTopic(address string) string {
	return c.baseTopic(address) + "/availability"
}

func (c *Client) statusTopic(address string) string {
	return c.baseTopic(address) + "/status"
}

func (c *Client) discoveryTopic(component, entity string) string {
	return c.cfg.MQTTDiscoveryPrefix + "/" + component + "/" + DeviceID(c.cfg.MeterAddress) + "/" + entity + "/config"
}
