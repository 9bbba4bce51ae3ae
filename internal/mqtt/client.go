package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaberg/rituals-hass/internal/config"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned when publishing on a disconnected client.
var ErrNotConnected = errors.New("mqtt: client not connected")

const (
	// BaseTopic prefixes every state and availability topic.
	BaseTopic = "rituals"

	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// MessageHandler receives the topic and payload of an incoming message.
type MessageHandler func(topic string, payload []byte)

// Client wraps the MQTT client with additional functionality
type Client struct {
	client   mqtt.Client
	clientID string
	logger   *logrus.Logger

	mu           sync.Mutex
	firstConnect bool
	subs         map[string]mqtt.MessageHandler // resubscribed after reconnect
}

// NewClient creates a new MQTT client with support for both WebSocket and
// standard MQTT protocols. The bridge availability topic is registered as
// Last Will so Home Assistant marks every entity unavailable if the bridge
// dies.
func NewClient(mqttURL, clientID string, logger *logrus.Logger) (*Client, error) {
	opts, err := clientOptions(mqttURL, clientID, logger)
	if err != nil {
		return nil, err
	}

	c := newClient(clientID, logger)
	opts.SetOnConnectHandler(c.onConnect)
	c.client = mqtt.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.WithFields(logrus.Fields{
		"broker":    cleanURL(mqttURL),
		"client_id": opts.ClientID,
	}).Info("MQTT client connected")

	if err := c.PublishAvailability(true); err != nil {
		logger.WithError(err).Warn("Failed to publish bridge availability")
	}
	return c, nil
}

func clientOptions(mqttURL, clientID string, logger *logrus.Logger) (*mqtt.ClientOptions, error) {
	parsedURL, err := url.Parse(mqttURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}

	opts := mqtt.NewClientOptions()

	var brokerURL string
	switch parsedURL.Scheme {
	case "ws":
		brokerURL = mqttURL
		logger.Debug("Using WebSocket MQTT connection")
	case "wss":
		brokerURL = mqttURL
		logger.Debug("Using secure WebSocket MQTT connection")
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	case "mqtt":
		brokerURL = strings.Replace(mqttURL, "mqtt://", "tcp://", 1)
		logger.Debug("Using standard MQTT connection (TCP)")
	case "mqtts":
		brokerURL = strings.Replace(mqttURL, "mqtts://", "ssl://", 1)
		logger.Debug("Using secure MQTT connection (SSL/TLS)")
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	default:
		return nil, fmt.Errorf("unsupported protocol scheme: %s (supported: ws, wss, mqtt, mqtts)", parsedURL.Scheme)
	}

	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("rituals-hass-%s", clientID))
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(config.MQTTTimeout)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(BridgeAvailabilityTopic(clientID), PayloadOffline, 1, true)

	if parsedURL.User != nil {
		username := parsedURL.User.Username()
		password, _ := parsedURL.User.Password()
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Debug("MQTT reconnecting...")
	})

	return opts, nil
}

func newClient(clientID string, logger *logrus.Logger) *Client {
	return &Client{
		clientID:     clientID,
		logger:       logger,
		firstConnect: true,
		subs:         make(map[string]mqtt.MessageHandler),
	}
}

// onConnect runs on every (re)connect. The session is clean, so after a
// reconnect the bridge must undo its will and restore its subscriptions.
func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	first := c.firstConnect
	c.firstConnect = false
	subs := make(map[string]mqtt.MessageHandler, len(c.subs))
	for topic, h := range c.subs {
		subs[topic] = h
	}
	c.mu.Unlock()

	if first {
		c.logger.Debug("MQTT connected")
		return
	}
	c.logger.Info("MQTT reconnected")

	topic := BridgeAvailabilityTopic(c.clientID)
	if err := waitToken(client.Publish(topic, 1, true, PayloadOnline)); err != nil {
		c.logger.WithError(err).WithField("topic", topic).Error("Failed to restore bridge availability")
	}

	for topic, h := range subs {
		if err := waitToken(client.Subscribe(topic, 1, h)); err != nil {
			c.logger.WithError(err).WithField("topic", topic).Error("Failed to resubscribe")
		}
	}
}

// waitToken waits for an operation with a timeout instead of indefinitely.
func waitToken(token mqtt.Token) error {
	if !token.WaitTimeout(config.MQTTTimeout) {
		return fmt.Errorf("timed out after %s", config.MQTTTimeout)
	}
	return token.Error()
}

// Publish publishes a message to the specified topic
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	if err := waitToken(c.client.Publish(topic, 1, retained, payload)); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	c.logger.WithFields(logrus.Fields{
		"topic":    topic,
		"size":     len(payload),
		"retained": retained,
	}).Debug("Published MQTT message")

	return nil
}

// Subscribe subscribes to a topic with a message handler. The subscription
// is restored after a reconnect.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	h := func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	}

	c.mu.Lock()
	c.subs[topic] = h
	c.mu.Unlock()

	if err := waitToken(c.client.Subscribe(topic, 1, h)); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	c.logger.WithField("topic", topic).Debug("Subscribed to MQTT topic")
	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnect marks the bridge offline and disconnects.
func (c *Client) Disconnect(quiesce uint) {
	if err := c.PublishAvailability(false); err != nil {
		c.logger.WithError(err).Debug("Failed to publish offline availability")
	}
	c.client.Disconnect(quiesce)
	c.logger.Debug("MQTT client disconnected")
}

// PublishAvailability publishes the bridge availability status
func (c *Client) PublishAvailability(online bool) error {
	status := PayloadOffline
	if online {
		status = PayloadOnline
	}
	return c.Publish(BridgeAvailabilityTopic(c.clientID), []byte(status), true)
}

// cleanURL removes credentials from URL for logging
func cleanURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}

	return parsed.String()
}
