package transmission

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jkaberg/rituals-hass/internal/domain"
	"github.com/jkaberg/rituals-hass/internal/entity"
	"github.com/jkaberg/rituals-hass/internal/mqtt"
	"github.com/sirupsen/logrus"
)

const binarySensorComponent = "binary_sensor"

// Publisher is the subset of *mqtt.Client the transmitter needs.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	IsConnected() bool
}

// Subscriber is the subset of *mqtt.Client used to follow Home Assistant's
// status topic.
type Subscriber interface {
	Subscribe(topic string, handler mqtt.MessageHandler) error
}

// MQTTTransmitter publishes entities to Home Assistant via MQTT discovery.
type MQTTTransmitter struct {
	client          Publisher
	discoveryPrefix string
	bridgeTopic     string
	forceInterval   time.Duration
	logger          *logrus.Logger

	mu               sync.Mutex
	entities         []*entity.BinarySensor
	publishedConfigs map[string]bool // Tracks published discovery configs
	states           *domain.StateCache
	lastForced       time.Time
}

// HADiscoveryConfig represents Home Assistant MQTT discovery configuration
type HADiscoveryConfig struct {
	Name             string           `json:"name"`
	UniqueID         string           `json:"unique_id"`
	ObjectID         string           `json:"object_id"`
	StateTopic       string           `json:"state_topic"`
	PayloadOn        string           `json:"payload_on"`
	PayloadOff       string           `json:"payload_off"`
	Availability     []HAAvailability `json:"availability"`
	AvailabilityMode string           `json:"availability_mode"`
	DeviceClass      string           `json:"device_class,omitempty"`
	EntityCategory   string           `json:"entity_category,omitempty"`
	Device           HADevice         `json:"device"`
	Origin           HAOrigin         `json:"origin"`
}

// HAAvailability is one entry of the availability list.
type HAAvailability struct {
	Topic string `json:"topic"`
}

// HADevice represents the device information for Home Assistant
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// HAOrigin names the software that created the discovery message.
type HAOrigin struct {
	Name string `json:"name"`
	SW   string `json:"sw_version,omitempty"`
}

// Version is reported in the discovery origin block.
var Version = "dev"

// NewMQTTTransmitter creates a new MQTT transmitter. bridgeTopic is the
// bridge-wide availability topic (Last Will); every entity depends on it.
func NewMQTTTransmitter(client Publisher, discoveryPrefix, bridgeTopic string, forceInterval time.Duration, logger *logrus.Logger) *MQTTTransmitter {
	return &MQTTTransmitter{
		client:           client,
		discoveryPrefix:  discoveryPrefix,
		bridgeTopic:      bridgeTopic,
		forceInterval:    forceInterval,
		logger:           logger,
		publishedConfigs: make(map[string]bool),
		states:           domain.NewStateCache(),
		lastForced:       time.Now(),
	}
}

// Register adds entities to the published set. It has the shape of
// entity.AddEntitiesFunc and is handed to the setup functions.
func (t *MQTTTransmitter) Register(entities []*entity.BinarySensor) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entities = append(t.entities, entities...)
	for _, e := range entities {
		t.logger.WithFields(logrus.Fields{
			"unique_id": e.UniqueID(),
			"name":      e.Name(),
		}).Info("Registered binary sensor")
	}
}

// Entities returns a copy of the registered entities.
func (t *MQTTTransmitter) Entities() []*entity.BinarySensor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*entity.BinarySensor(nil), t.entities...)
}

func (t *MQTTTransmitter) discoveryConfig(e *entity.BinarySensor) HADiscoveryConfig {
	info := e.DeviceInfo()
	return HADiscoveryConfig{
		Name:       e.Name(),
		UniqueID:   e.UniqueID(),
		ObjectID:   e.UniqueID(),
		StateTopic: mqtt.StateTopic(e.Hublot(), e.Key()),
		PayloadOn:  entity.StateOn,
		PayloadOff: entity.StateOff,
		Availability: []HAAvailability{
			{Topic: t.bridgeTopic},
			{Topic: mqtt.AvailabilityTopic(e.Hublot(), e.Key())},
		},
		AvailabilityMode: "all",
		DeviceClass:      string(e.DeviceClass()),
		EntityCategory:   string(e.EntityCategory()),
		Device: HADevice{
			Identifiers:  []string{"rituals_" + info.Identifier},
			Name:         info.Name,
			Model:        info.Model,
			Manufacturer: info.Manufacturer,
			SWVersion:    info.SWVersion,
		},
		Origin: HAOrigin{Name: "rituals-hass", SW: Version},
	}
}

// publishDiscovery publishes the discovery config for a single entity once.
func (t *MQTTTransmitter) publishDiscovery(e *entity.BinarySensor) error {
	if t.publishedConfigs[e.UniqueID()] {
		return nil
	}

	payload, err := json.Marshal(t.discoveryConfig(e))
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config: %w", err)
	}

	topic := mqtt.DiscoveryTopic(t.discoveryPrefix, binarySensorComponent, e.Hublot(), e.Key())
	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish %s discovery config: %w", e.Name(), err)
	}

	t.logger.WithFields(logrus.Fields{
		"unique_id": e.UniqueID(),
		"topic":     topic,
	}).Info("Published binary sensor discovery config")

	t.publishedConfigs[e.UniqueID()] = true
	return nil
}

func (t *MQTTTransmitter) publishState(e *entity.BinarySensor, s domain.EntityState) error {
	avail := mqtt.PayloadOffline
	if s.Available {
		avail = mqtt.PayloadOnline
	}

	availTopic := mqtt.AvailabilityTopic(e.Hublot(), e.Key())
	if err := t.client.Publish(availTopic, []byte(avail), true); err != nil {
		return fmt.Errorf("failed to publish availability to %s: %w", availTopic, err)
	}

	stateTopic := mqtt.StateTopic(e.Hublot(), e.Key())
	if err := t.client.Publish(stateTopic, []byte(s.State), true); err != nil {
		return fmt.Errorf("failed to publish state to %s: %w", stateTopic, err)
	}

	t.logger.WithFields(logrus.Fields{
		"unique_id": s.UniqueID,
		"state":     s.State,
		"available": s.Available,
	}).Debug("Published entity state")
	return nil
}

// Transmit publishes discovery for new entities and state for entities whose
// state or availability changed since the last successful publish. When a
// force interval is configured every state is republished once it elapses.
func (t *MQTTTransmitter) Transmit() error {
	if !t.client.IsConnected() {
		return mqtt.ErrNotConnected
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.forceInterval > 0 && time.Since(t.lastForced) >= t.forceInterval {
		t.states.Forget()
		t.lastForced = time.Now()
		t.logger.Debug("Forcing full state republish")
	}

	var failed int
	for _, e := range t.entities {
		if err := t.publishDiscovery(e); err != nil {
			t.logger.WithError(err).WithField("unique_id", e.UniqueID()).Error("Failed to publish discovery config")
			failed++
			continue
		}

		s := domain.EntityState{UniqueID: e.UniqueID(), State: e.State(), Available: e.Available()}
		if !t.states.Changed(s) {
			continue
		}
		if err := t.publishState(e, s); err != nil {
			t.logger.WithError(err).WithField("unique_id", e.UniqueID()).Warn("Failed to publish entity state")
			failed++
			continue
		}
		t.states.Store(s)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d entities failed to publish", failed, len(t.entities))
	}
	return nil
}

// WatchHAStatus subscribes to Home Assistant's status topic. When Home
// Assistant comes online it has lost any discovery configs the broker did not
// retain, so everything is sent again.
func (t *MQTTTransmitter) WatchHAStatus(s Subscriber) error {
	return s.Subscribe(mqtt.HAStatusTopic(t.discoveryPrefix), t.handleHAStatus)
}

func (t *MQTTTransmitter) handleHAStatus(topic string, payload []byte) {
	status := string(payload)
	t.logger.WithFields(logrus.Fields{"topic": topic, "status": status}).Debug("Home Assistant status")
	if status != mqtt.PayloadOnline {
		return
	}

	t.mu.Lock()
	t.publishedConfigs = make(map[string]bool)
	t.states.Forget()
	t.mu.Unlock()
	t.logger.Info("Home Assistant online; republishing discovery and state")

	// Message handlers must not block the paho router.
	go func() {
		if err := t.Transmit(); err != nil {
			t.logger.WithError(err).Warn("Republish after Home Assistant restart failed")
		}
	}()
}

// IsConnected checks if the MQTT client is connected
func (t *MQTTTransmitter) IsConnected() bool {
	return t.client.IsConnected()
}
