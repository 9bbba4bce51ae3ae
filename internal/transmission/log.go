package transmission

import (
	"sync"

	"github.com/jkaberg/rituals-hass/internal/domain"
	"github.com/jkaberg/rituals-hass/internal/entity"
	"github.com/sirupsen/logrus"
)

// LogTransmitter writes state changes to the log. It is used when no MQTT
// broker is configured.
type LogTransmitter struct {
	logger *logrus.Logger

	mu       sync.Mutex
	entities []*entity.BinarySensor
	states   *domain.StateCache
}

// NewLogTransmitter creates a transmitter that only logs.
func NewLogTransmitter(logger *logrus.Logger) *LogTransmitter {
	return &LogTransmitter{logger: logger, states: domain.NewStateCache()}
}

// Register adds entities; see MQTTTransmitter.Register.
func (t *LogTransmitter) Register(entities []*entity.BinarySensor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entities = append(t.entities, entities...)
}

// Transmit logs every entity whose state changed.
func (t *LogTransmitter) Transmit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entities {
		s := domain.EntityState{UniqueID: e.UniqueID(), State: e.State(), Available: e.Available()}
		if !t.states.Changed(s) {
			continue
		}
		t.states.Store(s)
		t.logger.WithFields(logrus.Fields{
			"unique_id": s.UniqueID,
			"name":      e.Name(),
			"state":     s.State,
			"available": s.Available,
		}).Info("Entity state")
	}
	return nil
}

// IsConnected is always true; there is nothing to connect to.
func (t *LogTransmitter) IsConnected() bool { return true }

var _ Transmitter = (*LogTransmitter)(nil)
