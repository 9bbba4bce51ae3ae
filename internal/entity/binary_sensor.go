package entity

import (
	"fmt"

	"github.com/jkaberg/rituals-hass/internal/rituals"
)

// BinarySensorDeviceClass tells Home Assistant how to render a binary sensor.
type BinarySensorDeviceClass string

const BinarySensorDeviceClassBatteryCharging BinarySensorDeviceClass = "battery_charging"

// BinarySensorDescription describes one kind of binary sensor. IsOnFn and
// HasFn must be pure functions of the snapshot.
type BinarySensorDescription struct {
	Key            string
	Name           string
	DeviceClass    BinarySensorDeviceClass
	EntityCategory EntityCategory

	// IsOnFn computes the sensor state.
	IsOnFn func(*rituals.Diffuser) bool
	// HasFn decides at setup whether the diffuser gets this sensor at all.
	HasFn func(*rituals.Diffuser) bool
}

// BinarySensorDescriptions is the fixed, ordered registry of binary sensors.
// To add a sensor append a description here; nothing else needs editing.
var BinarySensorDescriptions = []BinarySensorDescription{
	{
		Key:            "charging",
		Name:           "Battery Charging",
		DeviceClass:    BinarySensorDeviceClassBatteryCharging,
		EntityCategory: EntityCategoryDiagnostic,
		IsOnFn:         func(d *rituals.Diffuser) bool { return d.Charging },
		HasFn:          func(d *rituals.Diffuser) bool { return d.HasBattery },
	},
}

// AddEntitiesFunc receives the entities created by a setup call.
type AddEntitiesFunc func(entities []*BinarySensor)

// SetupBinarySensors creates one BinarySensor per (coordinator, description)
// pair whose HasFn holds for the coordinator's current snapshot, and hands
// them to add in a single call. Coordinators are visited in map order,
// descriptions in registry order.
//
// HasFn is evaluated only here. A diffuser that later loses a capability
// keeps its entity until the next setup.
func SetupBinarySensors[C DiffuserSource](coordinators map[string]C, add AddEntitiesFunc) {
	add(setupBinarySensors(coordinators, BinarySensorDescriptions))
}

func setupBinarySensors[C DiffuserSource](coordinators map[string]C, descriptions []BinarySensorDescription) []*BinarySensor {
	var entities []*BinarySensor
	for _, c := range coordinators {
		for i := range descriptions {
			desc := &descriptions[i]
			if desc.HasFn(c.Diffuser()) {
				entities = append(entities, NewBinarySensor(c, desc))
			}
		}
	}
	return entities
}

// BinarySensor is a live view over a coordinator's snapshot.
type BinarySensor struct {
	diffuserEntity
	description *BinarySensorDescription

	hublot   string
	uniqueID string
	name     string
}

// NewBinarySensor builds the entity. Identity and display name are fixed from
// the snapshot current at construction time.
func NewBinarySensor(coordinator DiffuserSource, description *BinarySensorDescription) *BinarySensor {
	d := coordinator.Diffuser()
	return &BinarySensor{
		diffuserEntity: diffuserEntity{coordinator: coordinator},
		description:    description,
		hublot:         d.Hublot,
		uniqueID:       fmt.Sprintf("%s-%s", d.Hublot, description.Key),
		name:           fmt.Sprintf("%s %s", d.Name, description.Name),
	}
}

// UniqueID is "<hublot>-<key>".
func (s *BinarySensor) UniqueID() string { return s.uniqueID }

// Name is "<diffuser name> <description name>".
func (s *BinarySensor) Name() string { return s.name }

// Key returns the description key.
func (s *BinarySensor) Key() string { return s.description.Key }

func (s *BinarySensor) DeviceClass() BinarySensorDeviceClass { return s.description.DeviceClass }

func (s *BinarySensor) EntityCategory() EntityCategory { return s.description.EntityCategory }

// IsOn evaluates the description against the coordinator's current snapshot.
func (s *BinarySensor) IsOn() bool {
	return s.description.IsOnFn(s.coordinator.Diffuser())
}

// State returns the Home Assistant payload for IsOn.
func (s *BinarySensor) State() string {
	if s.IsOn() {
		return StateOn
	}
	return StateOff
}

// Hublot identifies the diffuser this entity belongs to.
func (s *BinarySensor) Hublot() string { return s.hublot }
