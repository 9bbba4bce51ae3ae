// Package entity exposes diffuser state as Home Assistant entities. Entities
// hold no state of their own: every read goes through the diffuser's
// coordinator.
package entity

import "github.com/jkaberg/rituals-hass/internal/rituals"

// DiffuserSource is the read side of a coordinator.
type DiffuserSource interface {
	// Diffuser returns the latest snapshot.
	Diffuser() *rituals.Diffuser
	// LastUpdateSuccess reports whether the latest refresh succeeded.
	LastUpdateSuccess() bool
}

// EntityCategory is the Home Assistant entity category. Only diagnostic
// entities exist so far.
type EntityCategory string

const EntityCategoryDiagnostic EntityCategory = "diagnostic"

// Home Assistant binary sensor payloads.
const (
	StateOn  = "ON"
	StateOff = "OFF"
)

const (
	manufacturer = "Rituals"
	model        = "The Perfume Genie"
)

// DeviceInfo groups all entities of one diffuser under a single device.
type DeviceInfo struct {
	Identifier   string
	Name         string
	Manufacturer string
	Model        string
	SWVersion    string
}

// diffuserEntity carries what every diffuser entity shares.
type diffuserEntity struct {
	coordinator DiffuserSource
}

// Available mirrors the coordinator: an entity is unavailable while its
// diffuser cannot be refreshed.
func (e diffuserEntity) Available() bool {
	return e.coordinator.LastUpdateSuccess()
}

// DeviceInfo is read from the current snapshot so firmware upgrades show up
// without a restart.
func (e diffuserEntity) DeviceInfo() DeviceInfo {
	d := e.coordinator.Diffuser()
	return DeviceInfo{
		Identifier:   d.Hublot,
		Name:         d.Name,
		Manufacturer: manufacturer,
		Model:        model,
		SWVersion:    d.FirmwareVersion,
	}
}
