package rituals

import (
	"encoding/json"
	"fmt"
	"time"
)

// Battery sensor IDs reported under hub.sensors.battc.id.
const (
	batteryFull     = 19
	batteryHigh     = 20
	batteryCharging = 21
	batteryMedium   = 22
	batteryLow      = 23
)

var batteryPercentages = map[int]int{
	batteryFull:     100,
	batteryHigh:     70,
	batteryCharging: 100,
	batteryMedium:   50,
	batteryLow:      10,
}

// Diffuser is a point-in-time snapshot of a single Perfume Genie. Values are
// treated as immutable once returned; a refresh produces a new Diffuser.
type Diffuser struct {
	Hash              string
	Hublot            string
	Name              string
	FirmwareVersion   string
	PerfumeName       string
	IsOnline          bool
	IsOn              bool
	HasBattery        bool
	Charging          bool
	BatteryPercentage *int
	FetchedAt         time.Time
}

// hubResponse mirrors the subset of the hub JSON we care about.
type hubResponse struct {
	Hub hubData `json:"hub"`
}

type hubData struct {
	Hash       string        `json:"hash"`
	Hublot     string        `json:"hublot"`
	Status     int           `json:"status"`
	Attributes hubAttributes `json:"attributes"`
	Sensors    hubSensors    `json:"sensors"`
}

type hubAttributes struct {
	RoomName string `json:"roomnamec"`
	Fan      string `json:"fanc"`
}

type hubSensors struct {
	Battery *sensorValue    `json:"battc,omitempty"`
	Perfume *sensorValue    `json:"rfidc,omitempty"`
	Version json.RawMessage `json:"versionc,omitempty"`
}

type sensorValue struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// ParseHub decodes a single hub document (as returned by the hub endpoint)
// into a Diffuser snapshot.
func ParseHub(body []byte) (*Diffuser, error) {
	var resp hubResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hub response: %w", err)
	}
	return newDiffuser(resp.Hub)
}

// ParseHubs decodes the account hub listing.
func ParseHubs(body []byte) ([]*Diffuser, error) {
	var resp []hubResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hub listing: %w", err)
	}

	diffusers := make([]*Diffuser, 0, len(resp))
	for _, r := range resp {
		d, err := newDiffuser(r.Hub)
		if err != nil {
			return nil, err
		}
		diffusers = append(diffusers, d)
	}
	return diffusers, nil
}

func newDiffuser(h hubData) (*Diffuser, error) {
	if h.Hublot == "" {
		return nil, fmt.Errorf("hub %q has no hublot", h.Hash)
	}

	d := &Diffuser{
		Hash:            h.Hash,
		Hublot:          h.Hublot,
		Name:            h.Attributes.RoomName,
		FirmwareVersion: parseVersion(h.Sensors.Version),
		IsOnline:        h.Status == 1,
		IsOn:            h.Attributes.Fan == "1",
		FetchedAt:       time.Now(),
	}

	if h.Sensors.Perfume != nil {
		d.PerfumeName = h.Sensors.Perfume.Title
	}

	if b := h.Sensors.Battery; b != nil {
		d.HasBattery = true
		d.Charging = b.ID == batteryCharging
		if pct, ok := batteryPercentages[b.ID]; ok {
			d.BatteryPercentage = &pct
		}
	}

	return d, nil
}

// versionc is a plain string on current firmware and an object on older hubs.
func parseVersion(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var v sensorValue
	if err := json.Unmarshal(raw, &v); err == nil {
		return v.Title
	}
	return ""
}
