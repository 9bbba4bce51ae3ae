package rituals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHub(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		hasBattery  bool
		charging    bool
		percentage  *int
		firmware    string
		isOn        bool
		isOnline    bool
		perfumeName string
	}{
		{
			name:        "charging",
			body:        hubA1,
			hasBattery:  true,
			charging:    true,
			percentage:  intPtr(100),
			firmware:    "4.0",
			isOn:        true,
			isOnline:    true,
			perfumeName: "The Ritual of Sakura",
		},
		{
			name:        "no battery",
			body:        hubB2,
			perfumeName: "No cartridge",
		},
		{
			name:       "battery low",
			body:       `{"hub":{"hash":"h","hublot":"C3","sensors":{"battc":{"id":23},"versionc":{"title":"3.1"}}}}`,
			hasBattery: true,
			percentage: intPtr(10),
			firmware:   "3.1",
		},
		{
			name:       "unknown battery id",
			body:       `{"hub":{"hash":"h","hublot":"D4","sensors":{"battc":{"id":99}}}}`,
			hasBattery: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseHub([]byte(tt.body))
			require.NoError(t, err)

			assert.Equal(t, tt.hasBattery, d.HasBattery)
			assert.Equal(t, tt.charging, d.Charging)
			assert.Equal(t, tt.percentage, d.BatteryPercentage)
			assert.Equal(t, tt.firmware, d.FirmwareVersion)
			assert.Equal(t, tt.isOn, d.IsOn)
			assert.Equal(t, tt.isOnline, d.IsOnline)
			assert.Equal(t, tt.perfumeName, d.PerfumeName)
		})
	}
}

func TestParseHub_Errors(t *testing.T) {
	_, err := ParseHub([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseHub([]byte(`{"hub":{"hash":"x"}}`))
	assert.Error(t, err, "hub without hublot must be rejected")
}

func intPtr(v int) *int { return &v }
