package config

import "time"

// Central place for all application-wide timing constants and other defaults.
// Changing a value here immediately affects all components that import
// github.com/jkaberg/rituals-hass/internal/config.

const (
	// Polling / transmission intervals
	DefaultUpdateInterval = 120 * time.Second // Refresh each diffuser from the Rituals cloud
	MQTTTransmitInterval  = 10 * time.Second  // Minimum gap between MQTT state passes
	SchedulerTick         = 1 * time.Second

	// Operation time-outs (to avoid blocking goroutines)
	RitualsTimeout = 15 * time.Second // Rituals API call
	MQTTTimeout    = 5 * time.Second  // MQTT publish / subscribe

	// Lower bound for UpdateInterval; the cloud API rate-limits aggressive clients.
	MinUpdateInterval = 30 * time.Second
)
