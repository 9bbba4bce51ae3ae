package mqtt

import (
	"fmt"
	"strings"
)

// BridgeAvailabilityTopic is where the bridge itself reports online/offline.
func BridgeAvailabilityTopic(clientID string) string {
	return BuildCleanTopic(BaseTopic, "bridge", clientID, "availability")
}

// StateTopic returns the state topic for one entity of a diffuser.
func StateTopic(hublot, key string) string {
	return BuildCleanTopic(BaseTopic, hublot, key, "state")
}

// AvailabilityTopic returns the per-entity availability topic.
func AvailabilityTopic(hublot, key string) string {
	return BuildCleanTopic(BaseTopic, hublot, key, "availability")
}

// DiscoveryTopic returns the Home Assistant discovery config topic.
func DiscoveryTopic(prefix, component, hublot, key string) string {
	return fmt.Sprintf("%s/%s/%s/config", prefix, component, BuildCleanTopic("rituals_"+hublot, key))
}

// HAStatusTopic is where Home Assistant announces its own online/offline
// status (birth and last will).
func HAStatusTopic(prefix string) string {
	return prefix + "/status"
}

// BuildCleanTopic ensures topic follows MQTT standards
func BuildCleanTopic(parts ...string) string {
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		clean := strings.ReplaceAll(part, " ", "_")
		clean = strings.ReplaceAll(clean, "+", "plus")
		clean = strings.ReplaceAll(clean, "#", "hash")
		clean = strings.ToLower(clean)
		cleanParts = append(cleanParts, clean)
	}
	return strings.Join(cleanParts, "/")
}
