package mqtt

import "fmt"

// Topic prefixes for the Habitat MQTT hierarchy.
//
// All topics live under a single root: habitat/{category}/...
const (
	// TopicPrefix is the root of all Habitat topics.
	TopicPrefix = "habitat"

	// TopicPrefixEvent is the base for property state-change events.
	TopicPrefixEvent = "habitat/event"

	// TopicPrefixAdapter is the base for adapter topics.
	TopicPrefixAdapter = "habitat/adapter"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "habitat/system"
)

// Topics provides builders for Habitat MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.Event("living_room", "lr-light", "illumination")
//	// Returns: "habitat/event/living_room/lr-light/illumination"
type Topics struct{}

// Event returns the topic for a property state-change event.
//
// Example: habitat/event/living_room/lr-light/illumination
func (Topics) Event(spaceID, sourceID, property string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefixEvent, spaceID, sourceID, property)
}

// AdapterLog returns the topic for diagnostic log lines from an adapter.
//
// Example: habitat/adapter/hue-1/log
func (Topics) AdapterLog(adapterID string) string {
	return fmt.Sprintf("%s/%s/log", TopicPrefixAdapter, adapterID)
}

// AdapterStatus returns the topic for adapter lifecycle status.
//
// Example: habitat/adapter/hue-1/status
func (Topics) AdapterStatus(adapterID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixAdapter, adapterID)
}

// AdapterReachability returns the topic for adapter reachability changes.
//
// Example: habitat/adapter/hue-1/reachability
func (Topics) AdapterReachability(adapterID string) string {
	return fmt.Sprintf("%s/%s/reachability", TopicPrefixAdapter, adapterID)
}

// SystemStatus returns the hub status topic.
//
// Example: habitat/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: habitat/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllEvents returns a pattern matching every state-change event.
//
// Pattern: habitat/event/#
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/#", TopicPrefixEvent)
}

// SpaceEvents returns a pattern matching all events within one space.
//
// Pattern: habitat/event/living_room/+/+
func (Topics) SpaceEvents(spaceID string) string {
	return fmt.Sprintf("%s/%s/+/+", TopicPrefixEvent, spaceID)
}

// AllAdapterLogs returns a pattern matching log lines from every adapter.
//
// Pattern: habitat/adapter/+/log
func (Topics) AllAdapterLogs() string {
	return fmt.Sprintf("%s/+/log", TopicPrefixAdapter)
}

// AllAdapterStatus returns a pattern matching status from every adapter.
//
// Pattern: habitat/adapter/+/status
func (Topics) AllAdapterStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixAdapter)
}

// AllTopics returns a pattern matching all Habitat topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: habitat/#
func (Topics) AllTopics() string {
	return "habitat/#"
}
