package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefixDevices is the base for all device topics.
const TopicPrefixDevices = "devices"

// Wildcards and separator of the MQTT topic grammar.
const (
	levelSeparator   = "/"
	singleLevelWild  = "+"
	multiLevelWild   = "#"
	wildcardCharList = singleLevelWild + multiLevelWild
)

// Topics provides builders for device topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topic := mqtt.Topics{}.DeviceStatus("sensor1")
//	// Returns: "devices/sensor1/status"
type Topics struct{}

// DeviceStatus returns the status topic of one device.
//
// Example: devices/sensor1/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevices, deviceID)
}

// AllDeviceStatuses returns the filter matching every device status topic.
//
// Pattern: devices/+/status
func (Topics) AllDeviceStatuses() string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevices, singleLevelWild)
}

// ValidateFilter checks a subscription filter against the MQTT 3.1.1 rules:
// it must be non-empty, "+" must occupy a whole level and "#" must be the
// whole last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty filter", ErrInvalidTopic)
	}

	levels := strings.Split(filter, levelSeparator)
	for i, level := range levels {
		if !strings.ContainsAny(level, wildcardCharList) {
			continue
		}
		switch {
		case level == singleLevelWild:
		case level == multiLevelWild && i == len(levels)-1:
		default:
			return fmt.Errorf("%w: misplaced wildcard in level %d of %q", ErrInvalidTopic, i, filter)
		}
	}

	return nil
}

// Match reports whether topic matches filter.
//
// "+" matches exactly one level and "#" matches the parent level and any
// number of child levels. Topics beginning with "$" are not matched by a
// filter whose first level is a wildcard.
func Match(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") &&
		(strings.HasPrefix(filter, singleLevelWild) || strings.HasPrefix(filter, multiLevelWild)) {
		return false
	}

	f := strings.Split(filter, levelSeparator)
	t := strings.Split(topic, levelSeparator)

	for i, level := range f {
		if level == multiLevelWild {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != singleLevelWild && level != t[i] {
			return false
		}
	}

	return len(f) == len(t)
}
