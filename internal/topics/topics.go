// Package topics parses the gateway MQTT topic layout
// "<family>/<deviceId>/<category>" shared by the broker adapter and the
// frame decoders.
//
// The topic is the sole authority for device identity: deviceId is
// always segment 2, and the category segment is the message-kind hint
// family-B frames are classified by.
package topics

import "strings"

// segmentCount is the number of "/"-separated segments in a well-formed
// gateway topic: family/deviceId/category.
const segmentCount = 3

// Segments splits a topic into its "/"-separated parts.
func Segments(topic string) []string {
	return strings.Split(topic, "/")
}

// DeviceID extracts the device identifier from a gateway topic (segment
// 2, index 1). Returns "" if the topic has fewer than two non-empty
// segments.
func DeviceID(topic string) string {
	parts := Segments(topic)
	if len(parts) < 2 || parts[1] == "" {
		return ""
	}
	return parts[1]
}

// Category extracts the category (message-kind hint) segment from a
// gateway topic (segment 3, index 2). Returns "" if absent.
func Category(topic string) string {
	parts := Segments(topic)
	if len(parts) < segmentCount {
		return ""
	}
	return parts[2]
}

// Family extracts the leading family token ("FamilyB", "FamilyT", ...)
// from a topic. This is the key the decoder registry matches on.
func Family(topic string) string {
	parts := Segments(topic)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}
