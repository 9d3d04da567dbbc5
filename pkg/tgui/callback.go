package tgui

import "strings"

// Data formats inline callback data as "feature:action:payload".
// Payload is kept as-is (no escaping).
func Data(feature, action, payload string) string {
	feature = strings.TrimSpace(feature)
	action = strings.TrimSpace(action)
	if payload == "" {
		return feature + ":" + action
	}
	return feature + ":" + action + ":" + payload
}

// SplitData is the inverse of Data; missing parts come back empty.
func SplitData(data string) (feature, action, payload string) {
	parts := strings.SplitN(data, ":", 3)
	switch len(parts) {
	case 3:
		payload = parts[2]
		fallthrough
	case 2:
		action = parts[1]
		fallthrough
	case 1:
		feature = parts[0]
	}
	return feature, action, payload
}
