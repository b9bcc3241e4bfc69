package bus

import (
	"encoding/json"
	"fmt"
)

// Decode parses a raw payload into the typed variant for its topic.
// Unknown topics and malformed payloads return an error; callers log
// and drop those without any state change.
func Decode(topic string, payload []byte) (Message, error) {
	switch topic {
	case TopicVehicleCount:
		var m VehicleCount
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", topic, err)
		}
		return m, nil
	case TopicGreenStatus:
		var m GreenStatus
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", topic, err)
		}
		if m.Status != StatusGreen && m.Status != StatusRed {
			return nil, fmt.Errorf("decoding %s: unknown status %q", topic, m.Status)
		}
		return m, nil
	case TopicGreenRequest:
		var m GreenRequest
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", topic, err)
		}
		return m, nil
	case TopicGreenPermission:
		var m GreenPermission
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", topic, err)
		}
		return m, nil
	case TopicDuration:
		var m DurationReport
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", topic, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown topic %q", topic)
	}
}
