// Package bus defines the message schema shared by all lane controllers
// and the publish/subscribe adapters that carry it.
//
// Delivery is at-most-once and unordered: the broker may drop or
// duplicate any message, and the protocol layers above are written to
// tolerate both. Payloads are JSON, decoded exactly once at the bus
// boundary by Decode; everything above works with the typed variants.
package bus

import (
	"context"
	"time"
)

// Subjects used by the fleet. The names are fixed across deployments;
// WildcardTopic matches all of them for observers.
const (
	TopicVehicleCount    = "traffic.vehicle_count"
	TopicGreenStatus     = "traffic.green_status"
	TopicGreenRequest    = "traffic.green_request"
	TopicGreenPermission = "traffic.green_permission"
	TopicDuration        = "traffic.duration"

	WildcardTopic = "traffic.>"
)

// Green status values.
const (
	StatusGreen = "green"
	StatusRed   = "red"
)

// PermissionGranted is the only permission value on the wire; a peer
// that will not grant simply stays silent.
const PermissionGranted = "granted"

// TimestampLayout is the wall-clock format carried in message payloads.
// Timestamps are observability metadata only: nodes share no clock, so
// nothing compares them.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp formats t for a message payload.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Message is one decoded bus message. Exactly one concrete variant
// exists per topic.
type Message interface {
	Topic() string
}

// VehicleCount is an upstream sensor observation for one road section.
// Feeds publish either a pre-summed total or per-class counts.
type VehicleCount struct {
	RoadSectionID int            `json:"road_section_id"`
	TotalVehicles *int           `json:"total_vehicles,omitempty"`
	VehicleCounts map[string]int `json:"vehicle_counts,omitempty"`
	Timestamp     string         `json:"timestamp,omitempty"`
}

func (VehicleCount) Topic() string { return TopicVehicleCount }

// Total returns the observed vehicle count: the explicit total when
// present, otherwise the sum of the per-class counts. Negative inputs
// clamp to zero rather than being rejected.
func (m VehicleCount) Total() float64 {
	var total int
	if m.TotalVehicles != nil {
		total = *m.TotalVehicles
	} else {
		for _, n := range m.VehicleCounts {
			total += n
		}
	}
	if total < 0 {
		return 0
	}
	return float64(total)
}

// GreenStatus announces that a section has turned green or back to red.
// Every node overwrites its local holder belief from these.
type GreenStatus struct {
	Section   int    `json:"section"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (GreenStatus) Topic() string { return TopicGreenStatus }

// GreenRequest asks the fleet for permission to turn green. RequestID
// identifies the arbitration round so a grant for an abandoned request
// can be told apart from a grant for the current one.
type GreenRequest struct {
	Section   int    `json:"section"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (GreenRequest) Topic() string { return TopicGreenRequest }

// GreenPermission grants a pending request. Any number of peers may
// grant independently; the requester accepts the first and ignores the
// rest.
type GreenPermission struct {
	Section     int    `json:"section"`
	Permission  string `json:"permission"`
	FromSection int    `json:"from_section"`
	RequestID   string `json:"request_id,omitempty"`
}

func (GreenPermission) Topic() string { return TopicGreenPermission }

// DurationReport is published after a completed green cycle for
// out-of-scope reporting consumers.
type DurationReport struct {
	RoadSectionID int     `json:"road_section_id"`
	TotalVehicles int     `json:"total_vehicles"`
	Duration      float64 `json:"duration"`
	Timestamp     string  `json:"timestamp,omitempty"`
}

func (DurationReport) Topic() string { return TopicDuration }

// Publisher is the interface for emitting bus messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg any) error
	Close() error
}

// Delivery is one raw message as received from the broker, before
// decoding. Subscriptions on a wildcard need the concrete topic to
// dispatch on.
type Delivery struct {
	Topic   string
	Payload []byte
}

// Subscriber receives raw message payloads from the bus.
type Subscriber interface {
	// Subscribe delivers raw payloads on the returned channel. Call the
	// returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Delivery, func(), error)
	Close() error
}
