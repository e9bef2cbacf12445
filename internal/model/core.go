package model

import "time"

// DeviceStatus is the presence announcement a device publishes on the status
// topic, both on connect and as its MQTT last-will.
type DeviceStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "online" or "offline"
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// DataPoint is one decoded measurement from the data topic. It is transient:
// it only lives long enough to be folded into a channel buffer.
type DataPoint struct {
	DeviceID  string
	SessionID string
	Timestamp time.Time
	Channel   string
	Value     any
}

// Command is an outbound instruction to one device or the whole fleet.
type Command struct {
	Command  string `json:"command"` // "start", "stop" or "get_status"
	TestName string `json:"test_name,omitempty"`
}

const (
	CommandStart     = "start"
	CommandStop      = "stop"
	CommandGetStatus = "get_status"
)
