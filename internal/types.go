package internal

import (
	"errors"
	"time"
)

type Role int

const (
	RoleUnassigned Role = iota
	RoleDevice
	RoleMonitor
)

func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "device"
	case RoleMonitor:
		return "monitor"
	default:
		return "unassigned"
	}
}

var (
	ErrClosed    = errors.New("connection closed")
	ErrQueueFull = errors.New("send queue full")
)

// Conn is what the relay needs from a transport connection. Send must not
// block; it either queues the payload or returns a send error.
type Conn interface {
	ID() string
	Alive() bool
	Send(payload string) error
}

type EventType string

const (
	EventTypeJoin               EventType = "join"
	EventTypeRole               EventType = "role"
	EventTypeDeviceConnected    EventType = "device_connected"
	EventTypeDeviceDisconnected EventType = "device_disconnected"
	EventTypeStatus             EventType = "status"
)

type Event struct {
	Type     EventType `json:"type"`
	ID       string    `json:"id"`
	Instance string    `json:"instance,omitempty"`
	Role     string    `json:"role,omitempty"`
	Payload  string    `json:"payload,omitempty"`
	Time     time.Time `json:"time"`
}

type Snapshot struct {
	DeviceConnected bool    `json:"deviceConnected"`
	WebClientsCount int     `json:"webClientsCount"`
	ServerUptime    float64 `json:"serverUptime"`
	Timestamp       string  `json:"timestamp"`
}
