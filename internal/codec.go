package internal

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DeviceIdentity  = "vibrator_device"
	MissileIdentity = "stinger_missile"
	MonitorIdentity = "web_monitor"
	ClearCommand    = "CLS"
	setBitPrefix    = "SET_"
	setAllPrefix    = "BIT_"
)

// Literals the relay sends on its own behalf.
const (
	DeviceConnected    = "vibrator_connected"
	DeviceDisconnected = "vibrator_disconnected"
	MonitorConnected   = "web_monitor_connected"
)

type Kind int

const (
	KindUnrecognized Kind = iota
	KindIdentifyDevice
	KindIdentifyMonitor
	KindSetBit
	KindSetAll
	KindClear
	KindStatusReport
)

var kindNames = map[Kind]string{
	KindUnrecognized:    "unrecognized",
	KindIdentifyDevice:  "identify_device",
	KindIdentifyMonitor: "identify_monitor",
	KindSetBit:          "set_bit",
	KindSetAll:          "set_all",
	KindClear:           "clear",
	KindStatusReport:    "status_report",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Directional reports whether k is routed by the sender's slot rather than
// by its content.
func (k Kind) Directional() bool {
	return k == KindSetBit || k == KindSetAll || k == KindClear
}

// BitState is the 16 bit status mask exchanged between device and monitors.
type BitState uint16

func (b BitState) ActiveBits() []int {
	var bits []int
	for i := 0; i < 16; i++ {
		if b&(1<<i) != 0 {
			bits = append(bits, i)
		}
	}

	return bits
}

func (b BitState) String() string {
	bits := b.ActiveBits()
	if len(bits) == 0 {
		return "all bits off"
	}

	names := make([]string, len(bits))
	for i, bit := range bits {
		names[i] = fmt.Sprintf("BIT%d", bit)
	}

	return strings.Join(names, ", ")
}

// Command is a decoded wire message. Position and Value carry the raw tokens
// of SET_ and BIT_ commands; the device validates them, not the relay.
type Command struct {
	Kind     Kind
	Raw      string
	Position string
	Value    string
	Status   BitState
}

func (c Command) String() string {
	return c.Raw
}

// Decode classifies a text frame. It never fails: anything it cannot place
// comes back as KindUnrecognized.
func Decode(raw string) Command {
	cmd := Command{Kind: KindUnrecognized, Raw: raw}

	switch {
	case raw == DeviceIdentity || raw == MissileIdentity:
		cmd.Kind = KindIdentifyDevice
	case strings.Contains(raw, MonitorIdentity):
		cmd.Kind = KindIdentifyMonitor
	case strings.HasPrefix(raw, setBitPrefix):
		cmd.Kind = KindSetBit
		pos, val, _ := strings.Cut(strings.TrimPrefix(raw, setBitPrefix), "_")
		cmd.Position = pos
		cmd.Value = val
	case strings.HasPrefix(raw, setAllPrefix):
		cmd.Kind = KindSetAll
		cmd.Value = strings.TrimPrefix(raw, setAllPrefix)
	case raw == ClearCommand:
		cmd.Kind = KindClear
	case isDigits(raw):
		// ParseUint fails on anything past 16 bits, which drops the report
		v, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			break
		}
		cmd.Kind = KindStatusReport
		cmd.Status = BitState(v)
	}

	return cmd
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
