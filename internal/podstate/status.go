package podstate

import (
	"fmt"
	"strings"

	"budwatch/internal/ble"
	"budwatch/internal/util"
)

const (
	// ModelUnknown is the model of a status nothing has been learned about.
	ModelUnknown = "Unknown"
	// ModelVendorBeacon is the model reported for decoded vendor beacons.
	ModelVendorBeacon = "Apple AirPods"
	// ModelSimulated is the model of the canned SimulateConnection status.
	ModelSimulated = "AirPods Pro (Sim)"
)

// State is the tracker's connection state.
type State int

const (
	StateIdle State = iota
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateTracking:
		return "Tracking"
	default:
		return "Idle"
	}
}

// DeviceStatus is the normalized status of the tracked earbuds.
// It is a value type: snapshots are copies and may be shared freely.
type DeviceStatus struct {
	Connected bool

	// Battery levels (0-100), ble.UnknownBattery if not reported
	LeftBattery  int
	RightBattery int
	CaseBattery  int

	// Charging status. CaseCharging is never set by the beacon decoder.
	LeftCharging  bool
	RightCharging bool
	CaseCharging  bool

	Model string
}

// NewDeviceStatus returns a status with every field unknown.
func NewDeviceStatus() DeviceStatus {
	return DeviceStatus{
		LeftBattery:  ble.UnknownBattery,
		RightBattery: ble.UnknownBattery,
		CaseBattery:  ble.UnknownBattery,
		Model:        ModelUnknown,
	}
}

// HasBatteryData returns true if any battery level is available
func (s DeviceStatus) HasBatteryData() bool {
	return s.LeftBattery != ble.UnknownBattery ||
		s.RightBattery != ble.UnknownBattery ||
		s.CaseBattery != ble.UnknownBattery
}

// LowestBattery returns the lowest known battery level, or
// ble.UnknownBattery if no level is known.
func (s DeviceStatus) LowestBattery() int {
	return util.LowestKnown(s.LeftBattery, s.RightBattery, s.CaseBattery)
}

// State returns StateTracking while the earbuds are considered connected.
func (s DeviceStatus) State() State {
	if s.Connected {
		return StateTracking
	}
	return StateIdle
}

func (s DeviceStatus) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", s.Model, s.State())
	fmt.Fprintf(&b, " L=%s R=%s C=%s",
		levelString(s.LeftBattery, s.LeftCharging),
		levelString(s.RightBattery, s.RightCharging),
		levelString(s.CaseBattery, s.CaseCharging))
	return b.String()
}

func levelString(level int, charging bool) string {
	if level == ble.UnknownBattery {
		return "?"
	}
	if charging {
		return fmt.Sprintf("%d%%+", level)
	}
	return fmt.Sprintf("%d%%", level)
}
