package ble

import (
	"fmt"
	"strings"
)

func (k Kind) String() string {
	switch k {
	case KindVendorBeacon:
		return "VendorBeacon"
	case KindNameHeuristic:
		return "NameHeuristic"
	default:
		return "NoMatch"
	}
}

// String returns a human-readable representation of the Reading
func (r Reading) String() string {
	var b strings.Builder
	b.WriteString("Earbuds Battery (BLE - Approximate, ~10%):\n")
	b.WriteString("  Left:  " + formatLevel(r.Left, r.LeftCharging) + "\n")
	b.WriteString("  Right: " + formatLevel(r.Right, r.RightCharging) + "\n")
	b.WriteString("  Case:  " + formatLevel(r.Case, false))
	return b.String()
}

// String returns a one-line summary of the advertisement
func (a RawAdvertisement) String() string {
	name := a.Name
	if name == "" {
		name = "<no name>"
	}
	result := fmt.Sprintf("%s %q RSSI=%d", a.Address, name, a.RSSI)
	if payload, ok := a.VendorPayload(); ok {
		result += fmt.Sprintf(" apple=% x", payload)
	}
	return result
}

func formatLevel(level int, charging bool) string {
	if level == UnknownBattery {
		return "Unknown"
	}
	s := fmt.Sprintf("%d%%", level)
	if charging {
		s += " (Charging)"
	}
	return s
}
