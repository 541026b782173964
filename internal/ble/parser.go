package ble

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// MinPayloadLen is the shortest manufacturer payload Decode accepts.
	// Offsets 0..8 are read.
	MinPayloadLen = 9

	// UnknownBattery marks a battery level that was not reported or was
	// outside the valid range.
	UnknownBattery = -1

	batteryOffset  = 6
	caseOffset     = 7
	chargingOffset = 8

	leftChargingMask  = 0x20
	rightChargingMask = 0x10

	maxBatteryNibble = 10
)

var (
	// ErrTooShort is returned when a payload is shorter than MinPayloadLen.
	ErrTooShort = errors.New("payload too short")

	// ErrMalformed is returned when a payload could not be decoded for any
	// other reason.
	ErrMalformed = errors.New("payload malformed")
)

// Reading is the battery and charging state carried by one status beacon.
// Battery levels are percentages in steps of 10, or UnknownBattery.
type Reading struct {
	Left          int
	Right         int
	Case          int
	LeftCharging  bool
	RightCharging bool
}

// Decode extracts a Reading from an Apple manufacturer-specific payload
// (the bytes following the 0x004C company ID).
//
// Layout (heuristic, fixed offsets):
//
//	Byte 6: left battery (bits 4-7), right battery (bits 0-3)
//	Byte 7: case battery (bits 0-3)
//	Byte 8: left charging (bit 5), right charging (bit 4)
//
// Each battery nibble is 0-10 scaled to 0-100%. Values 11-15 decode to
// UnknownBattery for that channel only. The case charging state is not
// part of this layout and is never reported.
func Decode(payload []byte) (reading Reading, err error) {
	if len(payload) < MinPayloadLen {
		return Reading{}, errors.Wrapf(ErrTooShort, "got %d bytes, need %d", len(payload), MinPayloadLen)
	}

	defer func() {
		if r := recover(); r != nil {
			reading = Reading{}
			err = errors.Wrap(ErrMalformed, fmt.Sprint(r))
		}
	}()

	batteryByte := payload[batteryOffset]
	caseByte := payload[caseOffset]
	chargingByte := payload[chargingOffset]

	reading = Reading{
		Left:          DecodeBattery((batteryByte >> 4) & 0x0F),
		Right:         DecodeBattery(batteryByte & 0x0F),
		Case:          DecodeBattery(caseByte & 0x0F),
		LeftCharging:  chargingByte&leftChargingMask != 0,
		RightCharging: chargingByte&rightChargingMask != 0,
	}
	return reading, nil
}

// DecodeBattery decodes a battery nibble value
// 0x0-0xA: 0-100% in 10% increments
// 0xB-0xF: reserved, returns UnknownBattery
func DecodeBattery(nibble uint8) int {
	if nibble > maxBatteryNibble {
		return UnknownBattery
	}
	return int(nibble) * 10
}
