package ble

import (
	"errors"
	"strings"
	"testing"
)

// payload builds a 9-byte manufacturer payload with the given status bytes.
func payload(battery, caseByte, charging byte) []byte {
	return []byte{0x07, 0x19, 0x01, 0x0e, 0x20, 0x2b, battery, caseByte, charging}
}

func TestDecode_Example(t *testing.T) {
	got, err := Decode(payload(0x75, 0x03, 0x30))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	want := Reading{Left: 70, Right: 50, Case: 30, LeftCharging: true, RightCharging: true}
	if got != want {
		t.Errorf("Decode() = %+v, want %+v", got, want)
	}
}

func TestDecode_TooShort(t *testing.T) {
	for n := 0; n < MinPayloadLen; n++ {
		got, err := Decode(make([]byte, n))
		if !errors.Is(err, ErrTooShort) {
			t.Errorf("Decode(len=%d) error = %v, want ErrTooShort", n, err)
		}
		if got != (Reading{}) {
			t.Errorf("Decode(len=%d) = %+v, want zero Reading", n, got)
		}
	}
}

func TestDecode_TooShortMessage(t *testing.T) {
	_, err := Decode(make([]byte, 5))
	if err == nil {
		t.Fatal("Decode() should fail for a 5-byte payload")
	}
	if !strings.Contains(err.Error(), "got 5 bytes") {
		t.Errorf("error %q should mention the payload length", err)
	}
}

func TestDecode_LongerPayload(t *testing.T) {
	// Real proximity beacons are 27 bytes; trailing bytes are ignored.
	p := append(payload(0xa9, 0x0a, 0x00), make([]byte, 18)...)
	got, err := Decode(p)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	want := Reading{Left: 100, Right: 90, Case: 100}
	if got != want {
		t.Errorf("Decode() = %+v, want %+v", got, want)
	}
}

func TestDecode_ValidNibbles(t *testing.T) {
	for l := byte(0); l <= 10; l++ {
		for r := byte(0); r <= 10; r++ {
			c := (l + r) % 11
			got, err := Decode(payload(l<<4|r, c, 0))
			if err != nil {
				t.Fatalf("Decode(l=%d r=%d c=%d) error: %v", l, r, c, err)
			}
			if got.Left != int(l)*10 || got.Right != int(r)*10 || got.Case != int(c)*10 {
				t.Errorf("Decode(l=%d r=%d c=%d) = %+v", l, r, c, got)
			}
		}
	}
}

func TestDecode_FieldIndependence(t *testing.T) {
	for bad := byte(11); bad <= 15; bad++ {
		tests := []struct {
			name  string
			input []byte
			want  Reading
		}{
			{"left", payload(bad<<4|0x05, 0x03, 0), Reading{Left: -1, Right: 50, Case: 30}},
			{"right", payload(0x70|bad, 0x03, 0), Reading{Left: 70, Right: -1, Case: 30}},
			{"case", payload(0x75, bad, 0), Reading{Left: 70, Right: 50, Case: -1}},
		}
		for _, tt := range tests {
			got, err := Decode(tt.input)
			if err != nil {
				t.Fatalf("%s=%d: Decode() error: %v", tt.name, bad, err)
			}
			if got != tt.want {
				t.Errorf("%s=%d: Decode() = %+v, want %+v", tt.name, bad, got, tt.want)
			}
		}
	}
}

func TestDecode_CaseHighNibbleIgnored(t *testing.T) {
	got, err := Decode(payload(0x00, 0xf4, 0))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Case != 40 {
		t.Errorf("Case = %d, want 40", got.Case)
	}
}

func TestDecode_ChargingFlags(t *testing.T) {
	tests := []struct {
		charging  byte
		wantLeft  bool
		wantRight bool
	}{
		{0x30, true, true},
		{0x00, false, false},
		{0x20, true, false},
		{0x10, false, true},
		{0xcf, false, false},
		{0xff, true, true},
	}

	for _, tt := range tests {
		got, err := Decode(payload(0x55, 0x05, tt.charging))
		if err != nil {
			t.Fatalf("Decode(0x%02x) error: %v", tt.charging, err)
		}
		if got.LeftCharging != tt.wantLeft || got.RightCharging != tt.wantRight {
			t.Errorf("Decode(0x%02x) charging = (%v, %v), want (%v, %v)",
				tt.charging, got.LeftCharging, got.RightCharging, tt.wantLeft, tt.wantRight)
		}
	}
}

func TestDecodeBattery(t *testing.T) {
	tests := []struct {
		nibble uint8
		want   int
	}{
		{0, 0},
		{1, 10},
		{9, 90},
		{10, 100},
		{11, UnknownBattery},
		{15, UnknownBattery},
	}
	for _, tt := range tests {
		if got := DecodeBattery(tt.nibble); got != tt.want {
			t.Errorf("DecodeBattery(%d) = %d, want %d", tt.nibble, got, tt.want)
		}
	}
}

func TestReadingString(t *testing.T) {
	s := Reading{Left: 70, Right: UnknownBattery, Case: 30, LeftCharging: true}.String()
	for _, want := range []string{"Left:  70% (Charging)", "Right: Unknown", "Case:  30%"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
