package ble

import (
	"bytes"
	"testing"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(nil)
	vendor := []byte{0, 1, 2, 3, 4, 5, 0x75, 0x03, 0x30}

	tests := []struct {
		name     string
		adv      RawAdvertisement
		wantKind Kind
	}{
		{
			name:     "vendor payload",
			adv:      RawAdvertisement{Address: "A", ManufacturerData: map[uint16][]byte{AppleCompanyID: vendor}},
			wantKind: KindVendorBeacon,
		},
		{
			name:     "vendor payload wins over name",
			adv:      RawAdvertisement{Address: "A", Name: "Galaxy Buds", ManufacturerData: map[uint16][]byte{AppleCompanyID: {1, 2}}},
			wantKind: KindVendorBeacon,
		},
		{
			name:     "other vendor falls through to name",
			adv:      RawAdvertisement{Address: "A", Name: "Jabra Elite", ManufacturerData: map[uint16][]byte{0x0075: vendor}},
			wantKind: KindNameHeuristic,
		},
		{
			name:     "name case-insensitive",
			adv:      RawAdvertisement{Address: "A", Name: "Sony WH-Buds"},
			wantKind: KindNameHeuristic,
		},
		{
			name:     "substring match",
			adv:      RawAdvertisement{Address: "A", Name: "HEARTRATE strap"},
			wantKind: KindNameHeuristic,
		},
		{
			name:     "no name",
			adv:      RawAdvertisement{Address: "A"},
			wantKind: KindNoMatch,
		},
		{
			name:     "unrelated name",
			adv:      RawAdvertisement{Address: "A", Name: "Thermometer"},
			wantKind: KindNoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.adv)
			if got.Kind != tt.wantKind {
				t.Errorf("Classify() kind = %v, want %v", got.Kind, tt.wantKind)
			}
		})
	}
}

func TestClassify_OutcomeFields(t *testing.T) {
	c := NewClassifier(nil)
	vendor := []byte{9, 9, 9}

	got := c.Classify(RawAdvertisement{ManufacturerData: map[uint16][]byte{AppleCompanyID: vendor}})
	if !bytes.Equal(got.Payload, vendor) {
		t.Errorf("Payload = %v, want %v", got.Payload, vendor)
	}
	if got.Name != "" {
		t.Errorf("Name = %q, want empty for vendor beacon", got.Name)
	}

	got = c.Classify(RawAdvertisement{Name: "Pixel Buds Pro"})
	if got.Name != "Pixel Buds Pro" {
		t.Errorf("Name = %q, want %q", got.Name, "Pixel Buds Pro")
	}
	if got.Payload != nil {
		t.Errorf("Payload = %v, want nil for name match", got.Payload)
	}
}

func TestNewClassifier_Keywords(t *testing.T) {
	c := NewClassifier([]string{"  Bose ", "", "QC"})
	got := c.Keywords()
	if len(got) != 2 || got[0] != "bose" || got[1] != "qc" {
		t.Fatalf("Keywords() = %v, want [bose qc]", got)
	}
	if !c.MatchesName("Bose QC Ultra") {
		t.Error("MatchesName(Bose QC Ultra) = false, want true")
	}
	if c.MatchesName("Galaxy Buds") {
		t.Error("MatchesName(Galaxy Buds) = true, want false with custom keywords")
	}
}

func TestNewClassifier_DefaultsWhenEmpty(t *testing.T) {
	for _, kw := range [][]string{nil, {}, {" ", ""}} {
		got := NewClassifier(kw).Keywords()
		if len(got) != len(DefaultKeywords) {
			t.Errorf("NewClassifier(%q).Keywords() = %v, want defaults", kw, got)
		}
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindNoMatch:       "NoMatch",
		KindVendorBeacon:  "VendorBeacon",
		KindNameHeuristic: "NameHeuristic",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
