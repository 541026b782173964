package indicator

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"budwatch/internal/podstate"
)

func TestBatteryLine(t *testing.T) {
	tests := []struct {
		label    string
		level    int
		charging bool
		want     string
	}{
		{"Left", 70, false, "  Left:  70%"},
		{"Right", 50, true, "  Right: 50% ⚡"},
		{"Case", -1, false, "  Case:  --"},
		{"Case", -1, true, "  Case:  --"},
	}
	for _, tt := range tests {
		if got := batteryLine(tt.label, tt.level, tt.charging); got != tt.want {
			t.Errorf("batteryLine(%q, %d, %v) = %q, want %q", tt.label, tt.level, tt.charging, got, tt.want)
		}
	}
}

func TestTooltip(t *testing.T) {
	tests := []struct {
		name   string
		status podstate.DeviceStatus
		want   string
	}{
		{"idle", podstate.NewDeviceStatus(), "Scanning for earbuds..."},
		{
			"disconnected keeps scanning text",
			podstate.DeviceStatus{LeftBattery: 40, RightBattery: 40, CaseBattery: 40, Model: "Apple AirPods"},
			"Scanning for earbuds...",
		},
		{
			"lowest battery",
			podstate.DeviceStatus{Connected: true, LeftBattery: 70, RightBattery: 50, CaseBattery: 30, Model: "Apple AirPods"},
			"Apple AirPods - 30%",
		},
		{
			"name match",
			podstate.DeviceStatus{Connected: true, LeftBattery: -1, RightBattery: -1, CaseBattery: -1, Model: "Sony WH-Buds"},
			"Sony WH-Buds connected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tooltip(tt.status); got != tt.want {
				t.Errorf("tooltip() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleStatus_BeforeReady(t *testing.T) {
	ind := New(nil, nil, nil)
	status := podstate.DeviceStatus{Connected: true, Model: "Pixel Buds"}

	// Must not touch systray before onReady has run.
	ind.HandleStatus(status)

	ind.mu.Lock()
	defer ind.mu.Unlock()
	if ind.status != status {
		t.Errorf("status = %+v, want %+v", ind.status, status)
	}
}

func TestMarkReady_DrawsStoredStatus(t *testing.T) {
	ind := New(nil, nil, nil)
	var drawn []podstate.DeviceStatus
	ind.draw = func(s podstate.DeviceStatus) { drawn = append(drawn, s) }

	early := podstate.DeviceStatus{Connected: true, Model: "Galaxy Buds2"}
	ind.HandleStatus(early)
	if len(drawn) != 0 {
		t.Fatalf("drawn before ready = %v, want nothing", drawn)
	}

	ind.markReady()
	later := podstate.DeviceStatus{Model: "Galaxy Buds2"}
	ind.HandleStatus(later)

	want := []podstate.DeviceStatus{early, later}
	if len(drawn) != len(want) {
		t.Fatalf("drawn = %v, want %v", drawn, want)
	}
	for i := range want {
		if drawn[i] != want[i] {
			t.Errorf("drawn[%d] = %+v, want %+v", i, drawn[i], want[i])
		}
	}
}

func TestHandleStatus_RacingReadyDrawsLatest(t *testing.T) {
	for round := 0; round < 50; round++ {
		ind := New(nil, nil, nil)
		var last podstate.DeviceStatus
		ind.draw = func(s podstate.DeviceStatus) { last = s }

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				ind.HandleStatus(podstate.DeviceStatus{Connected: true, Model: fmt.Sprintf("buds-%d", i)})
			}
		}()
		go func() {
			defer wg.Done()
			ind.markReady()
		}()
		wg.Wait()

		ind.mu.Lock()
		stored := ind.status
		ind.mu.Unlock()
		if last != stored {
			t.Fatalf("round %d: drawn %+v, stored %+v", round, last, stored)
		}
	}
}

func TestIconEmbedded(t *testing.T) {
	if !bytes.HasPrefix(iconData, []byte("\x89PNG")) {
		t.Error("embedded icon is not a PNG")
	}
}
