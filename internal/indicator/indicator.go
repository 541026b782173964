// Package indicator shows the earbuds status in the system tray.
package indicator

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"fyne.io/systray"

	"budwatch/internal/ble"
	"budwatch/internal/podstate"
)

//go:embed icon.png
var iconData []byte

const scanningTooltip = "Scanning for earbuds..."

// Indicator manages the system tray icon and menu
type Indicator struct {
	onSimulate func()
	onQuit     func()
	logger     *slog.Logger

	// mu is held while a status is stored and drawn, so the tray always
	// shows the latest status.
	mu     sync.Mutex
	ready  bool
	status podstate.DeviceStatus
	draw   func(podstate.DeviceStatus)

	// Menu items
	modelItem    *systray.MenuItem
	batteryItems [3]*systray.MenuItem
}

// New creates a tray indicator. onSimulate is called from the
// "Simulate connection" item, onQuit from the Quit item.
func New(onSimulate, onQuit func(), logger *slog.Logger) *Indicator {
	if logger == nil {
		logger = slog.Default()
	}
	ind := &Indicator{
		onSimulate: onSimulate,
		onQuit:     onQuit,
		logger:     logger,
		status:     podstate.NewDeviceStatus(),
	}
	ind.draw = ind.render
	return ind
}

// Start initializes the system tray indicator
func (ind *Indicator) Start() {
	go systray.Run(ind.onReady, ind.onExit)
}

// Stop terminates the system tray indicator
func (ind *Indicator) Stop() {
	systray.Quit()
}

// onReady is called when systray is ready
func (ind *Indicator) onReady() {
	systray.SetIcon(iconData)
	systray.SetTitle("budwatch")
	systray.SetTooltip(scanningTooltip)

	ind.modelItem = systray.AddMenuItem("No earbuds", "Tracked device")
	ind.modelItem.Disable()
	systray.AddSeparator()

	ind.batteryItems[0] = systray.AddMenuItem(batteryLine("Left", ble.UnknownBattery, false), "Left earbud battery")
	ind.batteryItems[0].Disable()
	ind.batteryItems[1] = systray.AddMenuItem(batteryLine("Right", ble.UnknownBattery, false), "Right earbud battery")
	ind.batteryItems[1].Disable()
	ind.batteryItems[2] = systray.AddMenuItem(batteryLine("Case", ble.UnknownBattery, false), "Case battery")
	ind.batteryItems[2].Disable()

	systray.AddSeparator()

	mSimulate := systray.AddMenuItem("Simulate connection", "Pretend earbuds were found")
	mQuit := systray.AddMenuItem("Quit", "Exit budwatch")

	ind.markReady()

	go func() {
		for {
			select {
			case <-mSimulate.ClickedCh:
				if ind.onSimulate != nil {
					ind.onSimulate()
				}
			case <-mQuit.ClickedCh:
				if ind.onQuit != nil {
					ind.onQuit()
				}
				return
			}
		}
	}()
}

// onExit is called when systray is exiting
func (ind *Indicator) onExit() {
	ind.logger.Debug("system tray indicator exited")
}

// HandleStatus is a tracker callback. Updates arriving before the tray is
// ready are kept and shown once it is.
func (ind *Indicator) HandleStatus(status podstate.DeviceStatus) {
	ind.mu.Lock()
	defer ind.mu.Unlock()

	ind.status = status
	if ind.ready {
		ind.draw(status)
	}
}

// markReady draws the status stored so far and lets HandleStatus draw from
// now on.
func (ind *Indicator) markReady() {
	ind.mu.Lock()
	defer ind.mu.Unlock()

	ind.ready = true
	ind.draw(ind.status)
}

func (ind *Indicator) render(status podstate.DeviceStatus) {
	systray.SetTooltip(tooltip(status))

	if status.Connected {
		ind.modelItem.SetTitle(status.Model)
	} else {
		ind.modelItem.SetTitle("No earbuds")
	}
	ind.batteryItems[0].SetTitle(batteryLine("Left", status.LeftBattery, status.LeftCharging))
	ind.batteryItems[1].SetTitle(batteryLine("Right", status.RightBattery, status.RightCharging))
	ind.batteryItems[2].SetTitle(batteryLine("Case", status.CaseBattery, status.CaseCharging))
}

// batteryLine formats one battery menu entry.
func batteryLine(label string, level int, charging bool) string {
	if level == ble.UnknownBattery {
		return fmt.Sprintf("  %-6s --", label+":")
	}
	suffix := ""
	if charging {
		suffix = " ⚡"
	}
	return fmt.Sprintf("  %-6s %d%%%s", label+":", level, suffix)
}

// tooltip summarizes the status in one line.
func tooltip(status podstate.DeviceStatus) string {
	if !status.Connected {
		return scanningTooltip
	}
	if lowest := status.LowestBattery(); lowest != ble.UnknownBattery {
		return fmt.Sprintf("%s - %d%%", status.Model, lowest)
	}
	return status.Model + " connected"
}
