// Package podstate provides centralized earbuds state management.
//
// Tracker handles:
//   - classifying advertisements and decoding vendor status beacons
//   - suppressing repeated sightings of the same device address
//   - notifying the tray, BlueZ, MQTT and other components of status
//     updates via callbacks
//
// Callbacks run synchronously on the goroutine that changed the status, in
// registration order, so every collaborator sees updates in the order they
// happened.
package podstate

import (
	"log/slog"
	"sync"

	"budwatch/internal/ble"
)

// UpdateCallback is called when the earbuds status changes
type UpdateCallback func(DeviceStatus)

// Tracker owns the last known status and the deduplication memory.
type Tracker struct {
	classifier *ble.Classifier
	logger     *slog.Logger

	// writeMu serializes mutations together with callback delivery
	writeMu sync.Mutex

	mu              sync.RWMutex
	status          DeviceStatus
	lastSeenAddress string
	haveLastSeen    bool
	callbacks       []UpdateCallback
}

// NewTracker creates a tracker in the Idle state. A nil classifier uses the
// default keyword list, a nil logger uses slog.Default().
func NewTracker(classifier *ble.Classifier, logger *slog.Logger) *Tracker {
	if classifier == nil {
		classifier = ble.NewClassifier(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		classifier: classifier,
		logger:     logger,
		status:     NewDeviceStatus(),
	}
}

// RegisterCallback registers a callback to be notified of status updates.
// If the earbuds are already being tracked the callback immediately receives
// the current status. Must not be called from inside a callback.
func (t *Tracker) RegisterCallback(cb UpdateCallback) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	t.callbacks = append(t.callbacks, cb)
	status := t.status
	t.mu.Unlock()

	if status.Connected {
		cb(status)
	}
}

// CurrentStatus returns a snapshot of the last known status. It is safe to
// call from a callback.
func (t *Tracker) CurrentStatus() DeviceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Observe processes one advertisement. It returns the new status and true
// when the advertisement produced an update, or false when it was a repeat
// of the previous address, undecodable, or did not look like earbuds.
func (t *Tracker) Observe(adv ble.RawAdvertisement) (DeviceStatus, bool) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	if t.haveLastSeen && adv.Address == t.lastSeenAddress {
		t.mu.Unlock()
		return DeviceStatus{}, false
	}
	t.lastSeenAddress = adv.Address
	t.haveLastSeen = true
	t.mu.Unlock()

	outcome := t.classifier.Classify(adv)

	var status DeviceStatus
	switch outcome.Kind {
	case ble.KindVendorBeacon:
		reading, err := ble.Decode(outcome.Payload)
		if err != nil {
			t.logger.Debug("ignoring undecodable vendor beacon",
				"address", adv.Address, "len", len(outcome.Payload), "error", err)
			return DeviceStatus{}, false
		}
		status = DeviceStatus{
			Connected:     true,
			LeftBattery:   reading.Left,
			RightBattery:  reading.Right,
			CaseBattery:   reading.Case,
			LeftCharging:  reading.LeftCharging,
			RightCharging: reading.RightCharging,
			Model:         ModelVendorBeacon,
		}

	case ble.KindNameHeuristic:
		status = NewDeviceStatus()
		status.Connected = true
		status.Model = outcome.Name

	default:
		return DeviceStatus{}, false
	}

	t.logger.Debug("status update", "address", adv.Address, "kind", outcome.Kind, "status", status)
	t.publish(status)
	return status, true
}

// MarkDisconnected clears the connected flag, keeping the last battery
// readings, and notifies callbacks. Called when scanning stops.
func (t *Tracker) MarkDisconnected() DeviceStatus {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	status := t.CurrentStatus()
	status.Connected = false
	t.publish(status)
	return status
}

// SimulateConnection force-sets a canned connected status without scanning.
func (t *Tracker) SimulateConnection() DeviceStatus {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	status := DeviceStatus{
		Connected:    true,
		LeftBattery:  85,
		RightBattery: 90,
		CaseBattery:  100,
		Model:        ModelSimulated,
	}
	t.logger.Info("simulating connection", "status", status)
	t.publish(status)
	return status
}

// BeginSession forgets the last seen address so the first sighting of a new
// scan session is not suppressed. The status is kept.
func (t *Tracker) BeginSession() {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	t.lastSeenAddress = ""
	t.haveLastSeen = false
	t.mu.Unlock()
}

// publish stores status and notifies all callbacks. Caller holds writeMu.
func (t *Tracker) publish(status DeviceStatus) {
	t.mu.Lock()
	t.status = status
	callbacks := make([]UpdateCallback, len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb(status)
	}
}
