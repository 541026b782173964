// Package ble turns Bluetooth Low Energy advertisements into earbuds status
// readings.
//
// Advertisements are classified first: an Apple manufacturer payload
// (company ID 0x004C) is decoded as a status beacon, otherwise the device
// name is matched against a keyword list. Battery levels decoded from
// advertisements are APPROXIMATE (10% steps) and update slowly.
//
// Two advertisement sources are provided:
//   - Scanner uses the BlueZ D-Bus API directly (discovery filter,
//     PropertiesChanged / InterfacesAdded signals on org.bluez.Device1)
//   - AdapterScanner uses tinygo.org/x/bluetooth
package ble

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezService  = "org.bluez"
	deviceIface   = "org.bluez.Device1"
	signalBufSize = 64

	propertiesChangedSignal = "org.freedesktop.DBus.Properties.PropertiesChanged"
	interfacesAddedSignal   = "org.freedesktop.DBus.ObjectManager.InterfacesAdded"
)

// Scanner handles BLE advertisement scanning over BlueZ D-Bus
type Scanner struct {
	conn        *dbus.Conn
	adapterPath dbus.ObjectPath
	signal      chan *dbus.Signal
}

// NewScanner creates a new BLE scanner for the given adapter (e.g. "hci0")
func NewScanner(adapter string) (*Scanner, error) {
	if adapter == "" {
		adapter = "hci0"
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	return &Scanner{
		conn:        conn,
		adapterPath: dbus.ObjectPath("/org/bluez/" + adapter),
		signal:      make(chan *dbus.Signal, signalBufSize),
	}, nil
}

// StartDiscovery begins BLE scanning
func (s *Scanner) StartDiscovery(ctx context.Context) error {
	obj := s.conn.Object(bluezService, s.adapterPath)

	// Set discovery filter for LE only, report every advertisement
	filter := map[string]interface{}{
		"Transport":     "le",
		"DuplicateData": true,
	}

	if err := obj.CallWithContext(ctx, "org.bluez.Adapter1.SetDiscoveryFilter", 0, filter).Err; err != nil {
		return fmt.Errorf("failed to set discovery filter: %w", err)
	}

	if err := obj.CallWithContext(ctx, "org.bluez.Adapter1.StartDiscovery", 0).Err; err != nil {
		if !strings.Contains(err.Error(), "InProgress") {
			return fmt.Errorf("failed to start discovery: %w", err)
		}
	}

	rules := []string{
		"type='signal',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged',path_namespace='/org/bluez'",
		"type='signal',interface='org.freedesktop.DBus.ObjectManager',member='InterfacesAdded'",
	}
	for _, rule := range rules {
		if err := s.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
			return fmt.Errorf("failed to add match rule: %w", err)
		}
	}

	s.conn.Signal(s.signal)

	return nil
}

// StopDiscovery stops BLE scanning
func (s *Scanner) StopDiscovery() error {
	s.conn.RemoveSignal(s.signal)
	obj := s.conn.Object(bluezService, s.adapterPath)
	return obj.Call("org.bluez.Adapter1.StopDiscovery", 0).Err
}

// Run starts discovery and calls handle for every device advertisement
// until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, handle func(RawAdvertisement)) error {
	if err := s.StartDiscovery(ctx); err != nil {
		return err
	}
	defer s.StopDiscovery()

	for {
		select {
		case <-ctx.Done():
			return nil

		case signal, ok := <-s.signal:
			if !ok {
				return fmt.Errorf("D-Bus signal channel closed")
			}
			adv, ok := s.advertisementFromSignal(signal)
			if !ok {
				continue
			}
			handle(adv)
		}
	}
}

// advertisementFromSignal converts a BlueZ signal into an advertisement.
// PropertiesChanged only carries the changed properties, so the device's
// cached identity and ManufacturerData are looked up when missing.
func (s *Scanner) advertisementFromSignal(signal *dbus.Signal) (RawAdvertisement, bool) {
	var (
		path  dbus.ObjectPath
		props map[string]dbus.Variant
	)

	switch signal.Name {
	case propertiesChangedSignal:
		if len(signal.Body) < 2 {
			return RawAdvertisement{}, false
		}
		iface, ok := signal.Body[0].(string)
		if !ok || iface != deviceIface {
			return RawAdvertisement{}, false
		}
		changes, ok := signal.Body[1].(map[string]dbus.Variant)
		if !ok {
			return RawAdvertisement{}, false
		}
		// Only advertisement-driven properties count as a sighting
		_, hasMfg := changes["ManufacturerData"]
		_, hasRSSI := changes["RSSI"]
		if !hasMfg && !hasRSSI {
			return RawAdvertisement{}, false
		}
		path = signal.Path
		props = s.withCachedProperties(path, changes)

	case interfacesAddedSignal:
		if len(signal.Body) < 2 {
			return RawAdvertisement{}, false
		}
		objPath, ok := signal.Body[0].(dbus.ObjectPath)
		if !ok {
			return RawAdvertisement{}, false
		}
		ifaces, ok := signal.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return RawAdvertisement{}, false
		}
		deviceProps, ok := ifaces[deviceIface]
		if !ok {
			return RawAdvertisement{}, false
		}
		path = objPath
		props = deviceProps

	default:
		return RawAdvertisement{}, false
	}

	return advertisementFromProps(path, props)
}

// cachedDeviceProperties are read from the device object when a
// PropertiesChanged signal does not carry them. ManufacturerData is among
// them so an RSSI-only change still yields the device's vendor payload.
var cachedDeviceProperties = []string{"Address", "Name", "Alias", "ManufacturerData"}

// withCachedProperties fills cachedDeviceProperties from the device object
// if the change set does not carry them.
func (s *Scanner) withCachedProperties(path dbus.ObjectPath, changes map[string]dbus.Variant) map[string]dbus.Variant {
	obj := s.conn.Object(bluezService, path)
	return mergeDeviceProperties(changes, func(name string) (dbus.Variant, error) {
		return obj.GetProperty(deviceIface + "." + name)
	})
}

// mergeDeviceProperties copies changes and adds every missing cached
// property that lookup can resolve. Values in changes always win.
func mergeDeviceProperties(changes map[string]dbus.Variant, lookup func(name string) (dbus.Variant, error)) map[string]dbus.Variant {
	props := make(map[string]dbus.Variant, len(changes)+len(cachedDeviceProperties))
	for k, v := range changes {
		props[k] = v
	}

	for _, name := range cachedDeviceProperties {
		if _, ok := props[name]; ok {
			continue
		}
		if v, err := lookup(name); err == nil {
			props[name] = v
		}
	}
	return props
}

// Close closes the scanner
func (s *Scanner) Close() error {
	return s.conn.Close()
}

// advertisementFromProps builds an advertisement from org.bluez.Device1
// properties. The address falls back to the one encoded in the object path
// (/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF).
func advertisementFromProps(path dbus.ObjectPath, props map[string]dbus.Variant) (RawAdvertisement, bool) {
	adv := RawAdvertisement{
		Address: stringProp(props, "Address"),
	}
	if adv.Address == "" {
		adv.Address = addressFromPath(path)
	}
	if adv.Address == "" {
		return RawAdvertisement{}, false
	}

	adv.Name = stringProp(props, "Name")
	if adv.Name == "" {
		alias := stringProp(props, "Alias")
		// BlueZ sets Alias to the dashed address when the device has no name
		if alias != strings.ReplaceAll(adv.Address, ":", "-") {
			adv.Name = alias
		}
	}

	if v, ok := props["RSSI"]; ok {
		if rssi, ok := v.Value().(int16); ok {
			adv.RSSI = int(rssi)
		}
	}

	if v, ok := props["ManufacturerData"]; ok {
		adv.ManufacturerData = manufacturerData(v)
	}

	return adv, true
}

// manufacturerData decodes BlueZ's a{qv} ManufacturerData property.
func manufacturerData(v dbus.Variant) map[uint16][]byte {
	raw, ok := v.Value().(map[uint16]dbus.Variant)
	if !ok {
		return nil
	}

	out := make(map[uint16][]byte, len(raw))
	for companyID, dataVar := range raw {
		data, ok := dataVar.Value().([]byte)
		if !ok {
			continue
		}
		out[companyID] = append([]byte(nil), data...)
	}
	return out
}

func stringProp(props map[string]dbus.Variant, name string) string {
	v, ok := props[name]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return strings.TrimSpace(s)
}

func addressFromPath(path dbus.ObjectPath) string {
	p := string(path)
	i := strings.LastIndex(p, "/dev_")
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(p[i+len("/dev_"):], "_", ":")
}
