// Package bluez provides integration with BlueZ's Battery Provider D-Bus API.
//
// # D-Bus Connection Architecture
//
// The provider exports an ObjectManager at providerPath and one
// org.bluez.BatteryProvider1 object per battery. BlueZ picks the batteries
// up through the InterfacesAdded signal and shows them for the referenced
// device (GNOME Settings, upower).
//
// # Critical Requirements
//
//  1. Single Connection Per Provider:
//     The BatteryProvider keeps one system bus connection for its lifetime.
//     Device discovery, battery registration and signals all use it; objects
//     exported on one connection are invisible to calls made on another.
//
//  2. InterfacesAdded Signal:
//     Adding a battery object MUST emit InterfacesAdded on the ObjectManager
//     interface, otherwise BlueZ does not expose the battery.
//
// # Usage
//
//	provider, err := bluez.NewBatteryProvider("hci0", classifier, logger)
//	defer provider.Close()
//	tracker.RegisterCallback(provider.HandleStatus)
//
// BlueZ shows one battery per device, so the lowest known earbud level is
// exported, falling back to the case level.
package bluez

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"budwatch/internal/ble"
	"budwatch/internal/podstate"
	"budwatch/internal/util"
)

const (
	bluezService                = "org.bluez"
	deviceIface                 = "org.bluez.Device1"
	batteryProviderManagerIface = "org.bluez.BatteryProviderManager1"
	batteryProviderIface        = "org.bluez.BatteryProvider1"
	providerPath                = "/io/budwatch/battery"
	providerSource              = "budwatch"

	// EarbudsBattery is the battery name HandleStatus manages.
	EarbudsBattery = "earbuds_battery"
)

const providerIntrospect = `
<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
"http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
<node>
	<interface name="org.freedesktop.DBus.ObjectManager">
		<method name="GetManagedObjects">
			<arg name="objects" type="a{oa{sa{sv}}}" direction="out"/>
		</method>
		<signal name="InterfacesAdded">
			<arg name="object_path" type="o"/>
			<arg name="interfaces_and_properties" type="a{sa{sv}}"/>
		</signal>
		<signal name="InterfacesRemoved">
			<arg name="object_path" type="o"/>
			<arg name="interfaces" type="as"/>
		</signal>
	</interface>
</node>`

const batteryIntrospect = `
<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
"http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
<node>
	<interface name="org.bluez.BatteryProvider1">
		<property name="Percentage" type="y" access="read"/>
		<property name="Device" type="o" access="read"/>
		<property name="Source" type="s" access="read"/>
	</interface>
	<interface name="org.freedesktop.DBus.Properties">
		<method name="Get">
			<arg name="interface_name" type="s" direction="in"/>
			<arg name="property_name" type="s" direction="in"/>
			<arg name="value" type="v" direction="out"/>
		</method>
		<method name="GetAll">
			<arg name="interface_name" type="s" direction="in"/>
			<arg name="properties" type="a{sv}" direction="out"/>
		</method>
	</interface>
</node>`

// BatteryDevice represents a single exported battery
type BatteryDevice struct {
	mu         sync.RWMutex
	path       dbus.ObjectPath
	percentage uint8
	device     dbus.ObjectPath
	source     string
}

// BatteryProvider manages battery information for BlueZ
type BatteryProvider struct {
	conn        *dbus.Conn
	adapterPath dbus.ObjectPath
	classifier  *ble.Classifier
	logger      *slog.Logger

	mu      sync.RWMutex
	devices map[string]*BatteryDevice
}

// NewBatteryProvider creates and registers a new battery provider with BlueZ
// on the given adapter (e.g. "hci0").
func NewBatteryProvider(adapter string, classifier *ble.Classifier, logger *slog.Logger) (*BatteryProvider, error) {
	if adapter == "" {
		adapter = "hci0"
	}
	if classifier == nil {
		classifier = ble.NewClassifier(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	bp := &BatteryProvider{
		conn:        conn,
		adapterPath: dbus.ObjectPath("/org/bluez/" + adapter),
		classifier:  classifier,
		logger:      logger,
		devices:     make(map[string]*BatteryDevice),
	}

	if err := bp.exportProvider(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to export provider: %w", err)
	}

	if err := bp.register(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to register provider: %w", err)
	}

	return bp, nil
}

// exportProvider exports the battery provider on D-Bus
func (bp *BatteryProvider) exportProvider() error {
	if err := bp.conn.Export(bp, providerPath, "org.freedesktop.DBus.ObjectManager"); err != nil {
		return err
	}
	return bp.conn.Export(introspect.Introspectable(providerIntrospect), providerPath, "org.freedesktop.DBus.Introspectable")
}

// register registers this provider with BlueZ BatteryProviderManager
func (bp *BatteryProvider) register() error {
	obj := bp.conn.Object(bluezService, bp.adapterPath)
	call := obj.Call(batteryProviderManagerIface+".RegisterBatteryProvider", 0, dbus.ObjectPath(providerPath))
	if call.Err != nil {
		return fmt.Errorf("failed to register battery provider: %w", call.Err)
	}
	return nil
}

// HandleStatus is a tracker callback. A connected status with battery data
// adds or updates the exported battery; a disconnected status removes it.
func (bp *BatteryProvider) HandleStatus(status podstate.DeviceStatus) {
	bp.mu.RLock()
	_, exists := bp.devices[EarbudsBattery]
	bp.mu.RUnlock()

	if !status.Connected {
		if exists {
			if err := bp.RemoveBattery(EarbudsBattery); err != nil {
				bp.logger.Warn("failed to remove battery", "error", err)
			}
		}
		return
	}

	level, ok := batteryLevel(status)
	if !ok {
		return
	}

	if exists {
		if err := bp.UpdateBatteryPercentage(EarbudsBattery, level); err != nil {
			bp.logger.Warn("failed to update battery", "error", err)
		}
		return
	}

	device, err := bp.DiscoverDevice()
	if err != nil {
		bp.logger.Debug("no connected earbuds device in BlueZ", "error", err)
		return
	}
	if err := bp.AddBattery(EarbudsBattery, level, device); err != nil {
		bp.logger.Warn("failed to add battery", "device", device, "error", err)
		return
	}
	bp.logger.Info("battery provider registered for device", "device", device, "percentage", level)
}

// batteryLevel picks the single percentage exported to BlueZ.
func batteryLevel(status podstate.DeviceStatus) (uint8, bool) {
	level := util.LowestKnown(status.LeftBattery, status.RightBattery)
	if level < 0 {
		level = status.CaseBattery
	}
	if level < 0 {
		return 0, false
	}
	return uint8(min(level, 100)), true
}

// AddBattery adds a new battery device to the provider
func (bp *BatteryProvider) AddBattery(name string, percentage uint8, devicePath string) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	batteryPath := dbus.ObjectPath(fmt.Sprintf("%s/%s", providerPath, name))

	device := &BatteryDevice{
		path:       batteryPath,
		percentage: percentage,
		device:     dbus.ObjectPath(devicePath),
		source:     providerSource,
	}

	if err := bp.conn.Export(device, batteryPath, "org.freedesktop.DBus.Properties"); err != nil {
		return err
	}
	if err := bp.conn.Export(introspect.Introspectable(batteryIntrospect), batteryPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return err
	}

	bp.devices[name] = device

	interfaces := map[string]map[string]dbus.Variant{
		batteryProviderIface: device.properties(),
	}
	if err := bp.conn.Emit(providerPath, "org.freedesktop.DBus.ObjectManager.InterfacesAdded",
		batteryPath, interfaces); err != nil {
		return fmt.Errorf("failed to emit InterfacesAdded signal: %w", err)
	}

	return nil
}

func (bd *BatteryDevice) properties() map[string]dbus.Variant {
	bd.mu.RLock()
	defer bd.mu.RUnlock()
	return map[string]dbus.Variant{
		"Percentage": dbus.MakeVariant(bd.percentage),
		"Device":     dbus.MakeVariant(bd.device),
		"Source":     dbus.MakeVariant(bd.source),
	}
}

// Get implements org.freedesktop.DBus.Properties.Get for BatteryDevice
func (bd *BatteryDevice) Get(iface string, property string) (dbus.Variant, *dbus.Error) {
	if iface != batteryProviderIface {
		return dbus.Variant{}, dbus.NewError("org.freedesktop.DBus.Error.UnknownInterface", []interface{}{iface})
	}
	v, ok := bd.properties()[property]
	if !ok {
		return dbus.Variant{}, dbus.NewError("org.freedesktop.DBus.Error.UnknownProperty", []interface{}{property})
	}
	return v, nil
}

// GetAll implements org.freedesktop.DBus.Properties.GetAll for BatteryDevice
func (bd *BatteryDevice) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != batteryProviderIface {
		return nil, dbus.NewError("org.freedesktop.DBus.Error.UnknownInterface", []interface{}{iface})
	}
	return bd.properties(), nil
}

// Set implements org.freedesktop.DBus.Properties.Set (all properties are read-only)
func (bd *BatteryDevice) Set(iface string, property string, value dbus.Variant) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", []interface{}{property})
}

// GetManagedObjects implements org.freedesktop.DBus.ObjectManager
func (bp *BatteryProvider) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	bp.mu.RLock()
	defer bp.mu.RUnlock()

	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant, len(bp.devices))
	for _, device := range bp.devices {
		objects[device.path] = map[string]map[string]dbus.Variant{
			batteryProviderIface: device.properties(),
		}
	}
	return objects, nil
}

// UpdateBatteryPercentage updates the battery percentage for a device
func (bp *BatteryProvider) UpdateBatteryPercentage(name string, percentage uint8) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	device, ok := bp.devices[name]
	if !ok {
		return fmt.Errorf("battery device %s not found", name)
	}

	device.mu.Lock()
	unchanged := device.percentage == percentage
	device.percentage = percentage
	device.mu.Unlock()
	if unchanged {
		return nil
	}

	changes := map[string]dbus.Variant{
		"Percentage": dbus.MakeVariant(percentage),
	}
	return bp.conn.Emit(device.path, "org.freedesktop.DBus.Properties.PropertiesChanged",
		batteryProviderIface, changes, []string{})
}

// RemoveBattery removes a battery device from the provider
func (bp *BatteryProvider) RemoveBattery(name string) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	device, ok := bp.devices[name]
	if !ok {
		return fmt.Errorf("battery device %s not found", name)
	}

	if err := bp.conn.Emit(providerPath, "org.freedesktop.DBus.ObjectManager.InterfacesRemoved",
		device.path, []string{batteryProviderIface}); err != nil {
		return fmt.Errorf("failed to emit InterfacesRemoved signal: %w", err)
	}

	bp.conn.Export(nil, device.path, "org.freedesktop.DBus.Properties")
	bp.conn.Export(nil, device.path, "org.freedesktop.DBus.Introspectable")

	delete(bp.devices, name)
	return nil
}

// DiscoverDevice searches BlueZ for a connected device whose name looks
// like earbuds, using the provider's connection.
func (bp *BatteryProvider) DiscoverDevice() (string, error) {
	objects, err := ManagedObjects(bp.conn)
	if err != nil {
		return "", err
	}
	return findDeviceInObjects(objects, bp.classifier)
}

// ManagedObjects returns every object BlueZ manages.
func ManagedObjects(conn *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	obj := conn.Object(bluezService, "/")
	if err := obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("failed to get managed objects: %w", err)
	}
	return objects, nil
}

// Device is a BlueZ device object as seen by MatchingDevices.
type Device struct {
	Path      dbus.ObjectPath
	Address   string
	Alias     string
	Connected bool
}

// MatchingDevices returns the devices whose alias matches the classifier's
// name heuristic, ordered by object path.
func MatchingDevices(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant, classifier *ble.Classifier) []Device {
	var matches []Device
	for path, interfaces := range objects {
		props, ok := interfaces[deviceIface]
		if !ok {
			continue
		}
		d := Device{Path: path}
		if v, ok := props["Alias"]; ok {
			d.Alias, _ = v.Value().(string)
		}
		if v, ok := props["Address"]; ok {
			d.Address, _ = v.Value().(string)
		}
		if v, ok := props["Connected"]; ok {
			d.Connected, _ = v.Value().(bool)
		}
		if classifier.MatchesName(d.Alias) {
			matches = append(matches, d)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Path < matches[j].Path })
	return matches
}

// findDeviceInObjects returns the first connected device that looks like
// earbuds.
func findDeviceInObjects(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant, classifier *ble.Classifier) (string, error) {
	for _, d := range MatchingDevices(objects, classifier) {
		if d.Connected {
			return string(d.Path), nil
		}
	}
	return "", fmt.Errorf("no connected earbuds device found")
}

// Close removes all batteries, unregisters the provider and closes the
// D-Bus connection
func (bp *BatteryProvider) Close() error {
	bp.mu.RLock()
	names := make([]string, 0, len(bp.devices))
	for name := range bp.devices {
		names = append(names, name)
	}
	bp.mu.RUnlock()
	for _, name := range names {
		_ = bp.RemoveBattery(name)
	}

	obj := bp.conn.Object(bluezService, bp.adapterPath)
	call := obj.Call(batteryProviderManagerIface+".UnregisterBatteryProvider", 0, dbus.ObjectPath(providerPath))
	if call.Err != nil {
		bp.conn.Close()
		return call.Err
	}
	return bp.conn.Close()
}
