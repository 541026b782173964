// debug_bluez_dbus_discover is a debugging tool for discovering and inspecting
// earbuds devices via BlueZ D-Bus.
//
// This tool queries the BlueZ D-Bus API (org.freedesktop.DBus.ObjectManager)
// for all known Bluetooth devices and shows every device whose alias matches
// the earbuds name keywords.
//
// Usage:
//
//	go run ./cmd/debug_bluez_dbus_discover [KEYWORD...]
//
// The tool displays:
//   - Device name, address and D-Bus object path
//   - Connection status
//   - All device properties and interfaces
//   - Battery information (if org.bluez.Battery1 interface is present)
//   - Bluetooth service UUIDs
//
// Requirements:
//   - the earbuds must be known to (paired with) this Linux device
//   - BlueZ Bluetooth stack must be running
package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"

	"budwatch/internal/ble"
	"budwatch/internal/bluez"
)

func main() {
	log.Println("=== Earbuds Discovery Tool ===")
	log.Println()

	classifier := ble.NewClassifier(os.Args[1:])
	log.Printf("Keywords: %v", classifier.Keywords())

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		log.Fatalf("Failed to connect to system bus: %v", err)
	}
	defer conn.Close()

	objects, err := bluez.ManagedObjects(conn)
	if err != nil {
		log.Fatalf("Failed to get managed objects: %v", err)
	}

	devices := bluez.MatchingDevices(objects, classifier)
	if len(devices) == 0 {
		fmt.Println("No earbuds devices found!")
		fmt.Println("Make sure your earbuds are:")
		fmt.Println("  1. Paired with this device")
		fmt.Println("  2. Named like earbuds (or pass keywords as arguments)")
		return
	}

	for _, d := range devices {
		interfaces := objects[d.Path]

		fmt.Printf("Found: %s (%s)\n", d.Alias, d.Address)
		fmt.Printf("  Path: %s\n", d.Path)
		fmt.Printf("  Connected: %v\n", d.Connected)

		fmt.Printf("\n--- All Device Properties ---\n")
		props := interfaces["org.bluez.Device1"]
		for _, key := range sortedKeys(props) {
			variant := props[key]
			fmt.Printf("  %s: %v (type: %s)\n", key, variant.Value(), variant.Signature().String())
		}

		fmt.Printf("\n--- All Interfaces ---\n")
		for _, iface := range sortedKeys(interfaces) {
			fmt.Printf("  - %s\n", iface)
		}

		if batteryProps, ok := interfaces["org.bluez.Battery1"]; ok {
			fmt.Printf("\n--- Battery Information ---\n")
			for _, key := range sortedKeys(batteryProps) {
				fmt.Printf("  %s: %v\n", key, batteryProps[key].Value())
			}
		}

		if uuids := getStringArrayProp(props, "UUIDs"); len(uuids) > 0 {
			fmt.Printf("\n--- Available Services (UUIDs) ---\n")
			for _, uuid := range uuids {
				fmt.Printf("  - %s: %s\n", uuid, getServiceName(uuid))
			}
		}

		fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func getStringArrayProp(props map[string]dbus.Variant, key string) []string {
	if v, ok := props[key]; ok {
		if arr, ok := v.Value().([]string); ok {
			return arr
		}
	}
	return nil
}

func getServiceName(uuid string) string {
	// Common Bluetooth service UUIDs
	services := map[string]string{
		"0000110b-0000-1000-8000-00805f9b34fb": "Audio Sink",
		"0000110c-0000-1000-8000-00805f9b34fb": "A/V Remote Control Target",
		"0000110e-0000-1000-8000-00805f9b34fb": "A/V Remote Control",
		"0000111e-0000-1000-8000-00805f9b34fb": "Handsfree",
		"0000180f-0000-1000-8000-00805f9b34fb": "Battery Service",
		"74ec2172-0bad-4d01-8f77-997b2be0722a": "Apple Media Service",
		"d0611e78-bbb4-4591-a5f8-487910ae4366": "Apple Continuity",
	}

	if name, ok := services[uuid]; ok {
		return name
	}
	return "Unknown Service"
}
