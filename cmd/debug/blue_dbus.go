// debug checks the BlueZ battery provider end to end without scanning.
//
// The tracker is driven with SimulateConnection and MarkDisconnected, and
// the provider reacts through its status callback exactly as in the daemon.
// Watch GNOME Settings (or `upower -d`) while it runs.
//
// Usage:
//
//	go run ./cmd/debug full
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"budwatch/internal/ble"
	"budwatch/internal/bluez"
	"budwatch/internal/podstate"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: debug <command>")
		fmt.Println("\nCommands:")
		fmt.Println("  full           - Full integration test")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "full":
		testFullIntegration()
	default:
		log.Fatalf("Unknown command: %s", os.Args[1])
	}
}

func testFullIntegration() {
	log.Println("=== Testing Battery Provider Integration ===")

	classifier := ble.NewClassifier(nil)

	log.Println("\n1. Creating battery provider...")
	provider, err := bluez.NewBatteryProvider("hci0", classifier, nil)
	if err != nil {
		log.Fatalf("Failed to create provider: %v", err)
	}
	defer provider.Close()
	log.Println("   Provider created successfully")

	log.Println("\n2. Discovering device using provider's connection...")
	device, err := provider.DiscoverDevice()
	if err != nil {
		log.Printf("   No connected earbuds found: %v", err)
		return
	}
	log.Printf("   Found: %s", device)

	tracker := podstate.NewTracker(classifier, nil)
	tracker.RegisterCallback(provider.HandleStatus)

	log.Println("\n3. Simulating connection (85/90/100)...")
	status := tracker.SimulateConnection()
	log.Printf("   Status: %s", status)
	log.Println("   CHECK GNOME SETTINGS - Battery should show 85%")

	log.Println("\n4. Waiting 3 seconds before disconnecting...")
	time.Sleep(3 * time.Second)

	log.Println("\n5. Marking disconnected...")
	status = tracker.MarkDisconnected()
	log.Printf("   Status: %s", status)
	log.Println("   CHECK GNOME SETTINGS - Battery should disappear")

	log.Println("\n6. Waiting 3 seconds before reconnecting...")
	time.Sleep(3 * time.Second)

	log.Println("\n7. Simulating connection again...")
	tracker.SimulateConnection()
	log.Println("   CHECK GNOME SETTINGS - Battery should reappear at 85%")

	log.Println("\n8. Updating battery directly to 40%...")
	if err := provider.UpdateBatteryPercentage(bluez.EarbudsBattery, 40); err != nil {
		log.Printf("   ERROR: Failed to update battery! %v", err)
		return
	}
	log.Println("   CHECK GNOME SETTINGS - Battery should now show 40%")

	log.Println("\n9. Keeping provider alive for 30 seconds")
	time.Sleep(30 * time.Second)
}
