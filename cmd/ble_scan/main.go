// ble_scan prints every earbuds status update seen over BLE.
//
// Usage:
//
//	go run ./cmd/ble_scan [-adapter hci0] [-backend bluez|adapter]
//
// Press Ctrl+C to stop scanning.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"budwatch/internal/ble"
	"budwatch/internal/podstate"
	"budwatch/internal/scan"
)

func main() {
	adapter := flag.String("adapter", "hci0", "Bluetooth adapter")
	backend := flag.String("backend", "bluez", "advertisement source: bluez or adapter")
	flag.Parse()

	log.Println("=== Earbuds BLE Scanner ===")
	log.Println("Scanning for earbuds advertisements (passive, no connection required)")
	log.Println()

	src, err := newSource(*backend, *adapter)
	if err != nil {
		log.Fatalf("Failed to create scanner: %v", err)
	}
	defer src.Close()

	tracker := podstate.NewTracker(ble.NewClassifier(nil), nil)
	tracker.RegisterCallback(func(status podstate.DeviceStatus) {
		fmt.Println()
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println(status.String())
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("✓ Scanning for earbuds advertisements...")
	log.Println("  (This works even if the earbuds are connected to another device)")

	session := scan.NewSession(src, tracker, scan.Options{}, nil)
	if err := session.Run(ctx); err != nil {
		log.Fatalf("Scan failed: %v", err)
	}

	stats := session.Stats()
	log.Printf("Stopped: %d advertisements, %d updates", stats.Seen, stats.Updates)
}

func newSource(backend, adapter string) (ble.Source, error) {
	switch backend {
	case "bluez":
		return ble.NewScanner(adapter)
	case "adapter":
		return ble.NewAdapterScanner(adapter), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
