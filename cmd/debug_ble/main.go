// debug_ble is a debugging tool that dumps every BLE advertisement BlueZ
// reports together with its classification.
//
// Vendor beacons are decoded in place, so the raw bytes can be compared with
// the decoded battery levels. Unlike ble_scan nothing is deduplicated.
//
// Usage:
//
//	go run ./cmd/debug_ble [-adapter hci0] [-all]
//
// Without -all only advertisements that match the classifier are printed.
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
)

func main() {
	adapter := flag.String("adapter", "hci0", "Bluetooth adapter")
	all := flag.Bool("all", false, "print advertisements that do not match")
	flag.Parse()

	log.Println("=== BLE Advertisement Dump ===")

	scanner, err := ble.NewScanner(*adapter)
	if err != nil {
		log.Fatalf("Failed to create scanner: %v", err)
	}
	defer scanner.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	classifier := ble.NewClassifier(nil)
	log.Printf("Keywords: %v", classifier.Keywords())
	log.Println()

	err = scanner.Run(ctx, func(adv ble.RawAdvertisement) {
		outcome := classifier.Classify(adv)
		if outcome.Kind == ble.KindNoMatch && !*all {
			return
		}

		fmt.Printf("[%s] %s\n", outcome.Kind, adv)
		if outcome.Kind != ble.KindVendorBeacon {
			return
		}

		reading, err := ble.Decode(outcome.Payload)
		if err != nil {
			fmt.Printf("  ⚠️  %v\n", err)
			return
		}
		fmt.Println(reading.String())
		fmt.Println()
	})
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
	log.Println("Stopping scanner...")
}
