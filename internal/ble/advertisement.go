package ble

import "context"

// AppleCompanyID is the Bluetooth SIG company identifier whose
// manufacturer data is decoded as an earbuds status beacon.
const AppleCompanyID = 0x004C

// RawAdvertisement is one advertisement as delivered by a scanner.
type RawAdvertisement struct {
	// Address identifies the device for the duration of a scan session.
	Address string
	// Name is the advertised or cached device name; empty if absent.
	Name string
	// RSSI is informational only.
	RSSI int
	// ManufacturerData maps company IDs to their payloads.
	ManufacturerData map[uint16][]byte
}

// VendorPayload returns the payload advertised under AppleCompanyID.
func (a RawAdvertisement) VendorPayload() ([]byte, bool) {
	payload, ok := a.ManufacturerData[AppleCompanyID]
	return payload, ok
}

// Source delivers advertisements to a handler.
//
// Run blocks until ctx is cancelled or scanning fails. The handler is called
// from a single goroutine, one advertisement at a time, in receipt order.
type Source interface {
	Run(ctx context.Context, handle func(RawAdvertisement)) error
	Close() error
}
