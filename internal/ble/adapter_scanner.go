package ble

import (
	"context"
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// AdapterScanner reads advertisements through tinygo.org/x/bluetooth.
type AdapterScanner struct {
	adapter *bluetooth.Adapter
}

// NewAdapterScanner creates a scanner for the given adapter ID (e.g. "hci0").
func NewAdapterScanner(id string) *AdapterScanner {
	if id == "" {
		return &AdapterScanner{adapter: bluetooth.DefaultAdapter}
	}
	return &AdapterScanner{adapter: bluetooth.NewAdapter(id)}
}

// Run enables the adapter and scans until ctx is cancelled.
func (s *AdapterScanner) Run(ctx context.Context, handle func(RawAdvertisement)) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	// A scan left over from a previous run makes BlueZ reject a new one.
	_ = s.adapter.StopScan()

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- s.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
			handle(advertisementFromScan(res.Address.String(), res.LocalName(), res.RSSI, res.ManufacturerData()))
		})
	}()

	select {
	case <-ctx.Done():
		if err := s.adapter.StopScan(); err != nil {
			return fmt.Errorf("failed to stop scan: %w", err)
		}
		<-scanErr
		return nil
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		return fmt.Errorf("scan ended unexpectedly")
	}
}

// Close stops any running scan.
func (s *AdapterScanner) Close() error {
	_ = s.adapter.StopScan()
	return nil
}

func advertisementFromScan(address, name string, rssi int16, mfg []bluetooth.ManufacturerDataElement) RawAdvertisement {
	adv := RawAdvertisement{
		Address: strings.ToUpper(address),
		Name:    strings.TrimSpace(name),
		RSSI:    int(rssi),
	}
	if len(mfg) > 0 {
		adv.ManufacturerData = make(map[uint16][]byte, len(mfg))
		for _, m := range mfg {
			adv.ManufacturerData[m.CompanyID] = append([]byte(nil), m.Data...)
		}
	}
	return adv
}
