package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"budwatch/internal/ble"
	"budwatch/internal/podstate"
)

// fakeSource delivers a fixed batch of advertisements per Run call, then
// either fails or blocks until the context is done.
type fakeSource struct {
	mu      sync.Mutex
	batches [][]ble.RawAdvertisement
	runs    int
	failErr error
}

func (f *fakeSource) Run(ctx context.Context, handle func(ble.RawAdvertisement)) error {
	f.mu.Lock()
	run := f.runs
	f.runs++
	var batch []ble.RawAdvertisement
	if run < len(f.batches) {
		batch = f.batches[run]
	}
	last := run >= len(f.batches)-1
	f.mu.Unlock()

	for _, adv := range batch {
		handle(adv)
	}
	if !last && f.failErr != nil {
		return f.failErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func vendorAdv(address string) ble.RawAdvertisement {
	return ble.RawAdvertisement{
		Address:          address,
		ManufacturerData: map[uint16][]byte{ble.AppleCompanyID: {0, 0, 0, 0, 0, 0, 0x75, 0x03, 0x30}},
	}
}

func TestSession_Run(t *testing.T) {
	src := &fakeSource{batches: [][]ble.RawAdvertisement{{
		vendorAdv("AA:AA"),
		vendorAdv("AA:AA"),
		{Address: "BB:BB", Name: "Thermometer"},
		{Address: "CC:CC", Name: "Galaxy Buds"},
	}}}
	tracker := podstate.NewTracker(nil, testLogger())

	var (
		mu       sync.Mutex
		statuses []podstate.DeviceStatus
	)
	tracker.RegisterCallback(func(s podstate.DeviceStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	session := NewSession(src, tracker, Options{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	waitFor(t, func() bool { return session.Stats().Seen == 4 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	stats := session.Stats()
	if stats.Updates != 2 || stats.Suppressed != 2 {
		t.Errorf("Stats() = %+v, want 2 updates and 2 suppressed", stats)
	}
	if stats.SessionID == "" {
		t.Error("Stats().SessionID is empty")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 3 {
		t.Fatalf("got %d statuses, want 3 (two updates and the disconnect)", len(statuses))
	}
	last := statuses[len(statuses)-1]
	if last.Connected {
		t.Error("final status Connected = true, want false after session end")
	}
	if last.Model != "Galaxy Buds" {
		t.Errorf("final status Model = %q, want Galaxy Buds", last.Model)
	}
}

func TestSession_RetriesFailedSource(t *testing.T) {
	src := &fakeSource{
		batches: [][]ble.RawAdvertisement{{vendorAdv("AA:AA")}, {vendorAdv("AA:AA")}},
		failErr: errors.New("adapter gone"),
	}
	tracker := podstate.NewTracker(nil, testLogger())
	session := NewSession(src, tracker, Options{RetryInterval: time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	waitFor(t, func() bool { return src.Runs() == 2 && session.Stats().Seen == 2 })
	cancel()
	<-done

	stats := session.Stats()
	if stats.Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", stats.Restarts)
	}
	// A restart is not a new session, so the repeated address stays suppressed.
	if stats.Updates != 1 {
		t.Errorf("Updates = %d, want 1", stats.Updates)
	}
}

func TestSession_NewSessionResetsDedup(t *testing.T) {
	tracker := podstate.NewTracker(nil, testLogger())

	for i := 0; i < 2; i++ {
		src := &fakeSource{batches: [][]ble.RawAdvertisement{{vendorAdv("AA:AA")}}}
		session := NewSession(src, tracker, Options{}, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- session.Run(ctx) }()
		waitFor(t, func() bool { return session.Stats().Seen == 1 })
		cancel()
		<-done

		if got := session.Stats().Updates; got != 1 {
			t.Errorf("session %d: Updates = %d, want 1", i, got)
		}
	}
}

func TestNewSessionID(t *testing.T) {
	a, b := newSessionID(), newSessionID()
	if a == b {
		t.Errorf("newSessionID() returned %q twice", a)
	}
	if a > b {
		t.Errorf("newSessionID() not time ordered: %q > %q", a, b)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}
