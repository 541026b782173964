package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"budwatch/internal/podstate"
)

func TestRecorder_WritesInOrder(t *testing.T) {
	s := testStore(t)
	r := NewRecorder(s, func() string { return "session-a" }, slog.New(slog.NewTextHandler(io.Discard, nil)))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	r.Start()
	for i := 0; i < 5; i++ {
		r.HandleStatus(podstate.DeviceStatus{Connected: i%2 == 0, LeftBattery: i * 10, Model: fmt.Sprintf("buds-%d", i)})
	}
	r.Close()

	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(entries))
	}
	// Newest first.
	for i, e := range entries {
		want := 4 - i
		if e.Status.Model != fmt.Sprintf("buds-%d", want) {
			t.Errorf("entries[%d].Model = %q, want buds-%d", i, e.Status.Model, want)
		}
		if e.SessionID != "session-a" {
			t.Errorf("entries[%d].SessionID = %q, want session-a", i, e.SessionID)
		}
		if !e.Time.Equal(base.Add(time.Duration(want+1) * time.Second)) {
			t.Errorf("entries[%d].Time = %v, want handle time", i, e.Time)
		}
	}
}

func TestRecorder_FullQueueDoesNotBlock(t *testing.T) {
	s := testStore(t)
	r := newRecorder(s, func() string { return "session-b" }, slog.New(slog.NewTextHandler(io.Discard, nil)), 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			r.HandleStatus(podstate.DeviceStatus{Connected: true})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleStatus blocked on a full queue")
	}
	if got := r.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}

	r.Start()
	r.Close()
	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want the 2 queued", len(entries))
	}
}

func TestRecorder_HandleAfterClose(t *testing.T) {
	s := testStore(t)
	r := NewRecorder(s, func() string { return "session-c" }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Start()
	r.Close()
	r.Close()

	r.HandleStatus(podstate.DeviceStatus{Connected: true})

	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries after Close, want 0", len(entries))
	}
}
