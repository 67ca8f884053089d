package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/log"
)

func TestRunFilter(t *testing.T) {
	events := append(sampleSession(), sampleSessionAt(baseTime.Add(time.Hour))...)
	for i := 5; i < len(events); i++ {
		events[i].DeviceID = "SIM000002"
		if events[i].SessionID != "" {
			events[i].SessionID = "cafe0000-2222"
		}
	}
	path := createTestLogFile(t, events)
	out := filepath.Join(t.TempDir(), "filtered"+log.FileExtension)

	n, err := RunFilter(path, out, FilterOptions{DeviceID: "SIM000002", Category: "message"})
	if err != nil {
		t.Fatalf("RunFilter: %v", err)
	}
	if n != 4 {
		t.Errorf("wrote %d events, want 4", n)
	}

	got, err := log.ReadAll(out, log.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range got {
		if e.DeviceID != "SIM000002" {
			t.Errorf("unexpected device %q", e.DeviceID)
		}
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	f, err := FilterOptions{
		TimeStart: "2026-01-28T10:00:00Z",
		TimeEnd:   "2026-01-28T11:00:00Z",
		Direction: "in",
		Layer:     "session",
	}.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if f.TimeStart == nil || f.TimeEnd == nil || f.Direction == nil || f.Layer == nil {
		t.Fatalf("incomplete filter: %+v", f)
	}
	if *f.Layer != log.LayerSession {
		t.Errorf("Layer = %v", *f.Layer)
	}

	if _, err := (FilterOptions{TimeStart: "yesterday"}).Build(); err == nil {
		t.Error("expected error for bad time")
	}
	if _, err := (FilterOptions{Category: "snapshot"}).Build(); err == nil {
		t.Error("expected error for bad category")
	}
}
