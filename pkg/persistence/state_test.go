package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

func testStore() *params.MemoryStore {
	s := params.NewMemoryStore()
	s.Set("Device.", params.Object(false))
	s.Set("Device.DeviceInfo.", params.Object(false))
	s.Set("Device.DeviceInfo.SerialNumber", params.Leaf(false, "SN-1", "xsd:string"))
	s.Set("Device.NAT.PortMapping.", params.Object(true))
	s.Set("Device.NAT.PortMapping.1.", params.Object(true))
	s.Set("Device.NAT.PortMapping.1.Enable", params.Leaf(true, "true", "xsd:boolean"))
	return s
}

func TestDeviceStateStore(t *testing.T) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		store := NewDeviceStateStore(filepath.Join(t.TempDir(), "dev", "state.json"))

		if err := store.Save(Capture(testStore(), "SN-1")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Version != StateVersion {
			t.Errorf("Version = %d, want %d", got.Version, StateVersion)
		}
		if got.SerialNumber != "SN-1" {
			t.Errorf("SerialNumber = %q, want SN-1", got.SerialNumber)
		}
		if got.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
		if len(got.Parameters) != 6 {
			t.Fatalf("len(Parameters) = %d, want 6", len(got.Parameters))
		}
		if got.Parameters[0].Path != "Device." {
			t.Errorf("Parameters[0] = %q, want Device.", got.Parameters[0].Path)
		}
	})

	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewDeviceStateStore(filepath.Join(t.TempDir(), "nonexistent.json"))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("LoadCorrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewDeviceStateStore(path).Load(); err == nil {
			t.Error("Load() should fail on corrupt file")
		}
	})

	t.Run("LoadWrongVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := NewDeviceStateStore(path).Load()
		if !errors.Is(err, ErrVersion) {
			t.Errorf("Load() error = %v, want ErrVersion", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewDeviceStateStore(filepath.Join(t.TempDir(), "state.json"))
		if err := store.Save(Capture(testStore(), "")); err != nil {
			t.Fatal(err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
			t.Error("state file still exists after Clear()")
		}
		if err := store.Clear(); err != nil {
			t.Errorf("second Clear() error = %v", err)
		}
	})
}

func TestApply(t *testing.T) {
	saved := testStore()
	saved.Set("Device.NAT.PortMapping.1.Enable", params.Leaf(true, "false", "xsd:boolean"))
	saved.Delete("Device.NAT.PortMapping.1.Enable")
	saved.Delete("Device.NAT.PortMapping.1.")
	saved.Set("Device.NAT.PortMapping.2.", params.Object(true))
	state := Capture(saved, "SN-1")

	target := testStore()
	state.Apply(target)

	if target.Has("Device.NAT.PortMapping.1.") {
		t.Error("deleted instance restored")
	}
	if !target.Has("Device.NAT.PortMapping.2.") {
		t.Error("added instance missing")
	}
	rec, ok := target.Get("Device.DeviceInfo.SerialNumber")
	if !ok || rec.Value != "SN-1" || rec.Writable {
		t.Errorf("SerialNumber = %+v, %v", rec, ok)
	}
}
