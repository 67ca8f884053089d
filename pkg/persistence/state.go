package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrVersion is returned when a state file has an unknown format version.
var ErrVersion = errors.New("unsupported state version")

// DeviceState is the saved runtime state of one simulated device.
type DeviceState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// SerialNumber identifies the device the state belongs to.
	SerialNumber string `json:"serial_number,omitempty"`

	// Parameters holds every reportable path in ascending order.
	Parameters []Parameter `json:"parameters"`
}

// Parameter is one saved store record.
type Parameter struct {
	Path     string `json:"path"`
	Value    string `json:"value,omitempty"`
	Type     string `json:"type,omitempty"`
	Writable bool   `json:"writable,omitempty"`
}

// Capture copies the reportable records of store. The caller guards store.
func Capture(store params.Store, serial string) *DeviceState {
	paths := store.Paths()
	state := &DeviceState{
		Version:      StateVersion,
		SerialNumber: serial,
		Parameters:   make([]Parameter, 0, len(paths)),
	}
	for _, p := range paths {
		rec, ok := store.Get(p)
		if !ok {
			continue
		}
		state.Parameters = append(state.Parameters, Parameter{
			Path:     p,
			Value:    rec.Value,
			Type:     rec.Type,
			Writable: rec.Writable,
		})
	}
	return state
}

// Apply replaces the reportable records of store with the saved ones.
// Paths missing from the state are removed, so deleted object instances
// stay deleted. The caller guards store.
func (s *DeviceState) Apply(store params.Store) {
	saved := make(map[string]bool, len(s.Parameters))
	for _, p := range s.Parameters {
		saved[p.Path] = true
	}
	for _, p := range append([]string(nil), store.Paths()...) {
		if !saved[p] {
			store.Delete(p)
		}
	}
	for _, p := range s.Parameters {
		store.Set(p.Path, params.Record{Writable: p.Writable, Value: p.Value, Type: p.Type})
	}
}

// DeviceStateStore manages persistence of device state to a JSON file.
type DeviceStateStore struct {
	mu   sync.Mutex
	path string
}

// NewDeviceStateStore creates a new device state store.
func NewDeviceStateStore(path string) *DeviceStateStore {
	return &DeviceStateStore{path: path}
}

// Path returns the state file path.
func (s *DeviceStateStore) Path() string {
	return s.path
}

// Save persists the device state to disk.
func (s *DeviceStateStore) Save(state *DeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so a crash never leaves a truncated file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the device state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *DeviceStateStore) Load() (*DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &DeviceState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	if state.Version != StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, state.Version)
	}

	return state, nil
}

// Clear removes the state file.
func (s *DeviceStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
