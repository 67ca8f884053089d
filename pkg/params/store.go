package params

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Store errors.
var (
	ErrNotFound  = errors.New("parameter not found")
	ErrNotObject = errors.New("path is not an object")
)

// Separator separates path segments.
const Separator = "."

// Type tags used by CWMP parameter values.
const (
	TypeString      = "xsd:string"
	TypeInt         = "xsd:int"
	TypeUnsignedInt = "xsd:unsignedInt"
	TypeBoolean     = "xsd:boolean"
	TypeDateTime    = "xsd:dateTime"
	TypeBase64      = "xsd:base64"
)

// ZeroDateTime is the CWMP "unknown time" literal.
const ZeroDateTime = "0001-01-01T00:00:00Z"

// hiddenRoots are model roots never reported to the ACS.
var hiddenRoots = map[string]bool{
	"DeviceID":          true,
	"Downloads":         true,
	"Tags":              true,
	"Events":            true,
	"Reboot":            true,
	"FactoryReset":      true,
	"VirtualParameters": true,
}

// Record is the attribute record stored for a path.
type Record struct {
	Writable bool
	Value    string
	Type     string
}

// Leaf returns a leaf record.
func Leaf(writable bool, value, typ string) Record {
	return Record{Writable: writable, Value: value, Type: typ}
}

// Object returns a branch record.
func Object(writable bool) Record {
	return Record{Writable: writable}
}

// IsObject reports whether path names a branch node.
func IsObject(path string) bool {
	return strings.HasSuffix(path, Separator)
}

// Store is the parameter store contract used by the dispatcher, the
// diagnostics scheduler and the session engine.
type Store interface {
	// Get returns the record stored at path.
	Get(path string) (Record, bool)

	// Set creates or replaces the record at path.
	Set(path string, rec Record)

	// Has reports whether path exists.
	Has(path string) bool

	// Delete removes path. Deleting a missing path is a no-op.
	Delete(path string)

	// Paths returns all reportable paths in ascending order.
	Paths() []string
}

// MemoryStore is an in-memory Store. Individual calls are safe for
// concurrent use; use a Tx to group calls.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	sorted  []string // cached Paths() result, nil when stale
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get returns the record stored at path.
func (s *MemoryStore) Get(path string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[path]
	return rec, ok
}

// Set creates or replaces the record at path.
func (s *MemoryStore) Set(path string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[path]; !exists {
		s.sorted = nil
	}
	s.records[path] = rec
}

// Has reports whether path exists.
func (s *MemoryStore) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[path]
	return ok
}

// Delete removes path.
func (s *MemoryStore) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[path]; exists {
		delete(s.records, path)
		s.sorted = nil
	}
}

// Paths returns all reportable paths in ascending order. The returned slice
// must not be modified.
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	if s.sorted != nil {
		sorted := s.sorted
		s.mu.RUnlock()
		return sorted
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sorted == nil {
		paths := make([]string, 0, len(s.records))
		for p := range s.records {
			if reportable(p) {
				paths = append(paths, p)
			}
		}
		sort.Strings(paths)
		s.sorted = paths
	}
	return s.sorted
}

// Len returns the number of records, hidden ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns a copy of all records, hidden ones included.
func (s *MemoryStore) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.records))
	for p, r := range s.records {
		out[p] = r
	}
	return out
}

// Clone returns an independent copy of the store.
func (s *MemoryStore) Clone() *MemoryStore {
	return &MemoryStore{records: s.Snapshot()}
}

func reportable(path string) bool {
	if path == "" || path[0] == '_' {
		return false
	}
	root, _, _ := strings.Cut(path, Separator)
	return !hiddenRoots[root]
}

// Value returns the value at path, or fallback when the path is missing.
func Value(s Store, path, fallback string) string {
	if rec, ok := s.Get(path); ok {
		return rec.Value
	}
	return fallback
}

// Int parses the value at path as an integer. Missing paths return fallback;
// unparsable values return 0, which callers treat as out of range.
func Int(s Store, path string, fallback int) int {
	rec, ok := s.Get(path)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(rec.Value))
	if err != nil {
		return 0
	}
	return n
}

// SetValue replaces the value at path, keeping its type and writable flag.
// It reports false when the path does not exist.
func SetValue(s Store, path, value string) bool {
	rec, ok := s.Get(path)
	if !ok {
		return false
	}
	rec.Value = value
	s.Set(path, rec)
	return true
}

// First returns the first of paths present in the store.
func First(s Store, paths ...string) (string, Record, bool) {
	for _, p := range paths {
		if rec, ok := s.Get(p); ok {
			return p, rec, true
		}
	}
	return "", Record{}, false
}

// DeletePrefix removes every path starting with prefix, reportable or not,
// and returns how many were removed.
func DeletePrefix(s Store, prefix string) int {
	var victims []string
	if ms, ok := s.(*MemoryStore); ok {
		ms.mu.RLock()
		for p := range ms.records {
			if strings.HasPrefix(p, prefix) {
				victims = append(victims, p)
			}
		}
		ms.mu.RUnlock()
	} else {
		for _, p := range s.Paths() {
			if strings.HasPrefix(p, prefix) {
				victims = append(victims, p)
			}
		}
	}
	for _, p := range victims {
		s.Delete(p)
	}
	return len(victims)
}

// EnsureObjects creates missing object nodes for every ancestor of path,
// path included when it is itself an object path.
func EnsureObjects(s Store, path string, writable bool) {
	parts := strings.Split(strings.TrimSuffix(path, Separator), Separator)
	if !IsObject(path) {
		parts = parts[:len(parts)-1]
	}
	prefix := ""
	for _, part := range parts {
		prefix += part + Separator
		if !s.Has(prefix) {
			s.Set(prefix, Object(writable))
		}
	}
}

// ZeroValue returns the default value for a type tag.
func ZeroValue(typ string) string {
	switch typ {
	case TypeBoolean:
		return "false"
	case TypeInt, TypeUnsignedInt:
		return "0"
	case TypeDateTime:
		return ZeroDateTime
	default:
		return ""
	}
}

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)
