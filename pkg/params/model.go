package params

import (
	"embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed models/*.yaml
var builtinModels embed.FS

// ModelFile is the YAML layout of a device model.
type ModelFile struct {
	// Name is a free-form model name.
	Name string `yaml:"name"`

	// Parameters lists every node of the tree. Object paths end with ".".
	Parameters []ModelParameter `yaml:"parameters"`
}

// ModelParameter is one node of a device model.
type ModelParameter struct {
	Path     string `yaml:"path"`
	Writable bool   `yaml:"writable,omitempty"`
	Value    string `yaml:"value,omitempty"`
	Type     string `yaml:"type,omitempty"`
}

// ModelError reports a malformed device model.
type ModelError struct {
	Source  string
	Message string
	Cause   error
}

func (e *ModelError) Error() string {
	msg := e.Message
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// LoadModel parses a YAML device model into a new MemoryStore.
func LoadModel(r io.Reader) (*MemoryStore, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ModelError{Message: "failed to read model", Cause: err}
	}
	return parseModel(data)
}

// LoadModelFile loads a YAML device model from disk.
func LoadModelFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ModelError{Source: path, Message: "failed to read file", Cause: err}
	}
	store, err := parseModel(data)
	if err != nil {
		if me, ok := err.(*ModelError); ok {
			me.Source = path
		}
		return nil, err
	}
	return store, nil
}

// BuiltinModel loads one of the models shipped with the simulator
// ("tr181", "tr098").
func BuiltinModel(name string) (*MemoryStore, error) {
	data, err := builtinModels.ReadFile("models/" + name + ".yaml")
	if err != nil {
		return nil, &ModelError{Source: name, Message: "unknown builtin model", Cause: err}
	}
	store, err := parseModel(data)
	if err != nil {
		if me, ok := err.(*ModelError); ok {
			me.Source = name
		}
		return nil, err
	}
	return store, nil
}

// BuiltinModels returns the names of the shipped models.
func BuiltinModels() []string {
	entries, _ := builtinModels.ReadDir("models")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

func parseModel(data []byte) (*MemoryStore, error) {
	var mf ModelFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, &ModelError{Message: "failed to parse YAML", Cause: err}
	}
	if len(mf.Parameters) == 0 {
		return nil, &ModelError{Message: "model has no parameters"}
	}

	store := NewMemoryStore()
	for i, p := range mf.Parameters {
		if p.Path == "" {
			return nil, &ModelError{Message: fmt.Sprintf("parameter %d has no path", i)}
		}
		if IsObject(p.Path) {
			store.Set(p.Path, Object(p.Writable))
			continue
		}
		typ := p.Type
		if typ == "" {
			typ = TypeString
		}
		store.Set(p.Path, Leaf(p.Writable, p.Value, typ))
	}
	return store, nil
}

// DumpModel writes the store as a YAML device model.
func DumpModel(w io.Writer, name string, s *MemoryStore) error {
	snap := s.Snapshot()
	paths := make([]string, 0, len(snap))
	for p := range snap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	mf := ModelFile{Name: name}
	for _, p := range paths {
		rec := snap[p]
		mp := ModelParameter{Path: p, Writable: rec.Writable}
		if !IsObject(p) {
			mp.Value = rec.Value
			mp.Type = rec.Type
		}
		mf.Parameters = append(mf.Parameters, mp)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&mf); err != nil {
		return err
	}
	return enc.Close()
}
