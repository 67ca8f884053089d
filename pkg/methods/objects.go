package methods

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// Constructor creates one instance under object and returns its number.
type Constructor func(store params.Store, object string) (int, error)

// ObjectConstructors holds AddObject constructors keyed by the device model
// id (the DeviceID.ID value) and then by object path.
type ObjectConstructors map[string]map[string]Constructor

// Register adds a constructor for a model and object path.
func (c ObjectConstructors) Register(modelID, object string, ctor Constructor) {
	if c[modelID] == nil {
		c[modelID] = make(map[string]Constructor)
	}
	c[modelID][object] = ctor
}

// Lookup returns the constructor for the store's model and object, or nil.
func (c ObjectConstructors) Lookup(store params.Store, object string) Constructor {
	if c == nil {
		return nil
	}
	rec, ok := store.Get("DeviceID.ID")
	if !ok {
		return nil
	}
	return c[rec.Value][object]
}

// NextInstance returns the lowest unused instance number under object.
func NextInstance(store params.Store, object string) int {
	n := 1
	for store.Has(object + strconv.Itoa(n) + params.Separator) {
		n++
	}
	return n
}

// CloneInstance allocates the next instance under object and copies the
// shape of every existing instance into it with zero values.
func CloneInstance(store params.Store, object string) int {
	n := NextInstance(store, object)
	instance := object + strconv.Itoa(n)
	store.Set(instance+params.Separator, params.Object(true))

	paths := append([]string(nil), store.Paths()...)
	for _, p := range paths {
		if !strings.HasPrefix(p, object) || len(p) <= len(object) {
			continue
		}
		i := strings.Index(p[len(object):], params.Separator)
		if i < 0 {
			continue
		}
		target := instance + p[len(object)+i:]
		if store.Has(target) {
			continue
		}
		rec, _ := store.Get(p)
		if params.IsObject(p) {
			store.Set(target, params.Object(rec.Writable))
			continue
		}
		store.Set(target, params.Leaf(rec.Writable, params.ZeroValue(rec.Type), rec.Type))
	}
	return n
}

// Field is one leaf created by a table constructor.
type Field struct {
	Name  string
	Type  string
	Value string
}

// PortMappingFields are the standard port mapping leaves of both schemas.
var PortMappingFields = []Field{
	{Name: "PortMappingEnabled", Type: params.TypeBoolean, Value: "false"},
	{Name: "ExternalPort", Type: params.TypeUnsignedInt, Value: "0"},
	{Name: "InternalPort", Type: params.TypeUnsignedInt, Value: "0"},
	{Name: "InternalClient", Type: params.TypeString},
	{Name: "ExternalPortEndRange", Type: params.TypeUnsignedInt, Value: "0"},
	{Name: "PortMappingLeaseDuration", Type: params.TypeUnsignedInt, Value: "0"},
	{Name: "PortMappingDescription", Type: params.TypeString},
}

// PortMappingFieldsTR181 are the Device.NAT.PortMapping leaves.
var PortMappingFieldsTR181 = []Field{
	{Name: "Enable", Type: params.TypeBoolean, Value: "false"},
	{Name: "Alias", Type: params.TypeString},
	{Name: "Interface", Type: params.TypeString},
	{Name: "RemoteHost", Type: params.TypeString},
	{Name: "Protocol", Type: params.TypeString},
	{Name: "ExternalPort", Type: params.TypeUnsignedInt, Value: "0"},
	{Name: "ExternalPortEndRange", Type: params.TypeUnsignedInt, Value: "0"},
	{Name: "InternalPort", Type: params.TypeUnsignedInt, Value: "0"},
	{Name: "InternalClient", Type: params.TypeString},
	{Name: "LeaseDuration", Type: params.TypeUnsignedInt, Value: "0"},
	{Name: "Description", Type: params.TypeString},
}

// PortMapping returns a constructor creating a writable port mapping entry
// with fields, and keeping the sibling PortMappingNumberOfEntries in step.
func PortMapping(fields []Field) Constructor {
	return func(store params.Store, object string) (int, error) {
		trimmed := strings.TrimSuffix(object, params.Separator)
		cut := strings.LastIndex(trimmed, params.Separator)
		if cut < 0 {
			return 0, fmt.Errorf("port mapping object %q has no parent", object)
		}
		parent := trimmed[:cut+1]

		n := NextInstance(store, object)
		instance := object + strconv.Itoa(n) + params.Separator
		store.Set(instance, params.Object(true))
		params.SetValue(store, parent+"PortMappingNumberOfEntries", strconv.Itoa(n))
		for _, f := range fields {
			store.Set(instance+f.Name, params.Leaf(true, f.Value, f.Type))
		}
		return n, nil
	}
}

func arrayType(elem string, n int) string {
	return elem + "[" + strconv.Itoa(n) + "]"
}

// portMappingObjects are the port mapping tables of both schemas.
var portMappingObjects = []struct {
	object string
	fields []Field
}{
	{params.RootTR181 + "NAT.PortMapping.", PortMappingFieldsTR181},
	{params.RootTR098 + "WANDevice.1.WANConnectionDevice.1.WANIPConnection.1.PortMapping.", PortMappingFields},
	{params.RootTR098 + "WANDevice.1.WANConnectionDevice.1.WANPPPConnection.1.PortMapping.", PortMappingFields},
}

// BuiltinConstructors registers the port mapping constructor for every
// port mapping table present in store, under the store's model id.
func BuiltinConstructors(store params.Store) ObjectConstructors {
	ctors := ObjectConstructors{}
	rec, ok := store.Get("DeviceID.ID")
	if !ok {
		return ctors
	}
	for _, pm := range portMappingObjects {
		if store.Has(pm.object) {
			ctors.Register(rec.Value, pm.object, PortMapping(pm.fields))
		}
	}
	return ctors
}

// Merge adds the constructors of other that c does not already define.
func (c ObjectConstructors) Merge(other ObjectConstructors) {
	for model, objects := range other {
		for object, ctor := range objects {
			if c[model][object] == nil {
				c.Register(model, object, ctor)
			}
		}
	}
}
