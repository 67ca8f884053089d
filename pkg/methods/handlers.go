package methods

import (
	"strings"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

func invalidArguments(err error) *cwmp.Fault {
	return cwmp.NewFault(cwmp.FaultInvalidArguments, "Invalid arguments: %v", err)
}

func invalidName(path string) *cwmp.Fault {
	return cwmp.NewFault(cwmp.FaultInvalidParameterName, "Invalid parameter name %s", path)
}

// GetParameterNames lists paths under ParameterPath. With NextLevel only
// direct children are returned: entries whose remainder past the prefix has
// no separator, or only a trailing one.
func GetParameterNames(env *Env, req *cwmp.Envelope) (cwmp.Message, error) {
	var in cwmp.GetParameterNames
	if err := req.DecodeBody(&in); err != nil {
		return nil, invalidArguments(err)
	}
	prefix := in.ParameterPath
	if prefix != "" && !env.Store.Has(prefix) {
		return nil, invalidName(prefix)
	}

	var items []cwmp.ParameterInfoStruct
	for _, p := range env.Store.Paths() {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if in.NextLevel && !isNextLevel(p, prefix) {
			continue
		}
		rec, _ := env.Store.Get(p)
		items = append(items, cwmp.ParameterInfoStruct{Name: p, Writable: rec.Writable})
	}

	return &cwmp.GetParameterNamesResponse{
		ParameterList: cwmp.ParameterInfoList{
			ArrayType: arrayType("cwmp:ParameterInfoStruct", len(items)),
			Items:     items,
		},
	}, nil
}

func isNextLevel(path, prefix string) bool {
	if len(path) <= len(prefix)+1 {
		return false
	}
	i := strings.Index(path[len(prefix)+1:], params.Separator)
	if i < 0 {
		return true
	}
	return len(prefix)+1+i == len(path)-1
}

// GetParameterValues returns name, value and type for each requested path.
// A path ending with "." expands to every leaf below it.
func GetParameterValues(env *Env, req *cwmp.Envelope) (cwmp.Message, error) {
	var in cwmp.GetParameterValues
	if err := req.DecodeBody(&in); err != nil {
		return nil, invalidArguments(err)
	}

	var values []cwmp.ParameterValueStruct
	for _, name := range in.ParameterNames.Items {
		name = strings.TrimSpace(name)
		if !params.IsObject(name) {
			rec, ok := env.Store.Get(name)
			if !ok {
				return nil, invalidName(name)
			}
			values = append(values, valueStruct(name, rec))
			continue
		}

		if name != "" && !env.Store.Has(name) {
			return nil, invalidName(name)
		}
		for _, p := range env.Store.Paths() {
			if !strings.HasPrefix(p, name) || params.IsObject(p) {
				continue
			}
			rec, _ := env.Store.Get(p)
			values = append(values, valueStruct(p, rec))
		}
	}

	return &cwmp.GetParameterValuesResponse{
		ParameterList: cwmp.NewParameterValueList(values),
	}, nil
}

func valueStruct(name string, rec params.Record) cwmp.ParameterValueStruct {
	return cwmp.ParameterValueStruct{
		Name:  name,
		Value: cwmp.ParameterValue{Type: rec.Type, Value: rec.Value},
	}
}

// SetParameterValues applies every write, then hands the written paths to
// the diagnostics transitions. Unknown names fault with 9005 before anything
// is applied.
func SetParameterValues(env *Env, req *cwmp.Envelope) (cwmp.Message, error) {
	var in cwmp.SetParameterValues
	if err := req.DecodeBody(&in); err != nil {
		return nil, invalidArguments(err)
	}

	for _, item := range in.ParameterList.Items {
		if params.IsObject(item.Name) || !env.Store.Has(item.Name) {
			return nil, invalidName(item.Name)
		}
	}

	written := params.NewWriteSet()
	for _, item := range in.ParameterList.Items {
		rec, _ := env.Store.Get(item.Name)
		rec.Value = item.Value.Value
		if item.Value.Type != "" {
			rec.Type = item.Value.Type
		}
		env.Store.Set(item.Name, rec)
		written.Add(item.Name)
	}

	if in.ParameterKey != "" {
		schema := params.DetectSchema(env.Store)
		params.SetValue(env.Store, schema.Root()+"ManagementServer.ParameterKey", in.ParameterKey)
	}

	if env.Transitions != nil {
		env.Transitions(env.Store, written)
	}

	return &cwmp.SetParameterValuesResponse{Status: 0}, nil
}

// AddObject creates a new instance of an object. A constructor registered
// for the device model takes precedence over the generic clone.
func AddObject(env *Env, req *cwmp.Envelope) (cwmp.Message, error) {
	var in cwmp.AddObject
	if err := req.DecodeBody(&in); err != nil {
		return nil, invalidArguments(err)
	}
	object := in.ObjectName
	if !params.IsObject(object) || !env.Store.Has(object) {
		return nil, invalidName(object)
	}

	var (
		instance int
		err      error
	)
	if ctor := env.Constructors.Lookup(env.Store, object); ctor != nil {
		instance, err = ctor(env.Store, object)
		if err != nil {
			return nil, err
		}
	} else {
		instance = CloneInstance(env.Store, object)
	}

	return &cwmp.AddObjectResponse{InstanceNumber: instance, Status: 0}, nil
}

// DeleteObject removes every path starting with the object name.
func DeleteObject(env *Env, req *cwmp.Envelope) (cwmp.Message, error) {
	var in cwmp.DeleteObject
	if err := req.DecodeBody(&in); err != nil {
		return nil, invalidArguments(err)
	}
	if !params.IsObject(in.ObjectName) || !env.Store.Has(in.ObjectName) {
		return nil, invalidName(in.ObjectName)
	}

	params.DeletePrefix(env.Store, in.ObjectName)
	return &cwmp.DeleteObjectResponse{Status: 0}, nil
}
