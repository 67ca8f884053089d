package diagnostics

import (
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// Diagnostic names.
const (
	Ping       = "ping"
	TraceRoute = "traceroute"
	SpeedTest  = "speedtest"
	SiteSurvey = "sitesurvey"
)

// Run is what a result function works on.
type Run struct {
	Store  params.Store
	Root   string
	Schema params.Schema

	// Now is the completion time.
	Now time.Time

	// Duration is how long the simulated test ran.
	Duration time.Duration

	Config Config
}

// Set writes a leaf value under the diagnostic root when it exists.
func (r *Run) Set(field, value string) bool {
	return params.SetValue(r.Store, r.Root+field, value)
}

// Int reads an integer leaf under the diagnostic root.
func (r *Run) Int(field string, fallback int) int {
	return params.Int(r.Store, r.Root+field, fallback)
}

// ResultFunc writes the results of a finished run.
type ResultFunc func(r *Run)

// setState returns a result that only writes DiagnosticsState.
func setState(value string) ResultFunc {
	return func(r *Run) {
		r.Set(stateField, value)
	}
}

// Definition describes one diagnostic.
type Definition struct {
	Name string

	// RootTR098 and RootTR181 are the object paths of the diagnostic in each
	// schema. An empty root means the schema has no such diagnostic.
	RootTR098 string
	RootTR181 string

	// ConfigFields are the test parameters whose write resets the state.
	ConfigFields []string

	// Validate returns the error state selected by the first violated
	// bound, or "" when the parameters are valid.
	Validate func(store params.Store, root string) string

	// Duration optionally overrides the simulated run length.
	Duration func(store params.Store, root string, cfg Config) time.Duration

	// Results maps result keys to result functions. ResultDefault is
	// required.
	Results map[string]ResultFunc
}

// Root returns the diagnostic root for schema.
func (d *Definition) Root(schema params.Schema) string {
	return schema.Pick(d.RootTR098, d.RootTR181)
}

// ResultKeys returns the selectable result keys.
func (d *Definition) ResultKeys() []string {
	keys := make([]string, 0, len(d.Results))
	for k := range d.Results {
		keys = append(keys, k)
	}
	return keys
}

// Builtin returns the four standard diagnostics.
func Builtin() []*Definition {
	return []*Definition{
		PingDefinition(),
		TraceRouteDefinition(),
		SiteSurveyDefinition(),
		SpeedTestDefinition(),
	}
}

// errorResult clears previous results and writes the error state,
// ErrorInternal when state is empty.
func errorResult(state string, clear func(r *Run)) ResultFunc {
	if state == "" {
		state = ErrorInternal
	}
	return func(r *Run) {
		if clear != nil {
			clear(r)
		}
		r.Set(stateField, state)
	}
}

func alwaysValid(params.Store, string) string {
	return ""
}
