package diagnostics

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// Trace route result keys.
const (
	ResultMaxHopCountExceeded = ErrorMaxHopCountExceeded
)

// defaultHops is the route length of a successful trace.
const defaultHops = 8

// TraceRouteDefinition returns the trace route diagnostic.
func TraceRouteDefinition() *Definition {
	return &Definition{
		Name:      TraceRoute,
		RootTR098: params.RootTR098 + "TraceRouteDiagnostics.",
		RootTR181: params.RootTR181 + "IP.Diagnostics.TraceRoute.",
		ConfigFields: []string{
			"Interface", "Host", "NumberOfTries", "Timeout", "DataBlockSize", "DSCP", "MaxHopCount",
		},
		Validate: validateTraceRoute,
		Results: map[string]ResultFunc{
			ResultDefault:             func(r *Run) { traceHops(r, false) },
			ResultMaxHopCountExceeded: func(r *Run) { traceHops(r, true) },
			ResultError:               errorResult("", clearHops),
		},
	}
}

func validateTraceRoute(store params.Store, root string) string {
	host := params.Value(store, root+"Host", "")
	if host == "" || len(host) > 256 {
		return ErrorCannotResolveHostName
	}

	iface := params.Value(store, root+"Interface", "")
	tries := params.Int(store, root+"NumberOfTries", 1)
	timeout := params.Int(store, root+"Timeout", 1000)
	blockSize := params.Int(store, root+"DataBlockSize", 1)
	dscp := params.Int(store, root+"DSCP", 0)
	maxHops := params.Int(store, root+"MaxHopCount", 30)

	if len(iface) > 256 || tries < 1 || tries > 3 || timeout < 1 ||
		blockSize < 1 || blockSize > 65535 || dscp < 0 || dscp > 63 ||
		maxHops < 1 || maxHops > 64 {
		return ErrorMaxHopCountExceeded
	}
	return ""
}

// hopPrefix is prepended to hop field names in the TR-098 model.
func hopPrefix(schema params.Schema) string {
	return schema.Pick("Hop", "")
}

func clearHops(r *Run) {
	params.DeletePrefix(r.Store, r.Root+"RouteHops.")
	r.Set("RouteHopsNumberOfEntries", "0")
}

// traceHops writes a route. A forced route runs to MaxHopCount without
// reaching the target; otherwise the last of defaultHops hops is the target.
func traceHops(r *Run, forced bool) {
	clearHops(r)

	hops := defaultHops
	if forced {
		hops = r.Int("MaxHopCount", 30)
	}

	if forced {
		r.Set(stateField, ErrorMaxHopCountExceeded)
		r.Set("ResponseTime", fmt.Sprintf("%.3f", float64(5+2*hops)*1.025))
	} else {
		r.Set(stateField, StateComplete)
		r.Set("ResponseTime", "3000")
	}
	r.Set("RouteHopsNumberOfEntries", strconv.Itoa(hops))

	host := params.Value(r.Store, r.Root+"Host", "")
	tries := r.Int("NumberOfTries", 0)
	prefix := hopPrefix(r.Schema)

	base := r.Root + "RouteHops."
	r.Store.Set(base, params.Object(false))

	for hop, rtt := 1, 5; hop <= hops; hop, rtt = hop+1, rtt+5 {
		hopPath := base + strconv.Itoa(hop) + params.Separator
		r.Store.Set(hopPath, params.Object(false))

		hopHost := fmt.Sprintf("hop-%d.com", hop)
		hopAddress := fmt.Sprintf("123.123.%d.123", 123+hop)
		if !forced && hop == hops {
			hopHost = host
			if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
				hopAddress = ""
			}
		}

		r.Store.Set(hopPath+prefix+"Host", params.Leaf(false, hopHost, params.TypeString))
		r.Store.Set(hopPath+prefix+"HostAddress", params.Leaf(false, hopAddress, params.TypeString))
		r.Store.Set(hopPath+prefix+"ErrorCode", params.Leaf(false, "0", params.TypeUnsignedInt))
		r.Store.Set(hopPath+prefix+"RTTimes", params.Leaf(false, rtTimes(rtt, tries), params.TypeString))
	}
}

// rtTimes returns up to three comma separated round trip times around rtt.
func rtTimes(rtt, tries int) string {
	all := []float64{float64(rtt) * 1.01, float64(rtt) * 0.975, float64(rtt) * 1.025}
	if tries < 0 {
		tries = 0
	}
	if tries > len(all) {
		tries = len(all)
	}
	out := make([]string, tries)
	for i := range out {
		out[i] = strconv.FormatFloat(all[i], 'f', 3, 64)
	}
	return strings.Join(out, ",")
}
