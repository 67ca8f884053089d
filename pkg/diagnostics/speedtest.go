package diagnostics

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// Speed test result keys and error states.
const (
	ResultTimeout       = "Error_Timeout"
	ResultFailed        = "failed"
	ResultNoResponse    = "Error_NoResponse"
	ResultNoRouteToHost = "Error_NoRouteToHost"

	ErrorTransferFailed = "Error_TransferFailed"
)

// speedTestThroughput is the simulated download rate in bytes per second.
const speedTestThroughput = 104857600

// speedTestTimeFormat is the microsecond timestamp layout of the result
// times.
const speedTestTimeFormat = "2006-01-02T15:04:05.000000Z"

// capabilityTransports is where TR-098 devices list their download transports.
const capabilityTransports = params.RootTR098 + "Capabilities.PerformanceDiagnostic.DownloadTransports"

// SpeedTestDefinition returns the download diagnostic.
func SpeedTestDefinition() *Definition {
	return &Definition{
		Name:      SpeedTest,
		RootTR098: params.RootTR098 + "DownloadDiagnostics.",
		RootTR181: params.RootTR181 + "IP.Diagnostics.DownloadDiagnostics.",
		ConfigFields: []string{
			"Interface", "DownloadURL", "DSCP", "EthernetPriority",
			"TimeBasedTestDuration", "TimeBasedTestMeasurementInterval",
			"TimeBasedTestMeasurementOffset", "NumberOfConnections",
			"EnablePerConnectionResults", "ProtocolVersion",
		},
		Validate: validateSpeedTest,
		Duration: func(store params.Store, root string, cfg Config) time.Duration {
			return time.Duration(params.Int(store, root+"TimeBasedTestDuration", 0)) * cfg.TimeUnit
		},
		Results: map[string]ResultFunc{
			ResultDefault:       speedTestComplete,
			ResultError:         errorResult("", clearIncremental),
			ResultTimeout:       errorResult(ResultTimeout, clearIncremental),
			ResultFailed:        errorResult(ErrorTransferFailed, clearIncremental),
			ResultNoResponse:    errorResult(ResultNoResponse, clearIncremental),
			ResultNoRouteToHost: errorResult(ResultNoRouteToHost, clearIncremental),
		},
	}
}

func validateSpeedTest(store params.Store, root string) string {
	url := params.Value(store, root+"DownloadURL", "")
	if url == "" || len(url) > 2048 {
		return ErrorCannotResolveHostName
	}

	iface := params.Value(store, root+"Interface", "")
	dscp := params.Int(store, root+"DSCP", 0)
	priority := params.Int(store, root+"EthernetPriority", 0)
	duration := params.Int(store, root+"TimeBasedTestDuration", 0)
	interval := params.Int(store, root+"TimeBasedTestMeasurementInterval", 0)
	offset := params.Int(store, root+"TimeBasedTestMeasurementOffset", 0)
	protocol := params.Value(store, root+"ProtocolVersion", "Any")
	connections := params.Int(store, root+"NumberOfConnections", 1)

	switch {
	case len(iface) > 256,
		dscp < 0 || dscp > 63,
		priority < 0 || priority > 7,
		duration < 0 || duration > 999,
		interval < 0 || interval > 999,
		offset < 0 || offset > 255,
		offset > interval || interval > duration,
		protocol != "Any" && protocol != "IPv4" && protocol != "IPv6",
		connections < 1,
		!hasTransport(store, root):
		return ErrorOther
	}
	return ""
}

func hasTransport(store params.Store, root string) bool {
	_, rec, ok := params.First(store, root+"DownloadTransports", capabilityTransports)
	if !ok {
		return false
	}
	for _, t := range strings.Split(rec.Value, ",") {
		if t = strings.TrimSpace(t); t == "HTTP" || t == "FTP" {
			return true
		}
	}
	return false
}

func clearIncremental(r *Run) {
	params.DeletePrefix(r.Store, r.Root+"IncrementalResult.")
	r.Set("IncrementalResultNumberOfEntries", "0")
}

func bytesValue(v float64) string {
	return strconv.FormatInt(int64(math.Round(v)), 10)
}

func speedTestComplete(r *Run) {
	clearIncremental(r)
	r.Set(stateField, StateComplete)

	duration := r.Int("TimeBasedTestDuration", 0)
	interval := r.Int("TimeBasedTestMeasurementInterval", 0)
	offset := r.Int("TimeBasedTestMeasurementOffset", 0)

	seconds := float64(duration)
	if duration == 0 {
		seconds = r.Config.Duration.Seconds()
	}

	end := r.Now.UTC()
	t := end.Add(time.Duration((float64(offset) - seconds) * float64(time.Second)))
	stamp := func(t time.Time) string { return t.Format(speedTestTimeFormat) }

	r.Set("TCPOpenRequestTime", stamp(t))
	t = t.Add(2 * time.Millisecond)
	r.Set("TCPOpenResponseTime", stamp(t))
	t = t.Add(2 * time.Millisecond)
	r.Set("ROMTime", stamp(t))
	t = t.Add(2 * time.Millisecond)
	r.Set("BOMTime", stamp(t))
	r.Set("EOMTime", stamp(end))

	total := speedTestThroughput * seconds
	r.Set("PeriodOfFullLoading", bytesValue(seconds*0.95e6))
	r.Set("TestBytesReceived", bytesValue(total))
	r.Set("TotalBytesReceived", bytesValue(total*1.05))
	r.Set("TotalBytesSent", bytesValue(total*0.02))
	r.Set("TestBytesReceivedUnderFullLoading", bytesValue(total*0.9))
	r.Set("TotalBytesReceivedUnderFullLoading", bytesValue(total*0.9*1.05))
	r.Set("TotalBytesSentUnderFullLoading", bytesValue(total*0.9*0.02))

	if interval <= 0 {
		return
	}

	n := duration / interval
	r.Set("IncrementalResultNumberOfEntries", strconv.Itoa(n))

	base := r.Root + "IncrementalResult."
	r.Store.Set(base, params.Object(false))

	perInterval := float64(speedTestThroughput * interval)
	step := time.Duration(interval) * time.Second
	for i := 1; i <= n; i++ {
		row := base + strconv.Itoa(i) + params.Separator
		r.Store.Set(row, params.Object(false))
		r.Store.Set(row+"TestBytesReceived", params.Leaf(false, bytesValue(perInterval), params.TypeUnsignedInt))
		r.Store.Set(row+"TotalBytesReceived", params.Leaf(false, bytesValue(perInterval*1.05), params.TypeUnsignedInt))
		r.Store.Set(row+"TotalBytesSent", params.Leaf(false, bytesValue(perInterval*0.02), params.TypeUnsignedInt))
		r.Store.Set(row+"StartTime", params.Leaf(false, stamp(t), params.TypeDateTime))
		t = t.Add(step)
		r.Store.Set(row+"EndTime", params.Leaf(false, stamp(t), params.TypeDateTime))
	}
}
