package diagnostics

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

const (
	pingRoot  = "Device.IP.Diagnostics.IPPing."
	traceRoot = "Device.IP.Diagnostics.TraceRoute."
	speedRoot = "Device.IP.Diagnostics.DownloadDiagnostics."
	wifiRoot  = "Device.WiFi.NeighboringWiFiDiagnostic."
)

const testDuration = 20 * time.Millisecond

type fixture struct {
	tx        *params.Tx
	scheduler *Scheduler

	mu       sync.Mutex
	complete []string
}

func newFixture(t *testing.T, model string) *fixture {
	t.Helper()

	store, err := params.BuiltinModel(model)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Duration = testDuration
	cfg.TimeUnit = 5 * time.Millisecond

	tx := params.NewTx(store)
	s, err := NewScheduler(cfg, tx)
	require.NoError(t, err)
	t.Cleanup(s.Stop)

	f := &fixture{tx: tx, scheduler: s}
	s.SetNotifier(NotifierFunc(func(name string) {
		f.mu.Lock()
		f.complete = append(f.complete, name)
		f.mu.Unlock()
		// The engine runs the queue after each session close.
		s.Run()
	}))
	return f
}

// write applies values the way SetParameterValues does and runs the queue.
func (f *fixture) write(values map[string]string) {
	f.tx.Do(func(store params.Store) {
		written := params.NewWriteSet()
		for path, value := range values {
			params.SetValue(store, path, value)
			written.Add(path)
		}
		f.scheduler.Evaluate(store, written)
	})
	f.scheduler.Run()
}

func (f *fixture) value(path string) string {
	var v string
	f.tx.Do(func(store params.Store) {
		v = params.Value(store, path, "<missing>")
	})
	return v
}

func (f *fixture) completions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.complete...)
}

func (f *fixture) waitState(t *testing.T, root, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.value(root+stateField) == want
	}, 2*time.Second, 5*time.Millisecond, "state of %s", root)
}

func TestPingCompletes(t *testing.T) {
	f := newFixture(t, "tr181")

	f.write(map[string]string{
		pingRoot + "Host":                "example.com",
		pingRoot + "NumberOfRepetitions": "4",
		pingRoot + stateField:            StateRequested,
	})

	f.waitState(t, pingRoot, StateComplete)
	assert.Equal(t, "4", f.value(pingRoot+"SuccessCount"))
	assert.Equal(t, "0", f.value(pingRoot+"FailureCount"))
	assert.Equal(t, "11", f.value(pingRoot+"AverageResponseTime"))
	assert.Equal(t, []string{Ping}, f.completions())
}

func TestPingEmptyHost(t *testing.T) {
	f := newFixture(t, "tr181")

	f.write(map[string]string{
		pingRoot + "Host":     "",
		pingRoot + stateField: StateRequested,
	})

	f.waitState(t, pingRoot, ErrorCannotResolveHostName)
	assert.Equal(t, "0", f.value(pingRoot+"SuccessCount"))
}

func TestPingDataBlockSizeBounds(t *testing.T) {
	tests := []struct {
		size string
		want string
	}{
		{"65535", StateComplete},
		{"1", StateComplete},
		{"0", ErrorOther},
		{"65536", ErrorOther},
	}

	for _, tt := range tests {
		t.Run(tt.size, func(t *testing.T) {
			f := newFixture(t, "tr181")
			f.write(map[string]string{
				pingRoot + "Host":          "example.com",
				pingRoot + "DataBlockSize": tt.size,
				pingRoot + stateField:      StateRequested,
			})
			f.waitState(t, pingRoot, tt.want)
		})
	}
}

func TestRerequestRunsOnce(t *testing.T) {
	f := newFixture(t, "tr181")

	var completed atomic.Int32
	f.scheduler.OnEvent(func(e Event) {
		if e.Type == EventCompleted {
			completed.Add(1)
		}
	})

	request := map[string]string{
		pingRoot + "Host":     "example.com",
		pingRoot + stateField: StateRequested,
	}
	f.write(request)
	request[pingRoot+"NumberOfRepetitions"] = "7"
	f.write(request)

	f.waitState(t, pingRoot, StateComplete)
	time.Sleep(3 * testDuration)

	assert.Equal(t, []string{Ping}, f.completions())
	assert.Equal(t, int32(1), completed.Load())
	assert.Equal(t, "7", f.value(pingRoot+"SuccessCount"))
}

func TestSinglePermit(t *testing.T) {
	f := newFixture(t, "tr181")

	f.tx.Do(func(store params.Store) {
		params.SetValue(store, pingRoot+"Host", "example.com")
		params.SetValue(store, traceRoot+"Host", "example.com")
		params.SetValue(store, pingRoot+stateField, StateRequested)
		params.SetValue(store, traceRoot+stateField, StateRequested)
		f.scheduler.Evaluate(store, params.NewWriteSet(pingRoot+stateField, traceRoot+stateField))
	})

	assert.Equal(t, "", f.scheduler.Running())
	assert.Equal(t, []string{Ping, TraceRoute}, f.scheduler.Queued())

	f.scheduler.Run()
	assert.Equal(t, Ping, f.scheduler.Running())
	assert.Equal(t, []string{TraceRoute}, f.scheduler.Queued())

	// A second pass while the permit is taken changes nothing.
	f.scheduler.Run()
	assert.Equal(t, Ping, f.scheduler.Running())

	f.waitState(t, traceRoot, StateComplete)
	assert.Equal(t, []string{Ping, TraceRoute}, f.completions())
}

func TestConfigWriteResetsState(t *testing.T) {
	f := newFixture(t, "tr181")

	f.write(map[string]string{
		pingRoot + "Host":     "example.com",
		pingRoot + stateField: StateRequested,
	})
	f.write(map[string]string{pingRoot + "Timeout": "2000"})

	assert.Equal(t, StateNone, f.value(pingRoot+stateField))
	assert.Empty(t, f.scheduler.Queued())
	assert.Equal(t, "", f.scheduler.Running())

	time.Sleep(3 * testDuration)
	assert.Empty(t, f.completions())
	assert.Equal(t, StateNone, f.value(pingRoot+stateField))
}

func TestRequestedWithoutStateWriteIgnored(t *testing.T) {
	f := newFixture(t, "tr181")

	f.tx.Do(func(store params.Store) {
		params.SetValue(store, pingRoot+stateField, StateRequested)
		f.scheduler.Evaluate(store, params.NewWriteSet(pingRoot+"SuccessCount"))
	})
	assert.Empty(t, f.scheduler.Queued())
}

func TestTraceRouteMaxHopCountExceeded(t *testing.T) {
	f := newFixture(t, "tr181")
	require.NoError(t, f.scheduler.SetResult(TraceRoute, ResultMaxHopCountExceeded))

	f.write(map[string]string{
		traceRoot + "Host":        "example.com",
		traceRoot + "MaxHopCount": "5",
		traceRoot + stateField:    StateRequested,
	})

	f.waitState(t, traceRoot, ErrorMaxHopCountExceeded)
	assert.Equal(t, "5", f.value(traceRoot+"RouteHopsNumberOfEntries"))
	assert.Equal(t, "hop-5.com", f.value(traceRoot+"RouteHops.5.Host"))
	assert.Equal(t, "<missing>", f.value(traceRoot+"RouteHops.6.Host"))
	assert.Equal(t, "15.375", f.value(traceRoot+"ResponseTime"))
}

func TestTraceRouteDefault(t *testing.T) {
	f := newFixture(t, "tr181")

	f.write(map[string]string{
		traceRoot + "Host":          "8.8.8.8",
		traceRoot + "NumberOfTries": "2",
		traceRoot + stateField:      StateRequested,
	})

	f.waitState(t, traceRoot, StateComplete)
	assert.Equal(t, strconv.Itoa(defaultHops), f.value(traceRoot+"RouteHopsNumberOfEntries"))
	assert.Equal(t, "hop-1.com", f.value(traceRoot+"RouteHops.1.Host"))
	assert.Equal(t, "123.123.124.123", f.value(traceRoot+"RouteHops.1.HostAddress"))
	assert.Equal(t, "5.050,4.875", f.value(traceRoot+"RouteHops.1.RTTimes"))
	assert.Equal(t, "8.8.8.8", f.value(traceRoot+"RouteHops.8.Host"))
	assert.Equal(t, "", f.value(traceRoot+"RouteHops.8.HostAddress"))
}

func TestTraceRouteValidation(t *testing.T) {
	f := newFixture(t, "tr181")

	f.write(map[string]string{
		traceRoot + "Host":          "example.com",
		traceRoot + "NumberOfTries": "4",
		traceRoot + stateField:      StateRequested,
	})

	f.waitState(t, traceRoot, ErrorMaxHopCountExceeded)
	assert.Equal(t, "0", f.value(traceRoot+"RouteHopsNumberOfEntries"))
}

func TestTraceRouteTR098HopPrefix(t *testing.T) {
	f := newFixture(t, "tr098")
	root := "InternetGatewayDevice.TraceRouteDiagnostics."

	f.write(map[string]string{
		root + "Host":          "example.com",
		root + "NumberOfTries": "1",
		root + stateField:      StateRequested,
	})

	f.waitState(t, root, StateComplete)
	assert.Equal(t, "hop-1.com", f.value(root+"RouteHops.1.HopHost"))
	assert.Equal(t, "example.com", f.value(root+"RouteHops.8.HopHost"))
	assert.Equal(t, "5.050", f.value(root+"RouteHops.1.HopRTTimes"))
}

func TestSpeedTestTimeBased(t *testing.T) {
	f := newFixture(t, "tr181")

	f.write(map[string]string{
		speedRoot + "DownloadURL":                      "http://example.com/file",
		speedRoot + "TimeBasedTestDuration":            "2",
		speedRoot + "TimeBasedTestMeasurementInterval": "1",
		speedRoot + stateField:                         StateRequested,
	})

	f.waitState(t, speedRoot, StateComplete)
	assert.Equal(t, "209715200", f.value(speedRoot+"TestBytesReceived"))
	assert.Equal(t, "220200960", f.value(speedRoot+"TotalBytesReceived"))
	assert.Equal(t, "1900000", f.value(speedRoot+"PeriodOfFullLoading"))
	assert.Equal(t, "2", f.value(speedRoot+"IncrementalResultNumberOfEntries"))
	assert.Equal(t, "104857600", f.value(speedRoot+"IncrementalResult.2.TestBytesReceived"))
	assert.Regexp(t, `^\d{4}-\d\d-\d\dT\d\d:\d\d:\d\d\.\d{6}Z$`, f.value(speedRoot+"EOMTime"))
}

func TestSpeedTestValidation(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   string
	}{
		{"empty url", map[string]string{speedRoot + "DownloadURL": ""}, ErrorCannotResolveHostName},
		{"priority", map[string]string{speedRoot + "EthernetPriority": "8"}, ErrorOther},
		{"interval above duration", map[string]string{
			speedRoot + "TimeBasedTestDuration":            "1",
			speedRoot + "TimeBasedTestMeasurementInterval": "2",
		}, ErrorOther},
		{"protocol", map[string]string{speedRoot + "ProtocolVersion": "IPX"}, ErrorOther},
		{"connections", map[string]string{speedRoot + "NumberOfConnections": "0"}, ErrorOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "tr181")
			values := map[string]string{
				speedRoot + "DownloadURL": "http://example.com/file",
				speedRoot + stateField:    StateRequested,
			}
			for k, v := range tt.values {
				values[k] = v
			}
			f.write(values)
			f.waitState(t, speedRoot, tt.want)
		})
	}
}

func TestSpeedTestInvalidDurationUsesDefault(t *testing.T) {
	f := newFixture(t, "tr181")

	start := time.Now()
	f.write(map[string]string{
		speedRoot + "DownloadURL":           "http://example.com/file",
		speedRoot + "TimeBasedTestDuration": "1000",
		speedRoot + stateField:              StateRequested,
	})

	require.Eventually(t, func() bool {
		return f.value(speedRoot+stateField) == ErrorOther
	}, time.Second, 5*time.Millisecond)
	// 1000 time units would be 5s here.
	assert.Less(t, time.Since(start), time.Second)
	require.Eventually(t, func() bool { return len(f.completions()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSpeedTestSelectedFailure(t *testing.T) {
	f := newFixture(t, "tr181")
	require.NoError(t, f.scheduler.SetResult(SpeedTest, ResultFailed))

	f.write(map[string]string{
		speedRoot + "DownloadURL": "http://example.com/file",
		speedRoot + stateField:    StateRequested,
	})

	f.waitState(t, speedRoot, ErrorTransferFailed)
	assert.Equal(t, "0", f.value(speedRoot+"IncrementalResultNumberOfEntries"))
}

func TestSiteSurvey(t *testing.T) {
	f := newFixture(t, "tr181")

	f.write(map[string]string{wifiRoot + stateField: StateRequested})

	f.waitState(t, wifiRoot, StateComplete)
	assert.Equal(t, "20", f.value(wifiRoot+"ResultNumberOfEntries"))
	assert.Equal(t, "my beautiful SSID 1", f.value(wifiRoot+"Result.1.SSID"))
	assert.Regexp(t, `^([0-9a-f]{2}:){5}[0-9a-f]{2}$`, f.value(wifiRoot+"Result.20.BSSID"))
	assert.Equal(t, "<missing>", f.value(wifiRoot+"Result.21.SSID"))

	// A second survey replaces the first.
	f.write(map[string]string{wifiRoot + stateField: StateRequested})
	f.waitState(t, wifiRoot, StateComplete)
	assert.Equal(t, "20", f.value(wifiRoot+"ResultNumberOfEntries"))
}

func TestSiteSurveyMissingOnTR098(t *testing.T) {
	f := newFixture(t, "tr098")

	f.tx.Do(func(store params.Store) {
		f.scheduler.Evaluate(store, params.NewWriteSet(wifiRoot+stateField))
	})
	assert.Empty(t, f.scheduler.Queued())
}

func TestSetResultErrors(t *testing.T) {
	f := newFixture(t, "tr181")

	err := f.scheduler.SetResult("nope", ResultDefault)
	assert.ErrorIs(t, err, ErrUnknownDiagnostic)

	err = f.scheduler.SetResult(Ping, "Error_Timeout")
	assert.ErrorIs(t, err, ErrUnknownResult)

	assert.NoError(t, f.scheduler.SetResult(Ping, ResultError))
	f.write(map[string]string{
		pingRoot + "Host":     "example.com",
		pingRoot + stateField: StateRequested,
	})
	f.waitState(t, pingRoot, ErrorInternal)
}

func TestStopCancelsRuns(t *testing.T) {
	f := newFixture(t, "tr181")

	f.write(map[string]string{
		pingRoot + "Host":     "example.com",
		pingRoot + stateField: StateRequested,
	})
	require.Equal(t, Ping, f.scheduler.Running())

	f.scheduler.Stop()
	time.Sleep(3 * testDuration)

	assert.Equal(t, StateRequested, f.value(pingRoot+stateField))
	assert.Empty(t, f.completions())
	assert.Equal(t, "", f.scheduler.Running())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.TimeUnit = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Duration = -time.Second
	_, err := NewScheduler(cfg, params.NewTx(params.NewMemoryStore()))
	assert.Error(t, err)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "PENDING", OutcomePending.String())
	assert.Equal(t, "COMPLETED", OutcomeCompleted.String())
	assert.Equal(t, "INTERRUPTED", OutcomeInterrupted.String())
	assert.Equal(t, "QUEUED", EventQueued.String())
}
