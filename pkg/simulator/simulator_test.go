package simulator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cwmpsim/cwmpsim-go/internal/acstest"
	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/diagnostics"
	"github.com/cwmpsim/cwmpsim-go/pkg/discovery"
	"github.com/cwmpsim/cwmpsim-go/pkg/discovery/mocks"
	"github.com/cwmpsim/cwmpsim-go/pkg/journal"
	"github.com/cwmpsim/cwmpsim-go/pkg/metrics"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
	"github.com/cwmpsim/cwmpsim-go/pkg/persistence"
	"github.com/cwmpsim/cwmpsim-go/pkg/session"
)

const waitFor = 3 * time.Second

func testConfig(acs *acstest.Server) Config {
	cfg := DefaultConfig()
	cfg.ACSURL = acs.URL + "/"
	cfg.ConnectionRequestAddr = "127.0.0.1:0"
	cfg.PeriodicInformsDisabled = true
	cfg.DiagnosticDuration = 20 * time.Millisecond
	cfg.DiagnosticTimeUnit = 5 * time.Millisecond
	cfg.DownloadNotifyDelay = 10 * time.Millisecond
	return cfg
}

func newSimulator(t *testing.T, model string, cfg Config) *Simulator {
	t.Helper()
	store, err := params.BuiltinModel(model)
	require.NoError(t, err)
	sim, err := New(store, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sim.Stop() })
	return sim
}

func waitIdle(t *testing.T, acs *acstest.Server, sim *Simulator, sessions int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return acs.Sessions() >= sessions && acs.Idle() && sim.State() == session.StateClosed
	}, waitFor, 5*time.Millisecond)
}

func waitReady(t *testing.T, sim *Simulator) {
	t.Helper()
	select {
	case <-sim.Ready():
	case <-time.After(waitFor):
		t.Fatal("boot session did not close")
	}
}

func spv(values ...string) *cwmp.SetParameterValues {
	items := make([]cwmp.ParameterValueStruct, 0, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		items = append(items, cwmp.ParameterValueStruct{
			Name:  values[i],
			Value: cwmp.ParameterValue{Type: params.TypeString, Value: values[i+1]},
		})
	}
	return &cwmp.SetParameterValues{ParameterList: cwmp.NewParameterValueList(items)}
}

func TestPingRequestedByACS(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()
	acs.Enqueue(spv(
		"Device.IP.Diagnostics.IPPing.Host", "example.com",
		"Device.IP.Diagnostics.IPPing.DiagnosticsState", "Requested",
	))

	sim := newSimulator(t, "tr181", testConfig(acs))
	require.NoError(t, sim.Start(context.Background()))
	waitIdle(t, acs, sim, 2)

	informs := acs.Informs()
	require.Len(t, informs, 2)
	assert.Equal(t, []string{cwmp.EventBoot}, informs[0].Event.Codes())
	assert.Equal(t, []string{cwmp.EventDiagnosticsComplete}, informs[1].Event.Codes())

	rec, ok := sim.Get("Device.IP.Diagnostics.IPPing.DiagnosticsState")
	require.True(t, ok)
	assert.Equal(t, "Complete", rec.Value)
	rec, _ = sim.Get("Device.IP.Diagnostics.IPPing.SuccessCount")
	assert.Equal(t, "1", rec.Value)

	resp := acs.Find(cwmp.MethodSetParameterValuesResponse)
	require.NotNil(t, resp)
}

func TestSelectedDiagnosticResult(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()
	acs.Enqueue(spv(
		"Device.IP.Diagnostics.IPPing.Host", "example.com",
		"Device.IP.Diagnostics.IPPing.DiagnosticsState", "Requested",
	))

	sim := newSimulator(t, "tr181", testConfig(acs))
	require.NoError(t, sim.SetResultForDiagnostic("ping", diagnostics.ResultError))
	require.NoError(t, sim.Start(context.Background()))
	waitIdle(t, acs, sim, 2)

	rec, _ := sim.Get("Device.IP.Diagnostics.IPPing.DiagnosticsState")
	assert.Equal(t, diagnostics.ErrorInternal, rec.Value)

	assert.ErrorIs(t, sim.SetResultForDiagnostic("nslookup", "default"), diagnostics.ErrUnknownDiagnostic)
	assert.ErrorIs(t, sim.SetResultForDiagnostic("ping", "nope"), diagnostics.ErrUnknownResult)
	assert.ElementsMatch(t, []string{"ping", "traceroute", "speedtest", "sitesurvey"}, sim.Diagnostics())
}

func TestSerialAndMACInjected(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	cfg := testConfig(acs)
	cfg.SerialNumber = "SIM-000042"
	cfg.MACAddress = "02:00:00:00:00:2a"
	sim := newSimulator(t, "tr098", cfg)
	assert.Equal(t, "SIM-000042", sim.SerialNumber())

	require.NoError(t, sim.Start(context.Background()))
	waitReady(t, sim)

	informs := acs.Informs()
	require.NotEmpty(t, informs)
	assert.Equal(t, "SIM-000042", informs[0].DeviceID.SerialNumber)

	rec, _ := sim.Get("InternetGatewayDevice.DeviceInfo.SerialNumber")
	assert.Equal(t, "SIM-000042", rec.Value)
	rec, _ = sim.Get("InternetGatewayDevice.LANDevice.1.LANEthernetInterfaceConfig.1.MACAddress")
	assert.Equal(t, "02:00:00:00:00:2a", rec.Value)

	rec, _ = sim.Get("InternetGatewayDevice.ManagementServer.ConnectionRequestURL")
	assert.Equal(t, sim.ConnectionRequestURL(), rec.Value)
}

func TestStatePersistence(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()
	acs.Enqueue(spv("Device.ManagementServer.PeriodicInformInterval", "77"))

	path := filepath.Join(t.TempDir(), "state", "SIM.json")
	cfg := testConfig(acs)
	cfg.StateStore = persistence.NewDeviceStateStore(path)

	first := newSimulator(t, "tr181", cfg)
	require.NoError(t, first.Start(context.Background()))
	waitIdle(t, acs, first, 1)
	require.NoError(t, first.Stop())

	informs := acs.Informs()
	require.Len(t, informs, 1)
	assert.Equal(t, []string{cwmp.EventBootstrap, cwmp.EventBoot}, informs[0].Event.Codes())

	second := newSimulator(t, "tr181", cfg)
	rec, ok := second.Get("Device.ManagementServer.PeriodicInformInterval")
	require.True(t, ok)
	assert.Equal(t, "77", rec.Value)

	require.NoError(t, second.Start(context.Background()))
	waitIdle(t, acs, second, 2)
	assert.Equal(t, []string{cwmp.EventBoot}, acs.Informs()[1].Event.Codes())
}

func TestSetLocal(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	sim := newSimulator(t, "tr181", testConfig(acs))
	require.NoError(t, sim.Start(context.Background()))
	waitReady(t, sim)

	require.NoError(t, sim.SetLocal("Device.DeviceInfo.ProvisioningCode", "LOCAL"))
	require.Eventually(t, func() bool {
		rec, _ := sim.Get("Device.DeviceInfo.ProvisioningCode")
		return rec.Value == "LOCAL"
	}, waitFor, 5*time.Millisecond)

	assert.ErrorIs(t, sim.SetLocal("Device.NoSuchThing", "x"), ErrUnknownPath)
	assert.ErrorIs(t, sim.SetLocal("Device.DeviceInfo.", "x"), ErrUnknownPath)
}

func TestTriggerInform(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	sim := newSimulator(t, "tr181", testConfig(acs))
	assert.ErrorIs(t, sim.TriggerInform(""), ErrNotStarted)

	require.NoError(t, sim.Start(context.Background()))
	assert.ErrorIs(t, sim.Start(context.Background()), ErrAlreadyStarted)
	waitIdle(t, acs, sim, 1)

	require.NoError(t, sim.TriggerInform(""))
	waitIdle(t, acs, sim, 2)
	require.NoError(t, sim.TriggerInform(cwmp.EventValueChange))
	waitIdle(t, acs, sim, 3)

	informs := acs.Informs()
	assert.Equal(t, []string{cwmp.EventPeriodic}, informs[1].Event.Codes())
	assert.Equal(t, []string{cwmp.EventValueChange}, informs[2].Event.Codes())
	assert.Equal(t, 1, acs.MaxConcurrent())

	require.NoError(t, sim.Stop())
	require.NoError(t, sim.Stop())
	assert.ErrorIs(t, sim.TriggerInform(""), ErrNotStarted)
}

func TestJournalAndMetrics(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	j, err := journal.Open(":memory:")
	require.NoError(t, err)
	defer j.Close()
	collector := metrics.NewCollector()

	cfg := testConfig(acs)
	cfg.SerialNumber = "SIM-J"
	cfg.Journal = j
	cfg.Metrics = collector
	sim := newSimulator(t, "tr181", cfg)
	require.NoError(t, sim.Start(context.Background()))
	waitIdle(t, acs, sim, 1)

	require.Eventually(t, func() bool {
		sessions, err := j.ListSessions("SIM-J", 10, 0)
		return err == nil && len(sessions) == 1 && sessions[0].ClosedAt != nil && sessions[0].RPCCount == 3
	}, waitFor, 5*time.Millisecond)

	expected := `
		# HELP cwmpsim_session_opened_total Sessions opened with the ACS
		# TYPE cwmpsim_session_opened_total counter
		cwmpsim_session_opened_total{device="SIM-J"} 1
	`
	require.Eventually(t, func() bool {
		return testutil.CollectAndCompare(collector, strings.NewReader(expected), "cwmpsim_session_opened_total") == nil
	}, waitFor, 5*time.Millisecond)
}

func TestAdvertiser(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	adv := mocks.NewMockAdvertiser(t)
	adv.EXPECT().Advertise(mock.Anything, mock.MatchedBy(func(info *discovery.DeviceInfo) bool {
		return info.Serial == "SIM-ADV" && info.Port != 0 && info.Path == "/" && info.ProductClass == "SimDevice"
	})).Return(nil).Once()
	adv.EXPECT().Stop("SIM-ADV").Return(nil).Once()

	cfg := testConfig(acs)
	cfg.SerialNumber = "SIM-ADV"
	cfg.Advertiser = adv
	sim := newSimulator(t, "tr181", cfg)
	require.NoError(t, sim.Start(context.Background()))
	waitReady(t, sim)
	require.NoError(t, sim.Stop())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mac", func(c *Config) { c.MACAddress = "not-a-mac" }},
		{"bad url", func(c *Config) { c.ACSURL = "ftp://acs/" }},
		{"zero interval unit", func(c *Config) { c.IntervalUnit = 0 }},
		{"zero time unit", func(c *Config) { c.DiagnosticTimeUnit = 0 }},
		{"negative notify delay", func(c *Config) { c.DownloadNotifyDelay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	_, err := New(nil, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
