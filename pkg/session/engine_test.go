package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwmpsim/cwmpsim-go/internal/acstest"
	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/methods"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

const waitFor = 3 * time.Second

type runnerFunc func()

func (f runnerFunc) Run() { f() }

func newEngine(t *testing.T, acs *acstest.Server, runner Runner, mutate func(*Config)) (*Engine, *params.Tx) {
	t.Helper()

	store, err := params.BuiltinModel("tr181")
	require.NoError(t, err)
	tx := params.NewTx(store)

	d, err := methods.NewDispatcher(methods.DefaultRegistry(), methods.Config{})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ACSURL = acs.URL + "/"
	cfg.PeriodicInformsDisabled = true
	cfg.ConnectionRequestAddr = "127.0.0.1:0"
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := NewEngine(cfg, tx, d, nil, runner)
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e, tx
}

// waitSessions waits until n sessions ran and the engine is idle again.
func waitSessions(t *testing.T, acs *acstest.Server, e *Engine, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return acs.Sessions() >= n && acs.Idle() && settled(e)
	}, waitFor, 5*time.Millisecond)
}

// settled reports whether the engine is closed and done with its close steps.
func settled(e *Engine) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateClosed && !e.closing
}

func TestBootSession(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	e, tx := newEngine(t, acs, nil, nil)
	require.NoError(t, e.Start(context.Background()))
	waitSessions(t, acs, e, 1)

	informs := acs.Informs()
	require.Len(t, informs, 1)
	assert.Equal(t, []string{cwmp.EventBoot}, informs[0].Event.Codes())
	assert.Equal(t, "SIM0000000001", informs[0].DeviceID.SerialNumber)
	assert.Equal(t, []string{cwmp.MethodInform, ""}, acs.Methods())

	var crURL string
	tx.Do(func(s params.Store) {
		crURL = params.Value(s, "Device.ManagementServer.ConnectionRequestURL", "")
	})
	assert.Equal(t, e.ConnectionRequestURL(), crURL)
	assert.True(t, strings.HasPrefix(crURL, "http://127.0.0.1:"))

	assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyStarted)
}

func TestScriptedRequests(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()
	acs.Enqueue(
		&cwmp.GetParameterValues{ParameterNames: cwmp.NewStringList("Device.DeviceInfo.SerialNumber")},
		&acstest.Raw{Name: "Reboot"},
	)

	e, tx := newEngine(t, acs, nil, nil)
	tx.Do(func(s params.Store) {
		params.SetValue(s, "Device.ManagementServer.Username", "cpe")
	})
	require.NoError(t, e.Start(context.Background()))
	waitSessions(t, acs, e, 1)

	assert.Equal(t, []string{
		cwmp.MethodInform, "", cwmp.MethodGetParameterValuesResponse, "Fault",
	}, acs.Methods())

	reqs := acs.Requests()
	assert.Equal(t, "", reqs[0].Cookie)
	assert.Equal(t, "s1", reqs[1].Cookie)
	assert.Equal(t, "cpe", reqs[1].User)

	var resp cwmp.GetParameterValuesResponse
	require.NoError(t, reqs[2].Envelope.DecodeBody(&resp))
	require.Len(t, resp.ParameterList.Items, 1)
	assert.Equal(t, "SIM0000000001", resp.ParameterList.Items[0].Value.Value)

	require.NotNil(t, reqs[3].Envelope.Fault)
	assert.Equal(t, cwmp.FaultMethodNotSupported, reqs[3].Envelope.Fault.FaultCode)

	select {
	case err := <-e.Errors():
		var ume *UnsupportedMethodError
		require.ErrorAs(t, err, &ume)
		assert.Equal(t, "Reboot", ume.Method)
		assert.Contains(t, string(ume.Payload), "Reboot")
	case <-time.After(waitFor):
		t.Fatal("no error reported")
	}
}

func TestConnectionRequestDuringSession(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	e, _ := newEngine(t, acs, nil, nil)
	acs.OnInform(func(session int, _ *cwmp.Inform) {
		if session != 1 {
			return
		}
		resp, err := http.Get(e.ConnectionRequestURL())
		if err == nil {
			resp.Body.Close()
		}
	})
	require.NoError(t, e.Start(context.Background()))
	waitSessions(t, acs, e, 2)

	informs := acs.Informs()
	require.Len(t, informs, 2)
	assert.Equal(t, []string{cwmp.EventConnectionRequest}, informs[1].Event.Codes())
	assert.Equal(t, 1, acs.MaxConcurrent())
}

func TestTriggersFoldIntoNextInform(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	e, _ := newEngine(t, acs, nil, nil)
	acs.OnInform(func(session int, _ *cwmp.Inform) {
		if session == 1 {
			e.DiagnosticComplete("ping")
			e.Trigger(cwmp.EventConnectionRequest)
			e.Trigger(cwmp.EventConnectionRequest)
		}
	})
	require.NoError(t, e.Start(context.Background()))
	waitSessions(t, acs, e, 2)

	time.Sleep(50 * time.Millisecond)
	informs := acs.Informs()
	require.Len(t, informs, 2)
	assert.Equal(t, []string{cwmp.EventDiagnosticsComplete, cwmp.EventConnectionRequest}, informs[1].Event.Codes())
}

func TestQueuedMessagesPrecedeYield(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	e, _ := newEngine(t, acs, nil, nil)
	e.QueueMessage(func() cwmp.Message {
		return &cwmp.TransferComplete{CommandKey: "fw", StartTime: cwmp.UnknownTime, CompleteTime: cwmp.UnknownTime}
	})
	require.NoError(t, e.Start(context.Background()))
	waitSessions(t, acs, e, 1)

	assert.Equal(t, []string{cwmp.MethodInform, cwmp.MethodTransferComplete, ""}, acs.Methods())
}

func TestCloseOrder(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	e, _ := newEngine(t, acs, runnerFunc(func() { record("run") }), nil)
	acs.OnInform(func(int, *cwmp.Inform) {
		e.QueueAction(func() { record("action") })
	})
	require.NoError(t, e.Start(context.Background()))
	waitSessions(t, acs, e, 1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"run", "action"}, order)

	// With no session open the action runs at once.
	ran := false
	e.QueueAction(func() { ran = true })
	assert.True(t, ran)
}

func TestTriggerDuringCloseWaitsForCloseSteps(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var runs int
	runner := runnerFunc(func() {
		runs++
		if runs == 1 {
			close(entered)
			<-release
		}
	})

	e, _ := newEngine(t, acs, runner, nil)
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	require.NoError(t, e.Start(context.Background()))

	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("scheduler pass not reached")
	}

	e.Trigger(cwmp.EventConnectionRequest)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, acs.Sessions())
	assert.Equal(t, StateClosed, e.State())

	unblock()
	waitSessions(t, acs, e, 2)
	informs := acs.Informs()
	require.Len(t, informs, 2)
	assert.Equal(t, []string{cwmp.EventConnectionRequest}, informs[1].Event.Codes())
}

func TestTransportErrorReported(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()
	acs.FailNext(1)

	e, _ := newEngine(t, acs, nil, nil)
	require.NoError(t, e.Start(context.Background()))

	select {
	case err := <-e.Errors():
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	case <-time.After(waitFor):
		t.Fatal("no error reported")
	}
	require.Eventually(t, func() bool { return e.State() == StateClosed }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, acs.Sessions())

	e.TriggerDefault()
	waitSessions(t, acs, e, 1)
	assert.Equal(t, []string{cwmp.EventPeriodic}, acs.Informs()[0].Event.Codes())
}

func TestPeriodicInform(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	e, _ := newEngine(t, acs, nil, func(c *Config) {
		c.PeriodicInformsDisabled = false
		c.IntervalUnit = 5 * time.Millisecond
		c.DisableConnectionRequests = true
	})
	require.NoError(t, e.Start(context.Background()))
	waitSessions(t, acs, e, 3)

	informs := acs.Informs()
	assert.Equal(t, []string{cwmp.EventBoot}, informs[0].Event.Codes())
	assert.Equal(t, []string{cwmp.EventPeriodic}, informs[1].Event.Codes())
	assert.Equal(t, 1, acs.MaxConcurrent())
	assert.Equal(t, "", e.ConnectionRequestURL())
}

func TestStopEndsPeriodic(t *testing.T) {
	acs := acstest.New()
	defer acs.Close()

	e, _ := newEngine(t, acs, nil, func(c *Config) {
		c.PeriodicInformsDisabled = false
		c.IntervalUnit = 10 * time.Millisecond
	})
	require.NoError(t, e.Start(context.Background()))
	waitSessions(t, acs, e, 1)

	e.Stop()
	n := acs.Sessions()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, n, acs.Sessions())

	e.Trigger(cwmp.EventConnectionRequest)
	assert.Equal(t, StateClosed, e.State())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"scheme", func(c *Config) { c.ACSURL = "ftp://acs/" }},
		{"host", func(c *Config) { c.ACSURL = "http:///path" }},
		{"interval", func(c *Config) { c.DefaultPeriodicInterval = 0 }},
		{"timeout", func(c *Config) { c.HTTPTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPENING", StateOpening.String())
	assert.Equal(t, "EXCHANGING", StateExchanging.String())
	assert.Equal(t, "SESSION_OPENED", EventSessionOpened.String())
}
