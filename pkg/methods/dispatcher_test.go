package methods

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

func TestNewDispatcherValidatesRegistry(t *testing.T) {
	_, err := NewDispatcher(DefaultRegistry(), Config{})
	require.NoError(t, err)

	reg := DefaultRegistry()
	delete(reg, cwmp.MethodDownload)
	_, err = NewDispatcher(reg, Config{})
	assert.ErrorIs(t, err, ErrMissingHandler)
	assert.Contains(t, err.Error(), "Download")

	reg = DefaultRegistry()
	reg["Reboot"] = GetParameterNames
	_, err = NewDispatcher(reg, Config{})
	assert.ErrorIs(t, err, ErrUnknownHandler)
	assert.Contains(t, err.Error(), "Reboot")
}

func TestDispatchUnsupportedMethod(t *testing.T) {
	d, err := NewDispatcher(DefaultRegistry(), Config{})
	require.NoError(t, err)

	req, err := cwmp.Decode([]byte(`<Envelope><Header><ID>1</ID></Header><Body><cwmp:Reboot><CommandKey/></cwmp:Reboot></Body></Envelope>`))
	require.NoError(t, err)

	resp, err := d.Dispatch(&Env{Store: newTestStore(t)}, req)
	assert.ErrorIs(t, err, ErrMethodNotSupported)
	fault, ok := resp.(*cwmp.SOAPFault)
	require.True(t, ok, "response is %T", resp)
	assert.Equal(t, cwmp.FaultMethodNotSupported, fault.Detail.Fault.FaultCode)
}

func TestDispatchHandlerErrors(t *testing.T) {
	reg := DefaultRegistry()
	reg[cwmp.MethodDeleteObject] = func(*Env, *cwmp.Envelope) (cwmp.Message, error) {
		return nil, errors.New("boom")
	}
	d, err := NewDispatcher(reg, Config{})
	require.NoError(t, err)

	resp, err := d.Dispatch(&Env{Store: newTestStore(t)}, request(t, &cwmp.DeleteObject{ObjectName: "Device.NAT."}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	fault := resp.(*cwmp.SOAPFault)
	assert.Equal(t, cwmp.FaultInternalError, fault.Detail.Fault.FaultCode)

	resp, err = d.Dispatch(&Env{Store: newTestStore(t)}, request(t, &cwmp.GetParameterValues{
		ParameterNames: cwmp.NewStringList("Device.Nope"),
	}))
	var f *cwmp.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, cwmp.FaultInvalidParameterName, f.FaultCode)
	assert.Equal(t, cwmp.FaultInvalidParameterName, resp.(*cwmp.SOAPFault).Detail.Fault.FaultCode)
}

func TestDispatchFillsEnvFromConfig(t *testing.T) {
	var called bool
	d, err := NewDispatcher(DefaultRegistry(), Config{
		Transitions: func(params.Store, params.WriteSet) { called = true },
	})
	require.NoError(t, err)

	_, err = d.Dispatch(&Env{Store: newTestStore(t)}, request(t, &cwmp.SetParameterValues{
		ParameterList: cwmp.NewParameterValueList([]cwmp.ParameterValueStruct{
			{Name: "Device.ManagementServer.PeriodicInformInterval", Value: cwmp.ParameterValue{Value: "20"}},
		}),
	}))
	require.NoError(t, err)
	assert.True(t, called)
}
