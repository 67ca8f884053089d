package params

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = `
name: test
parameters:
  - {path: "Device."}
  - {path: "Device.DeviceInfo."}
  - {path: "Device.DeviceInfo.SerialNumber", value: "ABC"}
  - {path: "Device.ManagementServer.PeriodicInformInterval", writable: true, value: "30", type: "xsd:unsignedInt"}
  - {path: "Device.NAT.PortMapping.", writable: true}
`

func TestLoadModel(t *testing.T) {
	s, err := LoadModel(strings.NewReader(testModel))
	require.NoError(t, err)

	rec, ok := s.Get("Device.DeviceInfo.SerialNumber")
	require.True(t, ok)
	assert.Equal(t, "ABC", rec.Value)
	assert.Equal(t, TypeString, rec.Type, "type defaults to xsd:string")
	assert.False(t, rec.Writable)

	rec, ok = s.Get("Device.ManagementServer.PeriodicInformInterval")
	require.True(t, ok)
	assert.Equal(t, TypeUnsignedInt, rec.Type)
	assert.True(t, rec.Writable)

	rec, ok = s.Get("Device.NAT.PortMapping.")
	require.True(t, ok)
	assert.True(t, rec.Writable)
	assert.Empty(t, rec.Type, "objects carry no type")
}

func TestLoadModelErrors(t *testing.T) {
	_, err := LoadModel(strings.NewReader("parameters: ["))
	var me *ModelError
	require.ErrorAs(t, err, &me)

	_, err = LoadModel(strings.NewReader("name: empty\n"))
	require.ErrorAs(t, err, &me)
	assert.Contains(t, err.Error(), "no parameters")

	_, err = LoadModel(strings.NewReader("parameters:\n  - {value: x}\n"))
	require.ErrorAs(t, err, &me)
	assert.Contains(t, err.Error(), "has no path")

	_, err = LoadModelFile("/nonexistent/model.yaml")
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "/nonexistent/model.yaml", me.Source)
}

func TestBuiltinModels(t *testing.T) {
	assert.Equal(t, []string{"tr098", "tr181"}, BuiltinModels())

	tr181, err := BuiltinModel("tr181")
	require.NoError(t, err)
	assert.Equal(t, SchemaTR181, DetectSchema(tr181))
	assert.True(t, tr181.Has("Device.IP.Diagnostics.IPPing.DiagnosticsState"))
	assert.True(t, tr181.Has("Device.WiFi.NeighboringWiFiDiagnostic.DiagnosticsState"))

	tr098, err := BuiltinModel("tr098")
	require.NoError(t, err)
	assert.Equal(t, SchemaTR098, DetectSchema(tr098))
	assert.True(t, tr098.Has("InternetGatewayDevice.TraceRouteDiagnostics.MaxHopCount"))

	_, err = BuiltinModel("tr000")
	assert.Error(t, err)
}

func TestDumpModelRoundTrip(t *testing.T) {
	s, err := LoadModel(strings.NewReader(testModel))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, DumpModel(&buf, "dumped", s))

	again, err := LoadModel(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), again.Snapshot())
}
