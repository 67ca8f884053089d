package methods

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// request encodes msg as an ACS would and decodes it back.
func request(t *testing.T, msg cwmp.Message) *cwmp.Envelope {
	t.Helper()
	data, err := cwmp.Encode("test-id", msg)
	require.NoError(t, err)
	env, err := cwmp.Decode(data)
	require.NoError(t, err)
	require.NotNil(t, env)
	return env
}

func newTestStore(t *testing.T) *params.MemoryStore {
	t.Helper()
	s, err := params.LoadModel(strings.NewReader(`
parameters:
  - {path: "DeviceID."}
  - {path: "DeviceID.ID", value: "MODEL-1"}
  - {path: "Device."}
  - {path: "Device.DeviceInfo."}
  - {path: "Device.DeviceInfo.Manufacturer", value: "Acme"}
  - {path: "Device.DeviceInfo.ManufacturerOUI", value: "A1B2C3"}
  - {path: "Device.DeviceInfo.ProductClass", value: "Box"}
  - {path: "Device.DeviceInfo.SerialNumber", value: "SN42"}
  - {path: "Device.DeviceInfo.SoftwareVersion", value: "1.0"}
  - {path: "Device.ManagementServer."}
  - {path: "Device.ManagementServer.ParameterKey"}
  - {path: "Device.ManagementServer.PeriodicInformInterval", writable: true, value: "10", type: "xsd:unsignedInt"}
  - {path: "Device.Hosts."}
  - {path: "Device.Hosts.Host.", writable: true}
  - {path: "Device.Hosts.Host.1.", writable: true}
  - {path: "Device.Hosts.Host.1.Active", writable: true, value: "true", type: "xsd:boolean"}
  - {path: "Device.Hosts.Host.1.HostName", writable: true, value: "laptop"}
  - {path: "Device.Hosts.Host.1.LeaseTimeRemaining", value: "100", type: "xsd:int"}
  - {path: "Device.Hosts.Host.1.IPv4Address.", writable: false}
  - {path: "Device.Hosts.Host.1.IPv4Address.1."}
  - {path: "Device.Hosts.Host.1.IPv4Address.1.IPAddress", value: "10.0.0.2"}
  - {path: "Device.Hosts.Host.3."}
  - {path: "Device.Hosts.Host.3.Seen", value: "2024-01-01T00:00:00Z", type: "xsd:dateTime"}
  - {path: "Device.NAT."}
  - {path: "Device.NAT.PortMappingNumberOfEntries", value: "0", type: "xsd:unsignedInt"}
  - {path: "Device.NAT.PortMapping.", writable: true}
`))
	require.NoError(t, err)
	return s
}
