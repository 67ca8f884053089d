package methods

import (
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/params"
)

// InformParameters are always reported in an Inform when present.
var InformParameters = []string{
	"Device.DeviceInfo.SpecVersion",
	"InternetGatewayDevice.DeviceInfo.SpecVersion",
	"Device.DeviceInfo.HardwareVersion",
	"InternetGatewayDevice.DeviceInfo.HardwareVersion",
	"Device.DeviceInfo.SoftwareVersion",
	"InternetGatewayDevice.DeviceInfo.SoftwareVersion",
	"Device.DeviceInfo.ProvisioningCode",
	"InternetGatewayDevice.DeviceInfo.ProvisioningCode",
	"Device.ManagementServer.ParameterKey",
	"InternetGatewayDevice.ManagementServer.ParameterKey",
	"Device.ManagementServer.ConnectionRequestURL",
	"InternetGatewayDevice.ManagementServer.ConnectionRequestURL",
	"Device.WANDevice.1.WANConnectionDevice.1.WANPPPConnection.1.ExternalIPAddress",
	"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANPPPConnection.1.ExternalIPAddress",
	"Device.WANDevice.1.WANConnectionDevice.1.WANIPConnection.1.ExternalIPAddress",
	"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANIPConnection.1.ExternalIPAddress",
	"InternetGatewayDevice.LANDevice.1.LANEthernetInterfaceConfig.1.MACAddress",
}

// deviceIDField returns the first of DeviceID.<id>, Device.DeviceInfo.<info>
// and InternetGatewayDevice.DeviceInfo.<info>.
func deviceIDField(store params.Store, id, info string) string {
	_, rec, _ := params.First(store,
		"DeviceID."+id,
		params.RootTR181+"DeviceInfo."+info,
		params.RootTR098+"DeviceInfo."+info,
	)
	return rec.Value
}

// BuildInform builds the Inform opening a session. An empty event list
// reports "2 PERIODIC".
func BuildInform(store params.Store, events []string, now time.Time) *cwmp.Inform {
	if len(events) == 0 {
		events = []string{cwmp.EventPeriodic}
	}

	values := make([]cwmp.ParameterValueStruct, 0, len(InformParameters))
	for _, p := range InformParameters {
		rec, ok := store.Get(p)
		if !ok {
			continue
		}
		values = append(values, cwmp.ParameterValueStruct{
			Name:  p,
			Value: cwmp.ParameterValue{Type: rec.Type, Value: rec.Value},
		})
	}

	return &cwmp.Inform{
		DeviceID: cwmp.DeviceIDStruct{
			Manufacturer: deviceIDField(store, "Manufacturer", "Manufacturer"),
			OUI:          deviceIDField(store, "OUI", "ManufacturerOUI"),
			ProductClass: deviceIDField(store, "ProductClass", "ProductClass"),
			SerialNumber: deviceIDField(store, "SerialNumber", "SerialNumber"),
		},
		Event:         cwmp.NewEventList(events...),
		MaxEnvelopes:  1,
		CurrentTime:   now.UTC().Format(cwmp.TimeFormat),
		RetryCount:    0,
		ParameterList: cwmp.NewParameterValueList(values),
	}
}
