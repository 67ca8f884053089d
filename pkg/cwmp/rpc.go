package cwmp

import (
	"encoding/xml"
	"fmt"
)

// RPC method names.
const (
	MethodInform                     = "Inform"
	MethodInformResponse             = "InformResponse"
	MethodGetParameterNames          = "GetParameterNames"
	MethodGetParameterValues         = "GetParameterValues"
	MethodSetParameterValues         = "SetParameterValues"
	MethodAddObject                  = "AddObject"
	MethodDeleteObject               = "DeleteObject"
	MethodDownload                   = "Download"
	MethodTransferComplete           = "TransferComplete"
	MethodTransferCompleteResponse   = "TransferCompleteResponse"
	MethodGetParameterNamesResponse  = "GetParameterNamesResponse"
	MethodGetParameterValuesResponse = "GetParameterValuesResponse"
	MethodSetParameterValuesResponse = "SetParameterValuesResponse"
	MethodAddObjectResponse          = "AddObjectResponse"
	MethodDeleteObjectResponse       = "DeleteObjectResponse"
	MethodDownloadResponse           = "DownloadResponse"
	MethodFault                      = "Fault"
)

// SupportedMethods lists the ACS-initiated methods a CPE answers.
var SupportedMethods = []string{
	MethodGetParameterNames,
	MethodGetParameterValues,
	MethodSetParameterValues,
	MethodAddObject,
	MethodDeleteObject,
	MethodDownload,
}

// DeviceIDStruct identifies the CPE in an Inform.
type DeviceIDStruct struct {
	Manufacturer string `xml:"Manufacturer"`
	OUI          string `xml:"OUI"`
	ProductClass string `xml:"ProductClass"`
	SerialNumber string `xml:"SerialNumber"`
}

// EventStruct is one Inform event.
type EventStruct struct {
	EventCode  string `xml:"EventCode"`
	CommandKey string `xml:"CommandKey"`
}

// EventList is the SOAP array of EventStruct.
type EventList struct {
	ArrayType string        `xml:"soap-enc:arrayType,attr,omitempty"`
	Events    []EventStruct `xml:"EventStruct"`
}

// NewEventList builds an event array from event codes.
func NewEventList(codes ...string) EventList {
	l := EventList{Events: make([]EventStruct, 0, len(codes))}
	for _, c := range codes {
		l.Events = append(l.Events, EventStruct{EventCode: c})
	}
	l.ArrayType = fmt.Sprintf("cwmp:EventStruct[%d]", len(l.Events))
	return l
}

// Codes returns the event codes in order.
func (l EventList) Codes() []string {
	codes := make([]string, len(l.Events))
	for i, e := range l.Events {
		codes[i] = e.EventCode
	}
	return codes
}

// ParameterValue is a typed parameter value. Type is the xsi:type tag.
type ParameterValue struct {
	Type  string `xml:"xsi:type,attr,omitempty"`
	Value string `xml:",chardata"`
}

// UnmarshalXML reads the type attribute by local name so any xsi prefix
// spelling is accepted.
func (v *ParameterValue) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	v.Type = ""
	for _, a := range start.Attr {
		if a.Name.Local == "type" {
			v.Type = a.Value
		}
	}
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	v.Value = s
	return nil
}

// ParameterValueStruct is a name/value pair.
type ParameterValueStruct struct {
	Name  string         `xml:"Name"`
	Value ParameterValue `xml:"Value"`
}

// ParameterValueList is the SOAP array of ParameterValueStruct.
type ParameterValueList struct {
	ArrayType string                 `xml:"soap-enc:arrayType,attr,omitempty"`
	Items     []ParameterValueStruct `xml:"ParameterValueStruct"`
}

// NewParameterValueList builds a value array.
func NewParameterValueList(items []ParameterValueStruct) ParameterValueList {
	return ParameterValueList{
		ArrayType: fmt.Sprintf("cwmp:ParameterValueStruct[%d]", len(items)),
		Items:     items,
	}
}

// ParameterInfoStruct is one GetParameterNames result.
type ParameterInfoStruct struct {
	Name     string `xml:"Name"`
	Writable bool   `xml:"Writable"`
}

// ParameterInfoList is the SOAP array of ParameterInfoStruct.
type ParameterInfoList struct {
	ArrayType string                `xml:"soap-enc:arrayType,attr,omitempty"`
	Items     []ParameterInfoStruct `xml:"ParameterInfoStruct"`
}

// StringList is a SOAP array of xsd:string.
type StringList struct {
	ArrayType string   `xml:"soap-enc:arrayType,attr,omitempty"`
	Items     []string `xml:"string"`
}

// NewStringList builds a string array.
func NewStringList(items ...string) StringList {
	return StringList{
		ArrayType: fmt.Sprintf("xsd:string[%d]", len(items)),
		Items:     items,
	}
}

// Inform opens every session.
type Inform struct {
	DeviceID      DeviceIDStruct     `xml:"DeviceId"`
	Event         EventList          `xml:"Event"`
	MaxEnvelopes  int                `xml:"MaxEnvelopes"`
	CurrentTime   string             `xml:"CurrentTime"`
	RetryCount    int                `xml:"RetryCount"`
	ParameterList ParameterValueList `xml:"ParameterList"`
}

// InformResponse is the ACS answer to Inform.
type InformResponse struct {
	MaxEnvelopes int `xml:"MaxEnvelopes"`
}

// GetParameterNames lists parameter names under a path.
type GetParameterNames struct {
	ParameterPath string `xml:"ParameterPath"`
	NextLevel     bool   `xml:"NextLevel"`
}

// GetParameterNamesResponse carries the matching names.
type GetParameterNamesResponse struct {
	ParameterList ParameterInfoList `xml:"ParameterList"`
}

// GetParameterValues reads parameter values.
type GetParameterValues struct {
	ParameterNames StringList `xml:"ParameterNames"`
}

// GetParameterValuesResponse carries the values read.
type GetParameterValuesResponse struct {
	ParameterList ParameterValueList `xml:"ParameterList"`
}

// SetParameterValues writes parameter values.
type SetParameterValues struct {
	ParameterList ParameterValueList `xml:"ParameterList"`
	ParameterKey  string             `xml:"ParameterKey"`
}

// SetParameterValuesResponse reports the apply status.
type SetParameterValuesResponse struct {
	Status int `xml:"Status"`
}

// AddObject creates an object instance.
type AddObject struct {
	ObjectName   string `xml:"ObjectName"`
	ParameterKey string `xml:"ParameterKey"`
}

// AddObjectResponse reports the new instance number.
type AddObjectResponse struct {
	InstanceNumber int `xml:"InstanceNumber"`
	Status         int `xml:"Status"`
}

// DeleteObject removes an object instance.
type DeleteObject struct {
	ObjectName   string `xml:"ObjectName"`
	ParameterKey string `xml:"ParameterKey"`
}

// DeleteObjectResponse reports the delete status.
type DeleteObjectResponse struct {
	Status int `xml:"Status"`
}

// Download asks the CPE to fetch a file.
type Download struct {
	CommandKey     string `xml:"CommandKey"`
	FileType       string `xml:"FileType"`
	URL            string `xml:"URL"`
	Username       string `xml:"Username"`
	Password       string `xml:"Password"`
	FileSize       int64  `xml:"FileSize"`
	TargetFileName string `xml:"TargetFileName"`
	DelaySeconds   int    `xml:"DelaySeconds"`
	SuccessURL     string `xml:"SuccessURL"`
	FailureURL     string `xml:"FailureURL"`
}

// DownloadResponse acknowledges a Download. Status 1 means the transfer
// completes later and is reported with TransferComplete.
type DownloadResponse struct {
	Status       int    `xml:"Status"`
	StartTime    string `xml:"StartTime"`
	CompleteTime string `xml:"CompleteTime"`
}

// FaultStruct is the outcome of a transfer.
type FaultStruct struct {
	FaultCode   int    `xml:"FaultCode"`
	FaultString string `xml:"FaultString"`
}

// TransferComplete reports the outcome of an earlier Download.
type TransferComplete struct {
	CommandKey   string      `xml:"CommandKey"`
	FaultStruct  FaultStruct `xml:"FaultStruct"`
	StartTime    string      `xml:"StartTime"`
	CompleteTime string      `xml:"CompleteTime"`
}

// TransferCompleteResponse is the ACS answer to TransferComplete.
type TransferCompleteResponse struct{}

func (*Inform) MethodName() string                     { return MethodInform }
func (*InformResponse) MethodName() string             { return MethodInformResponse }
func (*GetParameterNames) MethodName() string          { return MethodGetParameterNames }
func (*GetParameterNamesResponse) MethodName() string  { return MethodGetParameterNamesResponse }
func (*GetParameterValues) MethodName() string         { return MethodGetParameterValues }
func (*GetParameterValuesResponse) MethodName() string { return MethodGetParameterValuesResponse }
func (*SetParameterValues) MethodName() string         { return MethodSetParameterValues }
func (*SetParameterValuesResponse) MethodName() string { return MethodSetParameterValuesResponse }
func (*AddObject) MethodName() string                  { return MethodAddObject }
func (*AddObjectResponse) MethodName() string          { return MethodAddObjectResponse }
func (*DeleteObject) MethodName() string               { return MethodDeleteObject }
func (*DeleteObjectResponse) MethodName() string       { return MethodDeleteObjectResponse }
func (*Download) MethodName() string                   { return MethodDownload }
func (*DownloadResponse) MethodName() string           { return MethodDownloadResponse }
func (*TransferComplete) MethodName() string           { return MethodTransferComplete }
func (*TransferCompleteResponse) MethodName() string   { return MethodTransferCompleteResponse }
