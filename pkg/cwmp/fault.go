package cwmp

import (
	"encoding/xml"
	"fmt"
)

// CWMP fault codes.
const (
	FaultMethodNotSupported   = 9000
	FaultInternalError        = 9002
	FaultInvalidArguments     = 9003
	FaultInvalidParameterName = 9005
	FaultDownloadFailure      = 9010
	FaultUnexpectedStatus     = 9016
)

// Fault is a CWMP fault. It is both the detail element of a SOAP fault and
// the error type handlers return to answer with one.
type Fault struct {
	FaultCode   int    `xml:"FaultCode"`
	FaultString string `xml:"FaultString"`
}

// NewFault creates a fault.
func NewFault(code int, format string, args ...any) *Fault {
	return &Fault{FaultCode: code, FaultString: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (f *Fault) Error() string {
	return fmt.Sprintf("cwmp fault %d: %s", f.FaultCode, f.FaultString)
}

// SOAPFault wraps a Fault in a soap-env:Fault body element.
type SOAPFault struct {
	FaultCode   string      `xml:"faultcode"`
	FaultString string      `xml:"faultstring"`
	Detail      faultDetail `xml:"detail"`
}

type faultDetail struct {
	Fault Fault `xml:"cwmp:Fault"`
}

// UnmarshalXML matches the detail fault by local name.
func (d *faultDetail) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Fault" {
				if err := dec.DecodeElement(&d.Fault, &t); err != nil {
					return err
				}
				continue
			}
			if err := dec.Skip(); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

// NewSOAPFault wraps f for sending. CPE-side faults use the "Client" code.
func NewSOAPFault(f *Fault) *SOAPFault {
	return &SOAPFault{
		FaultCode:   "Client",
		FaultString: "CWMP fault",
		Detail:      faultDetail{Fault: *f},
	}
}

// MethodName implements Message.
func (*SOAPFault) MethodName() string { return MethodFault }
