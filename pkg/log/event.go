package log

import (
	"time"
)

// MaxBodyCapture is how many body bytes a BodyEvent keeps.
const MaxBodyCapture = 4096

// Event is a protocol event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the CWMP session (empty outside sessions).
	SessionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// DeviceID is the serial number of the simulated device.
	DeviceID string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the ACS URL or the connection-request client address.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Body        *BodyEvent        `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn is ACS to device.
	DirectionIn Direction = 0
	// DirectionOut is device to ACS.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is HTTP.
	LayerTransport Layer = 0
	// LayerRPC is the decoded SOAP envelope.
	LayerRPC Layer = 1
	// LayerSession is the session engine and the diagnostics scheduler.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerRPC:
		return "RPC"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 1
	CategoryError   Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// BodyEvent captures an HTTP body.
type BodyEvent struct {
	// Size is the full body size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the body, cut at MaxBodyCapture bytes.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`

	// Status is the HTTP status of a response body.
	Status int `cbor:"4,keyasint,omitempty"`
}

// NewBodyEvent captures data, truncating it when needed.
func NewBodyEvent(data []byte, status int) *BodyEvent {
	b := &BodyEvent{Size: len(data), Status: status}
	if len(data) > MaxBodyCapture {
		b.Data = append([]byte(nil), data[:MaxBodyCapture]...)
		b.Truncated = true
	} else if len(data) > 0 {
		b.Data = append([]byte(nil), data...)
	}
	return b
}

// MessageEvent captures a decoded RPC.
type MessageEvent struct {
	// Method is the CWMP method name, "" for an empty body.
	Method string `cbor:"1,keyasint"`

	// RequestID is the cwmp:ID header value.
	RequestID string `cbor:"2,keyasint,omitempty"`

	// FaultCode is set for fault responses.
	FaultCode *int `cbor:"3,keyasint,omitempty"`

	// Events lists the event codes of an Inform.
	Events []string `cbor:"4,keyasint,omitempty"`

	// ProcessingTime is the dispatch time of an ACS request, in nanoseconds.
	ProcessingTime *time.Duration `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures lifecycle changes.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	Name     string      `cbor:"2,keyasint,omitempty"`
	OldState string      `cbor:"3,keyasint,omitempty"`
	NewState string      `cbor:"4,keyasint"`
	Reason   string      `cbor:"5,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntitySession    StateEntity = 0
	StateEntityDiagnostic StateEntity = 1
	StateEntityTransfer   StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityDiagnostic:
		return "DIAGNOSTIC"
	case StateEntityTransfer:
		return "TRANSFER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is an HTTP status or CWMP fault code.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
