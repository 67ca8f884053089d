package journal

import "time"

// Session is one journaled CWMP session.
type Session struct {
	ID       string     `json:"id"`
	DeviceID string     `json:"device_id"`
	Events   []string   `json:"events,omitempty"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
	Error    string     `json:"error,omitempty"`

	// RPCCount and FaultCount are computed from the rpcs table.
	RPCCount   int `json:"rpc_count"`
	FaultCount int `json:"fault_count"`
}

// Duration returns how long the session was open, 0 while it is open.
func (s *Session) Duration() time.Duration {
	if s.OpenedAt == nil || s.ClosedAt == nil {
		return 0
	}
	return s.ClosedAt.Sub(*s.OpenedAt)
}

// Direction values of an RPC row.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// RPC is one message exchanged in a session. Method is "" for an empty
// body.
type RPC struct {
	SessionID string    `json:"session_id"`
	Direction string    `json:"direction"`
	Method    string    `json:"method"`
	FaultCode int       `json:"fault_code,omitempty"`
	At        time.Time `json:"at"`
}

// Diagnostic is one diagnostics scheduler event.
type Diagnostic struct {
	DeviceID string    `json:"device_id"`
	Name     string    `json:"name"`
	Event    string    `json:"event"`
	State    string    `json:"state,omitempty"`
	At       time.Time `json:"at"`
}
