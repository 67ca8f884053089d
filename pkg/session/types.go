package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/cwmp"
	"github.com/cwmpsim/cwmpsim-go/pkg/log"
)

// Engine errors.
var (
	ErrNotStarted     = errors.New("session engine not started")
	ErrAlreadyStarted = errors.New("session engine already started")
	ErrInvalidConfig  = errors.New("invalid session configuration")
	ErrReplyTooLarge  = errors.New("ACS reply too large")
)

// Defaults.
const (
	DefaultPeriodicInterval = 10 * time.Second
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultErrorBuffer      = 64
)

// State is the engine's session state.
type State uint8

const (
	// StateClosed means no session is open.
	StateClosed State = iota

	// StateOpening means the Inform is being sent.
	StateOpening

	// StateExchanging means the session is past the Inform.
	StateExchanging
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	case StateExchanging:
		return "EXCHANGING"
	default:
		return "UNKNOWN"
	}
}

// Config configures an Engine.
type Config struct {
	// ACSURL is where sessions are posted.
	ACSURL string

	// DeviceID names the device in protocol capture.
	DeviceID string

	// BootEvents are the event codes of the first session.
	BootEvents []string

	// PeriodicInformsDisabled stops the periodic timer from being armed.
	PeriodicInformsDisabled bool

	// DefaultPeriodicInterval is used when the model has no usable
	// PeriodicInformInterval.
	DefaultPeriodicInterval time.Duration

	// IntervalUnit is the length of one PeriodicInformInterval unit.
	IntervalUnit time.Duration

	// HTTPTimeout bounds every POST to the ACS.
	HTTPTimeout time.Duration

	// ConnectionRequestAddr is the listen address for connection requests.
	// Empty derives it from the local address used to reach the ACS.
	ConnectionRequestAddr string

	// DisableConnectionRequests skips the connection-request listener.
	DisableConnectionRequests bool

	// ErrorBuffer is the capacity of the Errors channel.
	ErrorBuffer int

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns an engine configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ACSURL:                  "http://127.0.0.1:57547/",
		BootEvents:              []string{cwmp.EventBoot},
		DefaultPeriodicInterval: DefaultPeriodicInterval,
		IntervalUnit:            time.Second,
		HTTPTimeout:             DefaultHTTPTimeout,
		ErrorBuffer:             DefaultErrorBuffer,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ACSURL)
	if err != nil {
		return fmt.Errorf("%w: acs url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: acs url scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: acs url has no host", ErrInvalidConfig)
	}
	if c.DefaultPeriodicInterval <= 0 || c.IntervalUnit <= 0 {
		return fmt.Errorf("%w: periodic interval must be positive", ErrInvalidConfig)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: http timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// StatusError is a non-2xx ACS reply.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response code %d from ACS", e.StatusCode)
}

// UnsupportedMethodError reports an ACS request naming a method the CPE
// does not implement. The session answered it with fault 9000.
type UnsupportedMethodError struct {
	Method  string
	Payload []byte
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("TR-069 method %q not supported", e.Method)
}

// EventType identifies an engine event.
type EventType uint8

const (
	EventSessionOpened EventType = iota
	EventSessionClosed
	EventMessageSent
	EventMessageReceived
	EventConnectionRequest
	EventError
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventSessionOpened:
		return "SESSION_OPENED"
	case EventSessionClosed:
		return "SESSION_CLOSED"
	case EventMessageSent:
		return "MESSAGE_SENT"
	case EventMessageReceived:
		return "MESSAGE_RECEIVED"
	case EventConnectionRequest:
		return "CONNECTION_REQUEST"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is an engine event.
type Event struct {
	Type      EventType
	Time      time.Time
	DeviceID  string
	SessionID string

	// Method is the RPC sent or received, "" for an empty body.
	Method string

	// Events are the Inform event codes of an opened session.
	Events []string

	// FaultCode is set when a fault was sent or received.
	FaultCode int

	Error error
}

// EventHandler handles engine events.
type EventHandler func(Event)
