package simulator

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cwmpsim/cwmpsim-go/pkg/diagnostics"
	"github.com/cwmpsim/cwmpsim-go/pkg/discovery"
	"github.com/cwmpsim/cwmpsim-go/pkg/journal"
	"github.com/cwmpsim/cwmpsim-go/pkg/log"
	"github.com/cwmpsim/cwmpsim-go/pkg/methods"
	"github.com/cwmpsim/cwmpsim-go/pkg/metrics"
	"github.com/cwmpsim/cwmpsim-go/pkg/persistence"
	"github.com/cwmpsim/cwmpsim-go/pkg/session"
)

// Simulator errors.
var (
	ErrInvalidConfig  = errors.New("invalid simulator configuration")
	ErrNotStarted     = errors.New("simulator not started")
	ErrAlreadyStarted = errors.New("simulator already started")
	ErrUnknownPath    = errors.New("unknown parameter path")
)

// Config configures a Simulator.
type Config struct {
	// ACSURL is the ACS endpoint sessions are posted to.
	ACSURL string

	// SerialNumber replaces the model's serial number when non-empty.
	SerialNumber string

	// MACAddress replaces the model's LAN MAC address when non-empty.
	MACAddress string

	// ConnectionRequestAddr is the listen address for connection requests.
	// Empty derives it from the local address used to reach the ACS.
	ConnectionRequestAddr string

	// DisableConnectionRequests skips the connection-request listener.
	DisableConnectionRequests bool

	// PeriodicInformsDisabled stops periodic sessions.
	PeriodicInformsDisabled bool

	// IntervalUnit is the length of one PeriodicInformInterval unit.
	IntervalUnit time.Duration

	// HTTPTimeout bounds every POST to the ACS.
	HTTPTimeout time.Duration

	// DiagnosticDuration is how long a simulated diagnostic runs.
	DiagnosticDuration time.Duration

	// DiagnosticTimeUnit is the length of one speed test duration unit.
	DiagnosticTimeUnit time.Duration

	// DownloadNotifyDelay is the wait between a settled download and the
	// TRANSFER COMPLETE session.
	DownloadNotifyDelay time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger

	// Journal records sessions and diagnostics when non-nil.
	Journal *journal.Store

	// Metrics counts sessions and diagnostics when non-nil.
	Metrics *metrics.Collector

	// Advertiser announces the connection-request endpoint when non-nil.
	Advertiser discovery.Advertiser

	// StateStore restores the parameter store on New and saves it on Stop
	// when non-nil.
	StateStore *persistence.DeviceStateStore

	// ObjectConstructors adds AddObject constructors. The built-in port
	// mapping constructors apply where these define none.
	ObjectConstructors methods.ObjectConstructors
}

// DefaultConfig returns a simulator configuration with sensible defaults.
func DefaultConfig() Config {
	sess := session.DefaultConfig()
	diag := diagnostics.DefaultConfig()
	return Config{
		ACSURL:              sess.ACSURL,
		IntervalUnit:        sess.IntervalUnit,
		HTTPTimeout:         sess.HTTPTimeout,
		DiagnosticDuration:  diag.Duration,
		DiagnosticTimeUnit:  diag.TimeUnit,
		DownloadNotifyDelay: methods.DefaultNotifyDelay,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MACAddress != "" {
		if _, err := net.ParseMAC(c.MACAddress); err != nil {
			return fmt.Errorf("%w: mac address: %v", ErrInvalidConfig, err)
		}
	}
	if c.DownloadNotifyDelay < 0 {
		return fmt.Errorf("%w: negative download notify delay", ErrInvalidConfig)
	}
	sess := c.sessionConfig()
	if err := sess.Validate(); err != nil {
		return err
	}
	diag := c.diagnosticsConfig()
	return diag.Validate()
}

func (c *Config) sessionConfig() session.Config {
	sess := session.DefaultConfig()
	sess.ACSURL = c.ACSURL
	sess.DeviceID = c.SerialNumber
	sess.PeriodicInformsDisabled = c.PeriodicInformsDisabled
	sess.IntervalUnit = c.IntervalUnit
	sess.HTTPTimeout = c.HTTPTimeout
	sess.ConnectionRequestAddr = c.ConnectionRequestAddr
	sess.DisableConnectionRequests = c.DisableConnectionRequests
	sess.Logger = c.Logger
	sess.ProtocolLogger = c.ProtocolLogger
	return sess
}

func (c *Config) diagnosticsConfig() diagnostics.Config {
	return diagnostics.Config{
		Duration: c.DiagnosticDuration,
		TimeUnit: c.DiagnosticTimeUnit,
		Logger:   c.Logger,
	}
}
