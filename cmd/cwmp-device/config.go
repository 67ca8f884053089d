package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwmpsim/cwmpsim-go/pkg/simulator"
)

// Config holds the cwmp-device configuration. Values are resolved in the
// order defaults, YAML file, environment, flags; later sources win.
type Config struct {
	ACSURL    string `yaml:"acs_url"`
	Model     string `yaml:"model"`
	ModelFile string `yaml:"model_file"`

	// Serial is the serial number of the first device. Further fleet
	// members count up from it.
	Serial string `yaml:"serial"`
	MAC    string `yaml:"mac"`
	Count  int    `yaml:"count"`

	ConnectionRequestAddr     string `yaml:"connection_request_addr"`
	DisableConnectionRequests bool   `yaml:"disable_connection_requests"`
	PeriodicInformsDisabled   bool   `yaml:"periodic_informs_disabled"`

	IntervalUnit        time.Duration `yaml:"interval_unit"`
	HTTPTimeout         time.Duration `yaml:"http_timeout"`
	DiagnosticDuration  time.Duration `yaml:"diagnostic_duration"`
	DiagnosticTimeUnit  time.Duration `yaml:"diagnostic_time_unit"`
	DownloadNotifyDelay time.Duration `yaml:"download_notify_delay"`

	LogLevel    string `yaml:"log_level"`
	Capture     string `yaml:"capture"`
	CaptureLog  bool   `yaml:"capture_log"`
	Journal     string `yaml:"journal"`
	HTTPAddr    string `yaml:"http_addr"`
	StateDir    string `yaml:"state_dir"`

	Advertise bool   `yaml:"advertise"`
	Interface string `yaml:"interface"`

	Interactive bool `yaml:"interactive"`

	// Discover lists announced simulators for this long and exits.
	Discover time.Duration `yaml:"-"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	sim := simulator.DefaultConfig()
	return Config{
		ACSURL:              sim.ACSURL,
		Model:               "tr181",
		Count:               1,
		IntervalUnit:        sim.IntervalUnit,
		HTTPTimeout:         sim.HTTPTimeout,
		DiagnosticDuration:  sim.DiagnosticDuration,
		DiagnosticTimeUnit:  sim.DiagnosticTimeUnit,
		DownloadNotifyDelay: sim.DownloadNotifyDelay,
		LogLevel:            "info",
	}
}

// Validate checks the values the simulator does not check itself.
func (c *Config) Validate() error {
	if c.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", c.Count)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Count > 1 && c.ConnectionRequestAddr != "" {
		if _, err := crAddrFor(c.ConnectionRequestAddr, c.Count-1); err != nil {
			return err
		}
	}
	return nil
}

// Simulator returns the simulator configuration shared by all fleet members.
func (c *Config) Simulator() simulator.Config {
	sim := simulator.DefaultConfig()
	sim.ACSURL = c.ACSURL
	sim.ConnectionRequestAddr = c.ConnectionRequestAddr
	sim.DisableConnectionRequests = c.DisableConnectionRequests
	sim.PeriodicInformsDisabled = c.PeriodicInformsDisabled
	sim.IntervalUnit = c.IntervalUnit
	sim.HTTPTimeout = c.HTTPTimeout
	sim.DiagnosticDuration = c.DiagnosticDuration
	sim.DiagnosticTimeUnit = c.DiagnosticTimeUnit
	sim.DownloadNotifyDelay = c.DownloadNotifyDelay
	return sim
}

// defineFlags binds the command-line flags to cfg.
func defineFlags(fs *flag.FlagSet, cfg *Config, configPath, envFile *string) {
	fs.StringVar(configPath, "config", "", "YAML configuration file")
	fs.StringVar(envFile, "env-file", ".env", "Environment file loaded when present")

	fs.StringVar(&cfg.ACSURL, "acs", cfg.ACSURL, "ACS URL")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Builtin data model: tr181, tr098")
	fs.StringVar(&cfg.ModelFile, "model-file", cfg.ModelFile, "Data model YAML file (overrides -model)")
	fs.StringVar(&cfg.Serial, "serial", cfg.Serial, "Serial number of the first device (model value if empty)")
	fs.StringVar(&cfg.MAC, "mac", cfg.MAC, "LAN MAC address of the first device (model value if empty)")
	fs.IntVar(&cfg.Count, "count", cfg.Count, "Number of simulated devices")

	fs.StringVar(&cfg.ConnectionRequestAddr, "cr-addr", cfg.ConnectionRequestAddr, "Connection request listen address (derived from the ACS route if empty)")
	fs.BoolVar(&cfg.DisableConnectionRequests, "no-cr", cfg.DisableConnectionRequests, "Disable the connection request listener")
	fs.BoolVar(&cfg.PeriodicInformsDisabled, "no-periodic", cfg.PeriodicInformsDisabled, "Disable periodic informs")

	fs.DurationVar(&cfg.IntervalUnit, "interval-unit", cfg.IntervalUnit, "Length of one PeriodicInformInterval unit")
	fs.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "Timeout of every ACS request")
	fs.DurationVar(&cfg.DiagnosticDuration, "diag-duration", cfg.DiagnosticDuration, "Duration of a simulated diagnostic")
	fs.DurationVar(&cfg.DiagnosticTimeUnit, "diag-time-unit", cfg.DiagnosticTimeUnit, "Length of one speed test time unit")
	fs.DurationVar(&cfg.DownloadNotifyDelay, "download-delay", cfg.DownloadNotifyDelay, "Delay before TRANSFER COMPLETE is reported")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.Capture, "capture", cfg.Capture, "Write protocol capture to this .clog file")
	fs.BoolVar(&cfg.CaptureLog, "capture-log", cfg.CaptureLog, "Log protocol events at debug level")
	fs.StringVar(&cfg.Journal, "journal", cfg.Journal, "SQLite session journal path")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "Serve /metrics and the journal API on this address")
	fs.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "Persist device parameters in this directory")

	fs.BoolVar(&cfg.Advertise, "advertise", cfg.Advertise, "Advertise connection request endpoints via mDNS")
	fs.StringVar(&cfg.Interface, "interface", cfg.Interface, "Network interface for mDNS (all if empty)")

	fs.BoolVar(&cfg.Interactive, "interactive", cfg.Interactive, "Start the interactive console")
	fs.DurationVar(&cfg.Discover, "discover", cfg.Discover, "Browse mDNS for announced devices this long, print them and exit")
}

// loadConfig resolves the configuration from args, getenv and the YAML
// file named by -config.
func loadConfig(args []string, getenv func(string) string) (Config, error) {
	var configPath, envFile string

	// First pass: locate the config file.
	probe := DefaultConfig()
	pre := flag.NewFlagSet("cwmp-device", flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	defineFlags(pre, &probe, &configPath, &envFile)
	if err := pre.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if configPath != "" {
		if err := readConfigFile(configPath, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("cwmp-device", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	defineFlags(fs, &cfg, &configPath, &envFile)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func readConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// envPrefix prefixes every environment variable.
const envPrefix = "CWMP_"

func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(envPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(envPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(envPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("ACS_URL", &cfg.ACSURL)
	str("MODEL", &cfg.Model)
	str("MODEL_FILE", &cfg.ModelFile)
	str("SERIAL", &cfg.Serial)
	str("MAC", &cfg.MAC)
	integer("COUNT", &cfg.Count)
	str("CR_ADDR", &cfg.ConnectionRequestAddr)
	boolean("NO_CR", &cfg.DisableConnectionRequests)
	boolean("NO_PERIODIC", &cfg.PeriodicInformsDisabled)
	duration("INTERVAL_UNIT", &cfg.IntervalUnit)
	duration("HTTP_TIMEOUT", &cfg.HTTPTimeout)
	duration("DIAG_DURATION", &cfg.DiagnosticDuration)
	duration("DIAG_TIME_UNIT", &cfg.DiagnosticTimeUnit)
	duration("DOWNLOAD_DELAY", &cfg.DownloadNotifyDelay)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("CAPTURE", &cfg.Capture)
	boolean("CAPTURE_LOG", &cfg.CaptureLog)
	str("JOURNAL", &cfg.Journal)
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("STATE_DIR", &cfg.StateDir)
	boolean("ADVERTISE", &cfg.Advertise)
	str("INTERFACE", &cfg.Interface)

	return errors.Join(errs...)
}

// envFileFromArgs returns the -env-file value without parsing the rest.
func envFileFromArgs(args []string) string {
	path := ".env"
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name != "env-file" || !strings.HasPrefix(arg, "-") {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return path
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (must be debug, info, warn, error)", s)
	}
}
