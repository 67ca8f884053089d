// Command cwmp-device simulates one or more TR-069 CPEs against an ACS.
//
// Each device opens a BOOT session on start, answers ACS requests, honours
// connection requests and periodic informs, and runs simulated
// diagnostics. Settings come from defaults, an optional YAML file, CWMP_*
// environment variables (a .env file is loaded when present) and flags,
// in increasing precedence.
//
// Usage:
//
//	cwmp-device [flags]
//
// Examples:
//
//	# One TR-181 device against a local ACS
//	cwmp-device -acs http://127.0.0.1:7547/
//
//	# Ten TR-098 devices with consecutive serials and a session journal
//	cwmp-device -model tr098 -count 10 -serial SIM000001 -journal cwmp.db
//
//	# Capture the protocol and open the console
//	cwmp-device -capture device.clog -interactive
//
//	# List devices announced on the LAN
//	cwmp-device -discover 5s
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cwmpsim/cwmpsim-go/cmd/cwmp-device/interactive"
	"github.com/cwmpsim/cwmpsim-go/pkg/diagnostics"
	"github.com/cwmpsim/cwmpsim-go/pkg/discovery"
	"github.com/cwmpsim/cwmpsim-go/pkg/journal"
	"github.com/cwmpsim/cwmpsim-go/pkg/log"
	"github.com/cwmpsim/cwmpsim-go/pkg/metrics"
	"github.com/cwmpsim/cwmpsim-go/pkg/session"
	"github.com/cwmpsim/cwmpsim-go/pkg/simulator"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	args := os.Args[1:]

	if err := godotenv.Load(envFileFromArgs(args)); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: env file: %v\n", err)
	}

	cfg, err := loadConfig(args, os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		printUsage()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	if cfg.Discover > 0 {
		if err := discover(context.Background(), &cfg, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: cwmp-device [flags]")
	fs := flag.NewFlagSet("cwmp-device", flag.ContinueOnError)
	cfg := DefaultConfig()
	var configPath, envFile string
	defineFlags(fs, &cfg, &configPath, &envFile)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}

// setupLogging builds the process logger writing to w.
func setupLogging(w io.Writer, level string) *slog.Logger {
	lvl, _ := parseLevel(level)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var console *interactive.Console
	out := io.Writer(os.Stderr)
	if cfg.Interactive {
		var err error
		console, err = interactive.New()
		if err != nil {
			return err
		}
		out = console.Stderr()
	}
	logger := setupLogging(out, cfg.LogLevel)

	logger.Info("CWMP device simulator",
		"version", version, "acs", cfg.ACSURL, "count", cfg.Count, "model", modelName(&cfg))

	base := cfg.Simulator()
	base.Logger = logger

	var protocol []log.Logger
	if cfg.Capture != "" {
		capture, err := log.NewFileLogger(cfg.Capture)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("capture closed", "path", capture.Path(), "events", capture.Count())
			capture.Close()
		}()
		protocol = append(protocol, capture)
	}
	if cfg.CaptureLog {
		protocol = append(protocol, log.NewSlogAdapter(logger))
	}
	if len(protocol) > 0 {
		base.ProtocolLogger = log.NewMultiLogger(protocol...)
	}

	if cfg.Journal != "" {
		store, err := journal.Open(cfg.Journal)
		if err != nil {
			return err
		}
		defer store.Close()
		base.Journal = store
	}

	if cfg.HTTPAddr != "" {
		base.Metrics = metrics.NewCollector()
		srv, err := serveHTTP(cfg.HTTPAddr, base.Metrics, base.Journal, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Advertise {
		advCfg := discovery.DefaultAdvertiserConfig()
		advCfg.Interface = cfg.Interface
		advCfg.Logger = logger
		adv := discovery.NewMDNSAdvertiser(advCfg)
		defer adv.StopAll()
		base.Advertiser = adv
	}

	fleet, err := NewFleet(&cfg, base)
	if err != nil {
		return err
	}
	for _, sim := range fleet.Simulators() {
		watch(ctx, sim, logger)
	}

	if err := fleet.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := fleet.Stop(); err != nil {
			logger.Error("stop failed", "error", err)
		}
	}()

	if console != nil {
		devices := make([]interactive.Device, 0, cfg.Count)
		for _, sim := range fleet.Simulators() {
			devices = append(devices, sim)
		}
		console.SetDevices(devices)
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return nil
}

func modelName(cfg *Config) string {
	if cfg.ModelFile != "" {
		return cfg.ModelFile
	}
	return cfg.Model
}

// watch logs the events and errors of sim.
func watch(ctx context.Context, sim *simulator.Simulator, logger *slog.Logger) {
	serial := sim.SerialNumber()

	sim.OnEvent(func(ev session.Event) {
		switch ev.Type {
		case session.EventSessionOpened:
			logger.Info("session opened", "serial", serial, "session", ev.SessionID, "events", ev.Events)
		case session.EventSessionClosed:
			logger.Info("session closed", "serial", serial, "session", ev.SessionID)
		case session.EventConnectionRequest:
			logger.Info("connection request", "serial", serial)
		case session.EventMessageReceived:
			if ev.Method != "" {
				logger.Debug("rpc received", "serial", serial, "method", ev.Method, "fault", ev.FaultCode)
			}
		}
	})
	sim.OnDiagnosticEvent(func(ev diagnostics.Event) {
		switch ev.Type {
		case diagnostics.EventCompleted:
			logger.Info("diagnostic completed", "serial", serial, "name", ev.Name, "state", ev.State)
		case diagnostics.EventInterrupted:
			logger.Info("diagnostic interrupted", "serial", serial, "name", ev.Name)
		}
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-sim.Errors():
				if !ok {
					return
				}
				logger.Warn("session error", "serial", serial, "error", err)
			}
		}
	}()
}

// newMux routes /metrics to collector and, when store is non-nil, the
// journal API under /api/v1/.
func newMux(collector *metrics.Collector, store *journal.Store) (*http.ServeMux, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		return nil, err
	}
	reg.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	if store != nil {
		journal.NewAPI(store, version).Register(mux)
	}
	return mux, nil
}

func serveHTTP(addr string, collector *metrics.Collector, store *journal.Store, logger *slog.Logger) (*http.Server, error) {
	mux, err := newMux(collector, store)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}()
	logger.Info("http listening", "addr", addr)
	return srv, nil
}
