package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"

	"github.com/cwmpsim/cwmpsim-go/pkg/params"
	"github.com/cwmpsim/cwmpsim-go/pkg/persistence"
	"github.com/cwmpsim/cwmpsim-go/pkg/simulator"
)

// fallbackSerial is used when neither the flags nor the model name one.
const fallbackSerial = "SIM000001"

// Fleet is a set of simulators sharing one configuration.
type Fleet struct {
	sims   []*simulator.Simulator
	logger *slog.Logger
}

// loadModel returns a fresh store for one fleet member.
func loadModel(cfg *Config) (*params.MemoryStore, error) {
	if cfg.ModelFile != "" {
		return params.LoadModelFile(cfg.ModelFile)
	}
	return params.BuiltinModel(cfg.Model)
}

// NewFleet creates cfg.Count simulators. base carries the shared
// simulator settings; serial numbers, MAC addresses, listen addresses and
// state files are derived per member.
func NewFleet(cfg *Config, base simulator.Config) (*Fleet, error) {
	f := &Fleet{logger: base.Logger}

	serial := cfg.Serial
	mac := cfg.MAC
	for i := 0; i < cfg.Count; i++ {
		store, err := loadModel(cfg)
		if err != nil {
			return nil, err
		}
		if i == 0 && serial == "" && cfg.Count > 1 {
			serial = params.Value(store, "DeviceID.SerialNumber", fallbackSerial)
		}

		simCfg := base
		if serial != "" {
			simCfg.SerialNumber = serialFor(serial, i)
		}
		if mac != "" {
			simCfg.MACAddress, err = macFor(mac, i)
			if err != nil {
				return nil, err
			}
		}
		if cfg.ConnectionRequestAddr != "" {
			simCfg.ConnectionRequestAddr, err = crAddrFor(cfg.ConnectionRequestAddr, i)
			if err != nil {
				return nil, err
			}
		}
		if cfg.StateDir != "" {
			name := simCfg.SerialNumber
			if name == "" {
				name = params.Value(store, "DeviceID.SerialNumber", fallbackSerial)
			}
			simCfg.StateStore = persistence.NewDeviceStateStore(filepath.Join(cfg.StateDir, name+".json"))
		}

		sim, err := simulator.New(store, simCfg)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i+1, err)
		}
		f.sims = append(f.sims, sim)
	}
	return f, nil
}

// Simulators returns the fleet members in creation order.
func (f *Fleet) Simulators() []*simulator.Simulator {
	return f.sims
}

// Start starts every member. Members already started are stopped again
// when a later one fails.
func (f *Fleet) Start(ctx context.Context) error {
	for i, sim := range f.sims {
		if err := sim.Start(ctx); err != nil {
			for _, started := range f.sims[:i] {
				_ = started.Stop()
			}
			return fmt.Errorf("start %s: %w", sim.SerialNumber(), err)
		}
		if f.logger != nil {
			f.logger.Info("device started",
				"serial", sim.SerialNumber(),
				"connection_request_url", sim.ConnectionRequestURL())
		}
	}
	return nil
}

// Stop stops every member and returns the joined errors.
func (f *Fleet) Stop() error {
	var errs []error
	for _, sim := range f.sims {
		if err := sim.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", sim.SerialNumber(), err))
		}
	}
	return errors.Join(errs...)
}

// serialFor returns the serial number of fleet member i. A trailing
// number in base is incremented keeping its width; otherwise "-<i>" is
// appended for every member after the first.
func serialFor(base string, i int) string {
	if i == 0 {
		return base
	}
	end := len(base)
	start := end
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}
	if start == end {
		return fmt.Sprintf("%s-%d", base, i)
	}
	n, err := strconv.ParseUint(base[start:], 10, 64)
	if err != nil {
		return fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s%0*d", base[:start], end-start, n+uint64(i))
}

// macFor returns base with i added to its NIC-specific lower three bytes.
func macFor(base string, i int) (string, error) {
	hw, err := net.ParseMAC(base)
	if err != nil {
		return "", fmt.Errorf("mac address: %w", err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("mac address %q is not EUI-48", base)
	}
	nic := uint32(hw[3])<<16 | uint32(hw[4])<<8 | uint32(hw[5])
	nic = (nic + uint32(i)) & 0xffffff
	out := net.HardwareAddr{hw[0], hw[1], hw[2], byte(nic >> 16), byte(nic >> 8), byte(nic)}
	return out.String(), nil
}

// crAddrFor offsets a non-zero port in addr by i.
func crAddrFor(addr string, i int) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("connection request address: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("connection request port %q: %w", portStr, err)
	}
	if port == 0 {
		return addr, nil
	}
	if port+i > 65535 {
		return "", fmt.Errorf("connection request port %d+%d out of range", port, i)
	}
	return net.JoinHostPort(host, strconv.Itoa(port+i)), nil
}
