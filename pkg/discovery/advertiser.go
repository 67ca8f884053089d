package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser announces devices over mDNS.
type Advertiser interface {
	// Advertise starts announcing info. A device already announced under
	// the same serial is replaced.
	Advertise(ctx context.Context, info *DeviceInfo) error

	// Stop stops announcing the device with serial.
	Stop(serial string) error

	// StopAll stops all announcements.
	StopAll()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       120 * time.Second,
	}
}

// MDNSAdvertiser implements the Advertiser interface using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by serial
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// interfaces returns the network interfaces to use. Nil means all.
func (a *MDNSAdvertiser) interfaces() []net.Interface {
	return selectInterface(a.config.Interface)
}

func selectInterface(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise starts announcing info.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *DeviceInfo) error {
	if err := ValidateInfo(info); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if old := a.servers[info.Serial]; old != nil {
		old.Shutdown()
		delete(a.servers, info.Serial)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.InstanceName(),
		ServiceTypeConnectionRequest,
		Domain,
		int(info.Port),
		TXTRecordsToStrings(EncodeDeviceTXT(info)),
		a.interfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", info.InstanceName(), err)
	}

	a.servers[info.Serial] = server
	a.debugLog("advertising", "instance", info.InstanceName(), "port", info.Port)
	return nil
}

// Stop stops announcing the device with serial.
func (a *MDNSAdvertiser) Stop(serial string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, ok := a.servers[serial]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAdvertised, serial)
	}
	server.Shutdown()
	delete(a.servers, serial)
	return nil
}

// StopAll stops all announcements.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for serial, server := range a.servers {
		server.Shutdown()
		delete(a.servers, serial)
	}
}

// debugLog logs a debug message if logging is enabled.
func (a *MDNSAdvertiser) debugLog(msg string, args ...any) {
	if a.config.Logger != nil {
		a.config.Logger.Debug(msg, args...)
	}
}
