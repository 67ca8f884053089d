package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// MDNSBrowser finds announced devices.
type MDNSBrowser struct {
	config BrowserConfig
	browse func(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry) error
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	b := &MDNSBrowser{config: config}
	b.browse = b.zeroconfBrowse
	return b
}

func (b *MDNSBrowser) zeroconfBrowse(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry) error {
	var opts []zeroconf.ClientOption
	if ifaces := selectInterface(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return zeroconf.Browse(ctx, ServiceTypeConnectionRequest, Domain, entries, removed, opts...)
}

// Browse searches for devices until ctx is done. Each instance is emitted
// once, as a copy taken at its first sighting; addresses seen later on
// other interfaces are not re-emitted. The device channel is closed when
// ctx is done or browsing fails. A failure is delivered on the error
// channel, which receives at most one value.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *DeviceService, <-chan error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *DeviceService)
	errs := make(chan error, 1)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		defer cancel()

		seen := make(map[string]*DeviceService)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToService(entry)
				if svc == nil {
					continue
				}
				if existing, found := seen[svc.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				seen[svc.InstanceName] = svc

				emitted := *svc
				emitted.Addresses = append([]string(nil), svc.Addresses...)
				select {
				case out <- &emitted:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				delete(seen, entry.Instance)

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := b.browse(ctx, entries, removed); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("mdns browse: %w", err)
			cancel()
		}
	}()

	return out, errs
}

// Collect browses for timeout and returns every device found.
func (b *MDNSBrowser) Collect(ctx context.Context, timeout time.Duration) ([]*DeviceService, error) {
	if timeout <= 0 {
		timeout = BrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch, errs := b.Browse(ctx)
	var found []*DeviceService
	for svc := range ch {
		found = append(found, svc)
	}
	select {
	case err := <-errs:
		return found, err
	default:
		return found, nil
	}
}

// entryToService converts a zeroconf entry. Entries without a serial are
// ignored.
func entryToService(entry *zeroconf.ServiceEntry) *DeviceService {
	info, err := DecodeDeviceTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &DeviceService{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    addrs,
		Serial:       info.Serial,
		OUI:          info.OUI,
		ProductClass: info.ProductClass,
		Manufacturer: info.Manufacturer,
		Path:         info.Path,
	}
}

func mergeAddresses(existing, added []string) []string {
	have := make(map[string]bool, len(existing))
	for _, a := range existing {
		have[a] = true
	}
	for _, a := range added {
		if !have[a] {
			existing = append(existing, a)
			have[a] = true
		}
	}
	return existing
}
