package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
)

func testEntry(instance, ip string) *zeroconf.ServiceEntry {
	entry := &zeroconf.ServiceEntry{}
	entry.Instance = instance
	entry.HostName = "cpe.local."
	entry.Port = 7547
	entry.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	entry.Text = TXTRecordsToStrings(EncodeDeviceTXT(&DeviceInfo{Serial: instance, Path: "/cr"}))
	return entry
}

func TestCollectReportsBrowseFailure(t *testing.T) {
	failure := errors.New("no multicast interface")
	b := NewMDNSBrowser(BrowserConfig{})
	b.browse = func(context.Context, chan *zeroconf.ServiceEntry, chan *zeroconf.ServiceEntry) error {
		return failure
	}

	start := time.Now()
	found, err := b.Collect(context.Background(), 5*time.Second)
	if !errors.Is(err, failure) {
		t.Fatalf("Collect() error = %v, want %v", err, failure)
	}
	if len(found) != 0 {
		t.Errorf("found = %d devices, want 0", len(found))
	}
	if time.Since(start) > time.Second {
		t.Errorf("Collect() waited %v after the failure", time.Since(start))
	}
}

func TestCollectEmitsEachInstanceOnce(t *testing.T) {
	b := NewMDNSBrowser(BrowserConfig{})
	b.browse = func(ctx context.Context, entries, _ chan *zeroconf.ServiceEntry) error {
		for _, e := range []*zeroconf.ServiceEntry{
			testEntry("SIM000001", "192.0.2.1"),
			testEntry("SIM000001", "192.0.2.2"),
			testEntry("SIM000002", "192.0.2.3"),
		} {
			select {
			case entries <- e:
			case <-ctx.Done():
				return nil
			}
		}
		<-ctx.Done()
		return nil
	}

	found, err := b.Collect(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found = %d devices, want 2", len(found))
	}
	if found[0].Serial != "SIM000001" || len(found[0].Addresses) != 1 {
		t.Errorf("first = %+v, want SIM000001 with its first address only", found[0])
	}
}
