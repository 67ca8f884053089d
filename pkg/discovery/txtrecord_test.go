package discovery

import (
	"errors"
	"strings"
	"testing"
)

func TestDeviceTXTRoundTrip(t *testing.T) {
	info := &DeviceInfo{
		Serial:       "SIM-000001",
		OUI:          "00D09E",
		ProductClass: "IGD",
		Manufacturer: "Sim",
		Port:         7547,
		Path:         "/cr",
	}

	got, err := DecodeDeviceTXT(StringsToTXTRecords(TXTRecordsToStrings(EncodeDeviceTXT(info))))
	if err != nil {
		t.Fatalf("DecodeDeviceTXT() error = %v", err)
	}
	if got.Serial != info.Serial || got.OUI != info.OUI || got.ProductClass != info.ProductClass {
		t.Errorf("decoded = %+v, want %+v", got, info)
	}
	if got.Path != "/cr" {
		t.Errorf("Path = %q, want /cr", got.Path)
	}
	if got.Port != 0 {
		t.Errorf("Port = %d, want 0 (not carried in TXT)", got.Port)
	}
}

func TestEncodeDeviceTXTDefaults(t *testing.T) {
	txt := EncodeDeviceTXT(&DeviceInfo{Serial: "S"})
	if txt[TXTKeyPath] != "/" {
		t.Errorf("path = %q, want /", txt[TXTKeyPath])
	}
	if _, ok := txt[TXTKeyOUI]; ok {
		t.Error("empty OUI should be omitted")
	}
}

func TestDecodeDeviceTXTMissingSerial(t *testing.T) {
	_, err := DecodeDeviceTXT(TXTRecordMap{TXTKeyOUI: "00D09E"})
	if !errors.Is(err, ErrMissingRequired) {
		t.Errorf("error = %v, want ErrMissingRequired", err)
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "flag", "b=x=y", ""})
	if txt["a"] != "1" || txt["b"] != "x=y" {
		t.Errorf("txt = %v", txt)
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("flag = %q, %v", v, ok)
	}
	if len(txt) != 3 {
		t.Errorf("len = %d, want 3", len(txt))
	}
}

func TestTXTRecordsToStringsSorted(t *testing.T) {
	got := TXTRecordsToStrings(TXTRecordMap{"z": "1", "a": "2"})
	if strings.Join(got, ",") != "a=2,z=1" {
		t.Errorf("got %v", got)
	}
}

func TestValidateInfo(t *testing.T) {
	tests := []struct {
		name string
		info DeviceInfo
		want error
	}{
		{"valid", DeviceInfo{Serial: "S", Port: 1}, nil},
		{"no serial", DeviceInfo{Port: 1}, ErrMissingRequired},
		{"no port", DeviceInfo{Serial: "S"}, ErrInvalidPort},
		{"long serial", DeviceInfo{Serial: strings.Repeat("x", 60), Port: 1}, ErrInstanceNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInfo(&tt.info)
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateInfo() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInfoFromURL(t *testing.T) {
	var info DeviceInfo
	if err := InfoFromURL(&info, "http://192.168.1.10:41234/"); err != nil {
		t.Fatalf("InfoFromURL() error = %v", err)
	}
	if info.Port != 41234 || info.Path != "/" {
		t.Errorf("info = %+v", info)
	}

	if err := InfoFromURL(&info, "http://host/"); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("missing port error = %v", err)
	}
}

func TestInstanceName(t *testing.T) {
	info := &DeviceInfo{Serial: "SIM-1"}
	if got := info.InstanceName(); got != "CPE-SIM-1" {
		t.Errorf("InstanceName() = %q", got)
	}
	long := &DeviceInfo{Serial: strings.Repeat("x", 80)}
	if got := long.InstanceName(); len(got) != MaxInstanceNameLen {
		t.Errorf("len(InstanceName()) = %d", len(got))
	}
}

func TestConnectionRequestURLs(t *testing.T) {
	svc := &DeviceService{Port: 7547, Addresses: []string{"10.0.0.2", "fe80::1"}}
	got := svc.ConnectionRequestURLs()
	want := []string{"http://10.0.0.2:7547/", "http://[fe80::1]:7547/"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"a", "b"}, []string{"b", "c", "c"})
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("got %v", got)
	}
}

func TestMDNSAdvertiserRejectsInvalid(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	if err := a.Advertise(t.Context(), &DeviceInfo{Serial: "S"}); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("Advertise() error = %v, want ErrInvalidPort", err)
	}
	if err := a.Stop("S"); !errors.Is(err, ErrNotAdvertised) {
		t.Errorf("Stop() error = %v, want ErrNotAdvertised", err)
	}
	a.StopAll()
}
