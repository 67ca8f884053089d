package discovery

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeDeviceTXT creates the TXT records of a device.
func EncodeDeviceTXT(info *DeviceInfo) TXTRecordMap {
	txt := TXTRecordMap{TXTKeySerial: info.Serial}
	if info.OUI != "" {
		txt[TXTKeyOUI] = info.OUI
	}
	if info.ProductClass != "" {
		txt[TXTKeyProductClass] = info.ProductClass
	}
	if info.Manufacturer != "" {
		txt[TXTKeyManufacturer] = info.Manufacturer
	}
	path := info.Path
	if path == "" {
		path = "/"
	}
	txt[TXTKeyPath] = path
	return txt
}

// DecodeDeviceTXT parses the TXT records of a device. Port is not part of
// the TXT data and is left zero.
func DecodeDeviceTXT(txt TXTRecordMap) (*DeviceInfo, error) {
	serial, ok := txt[TXTKeySerial]
	if !ok || serial == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeySerial)
	}
	return &DeviceInfo{
		Serial:       serial,
		OUI:          txt[TXTKeyOUI],
		ProductClass: txt[TXTKeyProductClass],
		Manufacturer: txt[TXTKeyManufacturer],
		Path:         txt[TXTKeyPath],
	}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value"
// strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}

// ValidateInfo checks the fields an announcement needs.
func ValidateInfo(info *DeviceInfo) error {
	if info.Serial == "" {
		return fmt.Errorf("%w: serial", ErrMissingRequired)
	}
	if info.Port == 0 {
		return ErrInvalidPort
	}
	if len(InstancePrefix+info.Serial) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// InfoFromURL fills Port and Path of info from a connection-request URL.
func InfoFromURL(info *DeviceInfo, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPort, err)
	}
	port, err := strconv.ParseUint(u.Port(), 10, 16)
	if err != nil || port == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidPort, rawURL)
	}
	info.Port = uint16(port)
	info.Path = u.Path
	if info.Path == "" {
		info.Path = "/"
	}
	return nil
}

func hostPort(addr string, port uint16) string {
	return net.JoinHostPort(addr, strconv.Itoa(int(port)))
}
