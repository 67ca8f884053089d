package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceTypeConnectionRequest is the service type of a CPE's
	// connection-request endpoint.
	ServiceTypeConnectionRequest = "_cwmp-cr._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// InstancePrefix starts every instance name.
	InstancePrefix = "CPE-"
)

// TXT record key constants.
const (
	TXTKeySerial       = "serial"
	TXTKeyOUI          = "oui"
	TXTKeyProductClass = "pc"
	TXTKeyManufacturer = "mfr"
	TXTKeyPath         = "path"
)

// BrowseTimeout is the default timeout for mDNS browsing.
const BrowseTimeout = 10 * time.Second

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required field")
	ErrInvalidPort         = errors.New("invalid port")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotAdvertised       = errors.New("device not advertised")
)

// DeviceInfo is what a simulated CPE announces.
type DeviceInfo struct {
	// Serial is the DeviceInfo.SerialNumber value. Required.
	Serial string

	OUI          string
	ProductClass string
	Manufacturer string

	// Port is the connection-request listener port. Required.
	Port uint16

	// Path is the URL path of the connection-request endpoint, "/" when
	// empty.
	Path string
}

// InstanceName returns the mDNS instance name for the device.
func (i *DeviceInfo) InstanceName() string {
	name := InstancePrefix + i.Serial
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// DeviceService is a CPE found by browsing.
type DeviceService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Serial       string
	OUI          string
	ProductClass string
	Manufacturer string
	Path         string
}

// ConnectionRequestURLs returns one URL per address.
func (s *DeviceService) ConnectionRequestURLs() []string {
	path := s.Path
	if path == "" {
		path = "/"
	}
	urls := make([]string, 0, len(s.Addresses))
	for _, a := range s.Addresses {
		urls = append(urls, "http://"+hostPort(a, s.Port)+path)
	}
	return urls
}
