// Package discovery announces simulated CPEs over mDNS/DNS-SD.
//
// Each running device registers one instance of the _cwmp-cr._tcp service
// pointing at its connection-request listener, so an ACS under test can
// find the simulators on the local link without provisioning their URLs.
//
// Instance name format: CPE-<serial>
// TXT records: serial, oui, pc (ProductClass), mfr (Manufacturer) and
// path (the URL path of the connection-request endpoint).
package discovery
