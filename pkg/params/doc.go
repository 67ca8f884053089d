// Package params holds the device parameter tree of a simulated CPE.
//
// The tree is a flat, ordered mapping from dotted paths to records. Object
// (branch) nodes end with a "." and carry only a writable flag; leaves carry
// a value and an xsd type tag as well:
//
//	Device.                                  object
//	Device.DeviceInfo.                       object
//	Device.DeviceInfo.SoftwareVersion        leaf  "1.0.0" xsd:string
//
// Core logic only depends on the Store interface. MemoryStore is the in-tree
// implementation used by the simulator, and LoadModel builds one from a YAML
// device model.
//
// # Transactions
//
// Multi-field updates (RPC handlers, diagnostic results) run inside a Tx so a
// concurrent reader never observes a partially applied result.
package params
