// Package persistence saves and restores a simulated device's parameter
// store as JSON, so values written by the ACS survive a restart.
package persistence
