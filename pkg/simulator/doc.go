// Package simulator wires one simulated CPE together.
//
// A Simulator owns the device's parameter store and connects the method
// dispatcher, the diagnostics scheduler and the session engine around it:
//
//	store, _ := params.BuiltinModel("tr181")
//	cfg := simulator.DefaultConfig()
//	cfg.ACSURL = "http://acs.example:7547/"
//	cfg.SerialNumber = "SIM-000001"
//	sim, err := simulator.New(store, cfg)
//	...
//	err = sim.Start(ctx)
//	defer sim.Stop()
//
// Nothing is shared between simulators, so a fleet is a slice of them.
package simulator
