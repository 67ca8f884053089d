// Package diagnostics simulates the TR-069 diagnostic tests of a CPE: IP
// ping, trace route, download speed test and WiFi site survey.
//
// # Lifecycle
//
// A diagnostic moves None -> Requested -> Queued -> Running -> Complete or
// Error_<reason>. The only trigger is SetParameterValues: the method handler
// passes the written paths to Evaluate.
//
//   - Writing a test parameter without DiagnosticsState interrupts any run
//     and resets DiagnosticsState to "None".
//   - Writing DiagnosticsState to anything but "Requested" is ignored.
//   - Writing "Requested" interrupts any run, validates the current test
//     parameters and queues a fresh run.
//
// A validation failure is not an error: the run is queued with a result that
// writes the matching Error_ state, through the same queue and timer.
//
// # Single Permit
//
// All diagnostics share one FIFO queue and one execution permit, so at most
// one simulated test runs per device. Queued runs start on Run, which the
// session engine calls after every session close.
//
// # Interruption
//
// An entry's Outcome is set exactly once: Completed when its timer fires
// first, Interrupted when a later write or Stop gets there first. An
// interrupted entry never writes results and never notifies.
//
// # Results
//
// Each diagnostic has named result functions ("default", "error" and
// diagnostic specific ones). SetResult selects the function used by
// subsequent successful validations.
package diagnostics
