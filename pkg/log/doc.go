// Package log provides structured protocol capture for simulated CPEs.
//
// It is separate from operational logging (slog). Protocol capture records
// every HTTP body exchanged with the ACS, the decoded RPC it carried, and
// session and diagnostic state changes, as a machine-readable trace.
//
// # Basic Usage
//
//	// Console output through slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture file
//	fl, _ := log.NewFileLogger("/var/log/cwmpsim/device.clog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: HTTP bodies (BodyEvent)
//   - RPC: decoded CWMP methods (MessageEvent)
//   - Session: session, diagnostic and transfer state (StateChangeEvent)
//
// Errors at any layer carry an ErrorEventData.
//
// # File Format
//
// Capture files are a stream of CBOR maps with integer keys, using the .clog
// extension. The cwmp-log tool views, filters and summarizes them.
package log
