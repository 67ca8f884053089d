// Package journal records simulated CWMP sessions in a SQLite database.
//
// One row is kept per session, per RPC exchanged in it and per diagnostics
// scheduler event, so ACS test runs can be inspected after the fact:
//
//	j, err := journal.Open("sessions.db")
//	...
//	engine.OnEvent(j.SessionHandler())
//	scheduler.OnEvent(j.DiagnosticHandler(serial))
//
// Engine events arrive on separate goroutines, so rows are written with
// upserts and do not depend on arrival order.
package journal
