// Package methods implements the CPE side of the CWMP RPC methods.
//
// Handlers are registered by method name in a Registry. NewDispatcher checks
// the registry against cwmp.SupportedMethods so a missing or misspelled
// handler fails at startup rather than at the first request.
//
// Handlers operate only on the parameter store they receive in Env; the
// caller runs them inside the device transaction. Download is the one
// handler with side effects beyond the store: it starts an asynchronous
// fetch and queues a TransferComplete for the next session.
package methods
