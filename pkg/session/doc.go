// Package session runs the CWMP conversation of one simulated CPE.
//
// An Engine owns at most one session at a time. A session opens with an
// Inform, sends the queued CPE requests, yields the turn with an empty POST
// and answers ACS requests until the ACS replies with an empty body.
//
// Triggers (periodic timer, connection request, diagnostic completion,
// manual) arriving while a session is open are remembered and open a new
// session as soon as the current one closes. On close the engine arms the
// periodic timer, gives the diagnostics scheduler a run pass and then runs
// queued local actions, in that order.
//
// Transport failures are reported on the Errors channel. The connection is
// torn down and nothing is retried until the next trigger.
package session
