// Package cwmp defines the SOAP wire format of the CPE WAN Management
// Protocol (TR-069).
//
// Every request and response is a SOAP envelope carrying a correlation id in
// the cwmp:ID header and exactly one RPC element in the body. An empty HTTP
// body is not an envelope: it yields the turn and, when both sides send one,
// ends the session. Decode maps an empty body to a nil envelope.
//
// # Prefixes
//
// Outgoing documents use the fixed prefixes soap-env, soap-enc, xsd, xsi and
// cwmp declared on the envelope. Incoming documents are matched by local
// name only, so an ACS may choose its own prefixes.
//
// # RPC Types
//
// Each RPC body is a plain struct implementing Message. Handlers decode the
// request body with (*Envelope).DecodeBody and return a Message to send back.
package cwmp
