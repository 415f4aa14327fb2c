// Package wire defines the duplex channel protocol spoken by the streaming
// session: outbound commands (subscribe, ping, replay and stream control)
// and inbound messages as one tagged variant per kind, parsed through a
// single entry point and dispatched by an exhaustive type switch.
package wire
