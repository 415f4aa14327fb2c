// Package session implements the streaming session manager.
//
// A Manager owns exactly one logical duplex connection: its lifecycle
// (connect, keep-alive, reconnection with exponential backoff, disconnect),
// its subscription bookkeeping, and the dispatch of inbound protocol frames
// to typed callbacks. The replay/stream control sub-protocol is layered on
// the connected channel.
//
// Connection state machine:
//
//	disconnected -> connecting    Connect()
//	connecting   -> connected     transport open; subscriptions replayed
//	connecting   -> disconnected  first dial fails; Connect returns the error
//	connected    -> reconnecting  unexpected closure with auto-reconnect on
//	reconnecting -> connected     a scheduled attempt succeeds
//	reconnecting -> disconnected  attempt cap exceeded (terminal)
//	*            -> disconnected  explicit Disconnect(), always wins
//
// A Manager is not safe for concurrent use from independent call sites;
// callers needing independent sessions construct independent managers.
package session
