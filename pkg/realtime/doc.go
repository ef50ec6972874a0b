// Package realtime maintains the WebSocket subscription to the proposal
// event stream and feeds authoritative events into reconciliation.
//
// The connection moves through a three-state machine:
//
//	disconnected -> connecting -> connected
//	                    |              |
//	                    +--- failure --+--- unclean close
//	                              |
//	                         backoff retry (base * 2^(attempt-1))
//
// Subscriptions are tracked client-side: the set of proposal ids plus
// the authenticated user's channels. A transport reconnect is assumed to
// lose all server-side subscription state, so every tracked channel is
// resubscribed after each successful dial.
//
// Dial failures and unclean closes retry with exponential backoff up to a
// configured cap (default 5 attempts, 2s base). Exhausting the cap is
// terminal: a connection.lost event is published and no further attempts
// are made until the caller reconnects explicitly.
//
// An optional Throttle deduplicates connection attempts across callers:
// a Connect while another is pending is a silent no-op, and attempts
// closer together than the debounce window are delayed.
package realtime
