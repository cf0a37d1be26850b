// Package peer keeps per-connection subscription state on the accepting
// side of a tcplink stream.
//
// Each accepted connection gets a Record holding its handle, its read
// buffer and the topics it has subscribed to, in arrival order. A Registry
// indexes the live records. Server runs the accept loop, parses inbound
// commands with package wire, and records subscriptions. Publish commands
// are handed to a Forwarder; delivery to subscribers is left to the caller,
// which can find them with Registry.Subscribers.
//
// Sessions and subscriptions can be persisted to SQLite with SQLiteStore so
// an operator can inspect who is subscribed to what.
package peer
