// Package store keeps the history of refresh cycles. It provides a
// thread-safe in-memory history with TTL eviction and optional SQLite
// persistence for longer retention.
package store
