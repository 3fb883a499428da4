// Package persistence provides the unit of work that repositories share: a
// Context tracking entity instances and their lifecycle states, the Provider
// owning that context together with its transaction boundary, and the
// StoreClient the provider writes through. BunStore implements StoreClient
// on a bun database.
package persistence
