// Package entitygate is a generic entity-persistence gateway. Subpackages
// hold the repository engine (repository, persistence, predicate, ordering,
// metadata, bridge) and the database plumbing it runs on (database); this
// package adds a call-scoped Service facade and a Transaction helper over the
// global database.
package entitygate
