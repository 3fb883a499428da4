// Package repository provides a generic repository over entity types: key
// metadata, filtered and paged queries through the object graph or a Bridge,
// and the insert/update/delete state machine with veto hooks, all tracked in
// a shared persistence context.
package repository
