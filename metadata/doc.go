// Package metadata resolves the identity field of entity types and builds
// key-equality predicates from caller supplied key values.
package metadata
