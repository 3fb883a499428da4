// Package bridge holds Bridge implementations for repositories that read
// outside the object graph: SQL renders raw statements or stored procedure
// calls from templates, Memory serves a slice held in memory.
package bridge
