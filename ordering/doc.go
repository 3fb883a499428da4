// Package ordering plans sort expressions and page windows over entity types.
//
// Orderings are dispatched through a closed table of scalar kinds. A field
// whose kind is not in the table cannot be ordered and planning it reports a
// configuration error, so a repository fails at construction rather than on
// its first page request.
package ordering
