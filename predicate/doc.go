// Package predicate holds the predicate tree used to filter entities, the
// compiler that renders it as a filter string, a parser for that string and
// an in-memory evaluator.
package predicate
