// Package query validates audit record queries and applies defaults before
// they reach a storage backend.
//
// Validation covers pagination bounds, sort fields, time range order and
// the enumerated risk level and compliance status filters.
package query
