// Package structure holds the in-memory forms of the composite values (List,
// Set, Hash, SortedSet) and their JSON encodings.
//
// None of the types here are safe for concurrent use. Each value is decoded
// from one backend record, mutated, and encoded back whole by the codec
// package; a value never outlives a single operation.
package structure
