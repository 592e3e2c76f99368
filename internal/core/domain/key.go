// Package domain contains the core domain models for the build engine.
package domain

// Key uniquely identifies a rule. The engine treats it as an opaque byte
// string; only equality and ordering matter.
type Key string

// Value is the opaque payload produced by a rule. The engine compares values
// only for byte equality.
type Value []byte
