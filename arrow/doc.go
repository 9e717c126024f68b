// Package arrow stores trees as Apache Arrow record batches.
// This package implements:
// - Branch declarations from Arrow schemas (field metadata or inferred types)
// - A tree source reading entries from record batches
// - A builder turning tree rows back into record batches
// - Arrow IPC stream and file reading and writing
//
// Each column is one branch. Array branches hold their whole backing buffer
// per entry, so that a counter-governed column keeps its stale tail slots as
// a ROOT buffer does.
package arrow
