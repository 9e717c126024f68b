// Package core runs conversions in parallel.
// This package implements:
// - Worker pool projecting rows on goroutines
// - Sequencer releasing records in entry order
// - The Convert pipeline tying a source, the projector and a sink together
package core
