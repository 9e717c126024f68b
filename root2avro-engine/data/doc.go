// Package data maps tree branches to Avro and projects entries to records.
// This package implements:
// - Type mapping from branch declarations to an Avro record schema
// - Record projection with length-branch truncation
// - Ordered records with JSON and generic Avro forms
package data
