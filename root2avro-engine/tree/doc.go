// Package tree models the branches of a columnar tree and the entries read
// from it.
//
// A branch type is one of Scalar, String, FixedArray, VariableArray or
// Vector. Nested arrays are arrays whose element is a FixedArray; only the
// outermost dimension of a branch may be bounded by a length branch.
// Declarations are parsed from ROOT leaf lists ("x[d][2]/L") or C++ type
// names ("vector<unsigned char>") and checked with Resolve.
//
// Entries are read through a Source, which hands out Row snapshots: the
// values of a row are copied on read because tree producers reuse their
// buffers between fills.
package tree
