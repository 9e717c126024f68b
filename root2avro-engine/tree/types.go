package tree

import (
	"fmt"
	"strings"
)

// Kind is the primitive element type stored in a branch.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindUInt8
	KindInt16
	KindUInt16
	KindInt32
	KindUInt32
	KindInt64
	KindUInt64
	KindFloat32
	KindFloat64
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt8:
		return "char"
	case KindUInt8:
		return "unsigned char"
	case KindInt16:
		return "short"
	case KindUInt16:
		return "unsigned short"
	case KindInt32:
		return "int"
	case KindUInt32:
		return "unsigned int"
	case KindInt64:
		return "long"
	case KindUInt64:
		return "unsigned long"
	case KindFloat32:
		return "float"
	case KindFloat64:
		return "double"
	default:
		return "invalid"
	}
}

// Integral reports whether values of this kind can bound an array length.
func (k Kind) Integral() bool {
	switch k {
	case KindInt8, KindUInt8, KindInt16, KindUInt16,
		KindInt32, KindUInt32, KindInt64, KindUInt64:
		return true
	}
	return false
}

// Unsigned reports whether the kind is an unsigned integer.
func (k Kind) Unsigned() bool {
	switch k {
	case KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return true
	}
	return false
}

// Type describes the shape of one branch. It is one of Scalar, String,
// FixedArray, VariableArray or Vector.
type Type interface {
	isType()
	String() string
}

// Scalar is a single primitive value per entry.
type Scalar struct {
	Kind Kind
}

// String is a text value per entry: a /C leaf, std::string or TString.
type String struct{}

// FixedArray is a statically sized array. A FixedArray element makes the
// enclosing array nested; the inner width is always static.
type FixedArray struct {
	Elem Type
	Len  int
}

// VariableArray is an array whose valid outer length for an entry is the
// current value of LengthBranch. Capacity is the static outer capacity of
// the backing buffer, 0 when unknown.
type VariableArray struct {
	Elem         Type
	Capacity     int
	LengthBranch string
}

// Vector is a std::vector: its length is carried by the entry value itself.
type Vector struct {
	Elem Type
}

func (Scalar) isType()        {}
func (String) isType()        {}
func (FixedArray) isType()    {}
func (VariableArray) isType() {}
func (Vector) isType()        {}

func (t Scalar) String() string { return t.Kind.String() }
func (String) String() string   { return "string" }

func (t FixedArray) String() string {
	return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
}

func (t VariableArray) String() string {
	return fmt.Sprintf("%s[%s]", t.Elem, t.LengthBranch)
}

func (t Vector) String() string {
	return "vector<" + t.Elem.String() + ">"
}

// Leaf returns the innermost non-array type of t.
func Leaf(t Type) Type {
	for {
		switch v := t.(type) {
		case FixedArray:
			t = v.Elem
		case VariableArray:
			t = v.Elem
		case Vector:
			t = v.Elem
		default:
			return t
		}
	}
}

// FlatWidth returns the number of backing buffer slots occupied by one
// element of t. Scalars and strings occupy one slot, fixed arrays occupy
// Len times the width of their element.
func FlatWidth(t Type) int {
	if fa, ok := t.(FixedArray); ok {
		return fa.Len * FlatWidth(fa.Elem)
	}
	return 1
}

// Declaration names a branch and its type.
type Declaration struct {
	Name string
	Type Type
	// Title is the declaration text the type was parsed from, kept for
	// diagnostics.
	Title string
}

func (d Declaration) String() string {
	var sb strings.Builder
	sb.WriteString(d.Name)
	sb.WriteString(": ")
	if d.Type == nil {
		sb.WriteString("<nil>")
	} else {
		sb.WriteString(d.Type.String())
	}
	return sb.String()
}
