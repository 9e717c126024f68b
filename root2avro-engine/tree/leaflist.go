package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// leafCodes maps the type code after '/' in a leaf list to a kind.
// Lower-case integer codes are the unsigned variants.
var leafCodes = map[byte]Kind{
	'O': KindBool,
	'B': KindInt8,
	'b': KindUInt8,
	'S': KindInt16,
	's': KindUInt16,
	'I': KindInt32,
	'i': KindUInt32,
	'L': KindInt64,
	'l': KindUInt64,
	'G': KindInt64,
	'g': KindUInt64,
	'F': KindFloat32,
	'f': KindFloat32,
	'D': KindFloat64,
	'd': KindFloat64,
}

// ParseLeafList parses a branch leaf list such as "x[d][2]/L" or
// "px/F:py/F" into one declaration per leaf. A leaf without a type code is
// a float, as in ROOT.
func ParseLeafList(leaflist string) ([]Declaration, error) {
	leaflist = strings.TrimSpace(leaflist)
	if leaflist == "" {
		return nil, fmt.Errorf("%w: empty leaf list", ErrMalformedLeaf)
	}

	parts := strings.Split(leaflist, ":")
	decls := make([]Declaration, 0, len(parts))
	for _, part := range parts {
		decl, err := parseLeaf(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func parseLeaf(leaf string) (Declaration, error) {
	code := byte('F')
	spec := leaf
	if i := strings.LastIndexByte(leaf, '/'); i >= 0 {
		if len(leaf)-i != 2 {
			return Declaration{}, fmt.Errorf("%w: bad type code in %q", ErrMalformedLeaf, leaf)
		}
		code = leaf[i+1]
		spec = leaf[:i]
	}

	name, dims, err := splitDims(spec)
	if err != nil {
		return Declaration{}, fmt.Errorf("%w: %q: %v", ErrMalformedLeaf, leaf, err)
	}

	// A character leaf is a C string whatever its declared length.
	if code == 'C' {
		return Declaration{Name: name, Type: String{}, Title: leaf}, nil
	}

	kind, ok := leafCodes[code]
	if !ok {
		return Declaration{}, fmt.Errorf("%w: leaf type code %q in %q", ErrUnsupportedType, code, leaf)
	}

	typ, err := applyDims(Scalar{Kind: kind}, dims)
	if err != nil {
		return Declaration{}, fmt.Errorf("%q: %w", leaf, err)
	}
	return Declaration{Name: name, Type: typ, Title: leaf}, nil
}

// splitDims splits "x[d][2]" into "x" and ["d", "2"].
func splitDims(spec string) (string, []string, error) {
	open := strings.IndexByte(spec, '[')
	if open < 0 {
		if spec == "" {
			return "", nil, fmt.Errorf("missing name")
		}
		return spec, nil, nil
	}

	name := spec[:open]
	if name == "" {
		return "", nil, fmt.Errorf("missing name")
	}

	var dims []string
	rest := spec[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("unexpected %q", rest)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated dimension")
		}
		dim := strings.TrimSpace(rest[1:end])
		if dim == "" {
			return "", nil, fmt.Errorf("empty dimension")
		}
		dims = append(dims, dim)
		rest = rest[end+1:]
	}
	return name, dims, nil
}

// applyDims wraps elem in array types, innermost dimension last. Only the
// outermost dimension may name a length branch.
func applyDims(elem Type, dims []string) (Type, error) {
	typ := elem
	for i := len(dims) - 1; i >= 0; i-- {
		n, err := strconv.Atoi(dims[i])
		if err == nil {
			if n <= 0 {
				return nil, fmt.Errorf("%w: dimension %d must be positive", ErrMalformedLeaf, n)
			}
			typ = FixedArray{Elem: typ, Len: n}
			continue
		}
		if i != 0 {
			return nil, fmt.Errorf("%w: variable inner dimension [%s]", ErrUnsupportedType, dims[i])
		}
		typ = VariableArray{Elem: typ, LengthBranch: dims[i]}
	}
	return typ, nil
}

// LeafCode returns the canonical leaf list type code of a kind.
func LeafCode(k Kind) (byte, bool) {
	switch k {
	case KindBool:
		return 'O', true
	case KindInt8:
		return 'B', true
	case KindUInt8:
		return 'b', true
	case KindInt16:
		return 'S', true
	case KindUInt16:
		return 's', true
	case KindInt32:
		return 'I', true
	case KindUInt32:
		return 'i', true
	case KindInt64:
		return 'L', true
	case KindUInt64:
		return 'l', true
	case KindFloat32:
		return 'F', true
	case KindFloat64:
		return 'D', true
	}
	return 0, false
}

// FormatLeaf renders a declaration back into leaf list form, for example
// "x[d][2]/L". Vectors have no leaf list form.
func FormatLeaf(d Declaration) (string, error) {
	var sb strings.Builder
	sb.WriteString(d.Name)

	t := d.Type
	for {
		switch v := t.(type) {
		case VariableArray:
			sb.WriteString("[" + v.LengthBranch + "]")
			t = v.Elem
			continue
		case FixedArray:
			sb.WriteString("[" + strconv.Itoa(v.Len) + "]")
			t = v.Elem
			continue
		case String:
			if sb.Len() != len(d.Name) {
				return "", fmt.Errorf("%w: %s has no leaf list form", ErrUnsupportedType, d)
			}
			sb.WriteString("/C")
			return sb.String(), nil
		case Scalar:
			code, ok := LeafCode(v.Kind)
			if !ok {
				return "", fmt.Errorf("%w: kind %s", ErrUnsupportedType, v.Kind)
			}
			sb.WriteByte('/')
			sb.WriteByte(code)
			return sb.String(), nil
		default:
			return "", fmt.Errorf("%w: %s has no leaf list form", ErrUnsupportedType, d)
		}
	}
}
