package tree

import (
	"fmt"
	"strings"
)

// typeNames maps C++ and ROOT type names to kinds.
var typeNames = map[string]Kind{
	"bool":               KindBool,
	"Bool_t":             KindBool,
	"char":               KindInt8,
	"signed char":        KindInt8,
	"Char_t":             KindInt8,
	"Int8_t":             KindInt8,
	"int8_t":             KindInt8,
	"unsigned char":      KindUInt8,
	"UChar_t":            KindUInt8,
	"UInt8_t":            KindUInt8,
	"uint8_t":            KindUInt8,
	"short":              KindInt16,
	"Short_t":            KindInt16,
	"Short16_t":          KindInt16,
	"Int16_t":            KindInt16,
	"int16_t":            KindInt16,
	"unsigned short":     KindUInt16,
	"UShort_t":           KindUInt16,
	"UShort16_t":         KindUInt16,
	"UInt16_t":           KindUInt16,
	"uint16_t":           KindUInt16,
	"int":                KindInt32,
	"Int_t":              KindInt32,
	"Int32_t":            KindInt32,
	"int32_t":            KindInt32,
	"unsigned int":       KindUInt32,
	"unsigned":           KindUInt32,
	"UInt_t":             KindUInt32,
	"UInt32_t":           KindUInt32,
	"uint32_t":           KindUInt32,
	"long":               KindInt64,
	"long long":          KindInt64,
	"Long_t":             KindInt64,
	"Long64_t":           KindInt64,
	"int64_t":            KindInt64,
	"unsigned long":      KindUInt64,
	"unsigned long long": KindUInt64,
	"ULong_t":            KindUInt64,
	"ULong64_t":          KindUInt64,
	"uint64_t":           KindUInt64,
	"float":              KindFloat32,
	"Float_t":            KindFloat32,
	"Float16_t":          KindFloat32,
	"double":             KindFloat64,
	"Double_t":           KindFloat64,
	"Double32_t":         KindFloat64,
}

var stringNames = map[string]bool{
	"string":      true,
	"std::string": true,
	"TString":     true,
	"char*":       true,
	"Char_t*":     true,
}

var charNames = map[string]bool{
	"char":   true,
	"Char_t": true,
}

// ParseTypeName parses a C++ type name as written for object branches, for
// example "vector<unsigned char>", "std::string" or "vector<vector<int> >".
// A trailing "[N]" suffix declares a fixed array of that type.
func ParseTypeName(name string) (Type, error) {
	tn := normalizeTypeName(name)
	if tn == "" {
		return nil, fmt.Errorf("%w: empty type name", ErrMalformedLeaf)
	}

	if strings.HasSuffix(tn, "]") {
		open := strings.IndexByte(tn, '[')
		if open <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedLeaf, name)
		}
		elem, err := ParseTypeName(tn[:open])
		if err != nil {
			return nil, err
		}
		_, dims, err := splitDims("x" + tn[open:])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformedLeaf, name, err)
		}
		for _, d := range dims {
			if !isDigits(d) {
				return nil, fmt.Errorf("%w: variable dimension in type name %q", ErrUnsupportedType, name)
			}
		}
		if charNames[strings.TrimSpace(tn[:open])] {
			// The last dimension of a char array is the string buffer.
			elem, dims = String{}, dims[:len(dims)-1]
		}
		return applyDims(elem, dims)
	}

	if inner, ok := templateArg(tn, "vector"); ok {
		elem, err := ParseTypeName(inner)
		if err != nil {
			return nil, err
		}
		return Vector{Elem: elem}, nil
	}

	if stringNames[tn] {
		return String{}, nil
	}
	if kind, ok := typeNames[tn]; ok {
		return Scalar{Kind: kind}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}

func normalizeTypeName(name string) string {
	tn := strings.TrimSpace(name)
	for strings.HasPrefix(tn, "const ") {
		tn = strings.TrimSpace(strings.TrimPrefix(tn, "const "))
	}
	tn = strings.Join(strings.Fields(tn), " ")
	tn = strings.ReplaceAll(tn, " >", ">")
	tn = strings.ReplaceAll(tn, "< ", "<")
	tn = strings.ReplaceAll(tn, " *", "*")
	return tn
}

// templateArg returns the argument of tmpl<...> or std::tmpl<...>.
func templateArg(tn, tmpl string) (string, bool) {
	tn = strings.TrimPrefix(tn, "std::")
	if !strings.HasPrefix(tn, tmpl+"<") || !strings.HasSuffix(tn, ">") {
		return "", false
	}
	return strings.TrimSpace(tn[len(tmpl)+1 : len(tn)-1]), true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
