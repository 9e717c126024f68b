package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypeName(t *testing.T) {
	tests := []struct {
		name string
		want Type
	}{
		{"int", Scalar{Kind: KindInt32}},
		{"Int_t", Scalar{Kind: KindInt32}},
		{"UChar_t", Scalar{Kind: KindUInt8}},
		{"unsigned   char", Scalar{Kind: KindUInt8}},
		{"const double", Scalar{Kind: KindFloat64}},
		{"Double32_t", Scalar{Kind: KindFloat64}},
		{"Float16_t", Scalar{Kind: KindFloat32}},
		{"Long64_t", Scalar{Kind: KindInt64}},
		{"ULong64_t", Scalar{Kind: KindUInt64}},
		{"std::string", String{}},
		{"TString", String{}},
		{"char *", String{}},
		{"vector<unsigned char>", Vector{Elem: Scalar{Kind: KindUInt8}}},
		{"std::vector<double>", Vector{Elem: Scalar{Kind: KindFloat64}}},
		{"vector<vector<int> >", Vector{Elem: Vector{Elem: Scalar{Kind: KindInt32}}}},
		{"vector<string>", Vector{Elem: String{}}},
		{"float[3]", FixedArray{Elem: Scalar{Kind: KindFloat32}, Len: 3}},
		{"char[8]", String{}},
		{"Char_t[3][16]", FixedArray{Elem: String{}, Len: 3}},
		{"unsigned char[4]", FixedArray{Elem: Scalar{Kind: KindUInt8}, Len: 4}},
		{"short[2][4]", FixedArray{Elem: FixedArray{Elem: Scalar{Kind: KindInt16}, Len: 4}, Len: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTypeName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTypeNameErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"", ErrMalformedLeaf},
		{"TLorentzVector", ErrUnsupportedType},
		{"map<int,int>", ErrUnsupportedType},
		{"vector<TObject>", ErrUnsupportedType},
		{"int[n]", ErrUnsupportedType},
		{"[3]", ErrMalformedLeaf},
		{"int[3", ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTypeName(tt.name)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestTypeStrings(t *testing.T) {
	typ := VariableArray{Elem: FixedArray{Elem: Scalar{Kind: KindInt64}, Len: 2}, LengthBranch: "d"}
	assert.Equal(t, "long[2][d]", typ.String())
	assert.Equal(t, "vector<unsigned char>", Vector{Elem: Scalar{Kind: KindUInt8}}.String())
	assert.Equal(t, "x: string", Declaration{Name: "x", Type: String{}}.String())
	assert.Equal(t, "x: <nil>", Declaration{Name: "x"}.String())

	assert.Equal(t, Scalar{Kind: KindInt64}, Leaf(typ))
	assert.Equal(t, 2, FlatWidth(typ.Elem))
	assert.Equal(t, 1, FlatWidth(typ))
	assert.Equal(t, 6, FlatWidth(FixedArray{Elem: FixedArray{Elem: String{}, Len: 2}, Len: 3}))
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, KindUInt8.Integral())
	assert.True(t, KindInt64.Integral())
	assert.False(t, KindBool.Integral())
	assert.False(t, KindFloat64.Integral())

	assert.True(t, KindUInt64.Unsigned())
	assert.False(t, KindInt32.Unsigned())
	assert.Equal(t, "invalid", KindInvalid.String())
}
