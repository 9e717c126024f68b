package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLeafList(t *testing.T) {
	tests := []struct {
		leaflist string
		want     []Declaration
	}{
		{"x/I", []Declaration{{Name: "x", Type: Scalar{Kind: KindInt32}}}},
		{"x", []Declaration{{Name: "x", Type: Scalar{Kind: KindFloat32}}}},
		{"flag/O", []Declaration{{Name: "flag", Type: Scalar{Kind: KindBool}}}},
		{"u/b", []Declaration{{Name: "u", Type: Scalar{Kind: KindUInt8}}}},
		{"big/g", []Declaration{{Name: "big", Type: Scalar{Kind: KindUInt64}}}},
		{"label/C", []Declaration{{Name: "label", Type: String{}}}},
		{"label[16]/C", []Declaration{{Name: "label", Type: String{}}}},
		{"m[3][2]/s", []Declaration{{Name: "m", Type: FixedArray{
			Elem: FixedArray{Elem: Scalar{Kind: KindUInt16}, Len: 2}, Len: 3,
		}}}},
		{"x[d][2]/L", []Declaration{{Name: "x", Type: VariableArray{
			Elem: FixedArray{Elem: Scalar{Kind: KindInt64}, Len: 2}, LengthBranch: "d",
		}}}},
		{"px/F:py/F:n/i", []Declaration{
			{Name: "px", Type: Scalar{Kind: KindFloat32}},
			{Name: "py", Type: Scalar{Kind: KindFloat32}},
			{Name: "n", Type: Scalar{Kind: KindUInt32}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.leaflist, func(t *testing.T) {
			got, err := ParseLeafList(tt.leaflist)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.Equal(t, tt.want[i].Name, got[i].Name)
				assert.Equal(t, tt.want[i].Type, got[i].Type)
				assert.NotEmpty(t, got[i].Title)
			}
		})
	}
}

func TestParseLeafListErrors(t *testing.T) {
	tests := []struct {
		leaflist string
		err      error
	}{
		{"", ErrMalformedLeaf},
		{"x/", ErrMalformedLeaf},
		{"x/II", ErrMalformedLeaf},
		{"/I", ErrMalformedLeaf},
		{"[3]/I", ErrMalformedLeaf},
		{"x[3/I", ErrMalformedLeaf},
		{"x[]/I", ErrMalformedLeaf},
		{"x[0]/I", ErrMalformedLeaf},
		{"x[3]y/I", ErrMalformedLeaf},
		{"x/Q", ErrUnsupportedType},
		{"x[2][n]/I", ErrUnsupportedType},
		{"a/I::b/I", ErrMalformedLeaf},
	}

	for _, tt := range tests {
		t.Run(tt.leaflist, func(t *testing.T) {
			_, err := ParseLeafList(tt.leaflist)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestFormatLeafRoundTrip(t *testing.T) {
	for _, leaf := range []string{"x/I", "u/b", "label/C", "m[3][2]/s", "x[d][2]/L", "e[n]/D", "flag/O", "big/l"} {
		decls, err := ParseLeafList(leaf)
		require.NoError(t, err)

		got, err := FormatLeaf(decls[0])
		require.NoError(t, err)
		assert.Equal(t, leaf, got)
	}
}

func TestFormatLeafCanonicalCodes(t *testing.T) {
	decls, err := ParseLeafList("a/G:b/f:c/d")
	require.NoError(t, err)

	var got []string
	for _, d := range decls {
		s, err := FormatLeaf(d)
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Equal(t, []string{"a/L", "b/F", "c/D"}, got)
}

func TestFormatLeafErrors(t *testing.T) {
	for _, d := range []Declaration{
		{Name: "v", Type: Vector{Elem: Scalar{Kind: KindInt32}}},
		{Name: "s", Type: FixedArray{Elem: String{}, Len: 2}},
		{Name: "k", Type: Scalar{Kind: KindInvalid}},
	} {
		_, err := FormatLeaf(d)
		assert.ErrorIs(t, err, ErrUnsupportedType, d.String())
	}
}

func FuzzParseLeafList(f *testing.F) {
	for _, seed := range []string{"x/I", "x[d][2]/L", "px/F:py/F", "label[8]/C", "m[3][2]/s", "", "x[", "/"} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, leaflist string) {
		decls, err := ParseLeafList(leaflist)
		if err != nil {
			return
		}
		for _, d := range decls {
			if d.Name == "" || d.Type == nil {
				t.Fatalf("accepted incomplete declaration %v from %q", d, leaflist)
			}
			s, err := FormatLeaf(d)
			if err != nil {
				continue
			}
			again, err := ParseLeafList(s)
			if err != nil || len(again) != 1 {
				t.Fatalf("formatted leaf %q does not parse: %v", s, err)
			}
			if again[0].Type.String() != d.Type.String() {
				t.Fatalf("round trip changed %s into %s", d.Type, again[0].Type)
			}
		}
	})
}
