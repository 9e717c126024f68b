package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLeaves(t *testing.T, leaflist string) []Declaration {
	t.Helper()
	decls, err := ParseLeafList(leaflist)
	require.NoError(t, err)
	return decls
}

func TestResolve(t *testing.T) {
	decls := mustLeaves(t, "n/I:d/b:e[n]/D:m[d][2]/L:x/F")
	r, err := Resolve(decls)
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"n": true, "d": true}, r.Counters)

	d, ok := r.Lookup("m")
	require.True(t, ok)
	assert.Equal(t, "long[2][d]", d.Type.String())

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestResolveCounterAfterArray(t *testing.T) {
	r, err := Resolve(mustLeaves(t, "e[n]/D:n/s"))
	require.NoError(t, err)
	assert.True(t, r.Counters["n"])
}

func TestResolveErrors(t *testing.T) {
	i32 := Scalar{Kind: KindInt32}
	tests := []struct {
		name  string
		decls []Declaration
		err   error
	}{
		{
			name:  "duplicate",
			decls: []Declaration{{Name: "x", Type: i32}, {Name: "x", Type: i32}},
			err:   ErrDuplicateBranch,
		},
		{
			name:  "missing counter",
			decls: []Declaration{{Name: "e", Type: VariableArray{Elem: i32, LengthBranch: "n"}}},
			err:   ErrAmbiguousLength,
		},
		{
			name: "float counter",
			decls: []Declaration{
				{Name: "n", Type: Scalar{Kind: KindFloat32}},
				{Name: "e", Type: VariableArray{Elem: i32, LengthBranch: "n"}},
			},
			err: ErrAmbiguousLength,
		},
		{
			name: "bool counter",
			decls: []Declaration{
				{Name: "n", Type: Scalar{Kind: KindBool}},
				{Name: "e", Type: VariableArray{Elem: i32, LengthBranch: "n"}},
			},
			err: ErrAmbiguousLength,
		},
		{
			name: "array counter",
			decls: []Declaration{
				{Name: "n", Type: FixedArray{Elem: i32, Len: 2}},
				{Name: "e", Type: VariableArray{Elem: i32, LengthBranch: "n"}},
			},
			err: ErrAmbiguousLength,
		},
		{
			name:  "self reference",
			decls: []Declaration{{Name: "e", Type: VariableArray{Elem: i32, LengthBranch: "e"}}},
			err:   ErrAmbiguousLength,
		},
		{
			name:  "empty counter",
			decls: []Declaration{{Name: "e", Type: VariableArray{Elem: i32}}},
			err:   ErrAmbiguousLength,
		},
		{
			name: "variable inner dimension",
			decls: []Declaration{
				{Name: "n", Type: i32},
				{Name: "e", Type: FixedArray{Elem: VariableArray{Elem: i32, LengthBranch: "n"}, Len: 2}},
			},
			err: ErrUnsupportedType,
		},
		{
			name: "counted array inside vector",
			decls: []Declaration{
				{Name: "n", Type: i32},
				{Name: "v", Type: Vector{Elem: VariableArray{Elem: i32, LengthBranch: "n"}}},
			},
			err: ErrUnsupportedType,
		},
		{
			name: "counted array inside fixed array inside vector",
			decls: []Declaration{
				{Name: "n", Type: i32},
				{Name: "v", Type: Vector{Elem: FixedArray{Elem: VariableArray{Elem: i32, LengthBranch: "n"}, Len: 2}}},
			},
			err: ErrUnsupportedType,
		},
		{
			name: "nested variable arrays",
			decls: []Declaration{
				{Name: "n", Type: i32},
				{Name: "e", Type: VariableArray{Elem: VariableArray{Elem: i32, LengthBranch: "n"}, LengthBranch: "n"}},
			},
			err: ErrUnsupportedType,
		},
		{
			name:  "zero length",
			decls: []Declaration{{Name: "e", Type: FixedArray{Elem: i32, Len: 0}}},
			err:   ErrMalformedLeaf,
		},
		{
			name:  "invalid kind",
			decls: []Declaration{{Name: "k", Type: Scalar{}}},
			err:   ErrUnsupportedType,
		},
		{
			name:  "no type",
			decls: []Declaration{{Name: "k"}},
			err:   ErrUnsupportedType,
		},
		{
			name:  "no name",
			decls: []Declaration{{Type: i32}},
			err:   ErrMalformedLeaf,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.decls)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
