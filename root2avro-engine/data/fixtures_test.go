package data

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

// fixture is a tree filled the way the equivalent ROOT macro fills it,
// with the schema and records the converter must produce.
type fixture struct {
	name   string
	build  func(t *testing.T) *tree.MemTree
	schema string
	json   []string
}

func simpleString3(t *testing.T) *tree.MemTree {
	tr := tree.NewMemTree("t")
	require.NoError(t, tr.BranchObject("x", "std::string"))
	for _, x := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, tr.Fill(map[string]any{"x": x}))
	}
	return tr
}

func vectorUChar(t *testing.T) *tree.MemTree {
	tr := tree.NewMemTree("t")
	require.NoError(t, tr.BranchObject("x", "vector<unsigned char>"))
	x := []uint8{}
	for _, v := range [][]uint8{{0, 1, 2}, {10, 11, 12}, {100, 101, 102}, {20, 21, 22}} {
		x = append(x[:0], v...)
		require.NoError(t, tr.Fill(map[string]any{"x": x}))
	}
	return tr
}

// arrayArrayLong2 reuses one long x[5][2] buffer across fills, so stale
// values stay behind the slots that d marks as valid.
func arrayArrayLong2(t *testing.T) *tree.MemTree {
	tr := tree.NewMemTree("t")
	require.NoError(t, tr.Branch("d", "d/I"))
	require.NoError(t, tr.Branch("x", "x[d][2]/L"))

	x := make([]int64, 10)
	var d int32
	fill := func() {
		require.NoError(t, tr.Fill(map[string]any{"d": d, "x": x}))
	}

	d = 0
	fill()
	d = 1
	x[0], x[1] = 1, 2
	fill()
	d = 2
	x[2], x[3] = 3, 4
	fill()
	d = 3
	x[4], x[5] = 5, 6
	fill()
	d = 4
	x[6], x[7] = 7, 8
	fill()
	return tr
}

var fixtures = []fixture{
	{
		name:   "simpleString3",
		build:  simpleString3,
		schema: `{"type":"record","name":"t","fields":[{"name":"x","type":"string"}]}`,
		json: []string{
			`{"x":"one"}`, `{"x":"two"}`, `{"x":"three"}`, `{"x":"four"}`, `{"x":"five"}`,
		},
	},
	{
		name:   "vectorUChar",
		build:  vectorUChar,
		schema: `{"type":"record","name":"t","fields":[{"name":"x","type":{"type":"array","items":"int"}}]}`,
		json: []string{
			`{"x":[0,1,2]}`, `{"x":[10,11,12]}`, `{"x":[100,101,102]}`, `{"x":[20,21,22]}`,
		},
	},
	{
		name:   "arrayArrayLong2",
		build:  arrayArrayLong2,
		schema: `{"type":"record","name":"t","fields":[{"name":"x","type":{"type":"array","items":{"type":"array","items":"long"}}}]}`,
		json: []string{
			`{"x":[]}`,
			`{"x":[[1,2]]}`,
			`{"x":[[1,2],[3,4]]}`,
			`{"x":[[1,2],[3,4],[5,6]]}`,
			`{"x":[[1,2],[3,4],[5,6],[7,8]]}`,
		},
	},
}
