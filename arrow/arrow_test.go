package arrow

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/root2avro/output"
	"github.com/VanDung-dev/root2avro/root2avro-engine/core"
	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

func sampleTree(t *testing.T) *tree.MemTree {
	t.Helper()

	tr := tree.NewMemTree("sample")
	require.NoError(t, tr.Branch("d", "d/I"))
	require.NoError(t, tr.Declare(tree.Declaration{
		Name: "x",
		Type: tree.VariableArray{
			Elem:         tree.FixedArray{Elem: tree.Scalar{Kind: tree.KindInt64}, Len: 2},
			Capacity:     5,
			LengthBranch: "d",
		},
	}))
	require.NoError(t, tr.Branch("flag", "flag/O"))
	require.NoError(t, tr.Branch("m", "m[2][2]/s"))
	require.NoError(t, tr.BranchObject("bytes", "vector<unsigned char>"))
	require.NoError(t, tr.BranchObject("jets", "vector<vector<double> >"))
	require.NoError(t, tr.BranchObject("label", "TString"))

	x := make([]int64, 10)
	for i := 0; i < 5; i++ {
		x[2*i], x[2*i+1] = int64(2*i+1), int64(2*i+2)
		require.NoError(t, tr.Fill(map[string]any{
			"d":     int32(i),
			"x":     x,
			"flag":  i%2 == 0,
			"m":     []uint16{uint16(i), 1, 2, 65535},
			"bytes": []uint8{uint8(i), 255},
			"jets":  [][]float64{{float64(i)}, {}},
			"label": "event",
		}))
	}
	return tr
}

func jsonLines(t *testing.T, src tree.Source) []string {
	t.Helper()

	logger, _ := test.NewNullLogger()
	sink := &output.Collector{}
	_, err := core.Convert(context.Background(), src, sink, core.Options{Workers: 2, Logger: logger})
	require.NoError(t, err)

	lines := make([]string, len(sink.Records))
	for i, rec := range sink.Records {
		b, err := json.Marshal(rec)
		require.NoError(t, err)
		lines[i] = string(b)
	}
	return lines
}

func TestRoundTripThroughIPC(t *testing.T) {
	tr := sampleTree(t)

	var buf bytes.Buffer
	require.NoError(t, WriteSource(&buf, tr.Reader(), 2))

	src, err := OpenIPC("", buf.Bytes())
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "sample", src.Name())
	assert.Equal(t, int64(5), src.Entries())
	require.Len(t, src.Declarations(), len(tr.Declarations()))
	for i, d := range tr.Declarations() {
		assert.Equal(t, d.Type, src.Declarations()[i].Type, d.Name)
	}

	assert.Equal(t, jsonLines(t, tr.Reader()), jsonLines(t, src))
}

func TestRoundTripKeepsStaleSlots(t *testing.T) {
	tr := sampleTree(t)

	var buf bytes.Buffer
	require.NoError(t, WriteSource(&buf, tr.Reader(), 0))
	src, err := OpenIPC("t", buf.Bytes())
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.SeekEntry(0))
	require.True(t, src.Next())
	row, err := src.Row()
	require.NoError(t, err)

	// Entry 0 has d == 0 but the buffer already holds its first pair.
	assert.Equal(t, []any{int64(1), int64(2), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0), int64(0)}, row.Values["x"])
	assert.Equal(t, int32(0), row.Values["d"])
}

func TestSchemaMetadata(t *testing.T) {
	schema, err := Schema("sample", sampleTree(t).Declarations())
	require.NoError(t, err)

	x, ok := schema.FieldsByName("x")
	require.True(t, ok)
	leaflist, ok := metadataValue(x[0].Metadata, MetaLeafList)
	require.True(t, ok)
	assert.Equal(t, "x[d][2]/L", leaflist)
	assert.Equal(t, arrow.FixedSizeListOf(5, arrow.FixedSizeListOf(2, arrow.PrimitiveTypes.Int64)).String(), x[0].Type.String())

	jets, _ := schema.FieldsByName("jets")
	typeName, ok := metadataValue(jets[0].Metadata, MetaTypeName)
	require.True(t, ok)
	assert.Equal(t, "vector<vector<double>>", typeName)
}

func TestInferType(t *testing.T) {
	tests := []struct {
		dt   arrow.DataType
		want tree.Type
	}{
		{arrow.FixedWidthTypes.Boolean, tree.Scalar{Kind: tree.KindBool}},
		{arrow.PrimitiveTypes.Uint8, tree.Scalar{Kind: tree.KindUInt8}},
		{arrow.PrimitiveTypes.Int64, tree.Scalar{Kind: tree.KindInt64}},
		{arrow.PrimitiveTypes.Float32, tree.Scalar{Kind: tree.KindFloat32}},
		{arrow.BinaryTypes.String, tree.String{}},
		{arrow.BinaryTypes.Binary, tree.String{}},
		{arrow.FixedSizeListOf(3, arrow.PrimitiveTypes.Int16), tree.FixedArray{Elem: tree.Scalar{Kind: tree.KindInt16}, Len: 3}},
		{arrow.ListOf(arrow.PrimitiveTypes.Float64), tree.Vector{Elem: tree.Scalar{Kind: tree.KindFloat64}}},
		{arrow.LargeListOf(arrow.ListOf(arrow.PrimitiveTypes.Int32)), tree.Vector{Elem: tree.Vector{Elem: tree.Scalar{Kind: tree.KindInt32}}}},
	}
	for _, tt := range tests {
		t.Run(tt.dt.String(), func(t *testing.T) {
			got, err := InferType(tt.dt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := InferType(arrow.FixedWidthTypes.Date32)
	assert.ErrorIs(t, err, tree.ErrUnsupportedType)
}

func TestSourceFromPlainArrow(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "n", Type: arrow.PrimitiveTypes.Int32},
		{Name: "pt", Type: arrow.ListOf(arrow.PrimitiveTypes.Float32), Nullable: true,
			Metadata: arrow.NewMetadata([]string{MetaLeafList}, []string{"pt[n]/F"})},
		{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
	}, nil)

	rb := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer rb.Release()
	n := rb.Field(0).(*array.Int32Builder)
	pt := rb.Field(1).(*array.ListBuilder)
	ptValues := pt.ValueBuilder().(*array.Float32Builder)
	tags := rb.Field(2).(*array.ListBuilder)
	tagValues := tags.ValueBuilder().(*array.StringBuilder)

	n.AppendValues([]int32{2, 1}, nil)
	pt.Append(true)
	ptValues.AppendValues([]float32{1.5, 2.5, 3.5}, nil)
	pt.Append(true)
	ptValues.AppendValues([]float32{4.5, 5.5, 6.5}, nil)
	tags.Append(true)
	tagValues.AppendValues([]string{"a", "b"}, nil)
	tags.AppendNull()

	record := rb.NewRecord()
	src, err := NewSource("plain", schema, []arrow.Record{record})
	require.NoError(t, err)
	defer src.Close()

	lines := jsonLines(t, src)
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"pt":[1.5,2.5],"tags":["a","b"]}`, lines[0])
	assert.JSONEq(t, `{"pt":[4.5],"tags":[]}`, lines[1])
}

func TestDecodeIPCFile(t *testing.T) {
	tr := sampleTree(t)
	b, err := NewBuilder(tr.Name(), tr.Declarations())
	require.NoError(t, err)
	defer b.Release()

	src := tr.Reader()
	for src.Next() {
		row, err := src.Row()
		require.NoError(t, err)
		require.NoError(t, b.Append(row))
	}
	record := b.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(b.Schema()))
	require.NoError(t, err)
	require.NoError(t, w.Write(record))
	require.NoError(t, w.Close())

	schema, records, err := NewIPCCodec().Decode(buf.Bytes())
	require.NoError(t, err)
	defer Release(records)
	assert.Equal(t, b.Schema().NumFields(), schema.NumFields())
	require.Len(t, records, 1)
	assert.Equal(t, int64(5), records[0].NumRows())
}

func TestIPCCodecEncodeDecode(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int64}}, nil)
	rb := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer rb.Release()

	var batches []arrow.Record
	for i := 0; i < 3; i++ {
		rb.Field(0).(*array.Int64Builder).AppendValues([]int64{int64(i), int64(i + 10)}, nil)
		batches = append(batches, rb.NewRecord())
	}
	defer Release(batches)

	codec := NewIPCCodec()
	data, err := codec.Encode(schema, batches...)
	require.NoError(t, err)

	_, decoded, err := codec.Decode(data)
	require.NoError(t, err)
	defer Release(decoded)
	assert.Len(t, decoded, 3)
}

func TestBuilderRejectsShortBuffer(t *testing.T) {
	decls := []tree.Declaration{{Name: "m", Type: tree.FixedArray{Elem: tree.Scalar{Kind: tree.KindInt32}, Len: 4}}}
	b, err := NewBuilder("t", decls)
	require.NoError(t, err)
	defer b.Release()

	err = b.Append(tree.Row{Values: map[string]any{"m": []int32{1, 2}}})
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestBuilderRejectsOverflow(t *testing.T) {
	decls := []tree.Declaration{{Name: "c", Type: tree.Scalar{Kind: tree.KindInt8}}}
	b, err := NewBuilder("t", decls)
	require.NoError(t, err)
	defer b.Release()

	assert.Error(t, b.Append(tree.Row{Values: map[string]any{"c": 300}}))
}

func TestSourceRejectsMultiLeafMetadata(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{
		Name:     "p",
		Type:     arrow.PrimitiveTypes.Float32,
		Metadata: arrow.NewMetadata([]string{MetaLeafList}, []string{"px/F:py/F"}),
	}}, nil)

	_, err := Declarations(schema)
	assert.ErrorIs(t, err, tree.ErrMalformedLeaf)
}
