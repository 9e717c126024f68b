package bridge

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/hamba/avro/v2/ocf"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/root2avro/arrow"
	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

func vectorUCharIPC(t *testing.T) []byte {
	t.Helper()

	tr := tree.NewMemTree("t")
	require.NoError(t, tr.BranchObject("x", "vector<unsigned char>"))
	for _, v := range [][]uint8{{0, 1, 2}, {10, 11, 12}, {100, 101, 102}, {20, 21, 22}} {
		require.NoError(t, tr.Fill(map[string]any{"x": v}))
	}

	var buf bytes.Buffer
	require.NoError(t, arrow.WriteSource(&buf, tr.Reader(), 3))
	return buf.Bytes()
}

func testConverter() *Converter {
	logger, _ := test.NewNullLogger()
	config := DefaultConfig()
	config.Logger = logger
	return NewConverter(config)
}

func TestConvertToAvro(t *testing.T) {
	out, stats, err := testConverter().Convert(context.Background(), vectorUCharIPC(t), Options{Codec: "deflate"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Written)

	dec, err := ocf.NewDecoder(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, []byte("deflate"), dec.Metadata()["avro.codec"])

	var got [][]any
	for dec.HasNext() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))
		got = append(got, rec["x"].([]any))
	}
	require.NoError(t, dec.Error())
	require.Len(t, got, 4)
	assert.Equal(t, []any{100, 101, 102}, got[2])
}

func TestConvertToJSON(t *testing.T) {
	out, _, err := testConverter().Convert(context.Background(), vectorUCharIPC(t), Options{Mode: "json", Start: 1, End: 3})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"x":[10,11,12]}`, lines[0])
	assert.JSONEq(t, `{"x":[100,101,102]}`, lines[1])
}

func TestConvertSchemaOnly(t *testing.T) {
	out, _, err := testConverter().Convert(context.Background(), vectorUCharIPC(t), Options{
		Mode:      "schema",
		Name:      "bytes",
		Namespace: "org.example",
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"record","name":"org.example.bytes","fields":[{"name":"x","type":{"type":"array","items":"int"}}]}`,
		string(out))
}

func TestConvertRejectsBadRequests(t *testing.T) {
	c := testConverter()

	_, _, err := c.Convert(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrEmptyRequest)

	_, _, err = c.Convert(context.Background(), vectorUCharIPC(t), Options{Mode: "xml"})
	assert.Error(t, err)

	_, _, err = c.Convert(context.Background(), []byte("not arrow"), Options{})
	assert.Error(t, err)
}

func TestConvertArrowIPC(t *testing.T) {
	out, err := ConvertArrowIPC(context.Background(), vectorUCharIPC(t), Options{Mode: "json"})
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(out), "\n"))
}
