package arrow

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

// Metadata keys declaring branches on Arrow fields and schemas.
const (
	// MetaLeafList holds a single-leaf ROOT leaf list, e.g. "x[d][2]/L".
	MetaLeafList = "root.leaflist"
	// MetaTypeName holds a C++ type name, e.g. "vector<unsigned char>".
	MetaTypeName = "root.type"
	// MetaTreeName on the schema names the tree.
	MetaTreeName = "root.tree"
)

// ErrNullValue is returned for a null cell outside a vector.
var ErrNullValue = errors.New("null value")

// Declarations derives one branch declaration per field of schema.
func Declarations(schema *arrow.Schema) ([]tree.Declaration, error) {
	decls := make([]tree.Declaration, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		d, err := declaration(f)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		decls = append(decls, d)
	}
	return decls, nil
}

func declaration(f arrow.Field) (tree.Declaration, error) {
	if leaflist, ok := metadataValue(f.Metadata, MetaLeafList); ok {
		decls, err := tree.ParseLeafList(leaflist)
		if err != nil {
			return tree.Declaration{}, err
		}
		if len(decls) != 1 {
			return tree.Declaration{}, fmt.Errorf("%w: %d leaves in %q, a column holds one", tree.ErrMalformedLeaf, len(decls), leaflist)
		}
		d := decls[0]
		d.Name = f.Name
		// A fixed size list column bounds the counter.
		if va, ok := d.Type.(tree.VariableArray); ok && va.Capacity == 0 {
			if fsl, ok := f.Type.(*arrow.FixedSizeListType); ok {
				va.Capacity = int(fsl.Len())
				d.Type = va
			}
		}
		return d, nil
	}

	if typeName, ok := metadataValue(f.Metadata, MetaTypeName); ok {
		typ, err := tree.ParseTypeName(typeName)
		if err != nil {
			return tree.Declaration{}, err
		}
		return tree.Declaration{Name: f.Name, Type: typ, Title: typeName}, nil
	}

	typ, err := InferType(f.Type)
	if err != nil {
		return tree.Declaration{}, err
	}
	return tree.Declaration{Name: f.Name, Type: typ, Title: f.Type.String()}, nil
}

func metadataValue(md arrow.Metadata, key string) (string, bool) {
	i := md.FindKey(key)
	if i < 0 {
		return "", false
	}
	return md.Values()[i], true
}

// InferType maps an Arrow data type to a branch type. Fixed size lists
// become fixed arrays and lists become vectors.
func InferType(dt arrow.DataType) (tree.Type, error) {
	switch dt.ID() {
	case arrow.BOOL:
		return tree.Scalar{Kind: tree.KindBool}, nil
	case arrow.INT8:
		return tree.Scalar{Kind: tree.KindInt8}, nil
	case arrow.UINT8:
		return tree.Scalar{Kind: tree.KindUInt8}, nil
	case arrow.INT16:
		return tree.Scalar{Kind: tree.KindInt16}, nil
	case arrow.UINT16:
		return tree.Scalar{Kind: tree.KindUInt16}, nil
	case arrow.INT32:
		return tree.Scalar{Kind: tree.KindInt32}, nil
	case arrow.UINT32:
		return tree.Scalar{Kind: tree.KindUInt32}, nil
	case arrow.INT64:
		return tree.Scalar{Kind: tree.KindInt64}, nil
	case arrow.UINT64:
		return tree.Scalar{Kind: tree.KindUInt64}, nil
	case arrow.FLOAT32:
		return tree.Scalar{Kind: tree.KindFloat32}, nil
	case arrow.FLOAT64:
		return tree.Scalar{Kind: tree.KindFloat64}, nil
	case arrow.STRING, arrow.LARGE_STRING, arrow.BINARY, arrow.LARGE_BINARY:
		return tree.String{}, nil
	case arrow.FIXED_SIZE_LIST:
		t := dt.(*arrow.FixedSizeListType)
		elem, err := InferType(t.Elem())
		if err != nil {
			return nil, err
		}
		return tree.FixedArray{Elem: elem, Len: int(t.Len())}, nil
	case arrow.LIST:
		elem, err := InferType(dt.(*arrow.ListType).Elem())
		if err != nil {
			return nil, err
		}
		return tree.Vector{Elem: elem}, nil
	case arrow.LARGE_LIST:
		elem, err := InferType(dt.(*arrow.LargeListType).Elem())
		if err != nil {
			return nil, err
		}
		return tree.Vector{Elem: elem}, nil
	}
	return nil, fmt.Errorf("%w: arrow type %s", tree.ErrUnsupportedType, dt)
}

// RecordSource reads tree entries from Arrow record batches sharing one
// schema. Every row it returns is a fresh copy of the column values.
type RecordSource struct {
	name    string
	decls   []tree.Declaration
	records []arrow.Record
	starts  []int64
	total   int64

	next int64
	cur  int64
	err  error
}

// NewSource creates a source over records. It takes ownership of the
// records and releases them on Close. An empty name falls back to the
// schema's tree name metadata.
func NewSource(name string, schema *arrow.Schema, records []arrow.Record) (*RecordSource, error) {
	decls, err := Declarations(schema)
	if err != nil {
		return nil, err
	}
	if name == "" {
		md := schema.Metadata()
		name, _ = metadataValue(md, MetaTreeName)
	}
	if name == "" {
		name = "tree"
	}

	s := &RecordSource{name: name, decls: decls, records: records}
	for i, r := range records {
		if !r.Schema().Equal(schema) {
			return nil, fmt.Errorf("%w: batch %d has schema %s", tree.ErrDeclarationDrift, i, r.Schema())
		}
		s.starts = append(s.starts, s.total)
		s.total += r.NumRows()
	}
	return s, nil
}

// OpenIPC decodes IPC stream or file bytes into a source.
func OpenIPC(name string, data []byte) (*RecordSource, error) {
	schema, records, err := NewIPCCodec().Decode(data)
	if err != nil {
		return nil, err
	}
	src, err := NewSource(name, schema, records)
	if err != nil {
		Release(records)
		return nil, err
	}
	return src, nil
}

func (s *RecordSource) Name() string                     { return s.name }
func (s *RecordSource) Declarations() []tree.Declaration { return s.decls }
func (s *RecordSource) Entries() int64                   { return s.total }
func (s *RecordSource) Err() error                       { return s.err }

func (s *RecordSource) SeekEntry(entry int64) error {
	if entry < 0 || entry > s.total {
		return fmt.Errorf("%w: %d of %d", tree.ErrEntryRange, entry, s.total)
	}
	s.next = entry
	return nil
}

func (s *RecordSource) Next() bool {
	if s.err != nil || s.next >= s.total {
		return false
	}
	s.cur = s.next
	s.next++
	return true
}

// Row copies the current entry out of its batch.
func (s *RecordSource) Row() (tree.Row, error) {
	batch := sort.Search(len(s.starts), func(i int) bool { return s.starts[i] > s.cur }) - 1
	if batch < 0 || s.cur >= s.total {
		return tree.Row{}, fmt.Errorf("%w: %d", tree.ErrEntryRange, s.cur)
	}
	record := s.records[batch]
	i := int(s.cur - s.starts[batch])

	values := make(map[string]any, len(s.decls))
	for col, d := range s.decls {
		v, err := cell(record.Column(col), i, d.Type)
		if err != nil {
			return tree.Row{}, fmt.Errorf("entry %d, branch %q: %w", s.cur, d.Name, err)
		}
		values[d.Name] = v
	}
	return tree.Row{Entry: s.cur, Values: values}, nil
}

// Close releases the batches.
func (s *RecordSource) Close() error {
	Release(s.records)
	s.records = nil
	s.starts = nil
	s.total = 0
	return nil
}

func cell(arr arrow.Array, i int, t tree.Type) (any, error) {
	if arr.IsNull(i) {
		if _, ok := t.(tree.Vector); ok {
			return nil, nil
		}
		return nil, ErrNullValue
	}
	switch v := t.(type) {
	case tree.FixedArray, tree.VariableArray:
		return flatten(arr, i)
	case tree.Vector:
		return vectorCell(arr, i, v.Elem)
	default:
		return scalarCell(arr, i)
	}
}

// flatten returns the backing buffer of one list cell in row-major order.
func flatten(arr arrow.Array, i int) ([]any, error) {
	l, ok := arr.(array.ListLike)
	if !ok {
		return nil, fmt.Errorf("%w: %s column holds no array", tree.ErrUnsupportedType, arr.DataType())
	}
	start, end := l.ValueOffsets(i)
	values := l.ListValues()

	out := make([]any, 0, end-start)
	for j := int(start); j < int(end); j++ {
		if _, nested := values.(array.ListLike); nested {
			inner, err := flatten(values, j)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
			continue
		}
		v, err := scalarCell(values, j)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func vectorCell(arr arrow.Array, i int, elem tree.Type) ([]any, error) {
	l, ok := arr.(array.ListLike)
	if !ok {
		return nil, fmt.Errorf("%w: %s column holds no vector", tree.ErrUnsupportedType, arr.DataType())
	}
	start, end := l.ValueOffsets(i)
	values := l.ListValues()

	out := make([]any, 0, end-start)
	for j := int(start); j < int(end); j++ {
		v, err := cell(values, j, elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", j-int(start), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// scalarCell copies one primitive value. Strings and bytes are cloned
// because Arrow hands out views into its buffers.
func scalarCell(arr arrow.Array, i int) (any, error) {
	if arr.IsNull(i) {
		return nil, ErrNullValue
	}
	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Int8:
		return a.Value(i), nil
	case *array.Uint8:
		return a.Value(i), nil
	case *array.Int16:
		return a.Value(i), nil
	case *array.Uint16:
		return a.Value(i), nil
	case *array.Int32:
		return a.Value(i), nil
	case *array.Uint32:
		return a.Value(i), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Uint64:
		return a.Value(i), nil
	case *array.Float32:
		return a.Value(i), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.String:
		return strings.Clone(a.Value(i)), nil
	case *array.LargeString:
		return strings.Clone(a.Value(i)), nil
	case *array.Binary:
		return bytes.Clone(a.Value(i)), nil
	case *array.LargeBinary:
		return bytes.Clone(a.Value(i)), nil
	}
	return nil, fmt.Errorf("%w: arrow type %s", tree.ErrUnsupportedType, arr.DataType())
}
