package arrow

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

// ErrShortBuffer is returned when an array value is shorter than its
// declared backing buffer.
var ErrShortBuffer = errors.New("buffer shorter than declared")

// DefaultBatchSize is the number of rows per record batch written by
// WriteSource.
const DefaultBatchSize = 1024

// Schema returns the Arrow schema storing a tree with the given branches.
// Every field carries metadata that declares its branch exactly.
func Schema(name string, decls []tree.Declaration) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(decls))
	for _, d := range decls {
		dt, err := DataType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("branch %q: %w", d.Name, err)
		}

		var md arrow.Metadata
		if leaflist, err := tree.FormatLeaf(d); err == nil {
			md = arrow.NewMetadata([]string{MetaLeafList}, []string{leaflist})
		} else {
			md = arrow.NewMetadata([]string{MetaTypeName}, []string{d.Type.String()})
		}
		fields = append(fields, arrow.Field{Name: d.Name, Type: dt, Metadata: md})
	}

	md := arrow.NewMetadata([]string{MetaTreeName}, []string{name})
	return arrow.NewSchema(fields, &md), nil
}

// DataType returns the Arrow type storing values of a branch type. Arrays
// with a static capacity are fixed size lists holding the whole buffer.
func DataType(t tree.Type) (arrow.DataType, error) {
	switch v := t.(type) {
	case tree.Scalar:
		return primitiveType(v.Kind)
	case tree.String:
		return arrow.BinaryTypes.String, nil
	case tree.FixedArray:
		elem, err := DataType(v.Elem)
		if err != nil {
			return nil, err
		}
		return arrow.FixedSizeListOf(int32(v.Len), elem), nil
	case tree.VariableArray:
		elem, err := DataType(v.Elem)
		if err != nil {
			return nil, err
		}
		if v.Capacity > 0 {
			return arrow.FixedSizeListOf(int32(v.Capacity), elem), nil
		}
		return arrow.ListOf(elem), nil
	case tree.Vector:
		elem, err := DataType(v.Elem)
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil
	}
	return nil, fmt.Errorf("%w: %v", tree.ErrUnsupportedType, t)
}

func primitiveType(k tree.Kind) (arrow.DataType, error) {
	switch k {
	case tree.KindBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case tree.KindInt8:
		return arrow.PrimitiveTypes.Int8, nil
	case tree.KindUInt8:
		return arrow.PrimitiveTypes.Uint8, nil
	case tree.KindInt16:
		return arrow.PrimitiveTypes.Int16, nil
	case tree.KindUInt16:
		return arrow.PrimitiveTypes.Uint16, nil
	case tree.KindInt32:
		return arrow.PrimitiveTypes.Int32, nil
	case tree.KindUInt32:
		return arrow.PrimitiveTypes.Uint32, nil
	case tree.KindInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case tree.KindUInt64:
		return arrow.PrimitiveTypes.Uint64, nil
	case tree.KindFloat32:
		return arrow.PrimitiveTypes.Float32, nil
	case tree.KindFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	}
	return nil, fmt.Errorf("%w: kind %s", tree.ErrUnsupportedType, k)
}

// Builder accumulates tree rows into record batches.
type Builder struct {
	schema  *arrow.Schema
	decls   []tree.Declaration
	builder *array.RecordBuilder
	rows    int
}

// NewBuilder creates a Builder for a tree with the given branches.
func NewBuilder(name string, decls []tree.Declaration) (*Builder, error) {
	schema, err := Schema(name, decls)
	if err != nil {
		return nil, err
	}
	return &Builder{
		schema:  schema,
		decls:   decls,
		builder: array.NewRecordBuilder(memory.DefaultAllocator, schema),
	}, nil
}

// Schema returns the schema of the built records.
func (b *Builder) Schema() *arrow.Schema { return b.schema }

// Len returns the number of rows appended since the last NewRecord.
func (b *Builder) Len() int { return b.rows }

// Append adds one row. A failed append leaves the builder unusable.
func (b *Builder) Append(row tree.Row) error {
	for i, d := range b.decls {
		v, ok := row.Values[d.Name]
		if !ok {
			return fmt.Errorf("entry %d: missing value for branch %q", row.Entry, d.Name)
		}
		if err := appendValue(b.builder.Field(i), d.Type, v); err != nil {
			return fmt.Errorf("entry %d, branch %q: %w", row.Entry, d.Name, err)
		}
	}
	b.rows++
	return nil
}

// NewRecord returns the rows appended so far and resets the builder.
func (b *Builder) NewRecord() arrow.Record {
	b.rows = 0
	return b.builder.NewRecord()
}

// Release releases the underlying builders.
func (b *Builder) Release() {
	b.builder.Release()
}

// WriteSource writes every entry of src to w as an IPC stream, batchSize
// rows per batch.
func WriteSource(w io.Writer, src tree.Source, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	b, err := NewBuilder(src.Name(), src.Declarations())
	if err != nil {
		return err
	}
	defer b.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(b.Schema()))
	defer writer.Close()

	flush := func() error {
		record := b.NewRecord()
		defer record.Release()
		return writer.Write(record)
	}

	if err := src.SeekEntry(0); err != nil {
		return err
	}
	for src.Next() {
		row, err := src.Row()
		if err != nil {
			return err
		}
		if err := b.Append(row); err != nil {
			return err
		}
		if b.Len() >= batchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("failed to write batch: %w", err)
			}
		}
	}
	if err := src.Err(); err != nil {
		return err
	}
	if b.Len() > 0 {
		if err := flush(); err != nil {
			return fmt.Errorf("failed to write batch: %w", err)
		}
	}
	return writer.Close()
}

type listBuilder interface {
	array.Builder
	Append(bool)
	ValueBuilder() array.Builder
}

func appendValue(bld array.Builder, t tree.Type, v any) error {
	switch tt := t.(type) {
	case tree.FixedArray, tree.VariableArray:
		return appendArray(bld, tt, v)
	case tree.Vector:
		return appendVector(bld, tt.Elem, v)
	default:
		return appendScalar(bld, v)
	}
}

// appendArray appends one backing buffer. Buffers without a static
// capacity are stored whole.
func appendArray(bld array.Builder, t tree.Type, v any) error {
	buf := reflect.ValueOf(v)
	if buf.Kind() != reflect.Slice && buf.Kind() != reflect.Array {
		return fmt.Errorf("expected a buffer, got %T", v)
	}

	var elem tree.Type
	var n int
	switch a := t.(type) {
	case tree.FixedArray:
		elem, n = a.Elem, a.Len
	case tree.VariableArray:
		elem = a.Elem
		if a.Capacity > 0 {
			n = a.Capacity
		} else {
			n = buf.Len() / tree.FlatWidth(a.Elem)
		}
	}

	if need := n * tree.FlatWidth(elem); need > buf.Len() {
		return fmt.Errorf("%w: need %d slots, got %d", ErrShortBuffer, need, buf.Len())
	}
	return appendFlat(bld, elem, buf, 0, n)
}

func appendFlat(bld array.Builder, elem tree.Type, buf reflect.Value, offset, n int) error {
	lb, ok := bld.(listBuilder)
	if !ok {
		return fmt.Errorf("%w: %T is not a list builder", tree.ErrUnsupportedType, bld)
	}
	lb.Append(true)
	vb := lb.ValueBuilder()

	width := tree.FlatWidth(elem)
	for i := 0; i < n; i++ {
		start := offset + i*width
		if inner, ok := elem.(tree.FixedArray); ok {
			if err := appendFlat(vb, inner.Elem, buf, start, inner.Len); err != nil {
				return err
			}
			continue
		}
		if err := appendScalar(vb, buf.Index(start).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func appendVector(bld array.Builder, elem tree.Type, v any) error {
	lb, ok := bld.(listBuilder)
	if !ok {
		return fmt.Errorf("%w: %T is not a list builder", tree.ErrUnsupportedType, bld)
	}
	if v == nil {
		lb.Append(true)
		return nil
	}

	vec := reflect.ValueOf(v)
	if vec.Kind() != reflect.Slice && vec.Kind() != reflect.Array {
		return fmt.Errorf("expected a vector, got %T", v)
	}
	lb.Append(true)
	vb := lb.ValueBuilder()
	for i := 0; i < vec.Len(); i++ {
		if err := appendValue(vb, elem, vec.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func appendScalar(bld array.Builder, v any) error {
	rv := reflect.ValueOf(v)
	switch b := bld.(type) {
	case *array.BooleanBuilder:
		if rv.Kind() != reflect.Bool {
			return fmt.Errorf("expected bool, got %T", v)
		}
		b.Append(rv.Bool())
	case *array.Int8Builder:
		n, err := signed(rv, reflect.TypeOf(int8(0)))
		b.Append(int8(n))
		return err
	case *array.Int16Builder:
		n, err := signed(rv, reflect.TypeOf(int16(0)))
		b.Append(int16(n))
		return err
	case *array.Int32Builder:
		n, err := signed(rv, reflect.TypeOf(int32(0)))
		b.Append(int32(n))
		return err
	case *array.Int64Builder:
		n, err := signed(rv, reflect.TypeOf(int64(0)))
		b.Append(n)
		return err
	case *array.Uint8Builder:
		n, err := unsigned(rv, reflect.TypeOf(uint8(0)))
		b.Append(uint8(n))
		return err
	case *array.Uint16Builder:
		n, err := unsigned(rv, reflect.TypeOf(uint16(0)))
		b.Append(uint16(n))
		return err
	case *array.Uint32Builder:
		n, err := unsigned(rv, reflect.TypeOf(uint32(0)))
		b.Append(uint32(n))
		return err
	case *array.Uint64Builder:
		n, err := unsigned(rv, reflect.TypeOf(uint64(0)))
		b.Append(n)
		return err
	case *array.Float32Builder:
		if rv.Kind() != reflect.Float32 && rv.Kind() != reflect.Float64 {
			return fmt.Errorf("expected float, got %T", v)
		}
		b.Append(float32(rv.Float()))
	case *array.Float64Builder:
		if rv.Kind() != reflect.Float32 && rv.Kind() != reflect.Float64 {
			return fmt.Errorf("expected double, got %T", v)
		}
		b.Append(rv.Float())
	case *array.StringBuilder:
		switch s := v.(type) {
		case string:
			b.Append(s)
		case []byte:
			b.Append(cString(s))
		default:
			return fmt.Errorf("expected a string, got %T", v)
		}
	default:
		return fmt.Errorf("%w: builder %T", tree.ErrUnsupportedType, bld)
	}
	return nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// signed reads an integer that must fit the signed type to.
func signed(rv reflect.Value, to reflect.Type) (int64, error) {
	var n int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > 1<<63-1 {
			return 0, fmt.Errorf("%d does not fit %s", u, to)
		}
		n = int64(u)
	default:
		return 0, fmt.Errorf("expected an integer, got %s", rv.Kind())
	}
	if reflect.Zero(to).OverflowInt(n) {
		return 0, fmt.Errorf("%d does not fit %s", n, to)
	}
	return n, nil
}

// unsigned reads a non-negative integer that must fit the unsigned type to.
func unsigned(rv reflect.Value, to reflect.Type) (uint64, error) {
	var n uint64
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n = rv.Uint()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		if i < 0 {
			return 0, fmt.Errorf("%d is negative for %s", i, to)
		}
		n = uint64(i)
	default:
		return 0, fmt.Errorf("expected an integer, got %s", rv.Kind())
	}
	if reflect.Zero(to).OverflowUint(n) {
		return 0, fmt.Errorf("%d does not fit %s", n, to)
	}
	return n, nil
}
