package data

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

// Row projection errors.
var (
	ErrRowBounds     = errors.New("array length exceeds backing buffer")
	ErrValueOverflow = errors.New("value out of range")
	ErrTypeMismatch  = errors.New("value does not match branch type")
	ErrMissingValue  = errors.New("branch value missing from row")
)

// Projector turns rows into records following a Plan. It keeps no state
// between rows and never modifies the row it reads.
type Projector struct {
	plan  *Plan
	names []string
}

// NewProjector creates a Projector for plan.
func NewProjector(plan *Plan) *Projector {
	return &Projector{plan: plan, names: plan.FieldNames()}
}

// Plan returns the plan the projector follows.
func (p *Projector) Plan() *Plan { return p.plan }

// Project builds the record of one row.
func (p *Projector) Project(row tree.Row) (Record, error) {
	values := make([]any, len(p.plan.Fields))
	for i, f := range p.plan.Fields {
		v, err := p.projectField(f, row)
		if err != nil {
			return Record{}, fmt.Errorf("entry %d, branch %q: %w", row.Entry, f.Name, err)
		}
		values[i] = v
	}
	return NewRecord(row.Entry, p.names, values), nil
}

func (p *Projector) projectField(f FieldPlan, row tree.Row) (any, error) {
	raw, ok := row.Value(f.Name)
	if !ok {
		return nil, ErrMissingValue
	}

	switch t := f.Type.(type) {
	case tree.FixedArray:
		return projectBuffer(t.Elem, raw, t.Len)
	case tree.VariableArray:
		n, err := p.lengthOf(t, row)
		if err != nil {
			return nil, err
		}
		return projectBuffer(t.Elem, raw, n)
	default:
		return projectValue(f.Type, raw)
	}
}

// lengthOf reads the current value of the length branch of t.
func (p *Projector) lengthOf(t tree.VariableArray, row tree.Row) (int, error) {
	raw, ok := row.Value(t.LengthBranch)
	if !ok {
		return 0, fmt.Errorf("%w: length branch %q", ErrMissingValue, t.LengthBranch)
	}
	n, err := toInt64(raw)
	if err != nil {
		return 0, fmt.Errorf("length branch %q: %w", t.LengthBranch, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: length %d from %q is negative", ErrRowBounds, n, t.LengthBranch)
	}
	if t.Capacity > 0 && n > int64(t.Capacity) {
		return 0, fmt.Errorf("%w: length %d from %q exceeds capacity %d", ErrRowBounds, n, t.LengthBranch, t.Capacity)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: length %d from %q", ErrRowBounds, n, t.LengthBranch)
	}
	return int(n), nil
}

// projectBuffer reads the first n elements of type elem from a flat
// row-major backing buffer. Elements past n are never inspected.
func projectBuffer(elem tree.Type, raw any, n int) (any, error) {
	if raw == nil && n == 0 {
		return []any{}, nil
	}
	buf := reflect.ValueOf(raw)
	if buf.Kind() != reflect.Slice && buf.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected a buffer, got %T", ErrTypeMismatch, raw)
	}
	width := tree.FlatWidth(elem)
	if n*width > buf.Len() {
		return nil, fmt.Errorf("%w: need %d slots, buffer holds %d", ErrRowBounds, n*width, buf.Len())
	}
	return projectFlat(elem, buf, 0, n)
}

func projectFlat(elem tree.Type, buf reflect.Value, offset, n int) ([]any, error) {
	out := make([]any, n)
	inner, nested := elem.(tree.FixedArray)
	width := tree.FlatWidth(elem)
	for i := 0; i < n; i++ {
		start := offset + i*width
		if nested {
			v, err := projectFlat(inner.Elem, buf, start, inner.Len)
			if err != nil {
				return nil, err
			}
			out[i] = v
			continue
		}
		v, err := projectValue(elem, buf.Index(start).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// projectValue converts a self-contained value: a scalar, a string or a
// vector whose length is carried by the value.
func projectValue(t tree.Type, raw any) (any, error) {
	switch v := t.(type) {
	case tree.Scalar:
		return convertScalar(v.Kind, raw)
	case tree.String:
		return convertString(raw)
	case tree.Vector:
		return projectVector(v.Elem, raw)
	case tree.FixedArray:
		return projectBuffer(v.Elem, raw, v.Len)
	default:
		return nil, fmt.Errorf("%w: %s inside a buffer", tree.ErrUnsupportedType, t)
	}
}

func projectVector(elem tree.Type, raw any) (any, error) {
	if raw == nil {
		return []any{}, nil
	}
	vec := reflect.ValueOf(raw)
	if vec.Kind() != reflect.Slice && vec.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected a vector, got %T", ErrTypeMismatch, raw)
	}
	out := make([]any, vec.Len())
	for i := range out {
		v, err := projectValue(elem, vec.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func convertString(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		// C strings stop at the first NUL.
		for i, b := range v {
			if b == 0 {
				return string(v[:i]), nil
			}
		}
		return string(v), nil
	default:
		return nil, fmt.Errorf("%w: expected a string, got %T", ErrTypeMismatch, raw)
	}
}

// convertScalar checks raw against the declared kind and returns it in the
// Go type the Avro encoder expects for the mapped schema: int32 for int,
// int64 for long.
func convertScalar(k tree.Kind, raw any) (any, error) {
	switch k {
	case tree.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: expected bool, got %T", ErrTypeMismatch, raw)
		}
		return b, nil
	case tree.KindFloat32:
		switch v := raw.(type) {
		case float32:
			return v, nil
		case float64:
			return float32(v), nil
		}
		return nil, fmt.Errorf("%w: expected float, got %T", ErrTypeMismatch, raw)
	case tree.KindFloat64:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		}
		return nil, fmt.Errorf("%w: expected double, got %T", ErrTypeMismatch, raw)
	}

	if k.Unsigned() {
		u, err := toUint64(raw)
		if err != nil {
			return nil, err
		}
		if u > maxUnsigned(k) {
			return nil, fmt.Errorf("%w: %d does not fit %s", ErrValueOverflow, u, k)
		}
		switch k {
		case tree.KindUInt8, tree.KindUInt16:
			return int32(u), nil
		default:
			if u > math.MaxInt64 {
				return nil, fmt.Errorf("%w: %d does not fit a long", ErrValueOverflow, u)
			}
			return int64(u), nil
		}
	}

	i, err := toInt64(raw)
	if err != nil {
		return nil, err
	}
	lo, hi := signedRange(k)
	if i < lo || i > hi {
		return nil, fmt.Errorf("%w: %d does not fit %s", ErrValueOverflow, i, k)
	}
	if k == tree.KindInt64 {
		return i, nil
	}
	return int32(i), nil
}

func maxUnsigned(k tree.Kind) uint64 {
	switch k {
	case tree.KindUInt8:
		return math.MaxUint8
	case tree.KindUInt16:
		return math.MaxUint16
	case tree.KindUInt32:
		return math.MaxUint32
	default:
		return math.MaxUint64
	}
}

func signedRange(k tree.Kind) (int64, int64) {
	switch k {
	case tree.KindInt8:
		return math.MinInt8, math.MaxInt8
	case tree.KindInt16:
		return math.MinInt16, math.MaxInt16
	case tree.KindInt32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func toInt64(raw any) (int64, error) {
	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d", ErrValueOverflow, u)
		}
		return int64(u), nil
	}
	return 0, fmt.Errorf("%w: expected an integer, got %T", ErrTypeMismatch, raw)
}

func toUint64(raw any) (uint64, error) {
	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := v.Int()
		if i < 0 {
			return 0, fmt.Errorf("%w: %d is negative for an unsigned branch", ErrValueOverflow, i)
		}
		return uint64(i), nil
	}
	return 0, fmt.Errorf("%w: expected an integer, got %T", ErrTypeMismatch, raw)
}
