package tree

import (
	"reflect"
)

// Row is the snapshot of every branch value for one entry. Array-typed
// branches hold their whole backing buffer, flattened in row-major order.
type Row struct {
	Entry  int64
	Values map[string]any
}

// Value returns the raw value of a branch.
func (r Row) Value(name string) (any, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Snapshot deep-copies slices inside v so the result stays valid after the
// producer reuses its buffers. Scalars and strings are returned as is.
func Snapshot(v any) any {
	if v == nil {
		return nil
	}
	return snapshotValue(reflect.ValueOf(v)).Interface()
}

func snapshotValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		if isFlat(v.Type().Elem()) {
			reflect.Copy(out, v)
			return out
		}
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(snapshotValue(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		if !isFlat(v.Type().Elem()) {
			for i := 0; i < v.Len(); i++ {
				out.Index(i).Set(snapshotValue(v.Index(i)))
			}
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		inner := snapshotValue(v.Elem())
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out
	default:
		return v
	}
}

func isFlat(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Interface, reflect.Map, reflect.Pointer:
		return false
	}
	return true
}

// SnapshotRow copies every value of values into a new Row.
func SnapshotRow(entry int64, values map[string]any) Row {
	row := Row{Entry: entry, Values: make(map[string]any, len(values))}
	for name, v := range values {
		row.Values[name] = Snapshot(v)
	}
	return row
}
