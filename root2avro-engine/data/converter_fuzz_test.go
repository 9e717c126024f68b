package data

import (
	"errors"
	"testing"

	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

// FuzzProjectCountedArray checks the truncation law for arbitrary lengths
// and buffer sizes.
// Run with: go test -fuzz=FuzzProjectCountedArray -fuzztime=30s ./root2avro-engine/data/
func FuzzProjectCountedArray(f *testing.F) {
	f.Add(int32(0), uint8(0))
	f.Add(int32(2), uint8(10))
	f.Add(int32(5), uint8(10))
	f.Add(int32(6), uint8(10))
	f.Add(int32(-1), uint8(4))

	decls, err := tree.ParseLeafList("d/I:x[d][2]/L")
	if err != nil {
		f.Fatal(err)
	}
	plan, err := NewMapper(MapperConfig{}).Map("t", decls)
	if err != nil {
		f.Fatal(err)
	}
	projector := NewProjector(plan)

	f.Fuzz(func(t *testing.T, d int32, slots uint8) {
		buf := make([]int64, slots)
		for i := range buf {
			buf[i] = int64(i)
		}
		row := tree.Row{Values: map[string]any{"d": d, "x": buf}}

		rec, err := projector.Project(row)
		if d < 0 || 2*int(d) > len(buf) {
			if !errors.Is(err, ErrRowBounds) {
				t.Fatalf("d=%d slots=%d: expected ErrRowBounds, got %v", d, slots, err)
			}
			return
		}
		if err != nil {
			t.Fatalf("d=%d slots=%d: %v", d, slots, err)
		}

		x, _ := rec.Get("x")
		outer := x.([]any)
		if len(outer) != int(d) {
			t.Fatalf("projected %d elements, want %d", len(outer), d)
		}
		for i, inner := range outer {
			pair := inner.([]any)
			if pair[0] != int64(2*i) || pair[1] != int64(2*i+1) {
				t.Fatalf("element %d is %v", i, pair)
			}
		}
	})
}

// FuzzProjectUnsigned checks that unsigned values survive projection
// exactly or fail with ErrValueOverflow.
func FuzzProjectUnsigned(f *testing.F) {
	f.Add(uint8(255), uint16(65535), uint32(4294967295), uint64(1<<63))
	f.Add(uint8(0), uint16(0), uint32(0), uint64(0))

	decls, err := tree.ParseLeafList("b/b:s/s:i/i:l/l")
	if err != nil {
		f.Fatal(err)
	}
	plan, err := NewMapper(MapperConfig{}).Map("t", decls)
	if err != nil {
		f.Fatal(err)
	}
	projector := NewProjector(plan)

	f.Fuzz(func(t *testing.T, b uint8, s uint16, i uint32, l uint64) {
		row := tree.Row{Values: map[string]any{"b": b, "s": s, "i": i, "l": l}}
		rec, err := projector.Project(row)
		if l > 1<<63-1 {
			if !errors.Is(err, ErrValueOverflow) {
				t.Fatalf("l=%d: expected ErrValueOverflow, got %v", l, err)
			}
			return
		}
		if err != nil {
			t.Fatal(err)
		}

		want := []any{int32(b), int32(s), int64(i), int64(l)}
		for k, v := range rec.Values() {
			if v != want[k] {
				t.Fatalf("field %s is %v (%T), want %v", rec.Names()[k], v, v, want[k])
			}
		}
	})
}
