package tree

import (
	"fmt"
)

// MemTree is an in-memory tree. Branches are declared up front and every
// Fill appends one entry holding a snapshot of the given values, so callers
// may keep reusing their buffers between fills as ROOT code does.
type MemTree struct {
	name  string
	decls []Declaration
	rows  []Row
}

// NewMemTree creates an empty tree.
func NewMemTree(name string) *MemTree {
	return &MemTree{name: name}
}

// Branch declares a branch from a leaf list such as "x[d][2]/L". A leaf
// list with a single leaf takes the branch name.
func (t *MemTree) Branch(name, leaflist string) error {
	decls, err := ParseLeafList(leaflist)
	if err != nil {
		return fmt.Errorf("branch %q: %w", name, err)
	}
	if len(decls) == 1 {
		decls[0].Name = name
	}
	return t.Declare(decls...)
}

// BranchObject declares an object branch by its C++ type name, for example
// "vector<unsigned char>" or "std::string".
func (t *MemTree) BranchObject(name, typeName string) error {
	typ, err := ParseTypeName(typeName)
	if err != nil {
		return fmt.Errorf("branch %q: %w", name, err)
	}
	return t.Declare(Declaration{Name: name, Type: typ, Title: typeName})
}

// Declare adds already built declarations.
func (t *MemTree) Declare(decls ...Declaration) error {
	if len(t.rows) > 0 {
		return fmt.Errorf("tree %q: cannot declare branches after Fill", t.name)
	}
	for _, d := range decls {
		for _, existing := range t.decls {
			if existing.Name == d.Name {
				return fmt.Errorf("%w: %q", ErrDuplicateBranch, d.Name)
			}
		}
		t.decls = append(t.decls, d)
	}
	return nil
}

// Fill appends one entry. Every declared branch must have a value.
func (t *MemTree) Fill(values map[string]any) error {
	for _, d := range t.decls {
		if _, ok := values[d.Name]; !ok {
			return fmt.Errorf("tree %q: fill %d: missing value for branch %q", t.name, len(t.rows), d.Name)
		}
	}
	t.rows = append(t.rows, SnapshotRow(int64(len(t.rows)), values))
	return nil
}

// Name returns the tree name.
func (t *MemTree) Name() string { return t.name }

// Declarations returns the declared branches in declaration order.
func (t *MemTree) Declarations() []Declaration { return t.decls }

// Entries returns the number of filled entries.
func (t *MemTree) Entries() int64 { return int64(len(t.rows)) }

// Reader returns an independent cursor over the tree.
func (t *MemTree) Reader() Source {
	return &memReader{tree: t, next: 0}
}

type memReader struct {
	tree *MemTree
	next int64
	cur  int64
}

func (r *memReader) Name() string                { return r.tree.name }
func (r *memReader) Declarations() []Declaration { return r.tree.decls }
func (r *memReader) Entries() int64              { return r.tree.Entries() }

func (r *memReader) SeekEntry(entry int64) error {
	if entry < 0 || entry > r.tree.Entries() {
		return fmt.Errorf("%w: %d of %d", ErrEntryRange, entry, r.tree.Entries())
	}
	r.next = entry
	return nil
}

func (r *memReader) Next() bool {
	if r.next >= r.tree.Entries() {
		return false
	}
	r.cur = r.next
	r.next++
	return true
}

// Row returns a fresh snapshot so that consumers never share buffers.
func (r *memReader) Row() (Row, error) {
	stored := r.tree.rows[r.cur]
	return SnapshotRow(stored.Entry, stored.Values), nil
}

func (r *memReader) Err() error   { return nil }
func (r *memReader) Close() error { return nil }
