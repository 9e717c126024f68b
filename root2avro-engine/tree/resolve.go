package tree

import (
	"fmt"
)

// Resolved is a checked declaration list: names are unique and every length
// reference names a scalar integral branch of the same tree.
type Resolved struct {
	Decls []Declaration
	// Counters holds the branches referenced as length branches.
	Counters map[string]bool
	index    map[string]int
}

// Lookup returns the declaration with the given name.
func (r *Resolved) Lookup(name string) (Declaration, bool) {
	i, ok := r.index[name]
	if !ok {
		return Declaration{}, false
	}
	return r.Decls[i], true
}

// Resolve validates decls and collects the length branches they reference.
func Resolve(decls []Declaration) (*Resolved, error) {
	r := &Resolved{
		Decls:    decls,
		Counters: make(map[string]bool),
		index:    make(map[string]int, len(decls)),
	}

	for i, d := range decls {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: declaration %d has no name", ErrMalformedLeaf, i)
		}
		if d.Type == nil {
			return nil, fmt.Errorf("%w: branch %q has no type", ErrUnsupportedType, d.Name)
		}
		if _, dup := r.index[d.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateBranch, d.Name)
		}
		r.index[d.Name] = i
	}

	for _, d := range decls {
		if err := r.checkType(d.Name, d.Type, true); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// checkType walks t and verifies its length references. Variable lengths
// are only allowed on the outermost dimension of a branch.
func (r *Resolved) checkType(branch string, t Type, outer bool) error {
	switch v := t.(type) {
	case Scalar:
		if v.Kind == KindInvalid {
			return fmt.Errorf("%w: branch %q has an invalid kind", ErrUnsupportedType, branch)
		}
		return nil
	case String:
		return nil
	case FixedArray:
		if v.Len <= 0 {
			return fmt.Errorf("%w: branch %q has non-positive length %d", ErrMalformedLeaf, branch, v.Len)
		}
		return r.checkType(branch, v.Elem, false)
	case Vector:
		// Vector elements carry their own length, so a counted array
		// cannot appear inside one.
		return r.checkType(branch, v.Elem, false)
	case VariableArray:
		if !outer {
			return fmt.Errorf("%w: branch %q has a variable inner dimension", ErrUnsupportedType, branch)
		}
		if err := r.checkCounter(branch, v.LengthBranch); err != nil {
			return err
		}
		r.Counters[v.LengthBranch] = true
		if _, ok := v.Elem.(VariableArray); ok {
			return fmt.Errorf("%w: branch %q has a variable inner dimension", ErrUnsupportedType, branch)
		}
		return r.checkType(branch, v.Elem, false)
	default:
		return fmt.Errorf("%w: branch %q has type %T", ErrUnsupportedType, branch, t)
	}
}

func (r *Resolved) checkCounter(branch, counter string) error {
	if counter == "" {
		return fmt.Errorf("%w: branch %q has no length branch", ErrAmbiguousLength, branch)
	}
	if counter == branch {
		return fmt.Errorf("%w: branch %q is its own length branch", ErrAmbiguousLength, branch)
	}
	d, ok := r.Lookup(counter)
	if !ok {
		return fmt.Errorf("%w: length branch %q of %q not found", ErrAmbiguousLength, counter, branch)
	}
	s, ok := d.Type.(Scalar)
	if !ok || !s.Kind.Integral() {
		return fmt.Errorf("%w: length branch %q of %q is %s, not a scalar integer",
			ErrAmbiguousLength, counter, branch, d.Type)
	}
	return nil
}
