package tree

import (
	"errors"
	"fmt"
	"io"
)

// ErrEntryRange is returned when seeking outside a tree.
var ErrEntryRange = errors.New("entry out of range")

// Source is a cursor over the entries of one tree. Row must return a
// snapshot that stays valid after Next.
type Source interface {
	Name() string
	Declarations() []Declaration
	Entries() int64
	// SeekEntry positions the cursor so that the next call to Next loads entry.
	SeekEntry(entry int64) error
	Next() bool
	Row() (Row, error)
	Err() error
	io.Closer
}

// Chain concatenates sources that declare the same branches, as a TChain
// does for files sharing one tree. Entry numbers run across all sources.
func Chain(sources ...Source) (Source, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("chain: no sources")
	}
	if len(sources) == 1 {
		return sources[0], nil
	}

	first := sources[0].Declarations()
	for i, s := range sources[1:] {
		if err := sameDeclarations(first, s.Declarations()); err != nil {
			return nil, fmt.Errorf("chain source %d: %w", i+1, err)
		}
	}
	return &chain{sources: sources}, nil
}

func sameDeclarations(a, b []Declaration) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d branches vs %d", ErrDeclarationDrift, len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Type.String() != b[i].Type.String() {
			return fmt.Errorf("%w: branch %d is %s vs %s", ErrDeclarationDrift, i, a[i], b[i])
		}
	}
	return nil
}

type chain struct {
	sources []Source
	current int
	offset  int64
	err     error
}

func (c *chain) Name() string                { return c.sources[0].Name() }
func (c *chain) Declarations() []Declaration { return c.sources[0].Declarations() }

func (c *chain) Entries() int64 {
	var n int64
	for _, s := range c.sources {
		n += s.Entries()
	}
	return n
}

func (c *chain) SeekEntry(entry int64) error {
	if entry < 0 || entry > c.Entries() {
		return fmt.Errorf("%w: %d", ErrEntryRange, entry)
	}
	var offset int64
	for i, s := range c.sources {
		n := s.Entries()
		if entry < offset+n || i == len(c.sources)-1 {
			c.current = i
			c.offset = offset
			return s.SeekEntry(entry - offset)
		}
		offset += n
	}
	return nil
}

func (c *chain) Next() bool {
	for c.current < len(c.sources) {
		s := c.sources[c.current]
		if s.Next() {
			return true
		}
		if err := s.Err(); err != nil {
			c.err = err
			return false
		}
		c.offset += s.Entries()
		c.current++
		if c.current < len(c.sources) {
			if err := c.sources[c.current].SeekEntry(0); err != nil {
				c.err = err
				return false
			}
		}
	}
	return false
}

func (c *chain) Row() (Row, error) {
	row, err := c.sources[c.current].Row()
	if err != nil {
		return Row{}, err
	}
	row.Entry += c.offset
	return row, nil
}

func (c *chain) Err() error { return c.err }

func (c *chain) Close() error {
	var first error
	for _, s := range c.sources {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
