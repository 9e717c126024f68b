package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/VanDung-dev/root2avro/root2avro-engine/data"
)

// ErrOutOfOrder is returned when an entry is offered twice or before the
// first entry of the sequence.
var ErrOutOfOrder = errors.New("entry out of sequence")

// SequencerStatus represents the state of a Sequencer.
type SequencerStatus int

const (
	SequencerWaiting SequencerStatus = iota
	SequencerBuffering
	SequencerClosed
)

func (s SequencerStatus) String() string {
	switch s {
	case SequencerWaiting:
		return "waiting"
	case SequencerBuffering:
		return "buffering"
	case SequencerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// slot is a finished entry waiting for its predecessors.
type slot struct {
	record  data.Record
	skipped bool
}

// Sequencer restores entry order for records that finish out of order.
// Records are released strictly in ascending entry order, one per entry;
// skipped entries advance the sequence without producing a record.
type Sequencer struct {
	next    int64
	pending map[int64]slot
	closed  bool
	mu      sync.Mutex

	released int64
	skipped  int64
	maxHeld  int
}

// NewSequencer creates a sequencer whose first expected entry is first.
func NewSequencer(first int64) *Sequencer {
	return &Sequencer{
		next:    first,
		pending: make(map[int64]slot),
	}
}

// Add offers a projected record and returns the records that became ready,
// in entry order.
func (s *Sequencer) Add(rec data.Record) ([]data.Record, error) {
	return s.offer(rec.Entry, slot{record: rec})
}

// Skip marks an entry as dropped and returns the records that became ready.
func (s *Sequencer) Skip(entry int64) ([]data.Record, error) {
	return s.offer(entry, slot{skipped: true})
}

func (s *Sequencer) offer(entry int64, sl slot) ([]data.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: sequencer closed", ErrOutOfOrder)
	}
	if entry < s.next {
		return nil, fmt.Errorf("%w: entry %d already released (next %d)", ErrOutOfOrder, entry, s.next)
	}
	if _, dup := s.pending[entry]; dup {
		return nil, fmt.Errorf("%w: entry %d offered twice", ErrOutOfOrder, entry)
	}

	s.pending[entry] = sl
	if len(s.pending) > s.maxHeld {
		s.maxHeld = len(s.pending)
	}

	var ready []data.Record
	for {
		next, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		s.next++
		if next.skipped {
			s.skipped++
			continue
		}
		s.released++
		ready = append(ready, next.record)
	}
	return ready, nil
}

// Close ends the sequence. It fails if entries are still held back by a
// missing predecessor.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if len(s.pending) > 0 {
		return fmt.Errorf("%w: %d entries waiting for entry %d", ErrOutOfOrder, len(s.pending), s.next)
	}
	return nil
}

// Status reports whether records are being held back.
func (s *Sequencer) Status() SequencerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return SequencerClosed
	case len(s.pending) > 0:
		return SequencerBuffering
	default:
		return SequencerWaiting
	}
}

// SequencerStats contains sequencer counters.
type SequencerStats struct {
	Next     int64 `json:"next"`
	Released int64 `json:"released"`
	Skipped  int64 `json:"skipped"`
	Pending  int   `json:"pending"`
	MaxHeld  int   `json:"max_held"`
}

// GetStats returns current sequencer statistics.
func (s *Sequencer) GetStats() SequencerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SequencerStats{
		Next:     s.next,
		Released: s.released,
		Skipped:  s.skipped,
		Pending:  len(s.pending),
		MaxHeld:  s.maxHeld,
	}
}
