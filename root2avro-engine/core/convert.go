package core

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/root2avro/output"
	"github.com/VanDung-dev/root2avro/root2avro-engine/data"
	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

// Observer receives per-row and per-conversion outcomes.
type Observer interface {
	ObserveRow(ok bool, d time.Duration)
	ObserveConversion(stats Stats, err error)
}

// Options configures a conversion.
type Options struct {
	Mapper data.MapperConfig

	// Start is the first entry converted.
	Start int64
	// End is one past the last entry converted; zero or negative means the
	// end of the tree.
	End int64

	// Workers is the number of projection goroutines.
	Workers int

	// SkipBadRows drops rows that fail projection instead of failing the
	// conversion.
	SkipBadRows bool
	// OnRowError is called for every dropped row.
	OnRowError func(entry int64, err error)

	Observer Observer
	Logger   logrus.FieldLogger
}

// DefaultOptions converts the whole tree on one worker per CPU.
func DefaultOptions() Options {
	return Options{
		Workers: runtime.NumCPU(),
		End:     -1,
	}
}

// Stats summarises a conversion.
type Stats struct {
	Tree      string         `json:"tree"`
	Read      int64          `json:"read"`
	Written   int64          `json:"written"`
	Skipped   int64          `json:"skipped"`
	Duration  time.Duration  `json:"duration"`
	Pool      PoolStats      `json:"pool"`
	Sequencer SequencerStats `json:"sequencer"`
}

// BuildPlan maps the declarations of a source.
func BuildPlan(src tree.Source, config data.MapperConfig) (*data.Plan, error) {
	plan, err := data.NewMapper(config).Map(src.Name(), src.Declarations())
	if err != nil {
		return nil, fmt.Errorf("tree %q: %w", src.Name(), err)
	}
	return plan, nil
}

// EntryRange clamps [start, end) to a tree of n entries.
func EntryRange(n, start, end int64) (int64, int64, error) {
	if end <= 0 || end > n {
		end = n
	}
	if start < 0 || start > end {
		return 0, 0, fmt.Errorf("%w: start %d, end %d, %d entries", tree.ErrEntryRange, start, end, n)
	}
	return start, end, nil
}

// Convert writes the schema of src to sink and then one record per entry in
// [Start, End), in entry order. Rows are projected in parallel. The sink is
// not closed.
func Convert(ctx context.Context, src tree.Source, sink output.Sink, opts Options) (stats Stats, err error) {
	begin := time.Now()
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	stats.Tree = src.Name()

	defer func() {
		stats.Duration = time.Since(begin)
		if opts.Observer != nil {
			opts.Observer.ObserveConversion(stats, err)
		}
	}()

	plan, err := BuildPlan(src, opts.Mapper)
	if err != nil {
		return stats, err
	}
	if err := sink.WriteSchema(plan.Schema); err != nil {
		return stats, fmt.Errorf("failed to write schema: %w", err)
	}

	first, last, err := EntryRange(src.Entries(), opts.Start, opts.End)
	if err != nil {
		return stats, err
	}
	if first == last {
		return stats, nil
	}
	if err := src.SeekEntry(first); err != nil {
		return stats, err
	}

	log.WithFields(logrus.Fields{
		"tree":    src.Name(),
		"fields":  len(plan.Fields),
		"start":   first,
		"end":     last,
		"workers": opts.Workers,
	}).Debug("Conversion started")

	projector := data.NewProjector(plan)
	g, gctx := errgroup.WithContext(ctx)
	pool := NewWorkerPool(gctx, "project", opts.Workers, projector.Project)
	seq := NewSequencer(first)

	var read, written, skipped int64

	g.Go(func() error {
		defer pool.Drain()
		for entry := first; entry < last; entry++ {
			if !src.Next() {
				if err := src.Err(); err != nil {
					return fmt.Errorf("reading entry %d: %w", entry, err)
				}
				return fmt.Errorf("%w: source ended before entry %d", tree.ErrEntryRange, entry)
			}
			row, err := src.Row()
			if err != nil {
				return fmt.Errorf("reading entry %d: %w", entry, err)
			}
			if err := pool.Submit(gctx, NewTask(row)); err != nil {
				return err
			}
			atomic.AddInt64(&read, 1)
		}
		return nil
	})

	g.Go(func() error {
		for res := range pool.Results() {
			if opts.Observer != nil {
				opts.Observer.ObserveRow(res.Error == nil, res.Duration)
			}

			var ready []data.Record
			var err error
			if res.Error != nil {
				if !opts.SkipBadRows {
					return res.Error
				}
				skipped++
				log.WithError(res.Error).WithField("entry", res.Entry).Warn("Row skipped")
				if opts.OnRowError != nil {
					opts.OnRowError(res.Entry, res.Error)
				}
				ready, err = seq.Skip(res.Entry)
			} else {
				ready, err = seq.Add(res.Record)
			}
			if err != nil {
				return err
			}

			for _, rec := range ready {
				if err := sink.WriteRecord(rec); err != nil {
					return fmt.Errorf("failed to write entry %d: %w", rec.Entry, err)
				}
				written++
			}
		}
		// Results close early when the pipeline is cancelled.
		return gctx.Err()
	})

	err = g.Wait()
	stats.Read = atomic.LoadInt64(&read)
	stats.Written = written
	stats.Skipped = skipped
	stats.Pool = pool.GetStats()
	stats.Sequencer = seq.GetStats()
	if err != nil {
		return stats, err
	}
	if err := seq.Close(); err != nil {
		return stats, err
	}

	log.WithFields(logrus.Fields{
		"tree":     src.Name(),
		"written":  written,
		"skipped":  skipped,
		"max_held": stats.Sequencer.MaxHeld,
	}).Debug("Conversion finished")
	return stats, nil
}
