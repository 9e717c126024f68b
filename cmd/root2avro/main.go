// Command root2avro converts trees stored as Arrow IPC files into Avro.
//
//	root2avro [flags] FILE... TREE
//
// Files are chained in order and must declare the same branches. Output goes
// to standard output unless --output is given.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/VanDung-dev/root2avro/arrow"
	"github.com/VanDung-dev/root2avro/config"
	"github.com/VanDung-dev/root2avro/output"
	"github.com/VanDung-dev/root2avro/root2avro-engine/api"
	"github.com/VanDung-dev/root2avro/root2avro-engine/core"
	"github.com/VanDung-dev/root2avro/root2avro-engine/data"
	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

type options struct {
	configPath  string
	files       []string
	start       int64
	end         int64
	mode        string
	codec       string
	name        string
	namespace   string
	output      string
	workers     int
	blockLength int
	skipBadRows bool
	keepLengths bool
	debug       bool
	quiet       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func newApp(opts *options) *kingpin.Application {
	app := kingpin.New("root2avro", "Convert trees stored as Arrow IPC files into Avro.")
	app.Version(api.Version)
	app.HelpFlag.Short('h')

	app.Flag("config", "TOML configuration file with conversion defaults.").StringVar(&opts.configPath)
	app.Flag("start", "First entry number to convert.").Default("0").Int64Var(&opts.start)
	app.Flag("end", "Entry number after the last to convert (0 converts to the end).").Default("0").Int64Var(&opts.end)
	app.Flag("mode", "What to write: avro (Avro file), json (one JSON object per line), schema (Avro schema only).").StringVar(&opts.mode)
	app.Flag("codec", "Codec for compressing the Avro output: null, deflate, snappy or zstandard.").StringVar(&opts.codec)
	app.Flag("name", "Name for schema (taken from the tree name if not provided).").StringVar(&opts.name)
	app.Flag("ns", "Namespace for schema (blank if not provided).").StringVar(&opts.namespace)
	app.Flag("output", "Output file instead of standard output.").Short('o').StringVar(&opts.output)
	app.Flag("workers", "Number of projection goroutines (0 uses the configured default).").Default("0").IntVar(&opts.workers)
	app.Flag("block-length", "Records per Avro container block (0 uses the configured default).").Default("0").IntVar(&opts.blockLength)
	app.Flag("skip-bad-rows", "Drop rows that fail conversion instead of stopping.").BoolVar(&opts.skipBadRows)
	app.Flag("keep-length-branches", "Keep length branches as plain fields.").BoolVar(&opts.keepLengths)
	app.Flag("debug", "Only show the resolved branch plan and exit; do not convert.").Short('d').BoolVar(&opts.debug)
	app.Flag("quiet", "Do not print the summary.").Short('q').BoolVar(&opts.quiet)
	app.Arg("inputs", "Arrow IPC files followed by the tree name.").Required().StringsVar(&opts.files)
	return app
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	app := newApp(&opts)
	app.Terminate(nil)
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	if _, err := app.Parse(args); err != nil {
		fmt.Fprintf(stderr, "root2avro: %v\n", err)
		return 2
	}
	if len(opts.files) < 2 {
		fmt.Fprintln(stderr, "root2avro: at least one file and a tree name are required")
		return 2
	}
	if opts.end > 0 && opts.start >= opts.end {
		fmt.Fprintln(stderr, "root2avro: start must be less than end (if provided)")
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "root2avro: %v\n", err)
		return 1
	}
	log, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(stderr, "root2avro: %v\n", err)
		return 1
	}
	log.SetOutput(stderr)

	if err := convert(ctx, opts, cfg, log, stdout, stderr); err != nil {
		log.WithError(err).Error("Conversion failed")
		return 1
	}
	return 0
}

func convert(ctx context.Context, opts options, cfg config.Config, log *logrus.Logger, stdout, stderr io.Writer) error {
	treeName := opts.files[len(opts.files)-1]
	files := opts.files[:len(opts.files)-1]

	src, inputBytes, err := openChain(treeName, files)
	if err != nil {
		return err
	}
	defer src.Close()

	mapper := data.MapperConfig{
		Name:               opts.name,
		Namespace:          firstNonEmpty(opts.namespace, cfg.Convert.Namespace),
		KeepLengthBranches: opts.keepLengths || cfg.Convert.KeepLengthBranches,
	}

	if opts.debug {
		return dumpPlan(stdout, src, mapper)
	}

	mode, err := output.ParseMode(firstNonEmpty(opts.mode, cfg.Convert.Mode))
	if err != nil {
		return err
	}
	sinkConfig := output.Config{
		Codec:       firstNonEmpty(opts.codec, cfg.Convert.Codec),
		BlockLength: firstPositive(opts.blockLength, cfg.Convert.BlockLength),
	}

	w := stdout
	var file *os.File
	if opts.output != "" {
		file, err = os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer file.Close()
		w = file
	}
	counted := &countingWriter{w: bufio.NewWriterSize(w, 1<<16)}

	sink, err := output.New(mode, counted, sinkConfig)
	if err != nil {
		return err
	}

	stats, err := core.Convert(ctx, src, sink, core.Options{
		Mapper:      mapper,
		Start:       opts.start,
		End:         opts.end,
		Workers:     firstPositive(opts.workers, cfg.Convert.Workers),
		SkipBadRows: opts.skipBadRows || cfg.Convert.SkipBadRows,
		OnRowError: func(entry int64, err error) {
			log.WithError(err).WithField("entry", entry).Warn("Skipping row")
		},
		Logger: log,
	})
	if err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("failed to finish output: %w", err)
	}
	if err := counted.w.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if file != nil {
		if err := file.Close(); err != nil {
			return fmt.Errorf("failed to close output: %w", err)
		}
	}

	if !opts.quiet {
		fmt.Fprintf(stderr, "%s: converted %s of %s entries (%s skipped) from %s into %s in %s\n",
			stats.Tree,
			humanize.Comma(stats.Written),
			humanize.Comma(stats.Read),
			humanize.Comma(stats.Skipped),
			humanize.Bytes(uint64(inputBytes)),
			humanize.Bytes(uint64(counted.n)),
			stats.Duration.Round(time.Microsecond),
		)
	}
	return nil
}

// openChain opens every file as one source of treeName and chains them.
func openChain(treeName string, files []string) (tree.Source, int64, error) {
	var (
		sources []tree.Source
		total   int64
	)
	closeAll := func() {
		for _, s := range sources {
			_ = s.Close()
		}
	}

	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			closeAll()
			return nil, 0, fmt.Errorf("failed to read %s: %w", path, err)
		}
		src, err := arrow.OpenIPC(treeName, raw)
		if err != nil {
			closeAll()
			return nil, 0, fmt.Errorf("%s: %w", path, err)
		}
		sources = append(sources, src)
		total += int64(len(raw))
	}

	chained, err := tree.Chain(sources...)
	if err != nil {
		closeAll()
		return nil, 0, err
	}
	return chained, total, nil
}

type planDump struct {
	Tree     string
	Entries  int64
	Branches []tree.Declaration
	Fields   []fieldDump
	Schema   string
}

type fieldDump struct {
	Name string
	Type tree.Type
}

func dumpPlan(w io.Writer, src tree.Source, mapper data.MapperConfig) error {
	plan, err := core.BuildPlan(src, mapper)
	if err != nil {
		return err
	}

	dump := planDump{
		Tree:     src.Name(),
		Entries:  src.Entries(),
		Branches: src.Declarations(),
		Schema:   plan.Schema.String(),
	}
	for _, f := range plan.Fields {
		dump.Fields = append(dump.Fields, fieldDump{Name: f.Name, Type: f.Type})
	}

	printer := spew.ConfigState{Indent: "  ", DisableMethods: true, DisablePointerAddresses: true, DisableCapacities: true, SortKeys: true}
	printer.Fdump(w, dump)
	return nil
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
