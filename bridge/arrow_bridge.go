package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/VanDung-dev/root2avro/arrow"
	"github.com/VanDung-dev/root2avro/output"
	"github.com/VanDung-dev/root2avro/root2avro-engine/core"
	"github.com/VanDung-dev/root2avro/root2avro-engine/data"
)

// ErrEmptyRequest is returned for a request without Arrow data.
var ErrEmptyRequest = errors.New("received empty data")

// Options select what one conversion request produces. They travel as JSON
// on the ZeroMQ transport.
type Options struct {
	Tree        string `json:"tree,omitempty"`
	Name        string `json:"name,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Codec       string `json:"codec,omitempty"`
	Start       int64  `json:"start,omitempty"`
	End         int64  `json:"end,omitempty"`
	SkipBadRows bool   `json:"skip_bad_rows,omitempty"`

	KeepLengthBranches bool `json:"keep_length_branches,omitempty"`
}

// Config holds settings shared by every request of a converter.
type Config struct {
	Workers     int
	BlockLength int
	Observer    core.Observer
	Logger      logrus.FieldLogger
}

// DefaultConfig returns a configuration using one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		BlockLength: output.DefaultConfig().BlockLength,
	}
}

// Converter turns Arrow IPC payloads into Avro, JSON lines or schema bytes.
// It is safe for concurrent use.
type Converter struct {
	config Config
}

// NewConverter creates a Converter.
func NewConverter(config Config) *Converter {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &Converter{config: config}
}

// Convert decodes an Arrow IPC stream or file, converts every selected entry
// and returns the encoded output.
func (c *Converter) Convert(ctx context.Context, ipcData []byte, opts Options) ([]byte, core.Stats, error) {
	if len(ipcData) == 0 {
		return nil, core.Stats{}, ErrEmptyRequest
	}

	mode := output.ModeAvro
	if opts.Mode != "" {
		m, err := output.ParseMode(opts.Mode)
		if err != nil {
			return nil, core.Stats{}, err
		}
		mode = m
	}

	src, err := arrow.OpenIPC(opts.Tree, ipcData)
	if err != nil {
		return nil, core.Stats{}, fmt.Errorf("failed to open Arrow data: %w", err)
	}
	defer src.Close()

	var buf bytes.Buffer
	sink, err := output.New(mode, &buf, output.Config{Codec: opts.Codec, BlockLength: c.config.BlockLength})
	if err != nil {
		return nil, core.Stats{}, err
	}

	stats, err := core.Convert(ctx, src, sink, core.Options{
		Mapper: data.MapperConfig{
			Name:               opts.Name,
			Namespace:          opts.Namespace,
			KeepLengthBranches: opts.KeepLengthBranches,
		},
		Start:       opts.Start,
		End:         opts.End,
		Workers:     c.config.Workers,
		SkipBadRows: opts.SkipBadRows,
		Observer:    c.config.Observer,
		Logger:      c.config.Logger,
	})
	if err != nil {
		return nil, stats, err
	}
	if err := sink.Close(); err != nil {
		return nil, stats, fmt.Errorf("failed to finish output: %w", err)
	}
	return buf.Bytes(), stats, nil
}

// ConvertArrowIPC converts with a default converter.
func ConvertArrowIPC(ctx context.Context, ipcData []byte, opts Options) ([]byte, error) {
	out, _, err := NewConverter(DefaultConfig()).Convert(ctx, ipcData, opts)
	return out, err
}
