// Package output writes converted trees: Avro object container files, JSON
// lines or the schema alone.
package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"github.com/VanDung-dev/root2avro/root2avro-engine/data"
)

// ErrNoSchema is returned when a record is written before the schema.
var ErrNoSchema = errors.New("schema not written")

// Sink receives one schema followed by records in entry order.
type Sink interface {
	WriteSchema(schema avro.Schema) error
	WriteRecord(rec data.Record) error
	Close() error
}

// Mode selects what a conversion writes.
type Mode string

const (
	ModeAvro   Mode = "avro"
	ModeJSON   Mode = "json"
	ModeSchema Mode = "schema"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAvro, ModeJSON, ModeSchema:
		return m, nil
	}
	return "", fmt.Errorf("unknown output mode %q (want avro, json or schema)", s)
}

// Config holds the options of the Avro container writer.
type Config struct {
	// Codec is one of null, deflate, snappy or zstandard.
	Codec string
	// BlockLength is the number of records per container block.
	BlockLength int
}

// DefaultConfig returns an uncompressed container configuration.
func DefaultConfig() Config {
	return Config{Codec: string(ocf.Null), BlockLength: 100}
}

// ParseCodec validates a container codec name.
func ParseCodec(s string) (ocf.CodecName, error) {
	switch c := ocf.CodecName(strings.ToLower(strings.TrimSpace(s))); c {
	case "", ocf.Null:
		return ocf.Null, nil
	case ocf.Deflate, ocf.Snappy, ocf.ZStandard:
		return c, nil
	}
	return "", fmt.Errorf("unknown codec %q (want null, deflate, snappy or zstandard)", s)
}

// New returns the sink for mode writing to w.
func New(mode Mode, w io.Writer, config Config) (Sink, error) {
	switch mode {
	case ModeAvro:
		codec, err := ParseCodec(config.Codec)
		if err != nil {
			return nil, err
		}
		return &OCFSink{w: w, codec: codec, blockLength: config.BlockLength}, nil
	case ModeJSON:
		return NewJSONSink(w), nil
	case ModeSchema:
		return &SchemaSink{w: w}, nil
	}
	return nil, fmt.Errorf("unknown output mode %q", mode)
}

// OCFSink writes an Avro object container file.
type OCFSink struct {
	w           io.Writer
	codec       ocf.CodecName
	blockLength int
	enc         *ocf.Encoder
}

// WriteSchema writes the container header.
func (s *OCFSink) WriteSchema(schema avro.Schema) error {
	opts := []ocf.EncoderFunc{ocf.WithCodec(s.codec)}
	if s.blockLength > 0 {
		opts = append(opts, ocf.WithBlockLength(s.blockLength))
	}
	enc, err := ocf.NewEncoder(schema.String(), s.w, opts...)
	if err != nil {
		return fmt.Errorf("failed to create container encoder: %w", err)
	}
	s.enc = enc
	return nil
}

// WriteRecord appends a record to the current block.
func (s *OCFSink) WriteRecord(rec data.Record) error {
	if s.enc == nil {
		return ErrNoSchema
	}
	if err := s.enc.Encode(rec.Map()); err != nil {
		return fmt.Errorf("failed to encode entry %d: %w", rec.Entry, err)
	}
	return nil
}

// Close flushes the last block.
func (s *OCFSink) Close() error {
	if s.enc == nil {
		return nil
	}
	return s.enc.Close()
}

// JSONSink writes one JSON object per line.
type JSONSink struct {
	buf *bufio.Writer
	enc *json.Encoder
}

// NewJSONSink creates a JSON lines sink.
func NewJSONSink(w io.Writer) *JSONSink {
	buf := bufio.NewWriter(w)
	return &JSONSink{buf: buf, enc: json.NewEncoder(buf)}
}

// WriteSchema is a no-op: JSON lines carry no header.
func (s *JSONSink) WriteSchema(avro.Schema) error { return nil }

// WriteRecord writes the record on its own line.
func (s *JSONSink) WriteRecord(rec data.Record) error {
	return s.enc.Encode(rec)
}

// Close flushes buffered lines.
func (s *JSONSink) Close() error { return s.buf.Flush() }

// SchemaSink writes the schema and ignores records.
type SchemaSink struct {
	w io.Writer
}

// WriteSchema writes the schema JSON followed by a newline.
func (s *SchemaSink) WriteSchema(schema avro.Schema) error {
	_, err := io.WriteString(s.w, schema.String()+"\n")
	return err
}

// WriteRecord discards the record.
func (s *SchemaSink) WriteRecord(data.Record) error { return nil }

// Close does nothing.
func (s *SchemaSink) Close() error { return nil }

// Collector keeps everything in memory.
type Collector struct {
	mu      sync.Mutex
	Schema  avro.Schema
	Records []data.Record
}

// WriteSchema stores the schema.
func (c *Collector) WriteSchema(schema avro.Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Schema = schema
	return nil
}

// WriteRecord appends the record.
func (c *Collector) WriteRecord(rec data.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Schema == nil {
		return ErrNoSchema
	}
	c.Records = append(c.Records, rec)
	return nil
}

// Close does nothing.
func (c *Collector) Close() error { return nil }
