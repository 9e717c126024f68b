package arrow

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ErrNoRecords is returned when IPC data carries a schema but no batches
// and a caller needs at least one.
var ErrNoRecords = errors.New("no records in IPC data")

// fileMagic opens every Arrow IPC file (as opposed to a stream).
var fileMagic = []byte("ARROW1")

// IPCCodec reads and writes Arrow IPC streams.
type IPCCodec struct {
	allocator memory.Allocator
}

// NewIPCCodec creates an IPCCodec using the default allocator.
func NewIPCCodec() *IPCCodec {
	return &IPCCodec{allocator: memory.DefaultAllocator}
}

// Write writes records as one IPC stream. All records must share schema.
func (c *IPCCodec) Write(w io.Writer, schema *arrow.Schema, records ...arrow.Record) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(c.allocator))
	defer writer.Close()

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// Encode returns records as IPC stream bytes.
func (c *IPCCodec) Encode(schema *arrow.Schema, records ...arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Write(&buf, schema, records...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads every record from IPC stream or file bytes. The caller must
// release the returned records.
func (c *IPCCodec) Decode(data []byte) (*arrow.Schema, []arrow.Record, error) {
	if bytes.HasPrefix(data, fileMagic) {
		return c.decodeFile(data)
	}

	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(c.allocator))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		record := reader.Record()
		record.Retain()
		records = append(records, record)
	}

	if reader.Err() != nil {
		Release(records)
		return nil, nil, reader.Err()
	}
	return reader.Schema(), records, nil
}

func (c *IPCCodec) decodeFile(data []byte) (*arrow.Schema, []arrow.Record, error) {
	reader, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(c.allocator))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open IPC file: %w", err)
	}
	defer reader.Close()

	records := make([]arrow.Record, 0, reader.NumRecords())
	for i := 0; i < reader.NumRecords(); i++ {
		record, err := reader.Record(i)
		if err != nil {
			Release(records)
			return nil, nil, fmt.Errorf("failed to read record %d: %w", i, err)
		}
		record.Retain()
		records = append(records, record)
	}
	return reader.Schema(), records, nil
}

// Release releases every record.
func Release(records []arrow.Record) {
	for _, r := range records {
		r.Release()
	}
}
