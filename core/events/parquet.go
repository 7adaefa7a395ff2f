package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// DefaultChunkSize is the number of events per chunk when none is configured.
const DefaultChunkSize = 100_000

// rowBatch is how many rows are decoded per ReadRows call.
const rowBatch = 1024

// Chunk is one batch of events read from a source file.
type Chunk struct {
	Index  int    // Position of the chunk across the whole source
	Source string // Path of the file the events came from
	Offset int    // Index of the first event within the source
	Events *Table
}

// ReadChunks decodes a Parquet file of flat numeric columns and calls fn for
// every chunk of at most chunkSize events, in file order. Row groups are
// never merged: a row group larger than chunkSize is split.
func ReadChunks(ctx context.Context, path string, chunkSize int, fn func(Chunk) error) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat events file: %w", err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}

	names, err := flatColumns(pf.Schema())
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	index, offset := 0, 0
	for _, rg := range pf.RowGroups() {
		if err := ctx.Err(); err != nil {
			return err
		}
		table, err := readRowGroup(rg, names)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for lo := 0; lo < table.Len(); lo += chunkSize {
			hi := min(lo+chunkSize, table.Len())
			chunk := Chunk{Index: index, Source: path, Offset: offset + lo, Events: table.Slice(lo, hi)}
			if err := fn(chunk); err != nil {
				return err
			}
			index++
		}
		offset += table.Len()
	}
	return nil
}

// flatColumns returns the leaf column names and rejects nested or repeated fields.
func flatColumns(schema *parquet.Schema) ([]string, error) {
	fields := schema.Fields()
	names := make([]string, 0, len(fields))
	for _, field := range fields {
		if !field.Leaf() || field.Repeated() {
			return nil, fmt.Errorf("%w: %q is nested or repeated", ErrUnsupportedColumn, field.Name())
		}
		names = append(names, field.Name())
	}
	// Leaf column order must line up with the top-level fields.
	for i, path := range schema.Columns() {
		if i >= len(names) || strings.Join(path, ".") != names[i] {
			return nil, fmt.Errorf("%w: unexpected column layout at %v", ErrUnsupportedColumn, path)
		}
	}
	return names, nil
}

// readRowGroup decodes a whole row group into a table.
func readRowGroup(rg parquet.RowGroup, names []string) (*Table, error) {
	n := int(rg.NumRows())
	cols := make([][]float64, len(names))
	nulls := make([][]bool, len(names))
	for i := range cols {
		cols[i] = make([]float64, 0, n)
	}

	rows := rg.Rows()
	defer func() { _ = rows.Close() }()

	buf := make([]parquet.Row, rowBatch)
	for {
		read, err := rows.ReadRows(buf)
		for _, row := range buf[:read] {
			for _, v := range row {
				c := v.Column()
				if c < 0 || c >= len(cols) {
					continue
				}
				if v.IsNull() {
					if nulls[c] == nil {
						nulls[c] = make([]bool, len(cols[c]), n)
					}
					nulls[c] = append(nulls[c], true)
					cols[c] = append(cols[c], 0)
					continue
				}
				if nulls[c] != nil {
					nulls[c] = append(nulls[c], false)
				}
				x, err := toFloat(v)
				if err != nil {
					return nil, fmt.Errorf("column %q: %w", names[c], err)
				}
				cols[c] = append(cols[c], x)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}
		if read == 0 {
			break
		}
	}

	t := NewTable(n)
	for i, name := range names {
		if err := t.Set(name, cols[i]); err != nil {
			return nil, err
		}
		if nulls[i] != nil {
			if err := t.setNulls(name, nulls[i]); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// toFloat converts a numeric or boolean Parquet value.
func toFloat(v parquet.Value) (float64, error) {
	switch v.Kind() {
	case parquet.Boolean:
		if v.Boolean() {
			return 1, nil
		}
		return 0, nil
	case parquet.Int32:
		return float64(v.Int32()), nil
	case parquet.Int64:
		return float64(v.Int64()), nil
	case parquet.Float:
		return float64(v.Float()), nil
	case parquet.Double:
		return v.Double(), nil
	default:
		return 0, fmt.Errorf("%w: kind %s", ErrUnsupportedColumn, v.Kind())
	}
}
