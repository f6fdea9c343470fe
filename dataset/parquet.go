package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/hupe1980/knncache"
)

// LoadParquet reads a flat Parquet file. Feature columns default to every
// numeric leaf column other than the target, in schema order.
func LoadParquet(ctx context.Context, path string, opts LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	return ReadParquet(ctx, filepath.Base(path), f, st.Size(), opts)
}

// ReadParquet reads a Parquet file of the given size from r.
func ReadParquet(ctx context.Context, name string, r io.ReaderAt, size int64, opts LoadOptions) (*Dataset, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, &knncache.FormatError{Name: name, Reason: err.Error()}
	}
	schema := pf.Schema()

	leaf := func(col string) (int, error) {
		lc, ok := schema.Lookup(col)
		if !ok {
			return 0, &knncache.FormatError{Name: name, Reason: fmt.Sprintf("column %q not found", col)}
		}
		if !isNumericKind(lc.Node.Type().Kind()) {
			return 0, &knncache.FormatError{Name: name, Reason: fmt.Sprintf("column %q is not numeric", col)}
		}
		return lc.ColumnIndex, nil
	}

	target, err := leaf(opts.target())
	if err != nil {
		return nil, err
	}

	var (
		features []int
		names    []string
	)
	if len(opts.Columns) > 0 {
		for _, c := range opts.Columns {
			idx, err := leaf(c)
			if err != nil {
				return nil, err
			}
			features = append(features, idx)
			names = append(names, c)
		}
	} else {
		for _, field := range schema.Fields() {
			if field.Name() == opts.target() || !field.Leaf() || !isNumericKind(field.Type().Kind()) {
				continue
			}
			idx, err := leaf(field.Name())
			if err != nil {
				return nil, err
			}
			features = append(features, idx)
			names = append(names, field.Name())
		}
	}

	b := newBuilder(len(features))
	buf := make([]parquet.Row, 512)
	vals := make(map[int]parquet.Value, len(features)+1)
	rowNum := 0

	for _, rg := range pf.RowGroups() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows := rg.Rows()
		for {
			n, readErr := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				rowNum++
				clear(vals)
				for _, v := range row {
					vals[v.Column()] = v
				}
				y, err := parquetFloat(vals, target)
				if err != nil {
					_ = rows.Close()
					return nil, &knncache.FormatError{Name: name, Line: rowNum, Reason: fmt.Sprintf("column %q: %v", opts.target(), err)}
				}
				for j, c := range features {
					v, err := parquetFloat(vals, c)
					if err != nil {
						_ = rows.Close()
						return nil, &knncache.FormatError{Name: name, Line: rowNum, Reason: fmt.Sprintf("column %q: %v", names[j], err)}
					}
					b.xs = append(b.xs, v)
				}
				b.ys = append(b.ys, y)
			}
			if errors.Is(readErr, io.EOF) {
				break
			}
			if readErr != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("read %s: %w", name, readErr)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
	}
	return b.build(names)
}

func isNumericKind(k parquet.Kind) bool {
	switch k {
	case parquet.Int32, parquet.Int64, parquet.Float, parquet.Double:
		return true
	default:
		return false
	}
}

func parquetFloat(vals map[int]parquet.Value, col int) (float64, error) {
	v, ok := vals[col]
	if !ok || v.IsNull() {
		return 0, errors.New("missing value")
	}
	switch v.Kind() {
	case parquet.Double:
		return v.Double(), nil
	case parquet.Float:
		return float64(v.Float()), nil
	case parquet.Int64:
		return float64(v.Int64()), nil
	case parquet.Int32:
		return float64(v.Int32()), nil
	default:
		return 0, fmt.Errorf("unsupported kind %s", v.Kind())
	}
}
