package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hupe1980/knncache"
)

// LoadArrow reads an Arrow IPC file. Feature columns default to every
// numeric field other than the target, in schema order.
func LoadArrow(ctx context.Context, path string, opts LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	fr, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, &knncache.FormatError{Name: name, Reason: err.Error()}
	}
	defer fr.Close()

	return readArrow(ctx, name, fr, opts)
}

func readArrow(ctx context.Context, name string, fr *ipc.FileReader, opts LoadOptions) (*Dataset, error) {
	schema := fr.Schema()

	field := func(col string) (int, error) {
		idx := schema.FieldIndices(col)
		if len(idx) == 0 {
			return 0, &knncache.FormatError{Name: name, Reason: fmt.Sprintf("column %q not found", col)}
		}
		if !isNumericArrow(schema.Field(idx[0]).Type) {
			return 0, &knncache.FormatError{Name: name, Reason: fmt.Sprintf("column %q is not numeric", col)}
		}
		return idx[0], nil
	}

	target, err := field(opts.target())
	if err != nil {
		return nil, err
	}

	var (
		features []int
		names    []string
	)
	if len(opts.Columns) > 0 {
		for _, c := range opts.Columns {
			idx, err := field(c)
			if err != nil {
				return nil, err
			}
			features = append(features, idx)
			names = append(names, c)
		}
	} else {
		for i, f := range schema.Fields() {
			if i == target || !isNumericArrow(f.Type) {
				continue
			}
			features = append(features, i)
			names = append(names, f.Name)
		}
	}

	b := newBuilder(len(features))
	rowNum := 0
	for r := 0; r < fr.NumRecords(); r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := fr.Record(r)
		if err != nil {
			return nil, fmt.Errorf("read %s record %d: %w", name, r, err)
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			rowNum++
			y, err := arrowFloat(rec.Column(target), i)
			if err != nil {
				return nil, &knncache.FormatError{Name: name, Line: rowNum, Reason: fmt.Sprintf("column %q: %v", opts.target(), err)}
			}
			for j, c := range features {
				v, err := arrowFloat(rec.Column(c), i)
				if err != nil {
					return nil, &knncache.FormatError{Name: name, Line: rowNum, Reason: fmt.Sprintf("column %q: %v", names[j], err)}
				}
				b.xs = append(b.xs, v)
			}
			b.ys = append(b.ys, y)
		}
	}
	return b.build(names)
}

func isNumericArrow(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.FLOAT64, arrow.FLOAT32, arrow.INT64, arrow.INT32:
		return true
	default:
		return false
	}
}

func arrowFloat(col arrow.Array, i int) (float64, error) {
	if col.IsNull(i) {
		return 0, fmt.Errorf("missing value")
	}
	switch a := col.(type) {
	case *array.Float64:
		return a.Value(i), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.Int64:
		return float64(a.Value(i)), nil
	case *array.Int32:
		return float64(a.Value(i)), nil
	default:
		return 0, fmt.Errorf("unsupported type %s", col.DataType())
	}
}
