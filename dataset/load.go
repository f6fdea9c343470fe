package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hupe1980/knncache"
)

// DefaultTarget is the target column used when LoadOptions.Target is empty.
const DefaultTarget = "price"

// LoadOptions controls how a tabular file becomes a Dataset.
type LoadOptions struct {
	// Target names the target column. Defaults to DefaultTarget.
	Target string
	// Delimiter is the CSV field separator. Defaults to ','.
	Delimiter rune
	// Columns optionally restricts and orders the feature columns.
	// When empty every non-target column is a feature in file order.
	Columns []string
}

func (o LoadOptions) target() string {
	if o.Target == "" {
		return DefaultTarget
	}
	return o.Target
}

// Load reads a dataset from path, dispatching on the file extension
// (.csv, .parquet or .arrow).
func Load(ctx context.Context, path string, opts LoadOptions) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return LoadCSV(ctx, path, opts)
	case ".parquet":
		return LoadParquet(ctx, path, opts)
	case ".arrow", ".ipc", ".feather":
		return LoadArrow(ctx, path, opts)
	default:
		return nil, fmt.Errorf("%w: unsupported dataset extension %q", knncache.ErrInvalidArgument, filepath.Ext(path))
	}
}

// LoadCSV reads a delimited text file with a header line.
func LoadCSV(ctx context.Context, path string, opts LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return ReadCSV(ctx, filepath.Base(path), f, opts)
}

// ReadCSV reads a delimited table from r. name is used in error messages.
func ReadCSV(ctx context.Context, name string, r io.Reader, opts LoadOptions) (*Dataset, error) {
	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &knncache.FormatError{Name: name, Line: 1, Reason: "missing header"}
		}
		return nil, csvError(name, err)
	}
	sel, err := selectColumns(name, header, opts)
	if err != nil {
		return nil, err
	}

	b := newBuilder(len(sel.features))
	line := 1
	for {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(name, err)
		}
		line++

		y, err := parseField(rec[sel.target])
		if err != nil {
			return nil, &knncache.FormatError{Name: name, Line: line, Reason: fmt.Sprintf("column %q: %v", header[sel.target], err)}
		}
		for _, c := range sel.features {
			v, err := parseField(rec[c])
			if err != nil {
				return nil, &knncache.FormatError{Name: name, Line: line, Reason: fmt.Sprintf("column %q: %v", header[c], err)}
			}
			b.xs = append(b.xs, v)
		}
		b.ys = append(b.ys, y)
	}
	return b.build(sel.names)
}

func parseField(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing value")
	}
	return strconv.ParseFloat(s, 64)
}

func csvError(name string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &knncache.FormatError{Name: name, Line: pe.Line, Reason: pe.Err.Error()}
	}
	return fmt.Errorf("read %s: %w", name, err)
}

type selection struct {
	target   int
	features []int
	names    []string
}

// selectColumns maps the target and feature names onto header positions.
func selectColumns(name string, header []string, opts LoadOptions) (selection, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	target, ok := index[opts.target()]
	if !ok {
		return selection{}, &knncache.FormatError{Name: name, Line: 1, Reason: fmt.Sprintf("target column %q not found", opts.target())}
	}

	sel := selection{target: target}
	if len(opts.Columns) > 0 {
		for _, c := range opts.Columns {
			i, ok := index[c]
			if !ok {
				return selection{}, &knncache.FormatError{Name: name, Line: 1, Reason: fmt.Sprintf("feature column %q not found", c)}
			}
			if i == target {
				return selection{}, fmt.Errorf("%w: column %q is the target", knncache.ErrInvalidArgument, c)
			}
			sel.features = append(sel.features, i)
			sel.names = append(sel.names, c)
		}
		return sel, nil
	}
	for i, h := range header {
		if i == target {
			continue
		}
		sel.features = append(sel.features, i)
		sel.names = append(sel.names, strings.TrimSpace(h))
	}
	return sel, nil
}

// builder accumulates rows read by the loaders.
type builder struct {
	cols int
	xs   []float64
	ys   []float64
}

func newBuilder(cols int) *builder {
	return &builder{cols: cols}
}

func (b *builder) build(names []string) (*Dataset, error) {
	xs, err := NewMatrix(len(b.ys), b.cols, b.xs)
	if err != nil {
		return nil, err
	}
	return New(xs, b.ys, names)
}
