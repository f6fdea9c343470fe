package cache

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/neighbors"
)

// Format selects the cache file layout produced by Write. Merge accepts
// both layouts regardless of this setting.
type Format uint8

const (
	// FormatV2 writes a metadata line and an explicit neighbor count.
	FormatV2 Format = iota
	// FormatLegacy writes no metadata line and pads missing neighbors with -1.
	FormatLegacy
)

const (
	metaPrefix    = "#knncache"
	formatVersion = 2
	separator     = '|'

	// checkInterval is the number of rows between context checks.
	checkInterval = 4096
)

func (f Format) String() string {
	switch f {
	case FormatV2:
		return "v2"
	case FormatLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// ParseFormat parses a format name ("v2" or "legacy").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "v2", "2":
		return FormatV2, nil
	case "legacy", "v1", "1":
		return FormatLegacy, nil
	default:
		return FormatV2, fmt.Errorf("%w: unknown cache format %q", knncache.ErrInvalidArgument, s)
	}
}

// width returns the number of fields per line for d features.
func (f Format) width(d int) int {
	if f == FormatLegacy {
		return d + neighbors.MaxNeighbors
	}
	return d + 1 + neighbors.MaxNeighbors
}

type record struct {
	k  key
	ys []float64
}

// fieldAppender joins fields with the separator.
type fieldAppender struct {
	buf   []byte
	first bool
}

func (a *fieldAppender) reset() {
	a.buf = a.buf[:0]
	a.first = true
}

func (a *fieldAppender) sep() {
	if !a.first {
		a.buf = append(a.buf, separator)
	}
	a.first = false
}

func (a *fieldAppender) float(v float64) {
	a.sep()
	a.buf = strconv.AppendFloat(a.buf, v, 'g', -1, 64)
}

func (a *fieldAppender) int(v int) {
	a.sep()
	a.buf = strconv.AppendInt(a.buf, int64(v), 10)
}

func (a *fieldAppender) str(s string) {
	a.sep()
	a.buf = append(a.buf, s...)
}

func (a *fieldAppender) line() []byte {
	return append(a.buf, '\n')
}

// writeFile encodes recs in the given format. recs must already be in the
// order they should appear.
func writeFile(ctx context.Context, w io.Writer, format Format, hash string, dims int, recs []record) error {
	bw := bufio.NewWriterSize(w, 1<<16)

	if format == FormatV2 {
		if _, err := fmt.Fprintf(bw, "%s v=%d hash=%s dims=%d neighbors=%d\n",
			metaPrefix, formatVersion, hash, dims, neighbors.MaxNeighbors); err != nil {
			return err
		}
	}

	a := &fieldAppender{}
	a.reset()
	for j := 1; j <= dims; j++ {
		a.str("t" + strconv.Itoa(j))
	}
	if format == FormatV2 {
		a.str("n")
	}
	for j := 1; j <= neighbors.MaxNeighbors; j++ {
		a.str("y" + strconv.Itoa(j))
	}
	if _, err := bw.Write(a.line()); err != nil {
		return err
	}

	for i, r := range recs {
		if i%checkInterval == checkInterval-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		a.reset()
		for _, v := range r.k.vector() {
			a.float(v)
		}
		switch format {
		case FormatV2:
			a.int(len(r.ys))
			for _, y := range r.ys {
				a.float(y)
			}
			for j := len(r.ys); j < neighbors.MaxNeighbors; j++ {
				a.str("")
			}
		case FormatLegacy:
			for _, y := range r.ys {
				if y == -1 {
					return fmt.Errorf("%w: target -1 cannot be written in the legacy format", knncache.ErrInvalidArgument)
				}
				a.float(y)
			}
			for j := len(r.ys); j < neighbors.MaxNeighbors; j++ {
				a.str("-1")
			}
		}
		if _, err := bw.Write(a.line()); err != nil {
			return err
		}
	}

	return bw.Flush()
}

type fileMeta struct {
	version   int
	hash      string
	dims      int
	neighbors int
}

func parseMeta(name, line string) (fileMeta, error) {
	bad := func(reason string) error {
		return &knncache.FormatError{Name: name, Line: 1, Reason: reason}
	}

	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != metaPrefix {
		return fileMeta{}, bad("unrecognized metadata line")
	}

	m := fileMeta{dims: -1}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return fileMeta{}, bad(fmt.Sprintf("malformed metadata field %q", f))
		}
		var err error
		switch k {
		case "v":
			m.version, err = strconv.Atoi(v)
		case "hash":
			m.hash = v
		case "dims":
			m.dims, err = strconv.Atoi(v)
		case "neighbors":
			m.neighbors, err = strconv.Atoi(v)
		}
		if err != nil {
			return fileMeta{}, bad(fmt.Sprintf("malformed metadata field %q", f))
		}
	}

	switch {
	case m.version != formatVersion:
		return fileMeta{}, bad(fmt.Sprintf("unsupported format version %d", m.version))
	case m.hash == "":
		return fileMeta{}, bad("metadata has no hash")
	case m.dims < 0:
		return fileMeta{}, bad("metadata has no dims")
	case m.neighbors != neighbors.MaxNeighbors:
		return fileMeta{}, bad(fmt.Sprintf("metadata declares %d neighbors, want %d", m.neighbors, neighbors.MaxNeighbors))
	}
	return m, nil
}

// readFile parses a whole cache file built for the dataset identified by
// hash and dims. The layout is detected from the first line.
func readFile(ctx context.Context, name string, r io.Reader, hash string, dims int) ([]record, error) {
	br := bufio.NewReaderSize(r, 1<<16)

	format := FormatLegacy
	offset := 0
	if b, err := br.Peek(1); err == nil && b[0] == '#' {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		m, err := parseMeta(name, strings.TrimRight(line, "\r\n"))
		if err != nil {
			return nil, err
		}
		if m.hash != hash || m.dims != dims {
			return nil, &knncache.DatasetMismatchError{
				Name:     name,
				Want:     hash,
				Got:      m.hash,
				WantDims: dims,
				GotDims:  m.dims,
			}
		}
		format = FormatV2
		offset = 1
	}
	width := format.width(dims)

	cr := csv.NewReader(br)
	cr.Comma = separator
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &knncache.FormatError{Name: name, Line: offset + 1, Reason: "missing header"}
		}
		return nil, csvError(name, offset, err)
	}
	if len(header) != width {
		return nil, &knncache.FormatError{
			Name:   name,
			Line:   offset + 1,
			Reason: fmt.Sprintf("header has %d fields, want %d", len(header), width),
		}
	}

	var recs []record
	feats := make([]float64, dims)
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(name, offset, err)
		}
		if len(recs)%checkInterval == checkInterval-1 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line, _ := cr.FieldPos(0)
		line += offset
		if len(fields) != width {
			return nil, &knncache.FormatError{
				Name:   name,
				Line:   line,
				Reason: fmt.Sprintf("row has %d fields, want %d", len(fields), width),
			}
		}
		for j := 0; j < dims; j++ {
			v, err := strconv.ParseFloat(fields[j], 64)
			if err != nil {
				return nil, &knncache.FormatError{
					Name:   name,
					Line:   line,
					Reason: fmt.Sprintf("feature %d: %q is not a number", j+1, fields[j]),
				}
			}
			feats[j] = v
		}

		var ys []float64
		if format == FormatV2 {
			ys, err = parseCounted(fields[dims:])
		} else {
			ys, err = parseSentinel(fields[dims:])
		}
		if err != nil {
			return nil, &knncache.FormatError{Name: name, Line: line, Reason: err.Error()}
		}
		recs = append(recs, record{k: keyOf(feats), ys: ys})
	}
	return recs, nil
}

// parseCounted parses "n|y1|...|y256" where only the first n slots are set.
func parseCounted(fields []string) ([]float64, error) {
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 || n > neighbors.MaxNeighbors {
		return nil, fmt.Errorf("neighbor count %q out of range", fields[0])
	}
	ys := make([]float64, n)
	for i, f := range fields[1:] {
		if i >= n {
			if f != "" {
				return nil, fmt.Errorf("value %q after %d neighbors", f, n)
			}
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("neighbor %d: %q is not a number", i+1, f)
		}
		ys[i] = v
	}
	return ys, nil
}

// parseSentinel parses "y1|...|y256" truncated at the first -1.
func parseSentinel(fields []string) ([]float64, error) {
	ys := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("neighbor %d: %q is not a number", i+1, f)
		}
		if v == -1 {
			break
		}
		ys = append(ys, v)
	}
	return ys, nil
}

func csvError(name string, offset int, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &knncache.FormatError{Name: name, Line: pe.Line + offset, Reason: pe.Err.Error()}
	}
	return err
}
