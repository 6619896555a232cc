package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMissingColumn reports a required header that is absent from the input.
var ErrMissingColumn = errors.New("missing column")

// ReadOptions controls CSV decoding.
type ReadOptions struct {
	Columns Columns
	// SkipRows drops this many data rows after the header (annotation rows
	// some survey templates place below the header).
	SkipRows int
	// Comma overrides the field separator; zero means ','.
	Comma rune
}

// ReadFile opens path and decodes it with ReadCSV.
func ReadFile(path string, opts ReadOptions) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer file.Close()
	rows, err := ReadCSV(file, opts)
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", path, err)
	}
	return rows, nil
}

// ReadCSV decodes rows from r. Header names are matched after trimming
// surrounding whitespace, since exported spreadsheets often carry trailing
// spaces ("Photo Type "). Cell values are kept verbatim apart from blank
// detection for optional fields. Unparseable numeric cells are recorded on
// Row.Invalid rather than failing the read.
func ReadCSV(r io.Reader, opts ReadOptions) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	layout, err := resolveLayout(header, opts.Columns)
	if err != nil {
		return nil, err
	}

	var rows []Row
	dataIndex := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		dataIndex++
		if dataIndex <= opts.SkipRows {
			continue
		}
		line, _ := reader.FieldPos(0)
		row := layout.row(record)
		row.Index = len(rows)
		row.Line = line
		rows = append(rows, row)
	}
	return rows, nil
}

type layout struct {
	filename, date, station, species, photoType int
	seqID, frameNum, seqNumFrames               int
}

func resolveLayout(header []string, cols Columns) (layout, error) {
	positions := make(map[string]int, len(header))
	for idx, name := range header {
		key := strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, seen := positions[key]; !seen {
			positions[key] = idx
		}
	}
	lookup := func(name string) int {
		name = strings.TrimSpace(name)
		if name == "" {
			return -1
		}
		if idx, ok := positions[name]; ok {
			return idx
		}
		return -1
	}

	l := layout{
		filename:     lookup(cols.Filename),
		date:         lookup(cols.Date),
		station:      lookup(cols.Station),
		species:      lookup(cols.Species),
		photoType:    lookup(cols.PhotoType),
		seqID:        lookup(cols.SeqID),
		frameNum:     lookup(cols.FrameNum),
		seqNumFrames: lookup(cols.SeqNumFrames),
	}
	if l.filename < 0 {
		return layout{}, fmt.Errorf("%w: filename column %q", ErrMissingColumn, cols.Filename)
	}
	return l, nil
}

func (l layout) row(record []string) Row {
	row := Row{
		Filename:  cell(record, l.filename),
		Date:      strings.TrimSpace(cell(record, l.date)),
		Station:   strings.TrimSpace(cell(record, l.station)),
		Species:   optional(record, l.species),
		PhotoType: optional(record, l.photoType),
		SeqID:     strings.TrimSpace(cell(record, l.seqID)),
	}
	row.FrameNum = row.optionalInt(record, l.frameNum, "frame number")
	row.SeqNumFrames = row.optionalInt(record, l.seqNumFrames, "frame count")
	return row
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func optional(record []string, idx int) *string {
	value := cell(record, idx)
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func (r *Row) optionalInt(record []string, idx int, field string) *int {
	value := strings.TrimSpace(cell(record, idx))
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.Invalid = append(r.Invalid, FieldError{Field: field, Value: value, Err: err})
		return nil
	}
	return &n
}
