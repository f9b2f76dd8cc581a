// Package csvinput reads the service users export into rows for the reconciler.
package csvinput

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JonMunkholm/servicesync/internal/reconcile"
)

// Column names of the export.
const (
	ColServiceID         = "service_id"
	ColServiceName       = "service_name"
	ColOrganisationNotes = "service_organisation_notes"
	ColRestricted        = "service_restricted"
	ColUserID            = "user_id"
	ColUserName          = "user_name"
	ColUserEmail         = "user_email"
)

// RequiredColumns must all be present in the header row.
var RequiredColumns = []string{ColServiceID, ColServiceName, ColUserID, ColUserName, ColUserEmail}

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("empty file: no header row")

// Reader yields one ServiceUserRow per CSV record. It implements reconcile.RowSource.
type Reader struct {
	csv     *csv.Reader
	counter *CountingReader
	closer  io.Closer
	index   map[string]int
	line    int
}

// Open opens the export at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	r, err := newReader(f, size)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header row from src and checks it for required columns.
func NewReader(src io.Reader) (*Reader, error) {
	return newReader(src, 0)
}

func newReader(src io.Reader, size int64) (*Reader, error) {
	normalized, counter := wrap(src, size)

	cr := csv.NewReader(normalized)
	cr.ReuseRecord = true
	// Rows may be short or carry trailing commas; cell() bounds-checks.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := makeHeaderIndex(header)
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required column: %s", strings.Join(missing, ", "))
	}

	return &Reader{csv: cr, counter: counter, index: index}, nil
}

// makeHeaderIndex maps normalized column names to their position. The first
// occurrence of a duplicated name wins.
func makeHeaderIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	return index
}

// Next returns the next row, or io.EOF after the last one. Blank lines are skipped.
func (r *Reader) Next() (reconcile.ServiceUserRow, error) {
	record, err := r.csv.Read()
	if err != nil {
		return reconcile.ServiceUserRow{}, err
	}
	r.line, _ = r.csv.FieldPos(0)

	row := reconcile.ServiceUserRow{
		ServiceID:   r.cell(record, ColServiceID),
		ServiceName: r.cell(record, ColServiceName),
		Restricted:  r.cell(record, ColRestricted),
		UserID:      r.cell(record, ColUserID),
		UserName:    r.cell(record, ColUserName),
		UserEmail:   r.cell(record, ColUserEmail),
	}
	// An empty notes cell is the same as no notes at all.
	if notes := r.cell(record, ColOrganisationNotes); notes != "" {
		row.OrganisationNotes = &notes
	}
	return row, nil
}

// Line is the line number where the last returned row starts.
func (r *Reader) Line() int {
	return r.line
}

// Progress reports how much of the file has been read, in percent.
func (r *Reader) Progress() int {
	return r.counter.Progress()
}

// Close closes the underlying file when the reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Reader) cell(record []string, col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

var _ reconcile.RowSource = (*Reader)(nil)
