// Package tabular loads statement containers (csv, xls, xlsx) into a table of
// raw string cells. It applies no business rules: no type coercion and no
// header renaming.
package tabular

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/statements-ledger/constants"
	"github.com/joseph-ayodele/statements-ledger/internal/common"
)

// headerScanLimit bounds how far into a file the header predicate looks.
const headerScanLimit = 30

// Table is a header row plus data rows. Every data row has at least
// len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of the column whose trimmed header equals name, or -1.
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// Cell returns the raw value at (row, col), or "" when out of range.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

type options struct {
	isHeader func(row []string) bool
}

// Option configures Read.
type Option func(*options)

// WithHeaderRow selects the first row (within the leading rows of the sheet)
// for which match returns true as the header. Rows above it are discarded.
// When no row matches, the first non-empty row is used.
func WithHeaderRow(match func(row []string) bool) Option {
	return func(o *options) {
		o.isHeader = match
	}
}

// ReadFile reads the statement at path, choosing the decoder from its extension.
func ReadFile(path string, opts ...Option) (*Table, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	if !constants.IsAllowedExt(ext) {
		return nil, common.UnsupportedFormatError(ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	return Read(f, ext, opts...)
}

// Read decodes r as a statement of the given extension ("csv", "xls", "xlsx",
// with or without the dot).
func Read(r io.Reader, ext string, opts ...Option) (*Table, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ext = constants.NormalizeExt(ext)
	var decode func([]byte) ([][]string, error)
	switch ext {
	case "csv":
		decode = readCSV
	case "xls":
		decode = readXLS
	case "xlsx":
		decode = readXLSX
	default:
		return nil, common.UnsupportedFormatError(ext)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ext, err)
	}
	grid, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ext, err)
	}
	return build(grid, o), nil
}

func build(grid [][]string, o options) *Table {
	headerAt := -1
	if o.isHeader != nil {
		for i := 0; i < len(grid) && i < headerScanLimit; i++ {
			if o.isHeader(grid[i]) {
				headerAt = i
				break
			}
		}
	}
	if headerAt < 0 {
		for i, row := range grid {
			if !blank(row) {
				headerAt = i
				break
			}
		}
	}
	if headerAt < 0 {
		return &Table{}
	}

	header := append([]string(nil), grid[headerAt]...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := &Table{Header: header}
	for _, row := range grid[headerAt+1:] {
		if blank(row) {
			continue
		}
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// bom is the UTF-8 byte order mark some bank exports prepend.
var bom = []byte{0xEF, 0xBB, 0xBF}

func trimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, bom)
}
