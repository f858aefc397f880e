// Package export writes per-country area tables as CSV and XLSX files.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sashkaw/spatial-aez/internal/area"
	"github.com/sashkaw/spatial-aez/internal/zonal"
)

// CountryHeader is the label of the first column.
const CountryHeader = "Country"

// DefaultPrecision is the number of decimals written for area values.
const DefaultPrecision = 2

// Format is an output file format.
type Format string

// Supported formats.
const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormats validates a list of format names. An empty list means CSV.
func ParseFormats(names []string) ([]Format, error) {
	if len(names) == 0 {
		return []Format{CSV}, nil
	}
	seen := make(map[Format]bool, len(names))
	var out []Format
	for _, n := range names {
		f := Format(strings.ToLower(strings.TrimSpace(n)))
		switch f {
		case CSV, XLSX:
		default:
			return nil, eris.Errorf("export: unknown format %q", n)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// Sheet is a table ready to be written: a header and one row per country.
type Sheet struct {
	Name      string
	Columns   []string
	Rows      []zonal.Row
	Precision int
}

// NewSheet lays out t with one row per country, in the given order.
func NewSheet(name string, t *zonal.Table, countries []string, unit area.Unit, precision int) Sheet {
	return Sheet{
		Name:      name,
		Columns:   t.Columns(),
		Rows:      t.Rows(countries, unit),
		Precision: precision,
	}
}

func (s Sheet) header() []string {
	return append([]string{CountryHeader}, s.Columns...)
}

func (s Sheet) format(v float64) string {
	return strconv.FormatFloat(v, 'f', s.Precision, 64)
}

// WriteCSV writes s to w.
func WriteCSV(w io.Writer, s Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.header()); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	rec := make([]string, len(s.Columns)+1)
	for _, r := range s.Rows {
		if len(r.Values) != len(s.Columns) {
			return eris.Errorf("export: row %q has %d values, want %d", r.Country, len(r.Values), len(s.Columns))
		}
		rec[0] = r.Country
		for i, v := range r.Values {
			rec[i+1] = s.format(v)
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrapf(err, "export: write row %s", r.Country)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteCSVFile writes s to path. The file is written beside its destination
// and renamed into place, so a failed export never leaves a truncated file.
func WriteCSVFile(path string, s Sheet) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", tmp)
	}
	if err := WriteCSV(f, s); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "export: close %s", tmp)
	}
	return eris.Wrapf(os.Rename(tmp, path), "export: rename %s", tmp)
}

// WriteXLSXFile writes s as a single-sheet workbook.
func WriteXLSXFile(path string, s Sheet) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName(s.Name))
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hdr := sheet.AddRow()
	for _, h := range s.header() {
		hdr.AddCell().SetString(h)
	}

	numFmt := "0"
	if s.Precision > 0 {
		numFmt += "." + strings.Repeat("0", s.Precision)
	}
	for _, r := range s.Rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Country)
		for _, v := range r.Values {
			row.AddCell().SetFloatWithFormat(v, numFmt)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// sheetName trims a dataset name to Excel's 31-character sheet limit.
func sheetName(name string) string {
	if name == "" {
		return "Sheet1"
	}
	r := []rune(name)
	if len(r) > 31 {
		r = r[:31]
	}
	return string(r)
}

// Write writes s to dir once per format, naming each file base plus the
// format's extension. It returns the written paths.
func Write(dir, base string, formats []Format, s Sheet) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create %s", dir)
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))

	paths := make([]string, 0, len(formats))
	for _, f := range formats {
		path := filepath.Join(dir, base+"."+string(f))
		var err error
		switch f {
		case CSV:
			err = WriteCSVFile(path, s)
		case XLSX:
			err = WriteXLSXFile(path, s)
		default:
			err = eris.Errorf("export: unknown format %q", f)
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
