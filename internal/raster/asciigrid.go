package raster

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadASCIIGridFile loads an ESRI ASCII grid (.asc) from disk.
func ReadASCIIGridFile(path string) (*Band[int32], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = f.Close() }()

	b, err := ReadASCIIGrid(f)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read %s", path)
	}
	return b, nil
}

// ReadASCIIGrid parses an ESRI ASCII grid. The header keys ncols, nrows,
// xllcorner|xllcenter, yllcorner|yllcenter and cellsize are required;
// NODATA_value is optional. Cell values must be integral.
func ReadASCIIGrid(r io.Reader) (*Band[int32], error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	sc.Split(bufio.ScanWords)

	header := make(map[string]float64, 6)
	var first string
	for sc.Scan() {
		word := sc.Text()
		key := strings.ToLower(word)
		if !isASCIIGridKey(key) {
			first = word
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("raster: header key %s has no value", word)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: header %s", word)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan header")
	}

	for _, k := range []string{"ncols", "nrows", "cellsize"} {
		if _, ok := header[k]; !ok {
			return nil, eris.Errorf("raster: missing header key %s", k)
		}
	}
	cols, rows, cell := int(header["ncols"]), int(header["nrows"]), header["cellsize"]

	g := Grid{Rows: rows, Cols: cols, ResX: cell, ResY: cell}
	switch {
	case hasKey(header, "xllcorner"):
		g.West = header["xllcorner"]
	case hasKey(header, "xllcenter"):
		g.West = header["xllcenter"] - cell/2
	default:
		return nil, eris.New("raster: missing header key xllcorner")
	}
	switch {
	case hasKey(header, "yllcorner"):
		g.North = header["yllcorner"] + float64(rows)*cell
	case hasKey(header, "yllcenter"):
		g.North = header["yllcenter"] - cell/2 + float64(rows)*cell
	default:
		return nil, eris.New("raster: missing header key yllcorner")
	}
	if nd, ok := header["nodata_value"]; ok {
		g.NoData, g.HasNoData = int(nd), true
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	pix := make([]int32, 0, rows*cols)
	parse := func(word string) error {
		v, err := strconv.ParseFloat(word, 64)
		if err != nil {
			return eris.Wrapf(err, "raster: cell %d", len(pix))
		}
		if v != math.Trunc(v) {
			return eris.Errorf("raster: cell %d value %s is not a category code", len(pix), word)
		}
		pix = append(pix, int32(v))
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for len(pix) < rows*cols && sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan cells")
	}
	if len(pix) != rows*cols {
		return nil, eris.Errorf("raster: got %d cells, want %d", len(pix), rows*cols)
	}

	return NewBand(g, pix)
}

func isASCIIGridKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "xllcenter", "yllcorner", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

func hasKey(m map[string]float64, k string) bool {
	_, ok := m[k]
	return ok
}
