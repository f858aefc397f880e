package raster

import (
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// GeoTIFF and GDAL private tags read from the first IFD.
const (
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGDALNoData      = 42113
)

// TIFF field types used by the tags above.
const (
	typeASCII  = 2
	typeDouble = 12
)

// Upper bounds on tag value counts. GDAL writes three scale values, one
// six-value tiepoint and a short no-data string; anything far larger comes
// from a corrupt header and would only size a huge allocation.
const (
	maxDoubleTagCount = 6 * 256
	maxNoDataLen      = 256
)

// geoTags holds the georeferencing found in a TIFF header.
type geoTags struct {
	scale    []float64 // ScaleX, ScaleY, ScaleZ
	tiepoint []float64 // I, J, K, X, Y, Z
	noData   string
}

// grid derives the grid origin and resolution from the tags. Pixel-is-area
// raster space is assumed, which is what GDAL writes for these products.
func (t geoTags) grid(rows, cols int) (Grid, bool) {
	if len(t.scale) < 2 || len(t.tiepoint) < 6 {
		return Grid{}, false
	}
	sx, sy := t.scale[0], t.scale[1]
	i, j, x, y := t.tiepoint[0], t.tiepoint[1], t.tiepoint[3], t.tiepoint[4]
	return Grid{
		Rows:  rows,
		Cols:  cols,
		West:  x - i*sx,
		North: y + j*sy,
		ResX:  sx,
		ResY:  sy,
	}, true
}

// noDataCode parses GDAL_NODATA as an integer code.
func (t geoTags) noDataCode() (int, bool) {
	s := strings.TrimSpace(strings.TrimRight(t.noData, "\x00"))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// readGeoTags walks the first IFD of a classic (non-Big) TIFF and extracts the
// georeferencing tags. Missing tags are not an error.
func readGeoTags(r io.ReaderAt) (geoTags, error) {
	var tags geoTags

	header := make([]byte, 8)
	if _, err := r.ReadAt(header, 0); err != nil {
		return tags, eris.Wrap(err, "raster: read tiff header")
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return tags, eris.New("raster: not a tiff file")
	}
	switch order.Uint16(header[2:4]) {
	case 42:
	case 43:
		return tags, eris.New("raster: BigTIFF is not supported")
	default:
		return tags, eris.New("raster: bad tiff magic number")
	}

	ifd := int64(order.Uint32(header[4:8]))
	countBuf := make([]byte, 2)
	if _, err := r.ReadAt(countBuf, ifd); err != nil {
		return tags, eris.Wrap(err, "raster: read ifd entry count")
	}
	n := int(order.Uint16(countBuf))

	entries := make([]byte, 12*n)
	if _, err := r.ReadAt(entries, ifd+2); err != nil {
		return tags, eris.Wrap(err, "raster: read ifd entries")
	}

	for k := 0; k < n; k++ {
		e := entries[12*k : 12*k+12]
		tag := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])
		count := int64(order.Uint32(e[4:8]))

		switch tag {
		case tagModelPixelScale, tagModelTiepoint:
			if typ != typeDouble {
				continue
			}
			if count > maxDoubleTagCount {
				return tags, eris.Errorf("raster: tag %d declares %d values", tag, count)
			}
			vals, err := readDoubles(r, order, int64(order.Uint32(e[8:12])), count)
			if err != nil {
				return tags, err
			}
			if tag == tagModelPixelScale {
				tags.scale = vals
			} else {
				tags.tiepoint = vals
			}
		case tagGDALNoData:
			if typ != typeASCII {
				continue
			}
			if count > maxNoDataLen {
				return tags, eris.Errorf("raster: GDAL_NODATA declares %d bytes", count)
			}
			if count <= 4 {
				tags.noData = string(e[8 : 8+count])
				continue
			}
			buf := make([]byte, count)
			if _, err := r.ReadAt(buf, int64(order.Uint32(e[8:12]))); err != nil {
				return tags, eris.Wrap(err, "raster: read GDAL_NODATA")
			}
			tags.noData = string(buf)
		}
	}

	return tags, nil
}

func readDoubles(r io.ReaderAt, order binary.ByteOrder, offset, count int64) ([]float64, error) {
	buf := make([]byte, 8*count)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return nil, eris.Wrap(err, "raster: read double tag")
	}
	vals := make([]float64, count)
	for i := range vals {
		vals[i] = math.Float64frombits(order.Uint64(buf[8*i:]))
	}
	return vals, nil
}
