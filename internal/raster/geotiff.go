package raster

import (
	"image"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/image/tiff"
)

// ReadGeoTIFF loads a single-band classified GeoTIFF. Georeferencing comes from
// opts.Grid, a sidecar world file, or the ModelPixelScale/ModelTiepoint tags, in
// that order. The no-data sentinel comes from opts.NoData or GDAL_NODATA.
// 8-bit grey, 16-bit grey and paletted images are supported.
func ReadGeoTIFF(path string, opts Options) (Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = f.Close() }()

	tags, err := readGeoTags(f)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read tags of %s", path)
	}

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: decode %s", path)
	}
	rect := img.Bounds()
	rows, cols := rect.Dy(), rect.Dx()

	g, err := resolveGrid(path, tags, rows, cols, opts)
	if err != nil {
		return nil, err
	}

	switch im := img.(type) {
	case *image.Paletted:
		b, err := NewBand(g, packRows(im.Pix, im.Stride, cols, rows))
		if err != nil {
			return nil, err
		}
		return b.WithPalette(im.Palette), nil
	case *image.Gray:
		return NewBand(g, packRows(im.Pix, im.Stride, cols, rows))
	case *image.Gray16:
		pix := make([]uint16, 0, rows*cols)
		for y := 0; y < rows; y++ {
			line := im.Pix[y*im.Stride : y*im.Stride+2*cols]
			for x := 0; x < cols; x++ {
				pix = append(pix, uint16(line[2*x])<<8|uint16(line[2*x+1]))
			}
		}
		return NewBand(g, pix)
	default:
		return nil, eris.Errorf("raster: %s: unsupported pixel layout %T", path, img)
	}
}

// resolveGrid picks the georeferencing and sentinel for a decoded image.
func resolveGrid(path string, tags geoTags, rows, cols int, opts Options) (Grid, error) {
	var (
		g  Grid
		ok bool
	)
	switch {
	case opts.Grid != nil:
		g, ok = *opts.Grid, true
		g.Rows, g.Cols = rows, cols
	case findWorldFile(path) != "":
		wg, err := ReadWorldFile(findWorldFile(path), rows, cols)
		if err != nil {
			return Grid{}, err
		}
		g, ok = wg, true
	default:
		g, ok = tags.grid(rows, cols)
	}
	if !ok {
		return Grid{}, eris.Wrapf(ErrInvalidGeometry, "raster: %s has no georeferencing", path)
	}

	switch {
	case opts.NoData != nil:
		g.NoData, g.HasNoData = *opts.NoData, true
	default:
		if nd, ok := tags.noDataCode(); ok {
			g.NoData, g.HasNoData = nd, true
		}
	}
	return g, g.Validate()
}

// packRows copies an image's pixel rows into a tightly packed slice.
func packRows(pix []uint8, stride, cols, rows int) []uint8 {
	if stride == cols && len(pix) == rows*cols {
		return pix
	}
	out := make([]uint8, 0, rows*cols)
	for y := 0; y < rows; y++ {
		out = append(out, pix[y*stride:y*stride+cols]...)
	}
	return out
}
