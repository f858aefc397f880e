package raster

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options override metadata that a raster file lacks or gets wrong.
type Options struct {
	Grid   *Grid // georeferencing override; Rows/Cols are taken from the file
	NoData *int  // sentinel override
}

// Open loads the raster at path, choosing the reader by file extension.
func Open(path string, opts Options) (Raster, error) {
	var (
		r   Raster
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		r, err = ReadGeoTIFF(path, opts)
	case ".asc":
		var b *Band[int32]
		b, err = ReadASCIIGridFile(path)
		if err == nil {
			if opts.NoData != nil {
				b.grid.NoData, b.grid.HasNoData = *opts.NoData, true
			}
			r = b
		}
	default:
		return nil, eris.Errorf("raster: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	g := r.Grid()
	zap.L().Debug("raster: loaded",
		zap.String("path", path),
		zap.Int("rows", g.Rows),
		zap.Int("cols", g.Cols),
		zap.Float64("res_x", g.ResX),
		zap.Float64("res_y", g.ResY),
		zap.Bool("has_nodata", g.HasNoData),
		zap.Int("nodata", g.NoData),
	)
	return r, nil
}
