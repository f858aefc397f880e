// Package raster holds classified, georeferenced grids of integer category codes
// and the readers that load them from GeoTIFF and ESRI ASCII grid files.
package raster

import (
	"errors"
	"image/color"
	"math"

	"github.com/rotisserie/eris"
)

// ErrInvalidGeometry marks grid metadata or pixel coordinates that cannot describe
// a valid equirectangular WGS84 grid.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Grid describes the layout of an equirectangular (plate carrée) WGS84 grid.
// Row 0 is the northernmost row; column 0 is the westernmost column.
type Grid struct {
	Rows  int
	Cols  int
	West  float64 // longitude of the left edge, degrees
	North float64 // latitude of the top edge, degrees
	ResX  float64 // degrees of longitude per pixel
	ResY  float64 // degrees of latitude per pixel, positive

	NoData    int  // sentinel code, meaningful only when HasNoData is set
	HasNoData bool // whether the source declared a sentinel
}

// Validate checks that the grid is non-empty, has positive resolution and lies
// within the latitude range of the globe.
func (g Grid) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return eris.Wrapf(ErrInvalidGeometry, "raster: grid dimensions %dx%d", g.Rows, g.Cols)
	}
	if !(g.ResX > 0) || !(g.ResY > 0) || math.IsInf(g.ResX, 0) || math.IsInf(g.ResY, 0) {
		return eris.Wrapf(ErrInvalidGeometry, "raster: resolution %gx%g", g.ResX, g.ResY)
	}
	const eps = 1e-9
	if g.North > 90+eps || g.South() < -90-eps {
		return eris.Wrapf(ErrInvalidGeometry, "raster: latitude extent [%g, %g]", g.South(), g.North)
	}
	return nil
}

// South returns the latitude of the bottom edge.
func (g Grid) South() float64 {
	return g.North - float64(g.Rows)*g.ResY
}

// East returns the longitude of the right edge.
func (g Grid) East() float64 {
	return g.West + float64(g.Cols)*g.ResX
}

// CenterLat returns the latitude of the centre of the given row.
func (g Grid) CenterLat(row int) float64 {
	return g.North - (float64(row)+0.5)*g.ResY
}

// CenterLon returns the longitude of the centre of the given column.
func (g Grid) CenterLon(col int) float64 {
	return g.West + (float64(col)+0.5)*g.ResX
}

// Contains reports whether (row, col) addresses a pixel of the grid.
func (g Grid) Contains(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// IsNoData reports whether code is the grid's sentinel value.
func (g Grid) IsNoData(code int) bool {
	return g.HasNoData && code == g.NoData
}

// Raster is read-only pixel access to a classified grid.
// At must only be called with coordinates for which Grid().Contains is true.
type Raster interface {
	Grid() Grid
	At(row, col int) int
}

// Paletted is implemented by rasters whose codes index a colour table.
type Paletted interface {
	Palette() color.Palette
}

// Sample is the set of pixel storage types a Band may hold.
type Sample interface {
	~uint8 | ~uint16 | ~int16 | ~int32
}

// Band is an in-memory raster backed by a row-major slice of samples.
type Band[T Sample] struct {
	grid    Grid
	pix     []T
	palette color.Palette
}

// NewBand wraps pix as a raster with the given grid. The slice is owned by the
// band afterwards and must not be modified.
func NewBand[T Sample](g Grid, pix []T) (*Band[T], error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(pix) != g.Rows*g.Cols {
		return nil, eris.Wrapf(ErrInvalidGeometry, "raster: %d samples for a %dx%d grid", len(pix), g.Rows, g.Cols)
	}
	return &Band[T]{grid: g, pix: pix}, nil
}

// WithPalette attaches a colour table to the band.
func (b *Band[T]) WithPalette(p color.Palette) *Band[T] {
	b.palette = p
	return b
}

// Grid returns the band's metadata.
func (b *Band[T]) Grid() Grid { return b.grid }

// At returns the code stored at (row, col).
func (b *Band[T]) At(row, col int) int {
	return int(b.pix[row*b.grid.Cols+col])
}

// Palette returns the attached colour table, or nil.
func (b *Band[T]) Palette() color.Palette { return b.palette }

// FromRows builds a band from a literal grid of codes, taking the dimensions
// from rows. It is intended for small synthetic rasters.
func FromRows(g Grid, rows [][]int) (*Band[int32], error) {
	g.Rows = len(rows)
	if g.Rows > 0 {
		g.Cols = len(rows[0])
	}
	pix := make([]int32, 0, g.Rows*g.Cols)
	for i, r := range rows {
		if len(r) != g.Cols {
			return nil, eris.Wrapf(ErrInvalidGeometry, "raster: row %d has %d columns, want %d", i, len(r), g.Cols)
		}
		for _, v := range r {
			pix = append(pix, int32(v))
		}
	}
	return NewBand(g, pix)
}
