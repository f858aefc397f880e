// Package area converts pixels of an equirectangular WGS84 grid to true surface
// area. Pixels shrink towards the poles; every model here depends on latitude
// only, so a whole row shares one pixel area.
package area

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sashkaw/spatial-aez/internal/raster"
)

// ErrInvalidGeometry is returned for rows outside the grid, non-positive
// resolution, or rows whose centre lies beyond a pole.
var ErrInvalidGeometry = raster.ErrInvalidGeometry

// WGS84 constants, kilometres.
const (
	SemiMajorKm       = 6378.137
	Eccentricity2     = 0.00669437999014
	MeanEarthRadiusKm = 6371.0088
)

// Model computes the area of one pixel in a given row, in square kilometres.
type Model interface {
	Name() string
	PixelArea(g raster.Grid, row int) (float64, error)
}

// Ellipsoid approximates pixel area on the WGS84 ellipsoid from the lengths of a
// degree of longitude and latitude at the row's centre latitude.
type Ellipsoid struct{}

// Name implements Model.
func (Ellipsoid) Name() string { return "ellipsoid" }

// PixelArea implements Model.
func (Ellipsoid) PixelArea(g raster.Grid, row int) (float64, error) {
	lat, err := centerLat(g, row)
	if err != nil {
		return 0, err
	}
	phi := lat * math.Pi / 180
	sin := math.Sin(phi)

	xlen := g.ResX * math.Cos(phi) * math.Pi * SemiMajorKm / (180 * math.Sqrt(1-Eccentricity2*sin*sin))
	ylen := g.ResY * (111.132954 - 0.559822*math.Cos(2*phi) + 0.001175*math.Cos(4*phi))
	return math.Abs(xlen * ylen), nil
}

// Sphere computes exact pixel area on a sphere of the given radius from the
// row's edge latitudes. A zero Radius means the mean Earth radius.
type Sphere struct {
	Radius float64
}

// Name implements Model.
func (Sphere) Name() string { return "sphere" }

// PixelArea implements Model.
func (s Sphere) PixelArea(g raster.Grid, row int) (float64, error) {
	if _, err := centerLat(g, row); err != nil {
		return 0, err
	}
	r := s.Radius
	if r <= 0 {
		r = MeanEarthRadiusKm
	}
	top := g.North - float64(row)*g.ResY
	bottom := top - g.ResY
	// Clamp edges that overshoot a pole by rounding.
	top, bottom = math.Min(top, 90), math.Max(bottom, -90)

	dLon := g.ResX * math.Pi / 180
	return r * r * dLon * (math.Sin(top*math.Pi/180) - math.Sin(bottom*math.Pi/180)), nil
}

// ParseModel returns the model registered under name.
func ParseModel(name string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ellipsoid", "wgs84":
		return Ellipsoid{}, nil
	case "sphere", "spherical":
		return Sphere{}, nil
	default:
		return nil, eris.Errorf("area: unknown model %q", name)
	}
}

// RowArea returns the area of a full row of pixels.
func RowArea(m Model, g raster.Grid, row int) (float64, error) {
	a, err := m.PixelArea(g, row)
	if err != nil {
		return 0, err
	}
	return a * float64(g.Cols), nil
}

// RowAreas returns the per-pixel area of every row of the grid.
func RowAreas(m Model, g raster.Grid) ([]float64, error) {
	if err := g.Validate(); err != nil {
		return nil, eris.Wrap(err, "area: row areas")
	}
	out := make([]float64, g.Rows)
	for row := range out {
		a, err := m.PixelArea(g, row)
		if err != nil {
			return nil, err
		}
		out[row] = a
	}
	return out, nil
}

// GridArea returns the total area covered by the grid.
func GridArea(m Model, g raster.Grid) (float64, error) {
	rows, err := RowAreas(m, g)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, a := range rows {
		total += a * float64(g.Cols)
	}
	return total, nil
}

func centerLat(g raster.Grid, row int) (float64, error) {
	if !(g.ResX > 0) || !(g.ResY > 0) {
		return 0, eris.Wrapf(ErrInvalidGeometry, "area: resolution %gx%g", g.ResX, g.ResY)
	}
	if row < 0 || row >= g.Rows {
		return 0, eris.Wrapf(ErrInvalidGeometry, "area: row %d outside [0, %d)", row, g.Rows)
	}
	lat := g.CenterLat(row)
	if lat > 90 || lat < -90 {
		return 0, eris.Wrapf(ErrInvalidGeometry, "area: row %d centre latitude %g", row, lat)
	}
	return lat, nil
}
