// Package boundary reads administrative boundary polygons and indexes them for
// point-to-country lookups.
package boundary

import (
	"github.com/twpayne/go-geom"
)

// Polygon is one boundary feature: its raw attributes and its geometry in
// longitude/latitude degrees.
type Polygon struct {
	Name  string // raw name attribute (e.g. Natural Earth ADMIN)
	Code  string // raw code attribute (e.g. SOV_A3)
	Index int    // feature position in the source
	Geom  *geom.MultiPolygon
}

// Layer is a read-only collection of boundary polygons.
type Layer interface {
	ForEachPolygon(fn func(Polygon) error) error
}

// Polygons is an in-memory Layer.
type Polygons []Polygon

// ForEachPolygon implements Layer.
func (ps Polygons) ForEachPolygon(fn func(Polygon) error) error {
	for _, p := range ps {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// Rectangle returns an axis-aligned rectangular polygon.
func Rectangle(name string, west, south, east, north float64) Polygon {
	ring := geom.NewLinearRingFlat(geom.XY, []float64{
		west, south,
		west, north,
		east, north,
		east, south,
		west, south,
	})
	poly := geom.NewPolygon(geom.XY)
	_ = poly.Push(ring)
	mp := geom.NewMultiPolygon(geom.XY)
	_ = mp.Push(poly)
	return Polygon{Name: name, Geom: mp}
}
