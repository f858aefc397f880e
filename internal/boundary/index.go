package boundary

import (
	"fmt"
	"sort"

	ctgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"github.com/sashkaw/spatial-aez/internal/registry"
)

// searchPad widens point queries so that polygons whose bounding box merely
// touches the point are still returned as candidates.
const searchPad = 1e-9

// Resolver maps raw boundary names to zones.
type Resolver interface {
	CountryOf(raw string) registry.Resolution
}

// feature is an indexed polygon. The embedded Polygonal is its bounding box,
// which is all the R-tree needs.
type feature struct {
	ctgeom.Polygonal
	zone registry.Resolution
	geom *geom.MultiPolygon
}

// Index answers point-to-zone queries over a boundary layer. It is immutable
// after construction and safe for concurrent use.
type Index struct {
	tree     *rtree.Rtree
	features int
	zones    []registry.Resolution
}

// NewIndex reads every polygon from layer, resolves its name and inserts its
// bounding box into an R-tree.
func NewIndex(layer Layer, resolver Resolver) (*Index, error) {
	log := zap.L().With(zap.String("component", "boundary"))

	ix := &Index{tree: rtree.NewTree(25, 50)}
	seen := make(map[registry.Resolution]bool)

	err := layer.ForEachPolygon(func(p Polygon) error {
		if p.Geom == nil || p.Geom.NumPolygons() == 0 {
			return nil
		}
		b := p.Geom.Bounds()
		res := resolver.CountryOf(p.Name)
		res.Raw = ""

		log.Debug("boundary: indexing feature",
			zap.String("name", p.Name),
			zap.String("zone", res.Name),
			zap.Stringer("status", res.Status),
			zap.String("feature", featureLabel(p)),
		)

		ix.tree.Insert(&feature{
			Polygonal: &ctgeom.Bounds{
				Min: ctgeom.Point{X: b.Min(0), Y: b.Min(1)},
				Max: ctgeom.Point{X: b.Max(0), Y: b.Max(1)},
			},
			zone: res,
			geom: p.Geom,
		})
		ix.features++
		if !seen[res] {
			seen[res] = true
			ix.zones = append(ix.zones, res)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "boundary: build index")
	}

	sort.Slice(ix.zones, func(i, j int) bool { return zoneLess(ix.zones[i], ix.zones[j]) })

	log.Info("boundary: index built",
		zap.Int("features", ix.features),
		zap.Int("zones", len(ix.zones)),
	)
	return ix, nil
}

// Len returns the number of indexed features.
func (ix *Index) Len() int { return ix.features }

// Zones returns the distinct zones of the indexed features, sorted by name.
func (ix *Index) Zones() []registry.Resolution {
	return append([]registry.Resolution(nil), ix.zones...)
}

// CountryAt returns the zone containing the point (lon, lat). A point inside
// several polygons goes to the smallest zone name; a point only on polygon
// edges goes to the smallest zone name among those edges. ok is false when no
// polygon covers the point.
func (ix *Index) CountryAt(lon, lat float64) (zone registry.Resolution, ok bool) {
	hits := ix.tree.SearchIntersect(&ctgeom.Bounds{
		Min: ctgeom.Point{X: lon - searchPad, Y: lat - searchPad},
		Max: ctgeom.Point{X: lon + searchPad, Y: lat + searchPad},
	})

	var (
		interior, edge       registry.Resolution
		hasInterior, hasEdge bool
	)
	pt := geom.Coord{lon, lat}
	for _, h := range hits {
		f := h.(*feature)
		switch locate(f.geom, pt) {
		case location.Interior:
			if !hasInterior || zoneLess(f.zone, interior) {
				interior, hasInterior = f.zone, true
			}
		case location.Boundary:
			if !hasEdge || zoneLess(f.zone, edge) {
				edge, hasEdge = f.zone, true
			}
		}
	}

	switch {
	case hasInterior:
		return interior, true
	case hasEdge:
		return edge, true
	default:
		return registry.Resolution{}, false
	}
}

// locate classifies pt against a multipolygon, honouring holes.
func locate(mp *geom.MultiPolygon, pt geom.Coord) location.Type {
	result := location.Exterior
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		switch locatePolygon(poly, pt) {
		case location.Interior:
			return location.Interior
		case location.Boundary:
			result = location.Boundary
		}
	}
	return result
}

func locatePolygon(poly *geom.Polygon, pt geom.Coord) location.Type {
	if poly.NumLinearRings() == 0 {
		return location.Exterior
	}
	outer := xy.LocatePointInRing(geom.XY, pt, poly.LinearRing(0).FlatCoords())
	if outer != location.Interior {
		return outer
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		switch xy.LocatePointInRing(geom.XY, pt, poly.LinearRing(i).FlatCoords()) {
		case location.Interior:
			return location.Exterior
		case location.Boundary:
			return location.Boundary
		}
	}
	return location.Interior
}

// zoneLess orders zones by name, then by status, so that ties never depend on
// insertion order.
func zoneLess(a, b registry.Resolution) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Status < b.Status
}

func featureLabel(p Polygon) string {
	return fmt.Sprintf("#%s_%d", p.Code, p.Index)
}
