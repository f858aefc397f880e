package boundary

import (
	"math"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// Fields names the shapefile attributes holding a feature's name and code.
type Fields struct {
	Name string
	Code string
}

// NaturalEarthFields are the attributes of the Natural Earth admin-0 layer.
var NaturalEarthFields = Fields{Name: "ADMIN", Code: "SOV_A3"}

// Shapefile is a Layer backed by an ESRI shapefile of polygons. The file is
// re-read on every iteration.
type Shapefile struct {
	path   string
	fields Fields
}

// OpenShapefile checks that path is a readable polygon shapefile carrying the
// configured attributes.
func OpenShapefile(path string, fields Fields) (*Shapefile, error) {
	if fields.Name == "" {
		fields.Name = NaturalEarthFields.Name
	}
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "boundary: stat shapefile %s", path)
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	if reader.GeometryType != shp.POLYGON {
		return nil, eris.Errorf("boundary: %s holds shape type %d, want polygons", path, reader.GeometryType)
	}
	idx := fieldIndex(reader.Fields())
	if _, ok := idx[strings.ToLower(fields.Name)]; !ok {
		return nil, eris.Errorf("boundary: %s has no %s attribute", path, fields.Name)
	}

	return &Shapefile{path: path, fields: fields}, nil
}

// Path returns the shapefile location.
func (s *Shapefile) Path() string { return s.path }

// ForEachPolygon implements Layer. Records without usable geometry are skipped.
func (s *Shapefile) ForEachPolygon(fn func(Polygon) error) error {
	reader, err := shp.Open(s.path)
	if err != nil {
		return eris.Wrapf(err, "boundary: open shapefile %s", s.path)
	}
	defer func() { _ = reader.Close() }()

	idx := fieldIndex(reader.Fields())
	nameIdx, ok := idx[strings.ToLower(s.fields.Name)]
	if !ok {
		return eris.Errorf("boundary: %s has no %s attribute", s.path, s.fields.Name)
	}
	codeIdx, hasCode := idx[strings.ToLower(s.fields.Code)]

	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()

		poly, isPoly := shape.(*shp.Polygon)
		if !isPoly {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		p := Polygon{
			Name:  attribute(reader, nameIdx),
			Index: n,
			Geom:  mp,
		}
		if hasCode {
			p.Code = attribute(reader, codeIdx)
		}
		if err := fn(p); err != nil {
			return err
		}
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("path", s.path),
			zap.Int("skipped", skipped),
		)
	}
	return nil
}

func fieldIndex(fields []shp.Field) map[string]int {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		idx[strings.ToLower(name)] = i
	}
	return idx
}

func attribute(r *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(r.Attribute(idx), "\x00"))
}

// polygonToMultiPolygon converts a shapefile polygon record to a MultiPolygon.
// Shapefile outer rings run clockwise and holes counter-clockwise; each hole is
// attached to the smallest outer ring that contains its first vertex, so
// islands inside lakes keep their own holes. A hole with no enclosing ring is
// kept as an outer ring.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var outers, holes [][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			zap.L().Debug("boundary: skipping degenerate ring", zap.Int32("part", i))
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if signedArea(flat) > 0 {
			holes = append(holes, flat)
		} else {
			outers = append(outers, flat)
		}
	}

	polys := make([]*geom.Polygon, len(outers))
	for k, o := range outers {
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, o)); err != nil {
			continue
		}
		polys[k] = poly
	}

	for _, h := range holes {
		first := geom.Coord{h[0], h[1]}
		best, bestArea := -1, math.Inf(1)
		for k, o := range outers {
			if polys[k] == nil || !xy.IsPointInRing(geom.XY, first, o) {
				continue
			}
			if a := math.Abs(signedArea(o)); a < bestArea {
				best, bestArea = k, a
			}
		}
		attached := best >= 0 && polys[best].Push(geom.NewLinearRingFlat(geom.XY, h)) == nil
		if !attached {
			poly := geom.NewPolygon(geom.XY)
			if err := poly.Push(geom.NewLinearRingFlat(geom.XY, h)); err == nil {
				polys = append(polys, poly)
			}
		}
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i, poly := range polys {
		if poly == nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea returns the shoelace area of a closed ring; positive means
// counter-clockwise.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}
