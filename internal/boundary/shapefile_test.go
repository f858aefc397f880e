package boundary

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shpFeature struct {
	name, code string
	parts      [][]shp.Point
}

func writeShapefile(t *testing.T, features []shpFeature) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "countries.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("ADMIN", 40),
		shp.StringField("SOV_A3", 3),
	}))
	for _, f := range features {
		poly := shp.Polygon(*shp.NewPolyLine(f.parts))
		n := int(w.Write(&poly))
		require.NoError(t, w.WriteAttribute(n, 0, f.name))
		require.NoError(t, w.WriteAttribute(n, 1, f.code))
	}
	w.Close()
	return path
}

// Outer rings clockwise, holes counter-clockwise, as shapefiles require.
var (
	squareCW = []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	holeCCW  = []shp.Point{{X: 4, Y: 4}, {X: 6, Y: 4}, {X: 6, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 4}}
	islandCW = []shp.Point{{X: 20, Y: 0}, {X: 20, Y: 2}, {X: 22, Y: 2}, {X: 22, Y: 0}, {X: 20, Y: 0}}
)

func TestShapefile_ForEachPolygon(t *testing.T) {
	path := writeShapefile(t, []shpFeature{
		{name: "Alpha", code: "ALP", parts: [][]shp.Point{squareCW, holeCCW, islandCW}},
		{name: "Ruritania", code: "RUR", parts: [][]shp.Point{islandCW}},
	})

	layer, err := OpenShapefile(path, NaturalEarthFields)
	require.NoError(t, err)
	assert.Equal(t, path, layer.Path())

	var got []Polygon
	require.NoError(t, layer.ForEachPolygon(func(p Polygon) error {
		got = append(got, p)
		return nil
	}))
	require.Len(t, got, 2)

	alpha := got[0]
	assert.Equal(t, "Alpha", alpha.Name)
	assert.Equal(t, "ALP", alpha.Code)
	assert.Equal(t, 0, alpha.Index)
	require.Equal(t, 2, alpha.Geom.NumPolygons(), "main polygon and island")
	assert.Equal(t, 2, alpha.Geom.Polygon(0).NumLinearRings(), "hole attached to the outer ring")
	assert.Equal(t, 1, alpha.Geom.Polygon(1).NumLinearRings())

	assert.Equal(t, "Ruritania", got[1].Name)
	assert.Equal(t, 1, got[1].Index)
}

func TestShapefile_IndexRespectsHoles(t *testing.T) {
	path := writeShapefile(t, []shpFeature{
		{name: "Alpha", code: "ALP", parts: [][]shp.Point{squareCW, holeCCW}},
	})
	layer, err := OpenShapefile(path, NaturalEarthFields)
	require.NoError(t, err)

	ix, err := NewIndex(layer, vocab(t, "Alpha"))
	require.NoError(t, err)

	_, ok := ix.CountryAt(5, 5)
	assert.False(t, ok)
	z, ok := ix.CountryAt(1, 1)
	require.True(t, ok)
	assert.Equal(t, "Alpha", z.Name)
}

func TestShapefile_NestedLakeIslandPond(t *testing.T) {
	lakeCCW := []shp.Point{{X: 2, Y: 2}, {X: 8, Y: 2}, {X: 8, Y: 8}, {X: 2, Y: 8}, {X: 2, Y: 2}}
	lakeIslandCW := []shp.Point{{X: 3, Y: 3}, {X: 3, Y: 7}, {X: 7, Y: 7}, {X: 7, Y: 3}, {X: 3, Y: 3}}
	path := writeShapefile(t, []shpFeature{
		{name: "Alpha", code: "ALP", parts: [][]shp.Point{squareCW, lakeCCW, lakeIslandCW, holeCCW}},
	})
	layer, err := OpenShapefile(path, NaturalEarthFields)
	require.NoError(t, err)

	var got []Polygon
	require.NoError(t, layer.ForEachPolygon(func(p Polygon) error {
		got = append(got, p)
		return nil
	}))
	require.Len(t, got, 1)
	require.Equal(t, 2, got[0].Geom.NumPolygons())
	assert.Equal(t, 2, got[0].Geom.Polygon(0).NumLinearRings(), "mainland keeps only the lake")
	assert.Equal(t, 2, got[0].Geom.Polygon(1).NumLinearRings(), "island keeps the pond")

	ix, err := NewIndex(layer, vocab(t, "Alpha"))
	require.NoError(t, err)

	for _, tc := range []struct {
		name     string
		lon, lat float64
		assigned bool
	}{
		{"mainland", 1, 1, true},
		{"lake", 2.5, 5, false},
		{"island", 3.5, 5, true},
		{"pond", 5, 5, false},
	} {
		_, ok := ix.CountryAt(tc.lon, tc.lat)
		assert.Equal(t, tc.assigned, ok, tc.name)
	}
}

func TestOpenShapefile_Errors(t *testing.T) {
	_, err := OpenShapefile(filepath.Join(t.TempDir(), "missing.shp"), NaturalEarthFields)
	assert.Error(t, err)

	path := writeShapefile(t, []shpFeature{{name: "A", code: "AAA", parts: [][]shp.Point{squareCW}}})
	_, err = OpenShapefile(path, Fields{Name: "NAME_EN"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NAME_EN")
}

func TestSignedArea(t *testing.T) {
	flat := func(pts []shp.Point) []float64 {
		out := make([]float64, 0, 2*len(pts))
		for _, p := range pts {
			out = append(out, p.X, p.Y)
		}
		return out
	}
	assert.InDelta(t, -100.0, signedArea(flat(squareCW)), 1e-12)
	assert.InDelta(t, 4.0, signedArea(flat(holeCCW)), 1e-12)
}

func TestPolygonToMultiPolygon_Degenerate(t *testing.T) {
	assert.Nil(t, polygonToMultiPolygon(nil))

	line := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}}))
	assert.Nil(t, polygonToMultiPolygon(&line))
}
