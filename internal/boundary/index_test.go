package boundary

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sashkaw/spatial-aez/internal/registry"
)

func vocab(t *testing.T, countries ...string) *registry.Vocabulary {
	t.Helper()
	v, err := registry.NewVocabulary(registry.VocabularyFile{Countries: countries})
	require.NoError(t, err)
	return v
}

func TestCountryAt_SharedEdgeTieBreak(t *testing.T) {
	v := vocab(t, "Alpha", "Beta")
	alpha := Rectangle("Alpha", 0, 0, 1, 1)
	beta := Rectangle("Beta", 1, 0, 2, 1)

	// Both insertion orders must agree.
	for _, layer := range []Polygons{{alpha, beta}, {beta, alpha}} {
		ix, err := NewIndex(layer, v)
		require.NoError(t, err)

		for run := 0; run < 5; run++ {
			z, ok := ix.CountryAt(1, 0.5)
			require.True(t, ok)
			assert.Equal(t, "Alpha", z.Name)
		}

		z, ok := ix.CountryAt(1.5, 0.5)
		require.True(t, ok)
		assert.Equal(t, "Beta", z.Name)
	}
}

func TestCountryAt_InteriorBeatsBoundary(t *testing.T) {
	v := vocab(t, "Alpha", "Zulu")
	// Zulu's interior contains Alpha's right edge.
	ix, err := NewIndex(Polygons{
		Rectangle("Alpha", 0, 0, 1, 1),
		Rectangle("Zulu", 0.5, 0, 2, 1),
	}, v)
	require.NoError(t, err)

	z, ok := ix.CountryAt(1, 0.5)
	require.True(t, ok)
	assert.Equal(t, "Zulu", z.Name)

	// Both interiors: smallest name.
	z, ok = ix.CountryAt(0.75, 0.5)
	require.True(t, ok)
	assert.Equal(t, "Alpha", z.Name)
}

func TestCountryAt_Outside(t *testing.T) {
	ix, err := NewIndex(Polygons{Rectangle("Alpha", 0, 0, 1, 1)}, vocab(t, "Alpha"))
	require.NoError(t, err)

	_, ok := ix.CountryAt(5, 5)
	assert.False(t, ok)
	_, ok = ix.CountryAt(1.5, 0.5)
	assert.False(t, ok)
}

func TestCountryAt_Hole(t *testing.T) {
	outer := geom.NewLinearRingFlat(geom.XY, []float64{0, 0, 0, 10, 10, 10, 10, 0, 0, 0})
	hole := geom.NewLinearRingFlat(geom.XY, []float64{4, 4, 6, 4, 6, 6, 4, 6, 4, 4})
	poly := geom.NewPolygon(geom.XY)
	require.NoError(t, poly.Push(outer))
	require.NoError(t, poly.Push(hole))
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(poly))

	ix, err := NewIndex(Polygons{{Name: "Donut", Geom: mp}}, vocab(t, "Donut"))
	require.NoError(t, err)

	_, ok := ix.CountryAt(5, 5)
	assert.False(t, ok, "inside the hole")

	z, ok := ix.CountryAt(2, 2)
	require.True(t, ok)
	assert.Equal(t, "Donut", z.Name)

	z, ok = ix.CountryAt(4, 5)
	require.True(t, ok, "on the hole's edge")
	assert.Equal(t, "Donut", z.Name)
}

func TestNewIndex_ResolvesNames(t *testing.T) {
	v, err := registry.NewVocabulary(registry.VocabularyFile{
		Countries: []string{"Alpha"},
		Aliases:   map[string]string{"Alpha Republic": "Alpha"},
		Rejected:  []string{"Nowhere"},
	})
	require.NoError(t, err)

	ix, err := NewIndex(Polygons{
		Rectangle("Alpha Republic", 0, 0, 1, 1),
		Rectangle("Ruritania", 1, 0, 2, 1),
		Rectangle("Nowhere", 2, 0, 3, 1),
		{Name: "Empty"},
	}, v)
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Len())

	z, ok := ix.CountryAt(0.5, 0.5)
	require.True(t, ok)
	assert.Equal(t, registry.Resolution{Name: "Alpha", Status: registry.Canonical}, z)

	z, ok = ix.CountryAt(1.5, 0.5)
	require.True(t, ok)
	assert.Equal(t, registry.Unmapped, z.Status)
	assert.Equal(t, "Ruritania", z.Name)

	z, ok = ix.CountryAt(2.5, 0.5)
	require.True(t, ok)
	assert.Equal(t, registry.Rejected, z.Status)

	zones := ix.Zones()
	require.Len(t, zones, 3)
	assert.Equal(t, "Alpha", zones[0].Name)
	assert.Equal(t, "Nowhere", zones[1].Name)
	assert.Equal(t, "Ruritania", zones[2].Name)
}

func TestNewIndex_PropagatesLayerError(t *testing.T) {
	_, err := NewIndex(failingLayer{}, vocab(t, "Alpha"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layer broke")
}

type failingLayer struct{}

func (failingLayer) ForEachPolygon(func(Polygon) error) error {
	return errors.New("layer broke")
}

func TestRectangle(t *testing.T) {
	p := Rectangle("R", -1, -2, 3, 4)
	b := p.Geom.Bounds()
	assert.Equal(t, []float64{-1, -2}, []float64{b.Min(0), b.Min(1)})
	assert.Equal(t, []float64{3, 4}, []float64{b.Max(0), b.Max(1)})
}
