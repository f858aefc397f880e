package area

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sashkaw/spatial-aez/internal/raster"
)

// global1deg is a 1° global grid: row 0 spans 90..89 N.
var global1deg = raster.Grid{Rows: 180, Cols: 360, West: -180, North: 90, ResX: 1, ResY: 1}

func models() []Model { return []Model{Ellipsoid{}, Sphere{}} }

func TestPixelArea_Symmetric(t *testing.T) {
	for _, m := range models() {
		t.Run(m.Name(), func(t *testing.T) {
			for row := 0; row < global1deg.Rows/2; row++ {
				north, err := m.PixelArea(global1deg, row)
				require.NoError(t, err)
				south, err := m.PixelArea(global1deg, global1deg.Rows-1-row)
				require.NoError(t, err)
				assert.InDelta(t, north, south, 1e-9*north, "row %d", row)
			}
		})
	}
}

func TestPixelArea_DecreasesTowardsPoles(t *testing.T) {
	for _, m := range models() {
		t.Run(m.Name(), func(t *testing.T) {
			prev := 0.0
			// Walk from the pole to the equator; area must strictly grow.
			for row := 0; row < global1deg.Rows/2; row++ {
				a, err := m.PixelArea(global1deg, row)
				require.NoError(t, err)
				assert.Greater(t, a, prev, "row %d", row)
				prev = a
			}
		})
	}
}

func TestPixelArea_LongitudeIndependent(t *testing.T) {
	shifted := global1deg
	shifted.West = 0
	for _, m := range models() {
		a, err := m.PixelArea(global1deg, 42)
		require.NoError(t, err)
		b, err := m.PixelArea(shifted, 42)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestPixelArea_EquatorKnownValue(t *testing.T) {
	g := raster.Grid{Rows: 2, Cols: 1, West: 0, North: 0.5, ResX: 1, ResY: 1}
	a, err := Ellipsoid{}.PixelArea(g, 0)
	require.NoError(t, err)
	// About 111.32 km by 110.57 km at the equator.
	assert.InDelta(t, 12309.08, a, 0.05)
}

func TestGridArea_MatchesEarthSurface(t *testing.T) {
	sphere, err := GridArea(Sphere{}, global1deg)
	require.NoError(t, err)
	want := 4 * math.Pi * MeanEarthRadiusKm * MeanEarthRadiusKm
	assert.InDelta(t, want, sphere, want*1e-9)

	ellipsoid, err := GridArea(Ellipsoid{}, global1deg)
	require.NoError(t, err)
	// WGS84 surface area is about 510.07 million km².
	assert.InDelta(t, 510.07e6, ellipsoid, 0.5e6)
}

func TestRowArea(t *testing.T) {
	px, err := Ellipsoid{}.PixelArea(global1deg, 10)
	require.NoError(t, err)
	row, err := RowArea(Ellipsoid{}, global1deg, 10)
	require.NoError(t, err)
	assert.InDelta(t, px*360, row, 1e-6)
}

func TestPixelArea_InvalidGeometry(t *testing.T) {
	tests := []struct {
		name string
		g    raster.Grid
		row  int
	}{
		{"row below grid", global1deg, 180},
		{"negative row", global1deg, -1},
		{"zero resolution", raster.Grid{Rows: 1, Cols: 1, North: 0, ResX: 0, ResY: 1}, 0},
		{"negative resolution", raster.Grid{Rows: 1, Cols: 1, North: 0, ResX: 1, ResY: -1}, 0},
		{"centre beyond pole", raster.Grid{Rows: 3, Cols: 1, North: 92, ResX: 1, ResY: 1}, 0},
	}
	for _, tt := range tests {
		for _, m := range models() {
			t.Run(tt.name+"/"+m.Name(), func(t *testing.T) {
				_, err := m.PixelArea(tt.g, tt.row)
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidGeometry))
			})
		}
	}
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("")
	require.NoError(t, err)
	assert.Equal(t, "ellipsoid", m.Name())

	m, err = ParseModel("Sphere")
	require.NoError(t, err)
	assert.Equal(t, "sphere", m.Name())

	_, err = ParseModel("mercator")
	assert.Error(t, err)
}

func TestUnit(t *testing.T) {
	u, err := ParseUnit("")
	require.NoError(t, err)
	assert.Equal(t, SquareKilometres, u)

	u, err = ParseUnit("HA")
	require.NoError(t, err)
	assert.InDelta(t, 250.0, u.FromKm2(2.5), 1e-12)

	u, err = ParseUnit("m2")
	require.NoError(t, err)
	assert.InDelta(t, 2.5e6, u.FromKm2(2.5), 1e-6)

	_, err = ParseUnit("acre")
	assert.Error(t, err)
}
