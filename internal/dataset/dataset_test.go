package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sashkaw/spatial-aez/internal/registry"
)

func TestCatalog_UniqueNamesAndOutputs(t *testing.T) {
	names := map[string]bool{}
	outputs := map[string]bool{}
	for _, d := range All() {
		assert.False(t, names[d.Name], "duplicate name %s", d.Name)
		assert.False(t, outputs[d.Output], "duplicate output %s", d.Output)
		names[d.Name] = true
		outputs[d.Output] = true

		assert.Contains(t, registry.SchemeNames, d.Scheme, d.Name)
		assert.Contains(t, Groups, d.Group, d.Name)
		assert.Equal(t, "km2", d.Unit.String())
	}
	assert.Len(t, names, 13)
}

func TestByName(t *testing.T) {
	d, err := ByName("slope")
	require.NoError(t, err)
	assert.Equal(t, "Slope-by-country.csv", d.Output)
	require.NotNil(t, d.NoData)
	assert.Equal(t, 255, *d.NoData)

	d, err = ByName("esa-lc-2015")
	require.NoError(t, err)
	assert.Equal(t, "Land-Cover-by-country.csv", d.Output)
	assert.True(t, d.Optional)

	d, err = ByName("esa-lc-2010")
	require.NoError(t, err)
	assert.Equal(t, "Land-Cover-by-country-2010.csv", d.Output)

	_, err = ByName("ndvi")
	assert.Error(t, err)
}

func TestByGroups(t *testing.T) {
	kg, err := ByGroups(GroupKoppen)
	require.NoError(t, err)
	require.Len(t, kg, 2)
	assert.Equal(t, "kg-present", kg[0].Name)
	assert.Equal(t, "kg-future", kg[1].Name)

	lc, err := ByGroups(GroupLandCover)
	require.NoError(t, err)
	assert.Len(t, lc, 9)
	assert.Equal(t, "fao-lc", lc[0].Name)

	all, err := ByGroups(Groups...)
	require.NoError(t, err)
	assert.Equal(t, All(), all)

	_, err = ByGroups("xx")
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	got, err := Select([]string{GroupWork}, []string{"kg-future", "workability"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "kg-future", got[0].Name)
	assert.Equal(t, "workability", got[1].Name)

	_, err = Select(nil, []string{"nope"})
	assert.Error(t, err)
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	assert.IsIncreasing(t, names)
}

func TestRasterPathAndAvailable(t *testing.T) {
	dir := t.TempDir()
	d, err := ByName("workability")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "FAO", "workability_FAO_sq7_10km.tif"), d.RasterPath(dir))
	assert.False(t, d.Available(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "FAO"), 0o755))
	require.NoError(t, os.WriteFile(d.RasterPath(dir), []byte("x"), 0o644))
	assert.True(t, d.Available(dir))

	d.Raster = "/abs/file.tif"
	assert.Equal(t, "/abs/file.tif", d.RasterPath(dir))
}
