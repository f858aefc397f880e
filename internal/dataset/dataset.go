// Package dataset holds the catalog of built-in raster extractions.
package dataset

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sashkaw/spatial-aez/internal/area"
	"github.com/sashkaw/spatial-aez/internal/registry"
)

// Group names select related datasets from the command line.
const (
	GroupKoppen    = "kg"
	GroupLandCover = "lc"
	GroupSlope     = "sl"
	GroupWork      = "wk"
)

// Groups lists the group names in catalog order.
var Groups = []string{GroupKoppen, GroupLandCover, GroupSlope, GroupWork}

// Dataset describes one raster and how its table is produced.
type Dataset struct {
	Name     string
	Group    string
	Raster   string // relative to the data directory
	Scheme   string
	Output   string // output file name, extension replaced per format
	Unit     area.Unit
	NoData   *int
	Optional bool // skip without error when the raster is missing
	Source   Source
}

// Source locates a dataset's raster online.
type Source struct {
	URL    string
	Member string // file inside a ZIP archive; empty when URL is the raster itself
}

// RasterPath resolves the raster file under dataDir.
func (d Dataset) RasterPath(dataDir string) string {
	if filepath.IsAbs(d.Raster) {
		return d.Raster
	}
	return filepath.Join(dataDir, d.Raster)
}

// Available reports whether the raster exists under dataDir.
func (d Dataset) Available(dataDir string) bool {
	fi, err := os.Stat(d.RasterPath(dataDir))
	return err == nil && !fi.IsDir()
}

func intPtr(v int) *int { return &v }

// ESA CCI years shipped alongside the 2015 map.
const (
	esaFirstYear = 2008
	esaLastYear  = 2015
)

const (
	koppenArchiveURL = "https://figshare.com/ndownloader/files/12407516"
	esaFTPRoot       = "ftp://geo10.elie.ucl.ac.be/v207/"
)

var catalog = buildCatalog()

func buildCatalog() []Dataset {
	ds := []Dataset{
		{
			Name:   "kg-present",
			Group:  GroupKoppen,
			Raster: "Beck_KG_V1/Beck_KG_V1_present_0p0083.tif",
			Scheme: registry.SchemeKoppenGeiger,
			Output: "Köppen-Geiger-present-by-country.csv",
			Source: Source{URL: koppenArchiveURL, Member: "Beck_KG_V1_present_0p0083.tif"},
		},
		{
			Name:   "kg-future",
			Group:  GroupKoppen,
			Raster: "Beck_KG_V1/Beck_KG_V1_future_0p0083.tif",
			Scheme: registry.SchemeKoppenGeiger,
			Output: "Köppen-Geiger-future-by-country.csv",
			Source: Source{URL: koppenArchiveURL, Member: "Beck_KG_V1_future_0p0083.tif"},
		},
		{
			Name:   "fao-lc",
			Group:  GroupLandCover,
			Raster: "FAO/glc_shv10_dominant_landcover.tif",
			Scheme: registry.SchemeFAOLandCover,
			Output: "FAO-Land-Cover-by-country.csv",
		},
	}
	for y := esaLastYear; y >= esaFirstYear; y-- {
		out := "Land-Cover-by-country-" + strconv.Itoa(y) + ".csv"
		if y == esaLastYear {
			out = "Land-Cover-by-country.csv"
		}
		file := "ESACCI-LC-L4-LCCS-Map-300m-P1Y-" + strconv.Itoa(y) + "-v2.0.7.tif"
		ds = append(ds, Dataset{
			Name:     "esa-lc-" + strconv.Itoa(y),
			Group:    GroupLandCover,
			Raster:   "ucl_elie/" + file,
			Scheme:   registry.SchemeESALCCS,
			Output:   out,
			Optional: true,
			Source:   Source{URL: esaFTPRoot + file},
		})
	}
	ds = append(ds,
		Dataset{
			Name:   "slope",
			Group:  GroupSlope,
			Raster: "geomorpho90m/classified_slope_merit_dem_250m_s0..0cm_2018_v1.0.tif",
			Scheme: registry.SchemeGAEZSlope,
			Output: "Slope-by-country.csv",
			NoData: intPtr(255),
		},
		Dataset{
			Name:   "workability",
			Group:  GroupWork,
			Raster: "FAO/workability_FAO_sq7_10km.tif",
			Scheme: registry.SchemeWorkability,
			Output: "Workability-by-country.csv",
		},
	)
	for i := range ds {
		ds[i].Unit = area.SquareKilometres
	}
	return ds
}

// All returns a copy of the catalog in its canonical order.
func All() []Dataset {
	return append([]Dataset(nil), catalog...)
}

// Names returns every dataset name, sorted.
func Names() []string {
	out := make([]string, len(catalog))
	for i, d := range catalog {
		out[i] = d.Name
	}
	sort.Strings(out)
	return out
}

// ByName looks up one dataset.
func ByName(name string) (Dataset, error) {
	for _, d := range catalog {
		if d.Name == name {
			return d, nil
		}
	}
	return Dataset{}, eris.Errorf("dataset: unknown dataset %q", name)
}

// ByGroups returns the datasets in the given groups, in catalog order.
func ByGroups(groups ...string) ([]Dataset, error) {
	want := make(map[string]bool, len(groups))
	for _, g := range groups {
		if !slices.Contains(Groups, g) {
			return nil, eris.Errorf("dataset: unknown group %q", g)
		}
		want[g] = true
	}
	var out []Dataset
	for _, d := range catalog {
		if want[d.Group] {
			out = append(out, d)
		}
	}
	return out, nil
}

// Select combines group and name selections, keeping catalog order and
// dropping duplicates.
func Select(groups, names []string) ([]Dataset, error) {
	picked := make(map[string]bool)
	byGroup, err := ByGroups(groups...)
	if err != nil {
		return nil, err
	}
	for _, d := range byGroup {
		picked[d.Name] = true
	}
	for _, n := range names {
		if _, err := ByName(n); err != nil {
			return nil, err
		}
		picked[n] = true
	}

	var out []Dataset
	for _, d := range catalog {
		if picked[d.Name] {
			out = append(out, d)
		}
	}
	return out, nil
}
