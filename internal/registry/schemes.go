package registry

import (
	"image/color"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sashkaw/spatial-aez/internal/raster"
)

// Built-in scheme names.
const (
	SchemeKoppenGeiger = "koppen-geiger"
	SchemeESALCCS      = "esa-lccs"
	SchemeFAOLandCover = "fao-lc"
	SchemeGAEZSlope    = "gaez-slope"
	SchemeWorkability  = "workability"
)

// SchemeNames lists the built-in schemes.
var SchemeNames = []string{
	SchemeKoppenGeiger,
	SchemeESALCCS,
	SchemeFAOLandCover,
	SchemeGAEZSlope,
	SchemeWorkability,
}

type rgb struct{ r, g, b uint8 }

var (
	white = rgb{255, 255, 255}
	black = rgb{0, 0, 0}
)

// koppenLegend is the Beck et al. (2018) legend in class-code order (1..30).
var koppenLegend = []struct {
	class string
	color rgb
}{
	{"Af", rgb{0, 0, 255}}, {"Am", rgb{0, 120, 255}}, {"Aw", rgb{70, 170, 250}},
	{"BWh", rgb{255, 0, 0}}, {"BWk", rgb{255, 150, 150}}, {"BSh", rgb{245, 165, 0}},
	{"BSk", rgb{255, 220, 100}},
	{"Csa", rgb{255, 255, 0}}, {"Csb", rgb{200, 200, 0}}, {"Csc", rgb{150, 150, 0}},
	{"Cwa", rgb{150, 255, 150}}, {"Cwb", rgb{100, 200, 100}}, {"Cwc", rgb{50, 150, 50}},
	{"Cfa", rgb{200, 255, 80}}, {"Cfb", rgb{100, 255, 80}}, {"Cfc", rgb{50, 200, 0}},
	{"Dsa", rgb{255, 0, 255}}, {"Dsb", rgb{200, 0, 200}}, {"Dsc", rgb{150, 50, 150}},
	{"Dsd", rgb{150, 100, 150}}, {"Dwa", rgb{170, 175, 255}}, {"Dwb", rgb{90, 120, 220}},
	{"Dwc", rgb{75, 80, 180}}, {"Dwd", rgb{50, 0, 135}}, {"Dfa", rgb{0, 255, 255}},
	{"Dfb", rgb{55, 200, 255}}, {"Dfc", rgb{0, 125, 125}}, {"Dfd", rgb{0, 70, 95}},
	{"ET", rgb{178, 178, 178}}, {"EF", rgb{102, 102, 102}},
}

func koppenColumns() []string {
	cols := make([]string, len(koppenLegend))
	for i, e := range koppenLegend {
		cols[i] = e.class
	}
	return cols
}

// KoppenGeiger maps the class codes 1..30 of the Beck legend; 0 is ocean.
func KoppenGeiger() (*Scheme, error) {
	codes := make(map[int]string, len(koppenLegend))
	for i, e := range koppenLegend {
		codes[i+1] = e.class
	}
	return NewScheme(SchemeKoppenGeiger, koppenColumns(), codes, 0)
}

// KoppenGeigerPalette maps palette indices to classes through their colour.
// White and black entries are blank. Entries whose colour is not in the legend
// stay unmapped, so pixels using them fail as unknown categories.
func KoppenGeigerPalette(pal color.Palette) (*Scheme, error) {
	byColor := make(map[rgb]string, len(koppenLegend))
	for _, e := range koppenLegend {
		byColor[e.color] = e.class
	}

	codes := make(map[int]string, len(pal))
	var blank []int
	for i, c := range pal {
		r, g, b, _ := c.RGBA()
		key := rgb{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
		if key == white || key == black {
			blank = append(blank, i)
			continue
		}
		if class, ok := byColor[key]; ok {
			codes[i] = class
		}
	}
	return NewScheme(SchemeKoppenGeiger, koppenColumns(), codes, blank...)
}

// esaClasses are the LCCS classes of the ESA CCI land cover maps. Pixel values
// equal the class number.
var esaClasses = []int{
	10, 11, 12, 20, 30, 40, 50, 60, 61, 62, 70, 71, 72, 80, 81, 82, 90, 100, 110,
	120, 121, 122, 130, 140, 150, 151, 152, 153, 160, 170, 180, 190, 200, 201, 202,
	210, 220,
}

// ESALCCS is the ESA CCI land cover scheme; 0 is no data.
func ESALCCS() (*Scheme, error) {
	cols := make([]string, len(esaClasses))
	codes := make(map[int]string, len(esaClasses))
	for i, c := range esaClasses {
		cols[i] = strconv.Itoa(c)
		codes[c] = cols[i]
	}
	return NewScheme(SchemeESALCCS, cols, codes, 0)
}

var faoLandCovers = []string{
	"Artificial Surfaces",
	"Cropland",
	"Grassland",
	"Tree Covered Areas",
	"Shrubs Covered Areas",
	"Herbaceous vegetation, aquatic or regularly flooded",
	"Mangroves",
	"Sparse vegetation",
	"Baresoil",
	"Snow and glaciers",
	"Waterbodies",
}

// FAOLandCover is the FAO GLC-SHARE dominant land cover scheme (codes 1..11);
// 0 and 255 are blank.
func FAOLandCover() (*Scheme, error) {
	codes := make(map[int]string, len(faoLandCovers))
	for i, c := range faoLandCovers {
		codes[i+1] = c
	}
	return NewScheme(SchemeFAOLandCover, faoLandCovers, codes, 0, 255)
}

var gaezSlopes = []string{"0-0.5%", "0.5-2%", "2-5%", "5-8%", "8-16%", "16-30%", "30-45%", ">45%"}

// GAEZSlope is the GAEZ 3.0 slope classification (codes 0..7); 255 is blank.
func GAEZSlope() (*Scheme, error) {
	codes := make(map[int]string, len(gaezSlopes))
	for i, c := range gaezSlopes {
		codes[i] = c
	}
	return NewScheme(SchemeGAEZSlope, gaezSlopes, codes, 255)
}

// Workability is the FAO soil workability classification (1..7); 0 is blank.
func Workability() (*Scheme, error) {
	cols := make([]string, 7)
	codes := make(map[int]string, 7)
	for i := range cols {
		cols[i] = strconv.Itoa(i + 1)
		codes[i+1] = cols[i]
	}
	return NewScheme(SchemeWorkability, cols, codes, 0)
}

// BuildScheme returns the named built-in scheme for r. The Köppen-Geiger scheme
// is palette driven when r carries a colour table.
func BuildScheme(name string, r raster.Raster) (*Scheme, error) {
	switch name {
	case SchemeKoppenGeiger:
		if p, ok := r.(raster.Paletted); ok && len(p.Palette()) > 0 {
			return KoppenGeigerPalette(p.Palette())
		}
		return KoppenGeiger()
	case SchemeESALCCS:
		return ESALCCS()
	case SchemeFAOLandCover:
		return FAOLandCover()
	case SchemeGAEZSlope:
		return GAEZSlope()
	case SchemeWorkability:
		return Workability()
	default:
		return nil, eris.Errorf("registry: unknown scheme %q", name)
	}
}
