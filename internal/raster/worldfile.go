package raster

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// worldFileExts lists sidecar extensions tried, in order, for a raster path.
var worldFileExts = []string{".tfw", ".tifw", ".wld"}

// findWorldFile returns the sidecar world file for path, or "" when none exists.
func findWorldFile(path string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range worldFileExts {
		for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// ReadWorldFile parses a six-line ESRI world file into the origin and
// resolution of a grid with the given dimensions. Rotated grids are rejected.
func ReadWorldFile(path string, rows, cols int) (Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return Grid{}, eris.Wrapf(err, "raster: open world file %s", path)
	}
	defer func() { _ = f.Close() }()

	var vals []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return Grid{}, eris.Wrapf(err, "raster: parse world file %s line %d", path, len(vals)+1)
		}
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return Grid{}, eris.Wrapf(err, "raster: read world file %s", path)
	}
	if len(vals) != 6 {
		return Grid{}, eris.Errorf("raster: world file %s has %d values, want 6", path, len(vals))
	}

	// A, D, B, E, C, F: C/F locate the centre of the upper-left pixel.
	a, d, b, e, c, fy := vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]
	if d != 0 || b != 0 {
		return Grid{}, eris.Wrapf(ErrInvalidGeometry, "raster: world file %s describes a rotated grid", path)
	}

	return Grid{
		Rows:  rows,
		Cols:  cols,
		West:  c - a/2,
		North: fy - e/2,
		ResX:  a,
		ResY:  -e,
	}, nil
}
