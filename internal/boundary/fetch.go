package boundary

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sashkaw/spatial-aez/internal/fetcher"
)

// NaturalEarthURL is the 1:10m Admin 0 countries archive.
const NaturalEarthURL = "https://naciscdn.org/naturalearth/10m/cultural/ne_10m_admin_0_countries.zip"

// Fetch downloads the boundary archive at url and unpacks it next to
// shapefile, unless shapefile already exists. It reports whether a download
// happened.
func Fetch(ctx context.Context, f fetcher.Fetcher, url, shapefile string) (bool, error) {
	if _, err := os.Stat(shapefile); err == nil {
		return false, nil
	}

	dir := filepath.Dir(shapefile)
	archive := filepath.Join(dir, filepath.Base(dir)+".zip")
	zap.L().Info("boundary: downloading", zap.String("url", url), zap.String("dir", dir))

	if _, err := f.DownloadToFile(ctx, url, archive); err != nil {
		return false, eris.Wrap(err, "boundary: fetch")
	}
	defer os.Remove(archive) //nolint:errcheck

	if _, err := fetcher.ExtractZIP(archive, dir); err != nil {
		return false, eris.Wrap(err, "boundary: unpack")
	}
	if _, err := os.Stat(shapefile); err != nil {
		return false, eris.Errorf("boundary: archive did not contain %s", filepath.Base(shapefile))
	}
	return true, nil
}
