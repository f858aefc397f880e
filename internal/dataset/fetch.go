package dataset

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sashkaw/spatial-aez/internal/fetcher"
)

// ErrNoSource is returned by Fetch for datasets that must be placed by hand.
var ErrNoSource = errors.New("no download source")

// Fetch downloads d's raster into dataDir unless it is already there. It
// reports whether a download happened. Archives are kept next to the raster
// so datasets sharing one are only downloaded once.
func Fetch(ctx context.Context, f fetcher.Fetcher, d Dataset, dataDir string) (bool, error) {
	if d.Available(dataDir) {
		return false, nil
	}
	if d.Source.URL == "" {
		return false, eris.Wrapf(ErrNoSource, "dataset: %s", d.Name)
	}

	log := zap.L().With(zap.String("component", "fetch"), zap.String("dataset", d.Name))
	dest := d.RasterPath(dataDir)

	if d.Source.Member == "" {
		log.Info("dataset: downloading raster", zap.String("url", d.Source.URL))
		if _, err := f.DownloadToFile(ctx, d.Source.URL, dest); err != nil {
			return false, eris.Wrapf(err, "dataset: fetch %s", d.Name)
		}
		return true, nil
	}

	archive := filepath.Join(filepath.Dir(dest), archiveName(d.Source.URL))
	if _, err := os.Stat(archive); err != nil {
		log.Info("dataset: downloading archive", zap.String("url", d.Source.URL))
		if _, err := f.DownloadToFile(ctx, d.Source.URL, archive); err != nil {
			return false, eris.Wrapf(err, "dataset: fetch %s", d.Name)
		}
	}
	if err := fetcher.ExtractZIPMember(archive, d.Source.Member, dest); err != nil {
		return false, eris.Wrapf(err, "dataset: unpack %s", d.Name)
	}
	return true, nil
}

// archiveName derives a local file name for an archive URL.
func archiveName(rawURL string) string {
	name := "download"
	if u, err := url.Parse(rawURL); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		name = path.Base(u.Path)
	}
	if path.Ext(name) != ".zip" {
		name += ".zip"
	}
	return name
}
