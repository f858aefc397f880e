package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sashkaw/spatial-aez/internal/boundary"
	"github.com/sashkaw/spatial-aez/internal/dataset"
	"github.com/sashkaw/spatial-aez/internal/fetcher"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download source rasters and the country boundaries",
	Long: "Downloads every selected raster that has a known source and is not already under the data directory, " +
		"then the Natural Earth boundaries. With no selection every downloadable dataset is fetched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		names, _ := cmd.Flags().GetStringSlice("datasets")
		groups := selectedGroups(cmd)
		datasets := dataset.All()
		if !all && (len(groups) > 0 || len(names) > 0) {
			var err error
			if datasets, err = dataset.Select(groups, names); err != nil {
				return err
			}
		}

		f := fetcher.NewRouter(fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
		}, fetcher.FTPOptions{})

		results := fetchDatasets(ctx, f, datasets, cfg.Data.Dir)
		if skip, _ := cmd.Flags().GetBool("skip-boundaries"); !skip {
			results = append(results, fetchBoundaries(ctx, f, cfg.Data.BoundariesURL, cfg.Data.Shapefile))
		}
		formatFetch(os.Stdout, results)

		var errs []error
		for _, r := range results {
			if r.Err != nil {
				errs = append(errs, eris.Wrapf(r.Err, "fetch %s", r.Name))
			}
		}
		return errors.Join(errs...)
	},
}

func init() {
	f := fetchCmd.Flags()
	f.Bool(dataset.GroupKoppen, false, "Köppen-Geiger present and future")
	f.Bool(dataset.GroupLandCover, false, "FAO and ESA CCI land cover")
	f.Bool(dataset.GroupSlope, false, "GAEZ slope classes")
	f.Bool(dataset.GroupWork, false, "FAO soil workability")
	f.Bool("all", false, "every dataset in the catalog")
	f.StringSlice("datasets", nil, "dataset names (see 'aez datasets')")
	f.Bool("skip-boundaries", false, "do not download the boundary shapefile")

	rootCmd.AddCommand(fetchCmd)
}

type fetchResult struct {
	Name   string
	Status string // downloaded, present, manual, failed
	Path   string
	Err    error
}

func fetchDatasets(ctx context.Context, f fetcher.Fetcher, datasets []dataset.Dataset, dataDir string) []fetchResult {
	out := make([]fetchResult, 0, len(datasets))
	for _, d := range datasets {
		r := fetchResult{Name: d.Name, Path: d.RasterPath(dataDir)}
		downloaded, err := dataset.Fetch(ctx, f, d, dataDir)
		switch {
		case errors.Is(err, dataset.ErrNoSource):
			r.Status = "manual"
		case err != nil:
			r.Status, r.Err = "failed", err
			zap.L().Error("fetch failed", zap.String("dataset", d.Name), zap.Error(err))
		case downloaded:
			r.Status = "downloaded"
		default:
			r.Status = "present"
		}
		out = append(out, r)
	}
	return out
}

func fetchBoundaries(ctx context.Context, f fetcher.Fetcher, url, shapefile string) fetchResult {
	r := fetchResult{Name: "boundaries", Path: shapefile}
	downloaded, err := boundary.Fetch(ctx, f, url, shapefile)
	switch {
	case err != nil:
		r.Status, r.Err = "failed", err
	case downloaded:
		r.Status = "downloaded"
	default:
		r.Status = "present"
	}
	return r
}

// formatFetch writes one status line per fetched item.
func formatFetch(out io.Writer, results []fetchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTATUS\tPATH")
	_, _ = fmt.Fprintln(w, "----\t------\t----")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, r.Path)
	}
	_ = w.Flush()

	for _, r := range results {
		if r.Status == "manual" {
			_, _ = fmt.Fprintf(out, "%s: no download source, place the raster at %s\n", r.Name, r.Path)
		}
	}
}
