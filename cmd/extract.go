package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sashkaw/spatial-aez/internal/boundary"
	"github.com/sashkaw/spatial-aez/internal/dataset"
	"github.com/sashkaw/spatial-aez/internal/extract"
	"github.com/sashkaw/spatial-aez/internal/metrics"
	"github.com/sashkaw/spatial-aez/internal/registry"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Aggregate rasters into per-country area tables",
	Long: "Runs the selected datasets against the country boundaries and writes one table per dataset. " +
		"Select datasets with group flags (--kg, --lc, --sl, --wk), --datasets or --all.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyExtractFlags(cmd)
		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		names, _ := cmd.Flags().GetStringSlice("datasets")
		datasets, err := selectDatasets(all, selectedGroups(cmd), names)
		if err != nil {
			return err
		}

		opts, err := extract.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		opts.Parallel, _ = cmd.Flags().GetInt("parallel")

		vocab, index, err := loadBoundaries()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runner, err := extract.New(vocab, index, opts,
			extract.WithStore(st),
			extract.WithMetrics(metrics.New()),
		)
		if err != nil {
			return err
		}

		report, err := runner.RunAll(ctx, datasets)
		if report != nil {
			formatSummary(os.Stdout, report)
		}
		if err != nil {
			return err
		}
		return report.Err()
	},
}

func init() {
	f := extractCmd.Flags()
	f.Bool(dataset.GroupKoppen, false, "Köppen-Geiger present and future")
	f.Bool(dataset.GroupLandCover, false, "FAO and ESA CCI land cover")
	f.Bool(dataset.GroupSlope, false, "GAEZ slope classes")
	f.Bool(dataset.GroupWork, false, "FAO soil workability")
	f.Bool("all", false, "every dataset in the catalog")
	f.StringSlice("datasets", nil, "dataset names (see 'aez datasets')")
	f.Int("workers", 0, "worker goroutines per dataset (default from config)")
	f.Int("parallel", 1, "datasets processed at once")
	f.Bool("lenient", false, "count unknown category codes as Unclassified instead of failing")
	f.StringSlice("format", nil, "output formats: csv, xlsx (default from config)")
	f.String("output", "", "output directory (default from config)")
	f.String("area-model", "", "pixel area model: ellipsoid or sphere (default from config)")

	rootCmd.AddCommand(extractCmd)
}

// applyExtractFlags overlays explicitly set flags on the loaded config.
func applyExtractFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("workers") {
		cfg.Extract.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("lenient") {
		lenient, _ := f.GetBool("lenient")
		cfg.Extract.Strict = !lenient
	}
	if f.Changed("format") {
		cfg.Extract.Formats, _ = f.GetStringSlice("format")
	}
	if f.Changed("output") {
		cfg.Extract.OutputDir, _ = f.GetString("output")
	}
	if f.Changed("area-model") {
		cfg.Extract.AreaModel, _ = f.GetString("area-model")
	}
}

func selectedGroups(cmd *cobra.Command) []string {
	var groups []string
	for _, g := range dataset.Groups {
		if on, _ := cmd.Flags().GetBool(g); on {
			groups = append(groups, g)
		}
	}
	return groups
}

// selectDatasets resolves the command-line selection against the catalog.
func selectDatasets(all bool, groups, names []string) ([]dataset.Dataset, error) {
	if all {
		return dataset.All(), nil
	}
	if len(groups) == 0 && len(names) == 0 {
		return nil, eris.New("no datasets selected: use --all, a group flag (--kg, --lc, --sl, --wk) or --datasets")
	}
	return dataset.Select(groups, names)
}

// loadBoundaries reads the vocabulary and indexes the boundary shapefile.
func loadBoundaries() (*registry.Vocabulary, *boundary.Index, error) {
	vocab, err := registry.LoadVocabulary(cfg.Data.Vocabulary)
	if err != nil {
		return nil, nil, err
	}
	shp, err := boundary.OpenShapefile(cfg.Data.Shapefile, boundary.Fields{
		Name: cfg.Data.NameField,
		Code: cfg.Data.CodeField,
	})
	if err != nil {
		return nil, nil, err
	}
	index, err := boundary.NewIndex(shp, vocab)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("boundaries loaded",
		zap.String("shapefile", shp.Path()),
		zap.Int("features", index.Len()),
		zap.Int("countries", vocab.Len()),
		zap.String("vocabulary_version", vocab.Version()),
	)
	return vocab, index, nil
}

// formatSummary writes one line per dataset followed by any unmapped names.
func formatSummary(out io.Writer, report *extract.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tSTATUS\tASSIGNED_KM2\tUNASSIGNED_KM2\tNODATA_KM2\tRESIDUAL_KM2\tUNMAPPED\tOUTPUTS")
	_, _ = fmt.Fprintln(w, "-------\t------\t------------\t--------------\t----------\t------------\t--------\t-------")

	for _, o := range report.Outcomes {
		if o.Status != extract.StatusComplete {
			_, _ = fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\t-\t-\n", o.Dataset, o.Status)
			continue
		}
		d := o.Diagnostics
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.3g\t%d\t%s\n",
			o.Dataset,
			o.Status,
			d.Assigned,
			d.Unassigned,
			d.NoData,
			d.Residual(),
			len(d.UnmappedZones),
			strings.Join(o.Outputs, ","),
		)
	}
	_ = w.Flush()

	for _, o := range report.Outcomes {
		for _, z := range o.Diagnostics.UnmappedZones {
			_, _ = fmt.Fprintf(out, "%s: unmapped boundary name %q (%.2f km²)\n", o.Dataset, z.Name, z.Area)
		}
		if o.Err != nil {
			_, _ = fmt.Fprintf(out, "%s: %v\n", o.Dataset, o.Err)
		}
	}
}
