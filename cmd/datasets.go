package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sashkaw/spatial-aez/internal/dataset"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the dataset catalog and which rasters are present",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("datasets"); err != nil {
			return err
		}
		formatDatasets(os.Stdout, dataset.All(), cfg.Data.Dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
}

// formatDatasets writes the catalog with raster presence under dataDir.
func formatDatasets(out io.Writer, datasets []dataset.Dataset, dataDir string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tGROUP\tSCHEME\tPRESENT\tOUTPUT\tRASTER")
	_, _ = fmt.Fprintln(w, "----\t-----\t------\t-------\t------\t------")

	for _, d := range datasets {
		present := "no"
		if d.Available(dataDir) {
			present = "yes"
		} else if d.Optional {
			present = "no (optional)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Name, d.Group, d.Scheme, present, d.Output, d.RasterPath(dataDir))
	}
	_ = w.Flush()
}
