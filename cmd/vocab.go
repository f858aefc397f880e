package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sashkaw/spatial-aez/internal/boundary"
	"github.com/sashkaw/spatial-aez/internal/registry"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Inspect the country vocabulary",
}

var vocabCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Resolve every boundary name against the vocabulary",
	Long:  "Lists each distinct boundary name with its resolution and exits non-zero when any name is unmapped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("vocab"); err != nil {
			return err
		}

		vocab, err := registry.LoadVocabulary(cfg.Data.Vocabulary)
		if err != nil {
			return err
		}
		shp, err := boundary.OpenShapefile(cfg.Data.Shapefile, boundary.Fields{
			Name: cfg.Data.NameField,
			Code: cfg.Data.CodeField,
		})
		if err != nil {
			return err
		}

		report, err := checkVocabulary(shp, vocab)
		if err != nil {
			return err
		}

		showAll, _ := cmd.Flags().GetBool("all")
		formatVocabReport(os.Stdout, report, showAll)

		if n := report.count(registry.Unmapped); n > 0 {
			return eris.Errorf("vocab check: %d unmapped boundary names", n)
		}
		return nil
	},
}

func init() {
	vocabCheckCmd.Flags().Bool("all", false, "also list canonical names")
	vocabCmd.AddCommand(vocabCheckCmd)
	rootCmd.AddCommand(vocabCmd)
}

// vocabEntry is one distinct raw boundary name.
type vocabEntry struct {
	Raw        string
	Code       string
	Resolution registry.Resolution
	Features   int
}

// vocabReport is the outcome of resolving a whole boundary layer.
type vocabReport struct {
	Entries []vocabEntry
	// Missing lists vocabulary countries no boundary feature resolves to.
	Missing []string
}

func (r vocabReport) count(s registry.Status) int {
	n := 0
	for _, e := range r.Entries {
		if e.Resolution.Status == s {
			n++
		}
	}
	return n
}

// statusRank orders report entries: problems first.
var statusRank = map[registry.Status]int{
	registry.Unmapped:  0,
	registry.Rejected:  1,
	registry.Canonical: 2,
}

// checkVocabulary resolves every feature name in layer.
func checkVocabulary(layer boundary.Layer, vocab *registry.Vocabulary) (vocabReport, error) {
	byRaw := make(map[string]*vocabEntry)
	covered := make(map[string]bool)

	err := layer.ForEachPolygon(func(p boundary.Polygon) error {
		e, ok := byRaw[p.Name]
		if !ok {
			e = &vocabEntry{Raw: p.Name, Code: p.Code, Resolution: vocab.CountryOf(p.Name)}
			byRaw[p.Name] = e
		}
		e.Features++
		if e.Resolution.Status == registry.Canonical {
			covered[e.Resolution.Name] = true
		}
		return nil
	})
	if err != nil {
		return vocabReport{}, eris.Wrap(err, "vocab check")
	}

	var report vocabReport
	for _, e := range byRaw {
		report.Entries = append(report.Entries, *e)
	}
	sort.Slice(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if ra, rb := statusRank[a.Resolution.Status], statusRank[b.Resolution.Status]; ra != rb {
			return ra < rb
		}
		return a.Raw < b.Raw
	})
	for _, c := range vocab.Countries() {
		if !covered[c] {
			report.Missing = append(report.Missing, c)
		}
	}
	return report, nil
}

// formatVocabReport writes unmapped and rejected names, and canonical ones
// when showAll is set.
func formatVocabReport(out io.Writer, r vocabReport, showAll bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATUS\tRAW NAME\tCODE\tCOUNTRY\tFEATURES")
	_, _ = fmt.Fprintln(w, "------\t--------\t----\t-------\t--------")
	for _, e := range r.Entries {
		if e.Resolution.Status == registry.Canonical && !showAll {
			continue
		}
		country := "-"
		if e.Resolution.Status == registry.Canonical {
			country = e.Resolution.Name
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", e.Resolution.Status, e.Raw, e.Code, country, e.Features)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d canonical, %d rejected, %d unmapped\n",
		r.count(registry.Canonical), r.count(registry.Rejected), r.count(registry.Unmapped))
	for _, c := range r.Missing {
		_, _ = fmt.Fprintf(out, "no boundary for vocabulary country %q\n", c)
	}
}
