package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sashkaw/spatial-aez/internal/boundary"
	"github.com/sashkaw/spatial-aez/internal/registry"
)

func TestCheckVocabulary(t *testing.T) {
	vocab, err := registry.NewVocabulary(registry.VocabularyFile{
		Countries: []string{"Alpha", "Beta", "Gamma"},
		Aliases:   map[string]string{"Republic of Alpha": "Alpha"},
		Rejected:  []string{"Antarctica"},
	})
	require.NoError(t, err)

	layer := boundary.Polygons{
		boundary.Rectangle("Republic of Alpha", 0, 0, 1, 1),
		boundary.Rectangle("Republic of Alpha", 2, 0, 3, 1),
		boundary.Rectangle("Beta", 1, 0, 2, 1),
		boundary.Rectangle("Antarctica", 0, -90, 1, -80),
		boundary.Rectangle("Ruritania", 5, 5, 6, 6),
	}

	report, err := checkVocabulary(layer, vocab)
	require.NoError(t, err)
	require.Len(t, report.Entries, 4)

	assert.Equal(t, "Ruritania", report.Entries[0].Raw)
	assert.Equal(t, registry.Unmapped, report.Entries[0].Resolution.Status)
	assert.Equal(t, "Antarctica", report.Entries[1].Raw)
	assert.Equal(t, registry.Rejected, report.Entries[1].Resolution.Status)
	assert.Equal(t, "Beta", report.Entries[2].Raw)
	assert.Equal(t, "Republic of Alpha", report.Entries[3].Raw)
	assert.Equal(t, "Alpha", report.Entries[3].Resolution.Name)
	assert.Equal(t, 2, report.Entries[3].Features)

	assert.Equal(t, []string{"Gamma"}, report.Missing)
	assert.Equal(t, 1, report.count(registry.Unmapped))

	var buf bytes.Buffer
	formatVocabReport(&buf, report, false)
	out := buf.String()
	assert.Contains(t, out, "Ruritania")
	assert.Contains(t, out, "Antarctica")
	assert.NotContains(t, out, "Republic of Alpha")
	assert.Contains(t, out, "2 canonical, 1 rejected, 1 unmapped")
	assert.Contains(t, out, `no boundary for vocabulary country "Gamma"`)

	buf.Reset()
	formatVocabReport(&buf, report, true)
	assert.Contains(t, buf.String(), "Republic of Alpha")
}
