package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sashkaw/spatial-aez/internal/store"
	"github.com/sashkaw/spatial-aez/internal/zonal"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []store.Run{
		{
			ID:     "abc12345-6789-0000-0000-000000000000",
			Spec:   store.RunSpec{Dataset: "slope", AreaModel: "ellipsoid"},
			Status: store.RunStatusComplete,
			Result: &store.RunResult{
				Diagnostics: zonal.Diagnostics{Assigned: 1234.567},
			},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Spec:      store.RunSpec{Dataset: "kg-present", AreaModel: "sphere"},
			Status:    store.RunStatusFailed,
			Error:     "unknown category",
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "DATASET")
	assert.Contains(t, output, "ASSIGNED_KM2")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "slope")
	assert.Contains(t, output, "1234.57")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "kg-present")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "sphere")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcdefgh", truncateID("abcdefghijkl"))
	assert.Equal(t, "short", truncateID("short"))
}
