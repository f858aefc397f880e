package zonal

import (
	"errors"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// ErrConservation is returned when the bucket totals do not add up to the
// grid's theoretical area.
var ErrConservation = errors.New("area not conserved")

// PixelError reports the pixel at which a run failed.
type PixelError struct {
	Row, Col int
	Raw      int
	Err      error
}

func (e *PixelError) Error() string {
	return fmt.Sprintf("zonal: pixel row %d col %d (raw %d): %v", e.Row, e.Col, e.Raw, e.Err)
}

func (e *PixelError) Unwrap() error { return e.Err }

// Counts holds pixel counts per bucket.
type Counts struct {
	Pixels       int64 `json:"pixels"`
	Assigned     int64 `json:"assigned"`
	Unmapped     int64 `json:"unmapped"`
	Rejected     int64 `json:"rejected"`
	Unassigned   int64 `json:"unassigned"`
	NoData       int64 `json:"nodata"`
	Unclassified int64 `json:"unclassified"`
}

func (c *Counts) add(o Counts) {
	c.Pixels += o.Pixels
	c.Assigned += o.Assigned
	c.Unmapped += o.Unmapped
	c.Rejected += o.Rejected
	c.Unassigned += o.Unassigned
	c.NoData += o.NoData
	c.Unclassified += o.Unclassified
}

// Diagnostics summarises where a run's area went. Areas are in km².
// Unclassified area is part of whichever zone the pixels fell in.
type Diagnostics struct {
	Assigned     float64 `json:"assigned_km2"`
	Unmapped     float64 `json:"unmapped_km2"`
	Rejected     float64 `json:"rejected_km2"`
	Unassigned   float64 `json:"unassigned_km2"`
	NoData       float64 `json:"nodata_km2"`
	Unclassified float64 `json:"unclassified_km2"`
	Total        float64 `json:"total_km2"` // theoretical grid area from the area model

	Counts        Counts     `json:"counts"`
	UnmappedZones []ZoneArea `json:"unmapped_zones,omitempty"`
	RejectedZones []ZoneArea `json:"rejected_zones,omitempty"`
}

// Accounted returns the sum of all buckets.
func (d Diagnostics) Accounted() float64 {
	return d.Assigned + d.Unmapped + d.Rejected + d.Unassigned + d.NoData
}

// Residual returns Accounted minus Total.
func (d Diagnostics) Residual() float64 { return d.Accounted() - d.Total }

// Tolerance is the largest residual explained by rounding: each pixel's area
// is quantised to half an accumulator unit, plus float error in Total.
func (d Diagnostics) Tolerance() float64 {
	return float64(d.Counts.Pixels)*0.5/fixedScale + 1e-9*d.Total
}

// Check verifies that every pixel's area is accounted for.
func (d Diagnostics) Check() error {
	if r := d.Residual(); math.Abs(r) > d.Tolerance() {
		return eris.Wrapf(ErrConservation, "zonal: accounted %.6f km², grid %.6f km², residual %g",
			d.Accounted(), d.Total, r)
	}
	return nil
}
