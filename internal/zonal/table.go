package zonal

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sashkaw/spatial-aez/internal/area"
	"github.com/sashkaw/spatial-aez/internal/registry"
)

// fixedScale is the number of accumulator units per km² (1 unit = 1 dm²).
// Integer accumulation makes sums exact, so any partitioning or merge order
// yields the same table.
const fixedScale = 1e8

func toFixed(km2 float64) int64 { return int64(math.Round(km2 * fixedScale)) }

func fromFixed(v int64) float64 { return float64(v) / fixedScale }

// ZoneKind distinguishes the buckets a pixel's area can land in.
type ZoneKind int

// Zone kinds.
const (
	Country    ZoneKind = iota // canonical vocabulary country
	Unmapped                   // raw boundary name unknown to the vocabulary
	Rejected                   // raw boundary name explicitly excluded
	Unassigned                 // land covered by no polygon
)

func (k ZoneKind) String() string {
	switch k {
	case Country:
		return "country"
	case Unmapped:
		return "unmapped"
	case Rejected:
		return "rejected"
	case Unassigned:
		return "unassigned"
	default:
		return "unknown"
	}
}

// ParseZoneKind is the inverse of ZoneKind.String.
func ParseZoneKind(s string) (ZoneKind, error) {
	for _, k := range []ZoneKind{Country, Unmapped, Rejected, Unassigned} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, eris.Errorf("zonal: unknown zone kind %q", s)
}

// Zone identifies a row of the result table.
type Zone struct {
	Kind ZoneKind
	Name string
}

// UnassignedZone collects pixels outside every polygon.
var UnassignedZone = Zone{Kind: Unassigned}

// ZoneOf maps a boundary lookup to its zone.
func ZoneOf(res registry.Resolution, ok bool) Zone {
	if !ok {
		return UnassignedZone
	}
	switch res.Status {
	case registry.Canonical:
		return Zone{Kind: Country, Name: res.Name}
	case registry.Rejected:
		return Zone{Kind: Rejected, Name: res.Name}
	default:
		return Zone{Kind: Unmapped, Name: res.Name}
	}
}

func zoneLess(a, b Zone) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Name < b.Name
}

// Table accumulates area per (zone, category). It is built by a single
// aggregation run and frozen before it is read.
type Table struct {
	columns []string
	cells   map[Zone][]int64
	frozen  bool
}

// NewTable returns an empty table with the given category columns.
func NewTable(columns []string) *Table {
	return &Table{
		columns: append([]string(nil), columns...),
		cells:   make(map[Zone][]int64),
	}
}

func (t *Table) row(z Zone) []int64 {
	r, ok := t.cells[z]
	if !ok {
		r = make([]int64, len(t.columns))
		t.cells[z] = r
	}
	return r
}

func (t *Table) addFixed(z Zone, cat registry.Category, v int64) {
	t.row(z)[cat] += v
}

// Add accumulates km2 into (z, cat).
func (t *Table) Add(z Zone, cat registry.Category, km2 float64) error {
	if t.frozen {
		return eris.New("zonal: add to frozen table")
	}
	if cat < 0 || int(cat) >= len(t.columns) {
		return eris.Errorf("zonal: category %d outside %d columns", cat, len(t.columns))
	}
	if km2 < 0 || math.IsNaN(km2) || math.IsInf(km2, 0) {
		return eris.Errorf("zonal: invalid area %g", km2)
	}
	t.addFixed(z, cat, toFixed(km2))
	return nil
}

// Merge adds every cell of o into t. Both tables must share the same columns.
func (t *Table) Merge(o *Table) error {
	if t.frozen {
		return eris.New("zonal: merge into frozen table")
	}
	if len(o.columns) != len(t.columns) {
		return eris.Errorf("zonal: merge %d columns into %d", len(o.columns), len(t.columns))
	}
	for i := range t.columns {
		if t.columns[i] != o.columns[i] {
			return eris.Errorf("zonal: column %d is %q, merging %q", i, t.columns[i], o.columns[i])
		}
	}
	for z, src := range o.cells {
		dst := t.row(z)
		for i, v := range src {
			dst[i] += v
		}
	}
	return nil
}

// Freeze makes the table read-only.
func (t *Table) Freeze() { t.frozen = true }

// Frozen reports whether Freeze has been called.
func (t *Table) Frozen() bool { return t.frozen }

// Columns returns the category labels.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// Zones returns every zone with a row, ordered by kind then name.
func (t *Table) Zones() []Zone {
	zones := make([]Zone, 0, len(t.cells))
	for z := range t.cells {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zoneLess(zones[i], zones[j]) })
	return zones
}

// Get returns the area of (z, column) in km²; zero when absent.
func (t *Table) Get(z Zone, column string) float64 {
	r, ok := t.cells[z]
	if !ok {
		return 0
	}
	for i, c := range t.columns {
		if c == column {
			return fromFixed(r[i])
		}
	}
	return 0
}

// ZoneTotal returns the area of z across all categories, in km².
func (t *Table) ZoneTotal(z Zone) float64 {
	return fromFixed(sumRow(t.cells[z]))
}

func (t *Table) kindTotal(k ZoneKind) int64 {
	var total int64
	for z, r := range t.cells {
		if z.Kind == k {
			total += sumRow(r)
		}
	}
	return total
}

func sumRow(r []int64) int64 {
	var s int64
	for _, v := range r {
		s += v
	}
	return s
}

// Row is one export line: a country and its area per column.
type Row struct {
	Country string
	Values  []float64
}

// Rows returns one row per country in the given order, every column present,
// converted to unit. Countries without area get a row of zeros.
func (t *Table) Rows(countries []string, unit area.Unit) []Row {
	rows := make([]Row, 0, len(countries))
	for _, c := range countries {
		vals := make([]float64, len(t.columns))
		if r, ok := t.cells[Zone{Kind: Country, Name: c}]; ok {
			for i, v := range r {
				vals[i] = unit.FromKm2(fromFixed(v))
			}
		}
		rows = append(rows, Row{Country: c, Values: vals})
	}
	return rows
}

// ZoneArea is a named area total in km².
type ZoneArea struct {
	Name string  `json:"name"`
	Area float64 `json:"area_km2"`
}

// Unmapped returns the unmapped zones sorted by name, with their total area.
func (t *Table) Unmapped() []ZoneArea { return t.byKind(Unmapped) }

// Rejected returns the rejected zones sorted by name, with their total area.
func (t *Table) Rejected() []ZoneArea { return t.byKind(Rejected) }

func (t *Table) byKind(k ZoneKind) []ZoneArea {
	var out []ZoneArea
	for _, z := range t.Zones() {
		if z.Kind == k {
			out = append(out, ZoneArea{Name: z.Name, Area: fromFixed(sumRow(t.cells[z]))})
		}
	}
	return out
}

// Cell is one non-zero (zone, category) area, in km².
type Cell struct {
	Zone     Zone
	Category string
	Area     float64
}

// Cells returns every non-zero cell, ordered by zone then column.
func (t *Table) Cells() []Cell {
	var out []Cell
	for _, z := range t.Zones() {
		for i, v := range t.cells[z] {
			if v != 0 {
				out = append(out, Cell{Zone: z, Category: t.columns[i], Area: fromFixed(v)})
			}
		}
	}
	return out
}

// TableFromCells rebuilds a frozen table from stored cells. Cells naming an
// unknown column are rejected.
func TableFromCells(columns []string, cells []Cell) (*Table, error) {
	t := NewTable(columns)
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	for _, c := range cells {
		i, ok := index[c.Category]
		if !ok {
			return nil, eris.Errorf("zonal: cell category %q not in columns", c.Category)
		}
		t.addFixed(c.Zone, registry.Category(i), toFixed(c.Area))
	}
	t.Freeze()
	return t, nil
}
