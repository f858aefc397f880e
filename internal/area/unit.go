package area

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Unit is an output area unit.
type Unit string

// Supported units.
const (
	SquareKilometres Unit = "km2"
	Hectares         Unit = "ha"
	SquareMetres     Unit = "m2"
)

// ParseUnit accepts the unit names used in configuration. Empty means km2.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "km2", "km²", "sqkm":
		return SquareKilometres, nil
	case "ha", "hectare", "hectares":
		return Hectares, nil
	case "m2", "m²", "sqm":
		return SquareMetres, nil
	default:
		return "", eris.Errorf("area: unknown unit %q", s)
	}
}

// FromKm2 converts a value in square kilometres to u.
func (u Unit) FromKm2(km2 float64) float64 {
	switch u {
	case Hectares:
		return km2 * 100
	case SquareMetres:
		return km2 * 1e6
	default:
		return km2
	}
}

// String implements fmt.Stringer.
func (u Unit) String() string { return string(u) }
