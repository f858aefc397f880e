// Package registry resolves raw raster codes to the categories of a closed
// classification scheme and raw boundary names to canonical country names.
package registry

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Scheme is a closed, ordered classification: the column list of one dataset and
// the raw codes that map onto it.
type Scheme struct {
	name    string
	columns []string
	codes   map[int]int // raw code -> column index
	blank   map[int]struct{}
}

// NewScheme builds a scheme from an ordered column list and a raw-code table.
// Every code must map to a listed column and no code may be both mapped and
// blank; violations are reported at load time rather than at the first pixel.
func NewScheme(name string, columns []string, codes map[int]string, blank ...int) (*Scheme, error) {
	if len(columns) == 0 {
		return nil, eris.Errorf("registry: scheme %s has no columns", name)
	}

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, eris.Errorf("registry: scheme %s column %d is empty", name, i)
		}
		if _, dup := index[c]; dup {
			return nil, eris.Errorf("registry: scheme %s lists column %q twice", name, c)
		}
		index[c] = i
	}

	s := &Scheme{
		name:    name,
		columns: append([]string(nil), columns...),
		codes:   make(map[int]int, len(codes)),
		blank:   make(map[int]struct{}, len(blank)),
	}
	for _, b := range blank {
		s.blank[b] = struct{}{}
	}

	for _, code := range sortedCodes(codes) {
		label := codes[code]
		col, ok := index[label]
		if !ok {
			return nil, eris.Errorf("registry: scheme %s maps code %d to unknown column %q", name, code, label)
		}
		if _, isBlank := s.blank[code]; isBlank {
			return nil, eris.Errorf("registry: scheme %s code %d is both blank and mapped", name, code)
		}
		s.codes[code] = col
	}

	return s, nil
}

// Name returns the scheme identifier.
func (s *Scheme) Name() string { return s.name }

// Columns returns the ordered category labels.
func (s *Scheme) Columns() []string { return append([]string(nil), s.columns...) }

// lookup resolves a raw code. blank reports codes the scheme treats as empty
// (water, masked off); ok is false for codes outside the scheme.
func (s *Scheme) lookup(raw int) (col int, blank, ok bool) {
	if _, b := s.blank[raw]; b {
		return 0, true, true
	}
	col, ok = s.codes[raw]
	return col, false, ok
}

func sortedCodes(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
