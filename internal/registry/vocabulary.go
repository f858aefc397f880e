package registry

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Status classifies how a raw boundary name resolved against the vocabulary.
type Status int

// Resolution statuses.
const (
	Canonical Status = iota // name is, or is an alias of, a vocabulary country
	Unmapped                // name is unknown to the vocabulary
	Rejected                // name is known and deliberately excluded
)

func (s Status) String() string {
	switch s {
	case Canonical:
		return "canonical"
	case Unmapped:
		return "unmapped"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of resolving one raw boundary name.
type Resolution struct {
	Name   string // canonical name, or the trimmed raw name when not canonical
	Raw    string
	Status Status
}

// VocabularyFile is the YAML layout of a country vocabulary.
type VocabularyFile struct {
	Version   string            `yaml:"version"`
	Countries []string          `yaml:"countries"`
	Aliases   map[string]string `yaml:"aliases"`
	Rejected  []string          `yaml:"rejected"`
}

// Vocabulary is an ordered list of canonical country names plus the alias and
// rejection tables used to map raw boundary names onto it. It is immutable.
type Vocabulary struct {
	version   string
	countries []string
	canonical map[string]string // normalised key -> canonical name
	rejected  map[string]struct{}
}

// LoadVocabulary reads a vocabulary from a YAML file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read vocabulary %s", path)
	}
	v, err := ParseVocabulary(data)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: vocabulary %s", path)
	}
	return v, nil
}

// ParseVocabulary decodes a YAML vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var f VocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: parse vocabulary")
	}
	return NewVocabulary(f)
}

// NewVocabulary validates f and builds the lookup tables. Canonical names must
// be unique after normalisation, aliases must point at a listed country, and a
// name cannot be both accepted and rejected.
func NewVocabulary(f VocabularyFile) (*Vocabulary, error) {
	if len(f.Countries) == 0 {
		return nil, eris.New("registry: vocabulary lists no countries")
	}

	v := &Vocabulary{
		version:   f.Version,
		countries: make([]string, 0, len(f.Countries)),
		canonical: make(map[string]string, len(f.Countries)+len(f.Aliases)),
		rejected:  make(map[string]struct{}, len(f.Rejected)),
	}

	for _, c := range f.Countries {
		name := strings.TrimSpace(c)
		key := normalizeName(name)
		if key == "" {
			return nil, eris.New("registry: vocabulary contains an empty country name")
		}
		if prev, dup := v.canonical[key]; dup {
			return nil, eris.Errorf("registry: country %q duplicates %q", name, prev)
		}
		v.canonical[key] = name
		v.countries = append(v.countries, name)
	}

	for raw, target := range f.Aliases {
		canon, ok := v.canonical[normalizeName(target)]
		if !ok {
			return nil, eris.Errorf("registry: alias %q points at unknown country %q", raw, target)
		}
		key := normalizeName(raw)
		if existing, dup := v.canonical[key]; dup && existing != canon {
			return nil, eris.Errorf("registry: alias %q conflicts with %q", raw, existing)
		}
		v.canonical[key] = canon
	}

	for _, raw := range f.Rejected {
		key := normalizeName(raw)
		if canon, ok := v.canonical[key]; ok {
			return nil, eris.Errorf("registry: %q is rejected but resolves to %q", raw, canon)
		}
		v.rejected[key] = struct{}{}
	}

	return v, nil
}

// Version returns the vocabulary's declared version.
func (v *Vocabulary) Version() string { return v.version }

// Countries returns the canonical names in vocabulary order.
func (v *Vocabulary) Countries() []string { return append([]string(nil), v.countries...) }

// Len returns the number of canonical countries.
func (v *Vocabulary) Len() int { return len(v.countries) }

// CountryOf resolves a raw boundary name.
func (v *Vocabulary) CountryOf(raw string) Resolution {
	trimmed := strings.TrimSpace(raw)
	key := normalizeName(trimmed)
	if canon, ok := v.canonical[key]; ok {
		return Resolution{Name: canon, Raw: raw, Status: Canonical}
	}
	if _, ok := v.rejected[key]; ok {
		return Resolution{Name: trimmed, Raw: raw, Status: Rejected}
	}
	return Resolution{Name: trimmed, Raw: raw, Status: Unmapped}
}

// normalizeName folds case, composes Unicode and collapses whitespace so that
// "Côte d'Ivoire", "CÔTE  D'IVOIRE" and the decomposed form compare equal.
func normalizeName(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}
