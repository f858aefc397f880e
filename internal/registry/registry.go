package registry

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrUnknownCategory is returned for a raw code outside the dataset's scheme.
var ErrUnknownCategory = errors.New("unknown category")

// Category is a column index into Registry.Columns.
type Category int

// NoData is the category of sentinel and blank pixels.
const NoData Category = -1

// UnclassifiedLabel names the extra column added in lenient mode.
const UnclassifiedLabel = "Unclassified"

// Registry combines a dataset's category scheme with the country vocabulary.
// It is read-only after construction and safe for concurrent use.
type Registry struct {
	scheme    *Scheme
	vocab     *Vocabulary
	noData    int
	hasNoData bool
	lenient   bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithNoData treats code as the raster's no-data sentinel.
func WithNoData(code int) Option {
	return func(r *Registry) {
		r.noData = code
		r.hasNoData = true
	}
}

// WithLenient makes unknown codes count as Unclassified instead of failing.
func WithLenient(lenient bool) Option {
	return func(r *Registry) {
		r.lenient = lenient
	}
}

// New builds a registry for one dataset.
func New(scheme *Scheme, vocab *Vocabulary, opts ...Option) (*Registry, error) {
	if scheme == nil {
		return nil, eris.New("registry: nil scheme")
	}
	if vocab == nil {
		return nil, eris.New("registry: nil vocabulary")
	}
	r := &Registry{scheme: scheme, vocab: vocab}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Scheme returns the dataset's classification scheme.
func (r *Registry) Scheme() *Scheme { return r.scheme }

// Vocabulary returns the country vocabulary.
func (r *Registry) Vocabulary() *Vocabulary { return r.vocab }

// Lenient reports whether unknown codes are tolerated.
func (r *Registry) Lenient() bool { return r.lenient }

// Columns returns the output columns: the scheme's categories, followed by
// Unclassified in lenient mode.
func (r *Registry) Columns() []string {
	cols := r.scheme.Columns()
	if r.lenient {
		cols = append(cols, UnclassifiedLabel)
	}
	return cols
}

// Unclassified returns the Unclassified column, if the registry has one.
func (r *Registry) Unclassified() (Category, bool) {
	if !r.lenient {
		return NoData, false
	}
	return Category(len(r.scheme.columns)), true
}

// CategoryOf resolves a raw pixel code. Sentinel and blank codes yield NoData.
// Unknown codes yield ErrUnknownCategory in strict mode and the Unclassified
// column in lenient mode.
func (r *Registry) CategoryOf(raw int) (Category, error) {
	if r.hasNoData && raw == r.noData {
		return NoData, nil
	}
	col, blank, ok := r.scheme.lookup(raw)
	switch {
	case blank:
		return NoData, nil
	case ok:
		return Category(col), nil
	case r.lenient:
		c, _ := r.Unclassified()
		return c, nil
	default:
		return NoData, eris.Wrapf(ErrUnknownCategory, "registry: code %d not in scheme %s", raw, r.scheme.name)
	}
}

// CountryOf resolves a raw boundary name against the vocabulary.
func (r *Registry) CountryOf(raw string) Resolution {
	return r.vocab.CountryOf(raw)
}
