// Package catalog turns info type definitions, either the built-in
// Australian set or definitions loaded from configuration, into a frozen
// registry with generators bound.
package catalog

import (
	"fmt"
	"strings"

	"github.com/raaihank/redacted/internal/generator"
	"github.com/raaihank/redacted/internal/infotype"
)

// Generator kinds accepted in definitions
const (
	GeneratorRegex = "regex"
	GeneratorEmail = "email"
	GeneratorNone  = "none"
)

// DefaultLongDigitMin is the digit run length used by LongDigit in Defaults
const DefaultLongDigitMin = 8

// Definition is the data form of an info type
type Definition struct {
	Name         string `yaml:"name" mapstructure:"name" json:"name"`
	Pattern      string `yaml:"pattern" mapstructure:"pattern" json:"pattern"`
	WordBoundary bool   `yaml:"word_boundary" mapstructure:"word_boundary" json:"word_boundary"`
	Generator    string `yaml:"generator" mapstructure:"generator" json:"generator,omitempty"`
}

// Options controls how definitions are built
type Options struct {
	// Seed makes generators reproducible; zero means random
	Seed uint64
}

// Defaults returns the built-in catalogue. Order matters: earlier entries
// win when several patterns match at the same offset, so the more
// specific categories come first.
func Defaults(longDigitMin int) []Definition {
	return []Definition{
		{
			Name:      "Email",
			Pattern:   `([a-z0-9!#$%&'*+/=?^_{|}~-]+(?:\.[a-z0-9!#$%&'*+/=?^_{|}~-]+)*|"(?:[\x01-\x08\x0b\x0c\x0e-\x1f\x21\x23-\x5b\x5d-\x7f]|\\[\x01-\x09\x0b\x0c\x0e-\x7f])*")@(?:(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z0-9](?:[a-z0-9-]*[a-z0-9])?|\[(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?|[a-z0-9-]*[a-z0-9]:(?:[\x01-\x08\x0b\x0c\x0e-\x1f\x21-\x5a\x53-\x7f]|\\[\x01-\x09\x0b\x0c\x0e-\x7f])+)\])`,
			Generator: GeneratorEmail,
		},
		{
			Name:    "AusPassport",
			Pattern: `[A-Z][0-9]{7}`,
		},
		{
			Name:    "AusTaxFileNumber",
			Pattern: `[0-9]{3}( ?)[0-9]{3}[0-9]{2,3}`,
		},
		LongDigit(longDigitMin),
		{
			Name:    "AusDriversLicence",
			Pattern: `[A-Z0-9][0-9]{5,7}`,
		},
		{
			Name:    "AusLicencePlate",
			Pattern: `(([a-zA-Z0-9]{3})([\s,-.]?)([a-zA-Z0-9]{3}))`,
		},
		{
			Name:    "AusPostCode",
			Pattern: `(0[289][0-9]{2})|([1345689][0-9]{3})|(2[0-9][0-9]{2})|(290[0-9])|(291[0-9])|(7[0-4][0-9]{2})|(7[8-9][0-9]{2})`,
		},
	}
}

// LongDigit defines a run of at least n digits. It has no generator.
func LongDigit(n int) Definition {
	if n <= 0 {
		n = DefaultLongDigitMin
	}
	return Definition{
		Name:      "LongDigit",
		Pattern:   fmt.Sprintf(`\d{%d}`, n),
		Generator: GeneratorNone,
	}
}

// NewInfoType builds a single info type with its generator bound
func NewInfoType(def Definition, opts Options) (*infotype.InfoType, error) {
	gen, err := newGenerator(def, opts)
	if err != nil {
		return nil, err
	}
	return infotype.New(def.Name, def.Pattern, def.WordBoundary, gen), nil
}

// Build registers every definition in order and freezes the registry
func Build(defs []Definition, opts Options) (*infotype.Registry, error) {
	reg := infotype.NewRegistry()

	for _, def := range defs {
		t, err := NewInfoType(def, opts)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}

	reg.Freeze()
	return reg, nil
}

// newGenerator picks a generator for the definition's kind
func newGenerator(def Definition, opts Options) (infotype.Generator, error) {
	switch strings.ToLower(strings.TrimSpace(def.Generator)) {
	case "", GeneratorRegex:
		return generator.Regex(def.Pattern, generator.WithSeed(opts.Seed)), nil
	case GeneratorEmail:
		return generator.Email(generator.WithSeed(opts.Seed)), nil
	case GeneratorNone:
		return generator.None(), nil
	default:
		return nil, fmt.Errorf("unknown generator %q for %s (must be regex, email or none)", def.Generator, def.Name)
	}
}
