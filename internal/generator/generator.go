// Package generator provides synthetic value generators for info types.
// Generators are best effort: a value that cannot be produced is returned
// as an empty string rather than an error.
package generator

import (
	"regexp"
	"sync"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/raaihank/redacted/internal/infotype"
)

const defaultMaxAttempts = 5

// Option configures a generator
type Option func(*options)

type options struct {
	seed        uint64
	maxAttempts int
}

// WithSeed makes output reproducible. A zero seed picks a random one.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithMaxAttempts bounds how many candidates are tried before giving up
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// lockedFaker serialises access to a gofakeit Faker
type lockedFaker struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
}

func newLockedFaker(seed uint64) *lockedFaker {
	return &lockedFaker{faker: gofakeit.New(seed)}
}

func (l *lockedFaker) do(fn func(f *gofakeit.Faker) string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.faker)
}

// RegexGenerator produces strings matching a regular expression
type RegexGenerator struct {
	pattern     string
	expr        *regexp.Regexp
	faker       *lockedFaker
	maxAttempts int
}

// Regex returns a generator for pattern. An invalid pattern yields a
// generator that always returns "".
func Regex(pattern string, opts ...Option) *RegexGenerator {
	o := buildOptions(opts)
	expr, _ := regexp.Compile(pattern)
	return &RegexGenerator{
		pattern:     pattern,
		expr:        expr,
		faker:       newLockedFaker(o.seed),
		maxAttempts: o.maxAttempts,
	}
}

// Generate implements infotype.Generator
func (g *RegexGenerator) Generate() string {
	if g.expr == nil {
		return ""
	}

	for i := 0; i < g.maxAttempts; i++ {
		candidate := g.faker.do(func(f *gofakeit.Faker) string {
			return f.Regex(g.pattern)
		})
		if candidate != "" && g.expr.MatchString(candidate) {
			return candidate
		}
	}
	return ""
}

// EmailGenerator produces realistic email addresses
type EmailGenerator struct {
	faker *lockedFaker
}

// Email returns an email address generator
func Email(opts ...Option) *EmailGenerator {
	o := buildOptions(opts)
	return &EmailGenerator{faker: newLockedFaker(o.seed)}
}

// Generate implements infotype.Generator
func (g *EmailGenerator) Generate() string {
	return g.faker.do(func(f *gofakeit.Faker) string {
		return f.Email()
	})
}

// None returns a generator that always yields an empty value
func None() infotype.Generator {
	return infotype.GeneratorFunc(func() string { return "" })
}

// Static returns a generator that always yields value
func Static(value string) infotype.Generator {
	return infotype.GeneratorFunc(func() string { return value })
}
