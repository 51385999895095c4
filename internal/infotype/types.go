package infotype

// Generator produces a synthetic value approximating an info type's pattern.
// Implementations are best effort and may return an empty string.
type Generator interface {
	Generate() string
}

// GeneratorFunc adapts a plain function to the Generator interface
type GeneratorFunc func() string

// Generate calls f
func (f GeneratorFunc) Generate() string {
	return f()
}

// InfoType identifies one detectable category of sensitive data.
// Values are immutable once created and are shared by pointer between the
// registry, compiled matchers and match results.
type InfoType struct {
	name         string
	pattern      string
	wordBoundary bool
	generator    Generator
}

// New creates an info type. Validation happens when it is registered.
func New(name, pattern string, wordBoundary bool, gen Generator) *InfoType {
	return &InfoType{
		name:         name,
		pattern:      pattern,
		wordBoundary: wordBoundary,
		generator:    gen,
	}
}

// Name returns the unique identifier, also used as the capture group name
func (t *InfoType) Name() string { return t.name }

// Pattern returns the regular expression source
func (t *InfoType) Pattern() string { return t.pattern }

// WordBoundary reports whether matches must start on a word boundary
func (t *InfoType) WordBoundary() bool { return t.wordBoundary }

// Generator returns the synthetic value generator, which may be nil
func (t *InfoType) Generator() Generator { return t.generator }

// Generate returns a synthetic value for this info type. A missing or
// failing generator yields an empty string.
func (t *InfoType) Generate() (value string) {
	if t.generator == nil {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			value = ""
		}
	}()

	return t.generator.Generate()
}

// String implements fmt.Stringer
func (t *InfoType) String() string {
	return t.name
}
