package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/raaihank/redacted/internal/infotype"
)

// Matcher is a compiled alternation of info type patterns. It is immutable
// and safe for concurrent use.
type Matcher struct {
	expr       *regexp.Regexp
	pattern    string
	infoTypes  []*infotype.InfoType
	groupNames []string
	// groupIndex[i] is the submatch index of infoTypes[i]'s named group
	groupIndex []int
}

// Compile merges the info types into a single alternation, one named
// capture group per info type. Earlier info types win when several could
// match at the same offset.
func Compile(infoTypes []*infotype.InfoType) (*Matcher, error) {
	m := &Matcher{
		infoTypes:  make([]*infotype.InfoType, len(infoTypes)),
		groupNames: make([]string, len(infoTypes)),
		groupIndex: make([]int, len(infoTypes)),
	}
	copy(m.infoTypes, infoTypes)

	if len(infoTypes) == 0 {
		return m, nil
	}

	seen := make(map[string]bool, len(infoTypes))
	var builder strings.Builder
	next := 1

	for i, t := range infoTypes {
		if t == nil {
			return nil, &CompilationError{Reason: fmt.Sprintf("info type %d is nil", i)}
		}

		name := t.Name()
		if !infotype.ValidName(name) {
			return nil, &CompilationError{Reason: fmt.Sprintf("%q is not a valid group name", name)}
		}
		if seen[name] {
			return nil, &CompilationError{Reason: fmt.Sprintf("duplicate group name %q", name)}
		}
		seen[name] = true

		sub, err := regexp.Compile(t.Pattern())
		if err != nil {
			return nil, &CompilationError{
				Pattern: t.Pattern(),
				Reason:  fmt.Sprintf("pattern for %q does not compile", name),
				Err:     err,
			}
		}

		if i > 0 {
			builder.WriteByte('|')
		}
		builder.WriteString(subExpression(t))

		m.groupNames[i] = name
		m.groupIndex[i] = next
		next += 1 + sub.NumSubexp()
	}

	m.pattern = builder.String()

	expr, err := regexp.Compile(m.pattern)
	if err != nil {
		return nil, &CompilationError{Pattern: m.pattern, Reason: "combined pattern does not compile", Err: err}
	}

	if err := verifyLayout(expr, m.groupNames, m.groupIndex); err != nil {
		return nil, &CompilationError{Pattern: m.pattern, Reason: err.Error()}
	}

	m.expr = expr
	return m, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(infoTypes []*infotype.InfoType) *Matcher {
	m, err := Compile(infoTypes)
	if err != nil {
		panic(err)
	}
	return m
}

// subExpression renders one alternative: (?P<name>\b(?:pattern))
func subExpression(t *infotype.InfoType) string {
	var b strings.Builder
	b.WriteString("(?P<")
	b.WriteString(t.Name())
	b.WriteByte('>')
	if t.WordBoundary() {
		b.WriteString(`\b`)
	}
	b.WriteString("(?:")
	b.WriteString(t.Pattern())
	b.WriteString("))")
	return b.String()
}

// verifyLayout checks that every info type group sits where it was
// expected and that no nested group reuses an info type name
func verifyLayout(expr *regexp.Regexp, names []string, index []int) error {
	subNames := expr.SubexpNames()

	expected := make(map[int]string, len(names))
	for i, name := range names {
		if index[i] >= len(subNames) || subNames[index[i]] != name {
			return fmt.Errorf("group for %q not found at index %d", name, index[i])
		}
		expected[index[i]] = name
	}

	for idx, sub := range subNames {
		if sub == "" {
			continue
		}
		if _, ok := expected[idx]; ok {
			continue
		}
		for _, name := range names {
			if sub == name {
				return fmt.Errorf("nested group %q collides with an info type name", sub)
			}
		}
	}

	return nil
}

// Pattern returns the combined pattern source
func (m *Matcher) Pattern() string {
	return m.pattern
}

// GroupNames returns the capture group names in declaration order
func (m *Matcher) GroupNames() []string {
	names := make([]string, len(m.groupNames))
	copy(names, m.groupNames)
	return names
}

// InfoTypes returns the info types in declaration order
func (m *Matcher) InfoTypes() []*infotype.InfoType {
	types := make([]*infotype.InfoType, len(m.infoTypes))
	copy(types, m.infoTypes)
	return types
}
