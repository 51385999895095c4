package matcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/raaihank/redacted/internal/infotype"
)

func passport() *infotype.InfoType {
	return infotype.New("AusPassport", `[A-Z][0-9]{7}`, false, nil)
}

func longDigit() *infotype.InfoType {
	return infotype.New("LongDigit", `\d{8}`, false, nil)
}

func TestCompile_CombinedPattern(t *testing.T) {
	m, err := Compile([]*infotype.InfoType{
		passport(),
		infotype.New("Bounded", `x+`, true, nil),
	})
	require.NoError(t, err)

	assert.Equal(t, `(?P<AusPassport>(?:[A-Z][0-9]{7}))|(?P<Bounded>\b(?:x+))`, m.Pattern())
	assert.Equal(t, []string{"AusPassport", "Bounded"}, m.GroupNames())
	assert.Len(t, m.InfoTypes(), 2)
}

func TestCompile_Empty(t *testing.T) {
	m, err := Compile(nil)
	require.NoError(t, err)
	assert.Empty(t, m.GroupNames())

	matches := m.Scan("A1234567")
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		types []*infotype.InfoType
	}{
		{
			name:  "duplicate names",
			types: []*infotype.InfoType{infotype.New("Dup", `a`, false, nil), infotype.New("Dup", `b`, false, nil)},
		},
		{
			name:  "invalid group name",
			types: []*infotype.InfoType{infotype.New("not valid", `a`, false, nil)},
		},
		{
			name:  "invalid standalone pattern",
			types: []*infotype.InfoType{infotype.New("Broken", `(`, false, nil)},
		},
		{
			name:  "pattern breaks when wrapped",
			types: []*infotype.InfoType{infotype.New("Quoted", `\Qabc`, false, nil)},
		},
		{
			name: "nested group collides with info type name",
			types: []*infotype.InfoType{
				infotype.New("Outer", `(?P<Inner>a)b`, false, nil),
				infotype.New("Inner", `c`, false, nil),
			},
		},
		{
			name:  "nil info type",
			types: []*infotype.InfoType{nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.types)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, ErrCompilation))

			var compErr *CompilationError
			assert.True(t, errors.As(err, &compErr))
		})
	}
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustCompile([]*infotype.InfoType{infotype.New("Dup", `a`, false, nil), infotype.New("Dup", `a`, false, nil)})
	})
}

func TestScan_SingleMatch(t *testing.T) {
	pp := passport()
	m := MustCompile([]*infotype.InfoType{pp})

	matches := m.Scan("ref A1234567 end")
	require.Len(t, matches, 1)
	assert.Equal(t, "A1234567", matches[0].Text)
	assert.Equal(t, []Position{{Start: 4, End: 12}}, matches[0].Positions)
	assert.Same(t, pp, matches[0].InfoType)
	assert.Equal(t, "AusPassport", matches[0].InfoTypeName())
}

func TestScan_TwoInfoTypes(t *testing.T) {
	m := MustCompile([]*infotype.InfoType{passport(), longDigit()})

	text := "A1234567 and 12345678"
	matches := m.Scan(text)
	require.Len(t, matches, 2)

	assert.Equal(t, "A1234567", matches[0].Text)
	assert.Equal(t, "AusPassport", matches[0].InfoTypeName())
	assert.Equal(t, []Position{{Start: 0, End: 8}}, matches[0].Positions)

	assert.Equal(t, "12345678", matches[1].Text)
	assert.Equal(t, "LongDigit", matches[1].InfoTypeName())
	assert.Equal(t, []Position{{Start: 13, End: 21}}, matches[1].Positions)
}

func TestScan_RepeatedValueMerged(t *testing.T) {
	m := MustCompile([]*infotype.InfoType{passport()})

	text := "A1234567 twice A1234567"
	matches := m.Scan(text)
	require.Len(t, matches, 1)
	assert.Equal(t, []Position{{Start: 0, End: 8}, {Start: 15, End: 23}}, matches[0].Positions)
	for _, p := range matches[0].Positions {
		assert.Equal(t, "A1234567", text[p.Start:p.End])
	}
}

func TestScan_NoMatches(t *testing.T) {
	m := MustCompile([]*infotype.InfoType{passport(), longDigit()})

	matches := m.Scan("hello world")
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestScan_DeclarationOrderBreaksTies(t *testing.T) {
	first := infotype.New("First", `[0-9]{4}`, false, nil)
	second := infotype.New("Second", `\d{4}`, false, nil)

	m := MustCompile([]*infotype.InfoType{first, second})
	for i := 0; i < 10; i++ {
		matches := m.Scan("pin 1234")
		require.Len(t, matches, 1)
		assert.Same(t, first, matches[0].InfoType)
	}

	reversed := MustCompile([]*infotype.InfoType{second, first})
	matches := reversed.Scan("pin 1234")
	require.Len(t, matches, 1)
	assert.Same(t, second, matches[0].InfoType)
}

func TestScan_FirstClassificationWinsForRepeatedValue(t *testing.T) {
	bounded := infotype.New("Bounded", `abc`, true, nil)
	loose := infotype.New("Loose", `abc`, false, nil)
	m := MustCompile([]*infotype.InfoType{bounded, loose})

	// "abc" at 0 starts on a word boundary; inside "xabc" it does not
	matches := m.Scan("abc xabc abc")
	require.Len(t, matches, 1)
	assert.Same(t, bounded, matches[0].InfoType)
	assert.Len(t, matches[0].Positions, 3)

	matches = m.Scan("xabc abc")
	require.Len(t, matches, 1)
	assert.Same(t, loose, matches[0].InfoType)
	assert.Equal(t, []Position{{Start: 1, End: 4}, {Start: 5, End: 8}}, matches[0].Positions)
}

func TestScan_WordBoundary(t *testing.T) {
	m := MustCompile([]*infotype.InfoType{infotype.New("Code", `[0-9]{4}`, true, nil)})

	matches := m.Scan("x1234 5678")
	require.Len(t, matches, 1)
	assert.Equal(t, "5678", matches[0].Text)
}

func TestScan_MatchedTextWithMetacharacters(t *testing.T) {
	money := infotype.New("Money", `\$[0-9]+\.[0-9]{2}`, false, nil)
	paren := infotype.New("Ref", `\([A-Z]+\)\*`, false, nil)
	m := MustCompile([]*infotype.InfoType{money, paren})

	text := "paid $12.50 for (ABC)* and $12.50 again"
	matches := m.Scan(text)
	require.Len(t, matches, 2)

	assert.Equal(t, "$12.50", matches[0].Text)
	assert.Same(t, money, matches[0].InfoType)
	assert.Len(t, matches[0].Positions, 2)

	assert.Equal(t, "(ABC)*", matches[1].Text)
	assert.Same(t, paren, matches[1].InfoType)
}

func TestScan_NestedGroupsDoNotConfuseClassification(t *testing.T) {
	plate := infotype.New("Plate", `(([a-zA-Z0-9]{3})([\s,-.]?)([a-zA-Z0-9]{3}))`, false, nil)
	named := infotype.New("Named", `(?P<prefix>ID)-(?P<num>[0-9]+)`, false, nil)
	digits := infotype.New("Digits", `[0-9]{9}`, false, nil)
	m := MustCompile([]*infotype.InfoType{named, plate, digits})

	matches := m.Scan("ID-42; ABC-123; 123456789")
	require.Len(t, matches, 3)
	assert.Same(t, named, matches[0].InfoType)
	assert.Equal(t, "ID-42", matches[0].Text)
	assert.Same(t, plate, matches[1].InfoType)
	assert.Equal(t, "ABC-123", matches[1].Text)
	assert.Same(t, plate, matches[2].InfoType, "plate is declared first and matches the first six digits")
	assert.Equal(t, "123456", matches[2].Text)
}

func TestScan_EmptyOccurrencesSkipped(t *testing.T) {
	m := MustCompile([]*infotype.InfoType{infotype.New("Stars", `\**`, false, nil)})

	matches := m.Scan("a**b")
	require.Len(t, matches, 1)
	assert.Equal(t, "**", matches[0].Text)
}

func TestScan_ByteOffsetsWithMultibyteText(t *testing.T) {
	m := MustCompile([]*infotype.InfoType{passport()})

	text := "né A1234567 ü"
	matches := m.Scan(text)
	require.Len(t, matches, 1)
	p := matches[0].Positions[0]
	assert.Equal(t, 4, p.Start)
	assert.Equal(t, "A1234567", text[p.Start:p.End])
}

func TestScan_ConcurrentUse(t *testing.T) {
	m := MustCompile([]*infotype.InfoType{passport(), longDigit()})
	text := strings.Repeat("A1234567 and 12345678 ", 20)
	want := m.Scan(text)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.Equal(t, want, m.Scan(text))
			}
		}()
	}
	wg.Wait()
}

var patternPool = []string{
	`[A-Z][0-9]{7}`,
	`\d{8}`,
	`[0-9]{3}( ?)[0-9]{3}[0-9]{2,3}`,
	`[a-z]+@[a-z]+\.com`,
	`x+`,
	`(ab|cd)[0-9]`,
	`\$[0-9]+`,
}

func drawInfoTypes(t *rapid.T) []*infotype.InfoType {
	n := rapid.IntRange(1, 6).Draw(t, "count")
	types := make([]*infotype.InfoType, n)
	for i := range types {
		pattern := rapid.SampledFrom(patternPool).Draw(t, fmt.Sprintf("pattern%d", i))
		boundary := rapid.Bool().Draw(t, fmt.Sprintf("boundary%d", i))
		types[i] = infotype.New(fmt.Sprintf("T%d", i), pattern, boundary, nil)
	}
	return types
}

func drawText(t *rapid.T) string {
	alphabet := []rune("A1234567890 xab@cd.com$é")
	return rapid.StringOfN(rapid.SampledFrom(alphabet), 0, 80, -1).Draw(t, "text")
}

func TestProperty_GroupNamesMatchInfoTypes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		types := drawInfoTypes(t)
		m, err := Compile(types)
		if err != nil {
			t.Fatalf("compile failed: %v", err)
		}
		if len(m.GroupNames()) != len(types) {
			t.Fatalf("got %d group names, want %d", len(m.GroupNames()), len(types))
		}
	})
}

func TestProperty_PositionsAreExactOccurrences(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := MustCompile(drawInfoTypes(t))
		text := drawText(t)

		seen := make(map[string]bool)
		for _, match := range m.Scan(text) {
			if match.Text == "" {
				t.Fatalf("empty match text")
			}
			if seen[match.Text] {
				t.Fatalf("substring %q reported twice", match.Text)
			}
			seen[match.Text] = true
			if len(match.Positions) == 0 {
				t.Fatalf("match %q has no positions", match.Text)
			}
			for _, p := range match.Positions {
				if p.Start < 0 || p.Start > p.End || p.End > len(text) {
					t.Fatalf("position %+v out of range for text of length %d", p, len(text))
				}
				if text[p.Start:p.End] != match.Text {
					t.Fatalf("text[%d:%d]=%q, want %q", p.Start, p.End, text[p.Start:p.End], match.Text)
				}
			}
		}
	})
}

func TestProperty_ScanIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := MustCompile(drawInfoTypes(t))
		text := drawText(t)

		first := m.Scan(text)
		second := m.Scan(text)
		if len(first) != len(second) {
			t.Fatalf("match counts differ: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i].Text != second[i].Text || first[i].InfoType != second[i].InfoType ||
				fmt.Sprint(first[i].Positions) != fmt.Sprint(second[i].Positions) {
				t.Fatalf("match %d differs between runs", i)
			}
		}
	})
}

func TestProperty_RepeatedSubstringHasAllPositions(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := MustCompile([]*infotype.InfoType{passport()})
		repeats := rapid.IntRange(1, 10).Draw(t, "repeats")
		sep := rapid.SampledFrom([]string{" ", " and ", ", ", "\n"}).Draw(t, "sep")

		parts := make([]string, repeats)
		for i := range parts {
			parts[i] = "Z7654321"
		}
		matches := m.Scan(strings.Join(parts, sep))
		if len(matches) != 1 {
			t.Fatalf("got %d matches, want 1", len(matches))
		}
		if len(matches[0].Positions) != repeats {
			t.Fatalf("got %d positions, want %d", len(matches[0].Positions), repeats)
		}
	})
}
