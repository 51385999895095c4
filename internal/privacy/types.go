package privacy

import "github.com/raaihank/redacted/internal/matcher"

// Masking types
const (
	MaskingMask          = "mask"
	MaskingDeterministic = "deterministic"
	MaskingSynthetic     = "synthetic"
)

// AllDetectors enables every registered info type
const AllDetectors = "all"

// typePlaceholder is substituted in the masking format
const typePlaceholder = "{{TYPE}}"

// Finding represents the detections for one info type
type Finding struct {
	EntityType string             `json:"entityType"`
	Masked     string             `json:"masked"`
	Count      int                `json:"count"`
	Unique     int                `json:"unique"`
	Positions  []matcher.Position `json:"positions,omitempty"`
}

// ProcessResult contains the result of processing text through the redactor
type ProcessResult struct {
	MaskedText string    `json:"maskedText"`
	Findings   []Finding `json:"findings"`
	Original   string    `json:"-"` // Never serialize original text
}

// Counts returns occurrences per info type
func (r ProcessResult) Counts() map[string]int {
	counts := make(map[string]int, len(r.Findings))
	for _, f := range r.Findings {
		counts[f.EntityType] += f.Count
	}
	return counts
}

// HasFindings reports whether anything was masked
func (r ProcessResult) HasFindings() bool {
	return len(r.Findings) > 0
}
