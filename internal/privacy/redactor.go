package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/raaihank/redacted/internal/config"
	"github.com/raaihank/redacted/internal/infotype"
	"github.com/raaihank/redacted/internal/logger"
	"github.com/raaihank/redacted/internal/matcher"
)

// Redactor scans text with the enabled info types and masks what it finds
type Redactor struct {
	mu     sync.Mutex // serialises writers; readers use state
	state  atomic.Pointer[state]
	logger *logger.Logger
}

// state is an immutable snapshot swapped on every change
type state struct {
	cfg         config.PrivacyConfig
	registry    *infotype.Registry
	enabled     map[string]bool
	matcher     *matcher.Matcher
	fingerprint string
}

// New creates a redactor over the registry's info types
func New(cfg config.PrivacyConfig, reg *infotype.Registry, log *logger.Logger) (*Redactor, error) {
	if log == nil {
		log = logger.NewNop()
	}

	r := &Redactor{logger: log.WithComponent("redactor")}
	if err := r.Reload(reg, cfg); err != nil {
		return nil, err
	}

	s := r.state.Load()
	r.logger.Info("Redactor initialized",
		zap.Int("total_info_types", reg.Len()),
		zap.Int("enabled_info_types", len(s.enabled)),
		zap.String("masking", cfg.Masking.Type),
	)

	return r, nil
}

// Reload replaces the registry and configuration. On error the previous
// state stays in effect.
func (r *Redactor) Reload(reg *infotype.Registry, cfg config.PrivacyConfig) error {
	if reg == nil {
		return fmt.Errorf("redactor requires a registry")
	}

	enabled, err := selectDetectors(reg, cfg.Detectors)
	if err != nil {
		return fmt.Errorf("failed to configure detectors: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := newState(reg, cfg, enabled)
	if err != nil {
		return err
	}
	r.state.Store(s)
	return nil
}

// selectDetectors resolves detector names to the set of enabled info types
func selectDetectors(reg *infotype.Registry, detectors []string) (map[string]bool, error) {
	enabled := make(map[string]bool)

	for _, detector := range detectors {
		if detector == AllDetectors {
			for _, name := range reg.Names() {
				enabled[name] = true
			}
			continue
		}

		if _, ok := reg.Get(detector); !ok {
			return nil, fmt.Errorf("unknown detector: %s", detector)
		}
		enabled[detector] = true
	}

	return enabled, nil
}

func newState(reg *infotype.Registry, cfg config.PrivacyConfig, enabled map[string]bool) (*state, error) {
	if cfg.Masking.Type == "" {
		cfg.Masking.Type = MaskingMask
	}
	if cfg.Masking.Format == "" {
		cfg.Masking.Format = "[MASKED_" + typePlaceholder + "]"
	}

	// Registry order is the priority order
	var types []*infotype.InfoType
	for _, t := range reg.InfoTypes() {
		if enabled[t.Name()] {
			types = append(types, t)
		}
	}

	m, err := matcher.Compile(types)
	if err != nil {
		return nil, fmt.Errorf("failed to compile info types: %w", err)
	}

	sum := sha256.Sum256([]byte(strconv.FormatBool(cfg.Enabled) + "\x00" + m.Pattern() + "\x00" + cfg.Masking.Type + "\x00" + cfg.Masking.Format))

	return &state{
		cfg:         cfg,
		registry:    reg,
		enabled:     enabled,
		matcher:     m,
		fingerprint: hex.EncodeToString(sum[:8]),
	}, nil
}

// View is a fixed snapshot of the redactor. Toggles and reloads after
// the view was taken do not affect it.
type View struct {
	state  *state
	logger *logger.Logger
}

// View returns the current snapshot
func (r *Redactor) View() View {
	return View{state: r.state.Load(), logger: r.logger}
}

// Fingerprint identifies the snapshot's detection and masking behaviour
func (v View) Fingerprint() string {
	return v.state.fingerprint
}

// Cacheable reports whether the snapshot's results are reproducible
func (v View) Cacheable() bool {
	return v.state.cacheable()
}

// ProcessText detects and masks every enabled info type in text
func (r *Redactor) ProcessText(text string) ProcessResult {
	return r.View().ProcessText(text)
}

// ProcessText detects and masks with the snapshot's info types
func (v View) ProcessText(text string) ProcessResult {
	s := v.state
	if !s.cfg.Enabled {
		return ProcessResult{
			MaskedText: text,
			Findings:   []Finding{},
			Original:   text,
		}
	}

	matches := s.matcher.Scan(text)
	if len(matches) == 0 {
		return ProcessResult{
			MaskedText: text,
			Findings:   []Finding{},
			Original:   text,
		}
	}

	type edit struct {
		pos         matcher.Position
		replacement string
	}

	var edits []edit
	findings := make([]Finding, 0, len(matches))
	byType := make(map[string]int)

	for _, m := range matches {
		name := m.InfoTypeName()
		replacement := s.replacement(m)

		for _, pos := range m.Positions {
			edits = append(edits, edit{pos: pos, replacement: replacement})
		}

		idx, ok := byType[name]
		if !ok {
			idx = len(findings)
			byType[name] = idx
			findings = append(findings, Finding{
				EntityType: name,
				Masked:     replacement,
			})
		}
		f := &findings[idx]
		f.Count += len(m.Positions)
		f.Unique++
		f.Positions = append(f.Positions, m.Positions...)
	}

	for i := range findings {
		sort.Slice(findings[i].Positions, func(a, b int) bool {
			return findings[i].Positions[a].Start < findings[i].Positions[b].Start
		})
	}

	for i := range findings {
		v.logger.Debug("PII detected and masked",
			zap.String("entity_type", findings[i].EntityType),
			zap.Int("count", findings[i].Count),
			zap.Int("unique", findings[i].Unique),
		)
	}

	// Occurrences from one scan never overlap
	sort.Slice(edits, func(a, b int) bool { return edits[a].pos.Start < edits[b].pos.Start })

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, e := range edits {
		b.WriteString(text[last:e.pos.Start])
		b.WriteString(e.replacement)
		last = e.pos.End
	}
	b.WriteString(text[last:])

	return ProcessResult{
		MaskedText: b.String(),
		Findings:   findings,
		Original:   text,
	}
}

// replacement picks the masked value for one distinct match
func (s *state) replacement(m matcher.Match) string {
	label := strings.ToUpper(m.InfoTypeName())

	switch s.cfg.Masking.Type {
	case MaskingDeterministic:
		return strings.ReplaceAll(s.cfg.Masking.Format, typePlaceholder, label+"_"+Token(m.InfoTypeName(), m.Text))
	case MaskingSynthetic:
		if m.InfoType != nil {
			if value := m.InfoType.Generate(); value != "" {
				return value
			}
		}
	}

	return strings.ReplaceAll(s.cfg.Masking.Format, typePlaceholder, label)
}

// Token returns a short stable hash of a matched value. Equal values of
// the same info type always get equal tokens.
func Token(infoType, value string) string {
	sum := sha256.Sum256([]byte(infoType + "\x00" + value))
	return hex.EncodeToString(sum[:4])
}

// Scan returns the classified matches in text without masking
func (r *Redactor) Scan(text string) []matcher.Match {
	s := r.state.Load()
	if !s.cfg.Enabled {
		return []matcher.Match{}
	}
	return s.matcher.Scan(text)
}

// EnabledInfoTypes returns the enabled info type names in priority order
func (r *Redactor) EnabledInfoTypes() []string {
	s := r.state.Load()

	var names []string
	for _, name := range s.registry.Names() {
		if s.enabled[name] {
			names = append(names, name)
		}
	}
	return names
}

// IsEnabled reports whether an info type is currently enabled
func (r *Redactor) IsEnabled(name string) bool {
	return r.state.Load().enabled[name]
}

// EnableInfoType enables a registered info type and recompiles
func (r *Redactor) EnableInfoType(name string) error {
	return r.toggle(name, true)
}

// DisableInfoType disables a registered info type and recompiles
func (r *Redactor) DisableInfoType(name string) error {
	return r.toggle(name, false)
}

func (r *Redactor) toggle(name string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	if _, ok := cur.registry.Get(name); !ok {
		return fmt.Errorf("%w: %s", infotype.ErrUnknownInfoType, name)
	}

	enabled := make(map[string]bool, len(cur.enabled)+1)
	for k, v := range cur.enabled {
		enabled[k] = v
	}
	if on {
		enabled[name] = true
	} else {
		delete(enabled, name)
	}

	next, err := newState(cur.registry, cur.cfg, enabled)
	if err != nil {
		return err
	}
	r.state.Store(next)

	if on {
		r.logger.Info("Info type enabled", zap.String("info_type", name))
	} else {
		r.logger.Info("Info type disabled", zap.String("info_type", name))
	}
	return nil
}

// Registry returns the registry currently in use
func (r *Redactor) Registry() *infotype.Registry {
	return r.state.Load().registry
}

// Pattern returns the combined pattern of the enabled info types
func (r *Redactor) Pattern() string {
	return r.state.Load().matcher.Pattern()
}

// Fingerprint identifies the current detection and masking behaviour.
// Results computed under one fingerprint are valid for another call with
// the same fingerprint, except in synthetic mode.
func (r *Redactor) Fingerprint() string {
	return r.state.Load().fingerprint
}

// Cacheable reports whether results are reproducible for the same input
// and worth storing. Passthrough results are not cached.
func (r *Redactor) Cacheable() bool {
	return r.state.Load().cacheable()
}

func (s *state) cacheable() bool {
	return s.cfg.Enabled && s.cfg.Masking.Type != MaskingSynthetic
}
