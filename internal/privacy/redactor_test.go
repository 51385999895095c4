package privacy

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/raaihank/redacted/internal/catalog"
	"github.com/raaihank/redacted/internal/config"
	"github.com/raaihank/redacted/internal/generator"
	"github.com/raaihank/redacted/internal/infotype"
	"github.com/raaihank/redacted/internal/logger"
)

func testRegistry(t *testing.T) *infotype.Registry {
	t.Helper()
	reg := infotype.NewRegistry()
	require.NoError(t, reg.RegisterAll([]*infotype.InfoType{
		infotype.New("AusPassport", `[A-Z][0-9]{7}`, false, generator.Static("Z9999999")),
		infotype.New("LongDigit", `\d{8}`, false, nil),
	}))
	reg.Freeze()
	return reg
}

func testConfig(maskingType string) config.PrivacyConfig {
	return config.PrivacyConfig{
		Enabled:   true,
		Detectors: []string{AllDetectors},
		Masking:   config.MaskingConfig{Type: maskingType, Format: "[MASKED_{{TYPE}}]"},
	}
}

func newRedactor(t *testing.T, cfg config.PrivacyConfig) *Redactor {
	t.Helper()
	r, err := New(cfg, testRegistry(t), logger.NewNop())
	require.NoError(t, err)
	return r
}

func TestProcessText_Mask(t *testing.T) {
	r := newRedactor(t, testConfig(MaskingMask))

	result := r.ProcessText("A1234567 and 12345678 then A1234567")

	assert.Equal(t, "[MASKED_AUSPASSPORT] and [MASKED_LONGDIGIT] then [MASKED_AUSPASSPORT]", result.MaskedText)
	require.Len(t, result.Findings, 2)

	assert.Equal(t, "AusPassport", result.Findings[0].EntityType)
	assert.Equal(t, 2, result.Findings[0].Count)
	assert.Equal(t, 1, result.Findings[0].Unique)
	assert.Equal(t, 0, result.Findings[0].Positions[0].Start)
	assert.Equal(t, 27, result.Findings[0].Positions[1].Start)

	assert.Equal(t, "LongDigit", result.Findings[1].EntityType)
	assert.Equal(t, 1, result.Findings[1].Count)

	assert.Equal(t, map[string]int{"AusPassport": 2, "LongDigit": 1}, result.Counts())
	assert.True(t, result.HasFindings())
}

func TestProcessText_NoFindings(t *testing.T) {
	r := newRedactor(t, testConfig(MaskingMask))

	result := r.ProcessText("nothing to see")
	assert.Equal(t, "nothing to see", result.MaskedText)
	assert.NotNil(t, result.Findings)
	assert.Empty(t, result.Findings)
	assert.False(t, result.HasFindings())
}

func TestProcessText_Disabled(t *testing.T) {
	cfg := testConfig(MaskingMask)
	cfg.Enabled = false
	r := newRedactor(t, cfg)

	result := r.ProcessText("A1234567")
	assert.Equal(t, "A1234567", result.MaskedText)
	assert.Empty(t, result.Findings)
	assert.Empty(t, r.Scan("A1234567"))
}

func TestProcessText_Deterministic(t *testing.T) {
	r := newRedactor(t, testConfig(MaskingDeterministic))

	result := r.ProcessText("A1234567 B7654321 A1234567")
	parts := strings.Split(result.MaskedText, " ")
	require.Len(t, parts, 3)

	assert.Equal(t, parts[0], parts[2])
	assert.NotEqual(t, parts[0], parts[1])
	assert.Equal(t, "[MASKED_AUSPASSPORT_"+Token("AusPassport", "A1234567")+"]", parts[0])

	require.Len(t, result.Findings, 1)
	assert.Equal(t, 3, result.Findings[0].Count)
	assert.Equal(t, 2, result.Findings[0].Unique)
}

func TestProcessText_Synthetic(t *testing.T) {
	r := newRedactor(t, testConfig(MaskingSynthetic))

	// LongDigit has no generator so it falls back to the mask
	result := r.ProcessText("A1234567 / 12345678")
	assert.Equal(t, "Z9999999 / [MASKED_LONGDIGIT]", result.MaskedText)
	assert.False(t, r.Cacheable())
}

func TestProcessText_OriginalNotSerialized(t *testing.T) {
	r := newRedactor(t, testConfig(MaskingMask))
	result := r.ProcessText("A1234567")
	assert.Equal(t, "A1234567", result.Original)
}

func TestNew_UnknownDetector(t *testing.T) {
	cfg := testConfig(MaskingMask)
	cfg.Detectors = []string{"CreditCard"}

	_, err := New(cfg, testRegistry(t), logger.NewNop())
	assert.Error(t, err)
}

func TestEnableDisableInfoType(t *testing.T) {
	cfg := testConfig(MaskingMask)
	cfg.Detectors = []string{"LongDigit"}
	r := newRedactor(t, cfg)

	assert.Equal(t, []string{"LongDigit"}, r.EnabledInfoTypes())
	assert.Equal(t, "A1234567", r.ProcessText("A1234567").MaskedText)

	before := r.Fingerprint()
	require.NoError(t, r.EnableInfoType("AusPassport"))
	assert.Equal(t, []string{"AusPassport", "LongDigit"}, r.EnabledInfoTypes())
	assert.Equal(t, "[MASKED_AUSPASSPORT]", r.ProcessText("A1234567").MaskedText)
	assert.NotEqual(t, before, r.Fingerprint())

	require.NoError(t, r.DisableInfoType("LongDigit"))
	assert.False(t, r.IsEnabled("LongDigit"))
	assert.Equal(t, "12345678", r.ProcessText("12345678").MaskedText)

	err := r.EnableInfoType("Nope")
	assert.True(t, errors.Is(err, infotype.ErrUnknownInfoType))
}

func TestDisableAll_NeverMatches(t *testing.T) {
	cfg := testConfig(MaskingMask)
	cfg.Detectors = nil
	r := newRedactor(t, cfg)

	assert.Empty(t, r.EnabledInfoTypes())
	assert.Empty(t, r.Scan("A1234567 12345678"))
}

func TestReload(t *testing.T) {
	r := newRedactor(t, testConfig(MaskingMask))

	reg, err := catalog.Build(catalog.Defaults(catalog.DefaultLongDigitMin), catalog.Options{})
	require.NoError(t, err)

	require.NoError(t, r.Reload(reg, testConfig(MaskingMask)))
	assert.Same(t, reg, r.Registry())
	assert.Equal(t, "[MASKED_EMAIL]", r.ProcessText("jo@ex.io").MaskedText)

	// a failed reload keeps the previous state
	bad := testConfig(MaskingMask)
	bad.Detectors = []string{"Missing"}
	assert.Error(t, r.Reload(reg, bad))
	assert.Same(t, reg, r.Registry())
}

func TestFingerprint_StableForSameSettings(t *testing.T) {
	a := newRedactor(t, testConfig(MaskingMask))
	b := newRedactor(t, testConfig(MaskingMask))
	c := newRedactor(t, testConfig(MaskingDeterministic))

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestProcessText_ConcurrentWithToggle(t *testing.T) {
	r := newRedactor(t, testConfig(MaskingMask))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				result := r.ProcessText("A1234567 12345678")
				assert.NotContains(t, result.MaskedText, "12345678")
			}
		}()
	}

	for j := 0; j < 20; j++ {
		require.NoError(t, r.DisableInfoType("AusPassport"))
		require.NoError(t, r.EnableInfoType("AusPassport"))
	}
	wg.Wait()
}

func TestFingerprint_ChangesWhenEnabledFlips(t *testing.T) {
	off := testConfig(MaskingMask)
	off.Enabled = false
	r := newRedactor(t, off)

	fpOff := r.Fingerprint()
	assert.False(t, r.Cacheable())
	assert.Equal(t, "ref A1234567 end", r.ProcessText("ref A1234567 end").MaskedText)

	require.NoError(t, r.Reload(r.Registry(), testConfig(MaskingMask)))
	assert.NotEqual(t, fpOff, r.Fingerprint())
	assert.True(t, r.Cacheable())
	assert.Equal(t, "ref [MASKED_AUSPASSPORT] end", r.ProcessText("ref A1234567 end").MaskedText)
}

func TestView_FixedAcrossToggle(t *testing.T) {
	r := newRedactor(t, testConfig(MaskingMask))

	view := r.View()
	require.NoError(t, r.DisableInfoType("LongDigit"))

	assert.NotEqual(t, view.Fingerprint(), r.Fingerprint())
	assert.True(t, view.Cacheable())
	assert.Equal(t, "[MASKED_LONGDIGIT]", view.ProcessText("12345678").MaskedText)
	assert.Equal(t, "12345678", r.ProcessText("12345678").MaskedText)
	assert.Equal(t, "12345678", r.View().ProcessText("12345678").MaskedText)
}

func TestProcessText_LogsOncePerFinding(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r, err := New(testConfig(MaskingMask), testRegistry(t), logger.Wrap(zap.New(core)))
	require.NoError(t, err)

	r.ProcessText("A1234567 12345678 A1234567 B7654321")

	entries := logs.FilterMessage("PII detected and masked").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "AusPassport", entries[0].ContextMap()["entity_type"])
	assert.Equal(t, int64(3), entries[0].ContextMap()["count"])
	assert.Equal(t, "LongDigit", entries[1].ContextMap()["entity_type"])
}
