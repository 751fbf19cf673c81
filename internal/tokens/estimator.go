package tokens

import (
	"math"
	"strings"
)

const (
	// DefaultLimit is the context limit assumed for unknown models.
	DefaultLimit = 8192

	// DefaultSafetyMarginPercent leaves headroom for the prompt scaffolding
	// and the response itself.
	DefaultSafetyMarginPercent = 80

	wideCharsPerToken   = 1.5
	narrowCharsPerToken = 4
)

// DefaultLimits returns the built-in model context limit table. Callers may
// pass their own table via WithLimits; the returned map is a fresh copy.
func DefaultLimits() map[string]int {
	return map[string]int{
		"gpt-4o":                128000,
		"gpt-4o-mini":           128000,
		"gpt-4-turbo":           128000,
		"gpt-4.1":               1000000,
		"gpt-4":                 8192,
		"gpt-3.5-turbo":         16385,
		"o1":                    200000,
		"o3-mini":               200000,
		"claude-3-5-sonnet":     200000,
		"claude-3-5-haiku":      200000,
		"claude-sonnet-4":       200000,
		"claude-opus-4":         200000,
		"claude-haiku-4-5":      200000,
		"gemini-2.0-flash":      1048576,
		"gemini-2.0-flash-lite": 1048576,
		"gemini-2.5-flash":      1048576,
		"gemini-2.5-pro":        1048576,
		"gemini-1.5-pro":        2097152,
		"llama3.3":              128000,
		"llama3.1":              128000,
		"qwen2.5-coder":         32768,
		"deepseek-coder-v2":     128000,
		"mistral-large":         128000,
	}
}

// Estimator converts text into approximate token counts and knows the
// effective context budget for one model.
type Estimator struct {
	model         string
	customLimit   int
	marginPercent int
	limits        map[string]int
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithCustomLimit overrides the model limit table with an explicit raw limit.
// Non-positive values are ignored.
func WithCustomLimit(limit int) Option {
	return func(e *Estimator) { e.customLimit = limit }
}

// WithSafetyMargin sets the percentage of the raw limit that is usable.
func WithSafetyMargin(percent int) Option {
	return func(e *Estimator) {
		if percent > 0 && percent <= 100 {
			e.marginPercent = percent
		}
	}
}

// WithLimits replaces the model limit table.
func WithLimits(limits map[string]int) Option {
	return func(e *Estimator) {
		if limits != nil {
			e.limits = limits
		}
	}
}

// NewEstimator creates an Estimator for the given model name.
func NewEstimator(model string, opts ...Option) *Estimator {
	e := &Estimator{
		model:         model,
		marginPercent: DefaultSafetyMarginPercent,
		limits:        DefaultLimits(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns the approximate token count for text. Empty text is 0.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	var wide, narrow int
	for _, r := range text {
		if isWide(r) {
			wide++
		} else {
			narrow++
		}
	}
	return int(math.Ceil(float64(wide)/wideCharsPerToken)) +
		int(math.Ceil(float64(narrow)/narrowCharsPerToken))
}

// EffectiveLimit returns the usable token budget: the raw model limit scaled
// down by the safety margin.
func (e *Estimator) EffectiveLimit() int {
	raw := e.customLimit
	if raw <= 0 {
		raw = e.ModelLimit(e.model)
	}
	return raw * e.marginPercent / 100
}

// NeedsSplit reports whether text exceeds the effective limit.
func (e *Estimator) NeedsSplit(text string) bool {
	return e.Estimate(text) > e.EffectiveLimit()
}

// ModelLimit looks up the raw context limit for a model name. Exact match
// first, then a case-insensitive substring match in either direction so that
// dated or vendor-prefixed variants resolve to their base entry. Unknown
// models get DefaultLimit.
func (e *Estimator) ModelLimit(name string) int {
	if name == "" {
		return DefaultLimit
	}
	if limit, ok := e.limits[name]; ok {
		return limit
	}
	// Prefer the longest matching table key so "gpt-4o-2024-05-13" resolves
	// to "gpt-4o" rather than "gpt-4".
	lower := strings.ToLower(name)
	best := ""
	bestLimit := DefaultLimit
	for known, limit := range e.limits {
		kl := strings.ToLower(known)
		if strings.Contains(lower, kl) || strings.Contains(kl, lower) {
			if len(kl) > len(best) {
				best = kl
				bestLimit = limit
			}
		}
	}
	return bestLimit
}

// isWide classifies runes that tokenize densely: CJK ideographs, kana, CJK
// symbols and punctuation, and fullwidth forms.
func isWide(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF: // CJK extension A
		return true
	case r >= 0x3040 && r <= 0x30FF: // hiragana, katakana
		return true
	case r >= 0x3000 && r <= 0x303F: // CJK symbols and punctuation
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // fullwidth and halfwidth forms
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // hangul syllables
		return true
	}
	return false
}
