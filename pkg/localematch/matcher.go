package localematch

// MatcherConfig carries the model-side policy knobs for locale matching.
type MatcherConfig struct {
	// HandleUnknownAsSupported makes the designated unknown ("und") locale
	// count as supported.
	HandleUnknownAsSupported bool

	// HandleMissingAsSupported makes an empty candidate locale list count as
	// supported.
	HandleMissingAsSupported bool
}

// Matcher compares candidate locales against a model's declared supported
// locales. It is immutable and safe for concurrent use.
type Matcher struct {
	supported []Locale
	cfg       MatcherConfig
}

// NewMatcher builds a matcher from the model's declared locale list.
func NewMatcher(supported []Locale, cfg MatcherConfig) *Matcher {
	return &Matcher{supported: supported, cfg: cfg}
}

// IsSupported reports whether a single candidate locale is supported by the
// model. An invalid locale never matches. The candidate matches when any
// declared locale matches it component-wise: a model component matches when it
// is empty, the wildcard, or equal to the candidate component; for script and
// region only, an empty candidate component also matches.
func (m *Matcher) IsSupported(locale Locale) bool {
	if !locale.IsValid() {
		return false
	}
	if locale.IsUnknown() {
		return m.cfg.HandleUnknownAsSupported
	}
	for _, supported := range m.supported {
		if !supported.IsValid() {
			continue
		}
		languageMatches := supported.Language == "" ||
			supported.Language == Wildcard ||
			supported.Language == locale.Language
		scriptMatches := supported.Script == "" ||
			supported.Script == Wildcard ||
			locale.Script == "" ||
			supported.Script == locale.Script
		regionMatches := supported.Region == "" ||
			supported.Region == Wildcard ||
			locale.Region == "" ||
			supported.Region == locale.Region
		if languageMatches && scriptMatches && regionMatches {
			return true
		}
	}
	return false
}

// IsAnySupported reports whether any of the candidate locales is supported.
// An empty list is governed by HandleMissingAsSupported.
func (m *Matcher) IsAnySupported(locales []Locale) bool {
	if len(locales) == 0 {
		return m.cfg.HandleMissingAsSupported
	}
	for _, locale := range locales {
		if m.IsSupported(locale) {
			return true
		}
	}
	return false
}
