// Package localematch parses BCP 47-style locale tags and matches them against
// a model's declared list of supported locales, including the "*" wildcard.
package localematch

import (
	"errors"
	"fmt"
	"strings"
)

// Wildcard matches any value for a locale component.
const Wildcard = "*"

var (
	// ErrInvalidLocale indicates a locale tag could not be parsed.
	ErrInvalidLocale = errors.New("invalid locale tag")
)

// Locale is a parsed language-script-region triple. Any component may be empty
// or the "*" wildcard. The zero value is the invalid locale.
type Locale struct {
	Language string
	Script   string
	Region   string

	valid   bool
	unknown bool
}

// Unknown is the designated "und" locale: valid, but carrying no information.
func Unknown() Locale {
	return Locale{Language: "und", valid: true, unknown: true}
}

// IsValid reports whether the locale was successfully parsed.
func (l Locale) IsValid() bool { return l.valid }

// IsUnknown reports whether the locale is the designated unknown ("und") tag.
func (l Locale) IsUnknown() bool { return l.unknown }

// String returns the canonical dash-separated form of the tag.
func (l Locale) String() string {
	if !l.valid {
		return ""
	}
	parts := []string{l.Language}
	if l.Script != "" {
		parts = append(parts, l.Script)
	}
	if l.Region != "" {
		parts = append(parts, l.Region)
	}
	return strings.Join(parts, "-")
}

// Parse parses a single locale tag of the form language[-script][-region].
// Both "-" and "_" separators are accepted. The wildcard "*" is allowed for
// any component. "und" parses to the unknown locale.
//
// golang.org/x/text/language is deliberately not used here: it rejects the "*"
// wildcard and empty components that the matching rules depend on.
func Parse(tag string) (Locale, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Locale{}, fmt.Errorf("%w: empty tag", ErrInvalidLocale)
	}
	if tag == "und" {
		return Unknown(), nil
	}

	parts := strings.FieldsFunc(tag, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) == 0 || len(parts) > 3 {
		return Locale{}, fmt.Errorf("%w: %q", ErrInvalidLocale, tag)
	}

	loc := Locale{valid: true}
	if !isLanguage(parts[0]) {
		return Locale{}, fmt.Errorf("%w: bad language in %q", ErrInvalidLocale, tag)
	}
	loc.Language = parts[0]

	for _, part := range parts[1:] {
		switch {
		case isScript(part) && loc.Script == "":
			loc.Script = part
		case isRegion(part) && loc.Region == "":
			loc.Region = part
		case part == Wildcard && loc.Script == "" && loc.Region == "":
			loc.Script = part
		case part == Wildcard && loc.Region == "":
			loc.Region = part
		default:
			return Locale{}, fmt.Errorf("%w: bad subtag %q in %q", ErrInvalidLocale, part, tag)
		}
	}
	return loc, nil
}

// ParseList parses a comma-separated list of locale tags. It fails on the
// first unparseable tag; an empty input yields an empty list.
func ParseList(tags string) ([]Locale, error) {
	tags = strings.TrimSpace(tags)
	if tags == "" {
		return nil, nil
	}
	var locales []Locale
	for _, tag := range strings.Split(tags, ",") {
		loc, err := Parse(tag)
		if err != nil {
			return nil, err
		}
		locales = append(locales, loc)
	}
	return locales, nil
}

func isLanguage(s string) bool {
	if s == Wildcard {
		return true
	}
	if len(s) < 2 || len(s) > 8 {
		return false
	}
	return isAlpha(s)
}

// Scripts are four letters, title case by convention ("Latn", "Hani").
func isScript(s string) bool {
	if len(s) != 4 || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}

// Regions are two letters ("US") or three digits ("419").
func isRegion(s string) bool {
	switch len(s) {
	case 2:
		return isUpperAlpha(s)
	case 3:
		return isDigits(s)
	default:
		return false
	}
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

func isUpperAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
