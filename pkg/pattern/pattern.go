// Package pattern implements the rule syntax used for URL rules in configuration.
//
//   - Exact (no prefix, no *): case-insensitive whole-string match.
//     "https://example.com/a" matches "HTTPS://EXAMPLE.COM/a".
//
//   - Wildcard (contains *): case-insensitive, * matches any run of characters.
//     "*doubleclick.net*" matches "https://ad.doubleclick.net/x".
//
//   - Regexp (~ prefix): case-sensitive regular expression.
//
//   - Regexp (~* prefix): case-insensitive regular expression.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the matching strategy selected by a rule's syntax
type Kind int

const (
	KindExact Kind = iota
	KindWildcard
	KindRegexp
)

func (k Kind) String() string {
	switch k {
	case KindWildcard:
		return "wildcard"
	case KindRegexp:
		return "regexp"
	default:
		return "exact"
	}
}

// Pattern is a compiled rule
type Pattern struct {
	Original string
	Kind     Kind

	// lowercased segments between wildcards; a single segment for exact rules
	segments []string
	re       *regexp.Regexp
}

// Compile parses raw once; call it at configuration load, not per match
func Compile(raw string) (*Pattern, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	p := &Pattern{Original: raw}

	switch {
	case strings.HasPrefix(raw, "~*"):
		re, err := regexp.Compile("(?i)" + raw[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid regexp pattern %q: %w", raw, err)
		}
		p.Kind, p.re = KindRegexp, re

	case strings.HasPrefix(raw, "~"):
		re, err := regexp.Compile(raw[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid regexp pattern %q: %w", raw, err)
		}
		p.Kind, p.re = KindRegexp, re

	case strings.Contains(raw, "*"):
		p.Kind = KindWildcard
		p.segments = strings.Split(strings.ToLower(raw), "*")

	default:
		p.Kind = KindExact
		p.segments = []string{strings.ToLower(raw)}
	}

	return p, nil
}

// CompileAll compiles every rule, failing on the first invalid one
func CompileAll(raws []string) ([]*Pattern, error) {
	out := make([]*Pattern, 0, len(raws))
	for _, raw := range raws {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether input satisfies the rule
func (p *Pattern) Match(input string) bool {
	if p == nil {
		return false
	}
	switch p.Kind {
	case KindRegexp:
		return p.re.MatchString(input)
	case KindWildcard:
		return matchSegments(strings.ToLower(input), p.segments)
	default:
		return strings.ToLower(input) == p.segments[0]
	}
}

// MatchAny reports whether any of patterns matches input
func MatchAny(patterns []*Pattern, input string) bool {
	for _, p := range patterns {
		if p.Match(input) {
			return true
		}
	}
	return false
}

// matchSegments checks that text starts with the first segment, ends with the
// last, and contains the middle ones in order. A * spans any characters
// including path separators.
func matchSegments(text string, segments []string) bool {
	first, last := segments[0], segments[len(segments)-1]
	if !strings.HasPrefix(text, first) {
		return false
	}
	text = text[len(first):]
	if !strings.HasSuffix(text, last) {
		return false
	}
	text = text[:len(text)-len(last)]

	for _, seg := range segments[1 : len(segments)-1] {
		i := strings.Index(text, seg)
		if i < 0 {
			return false
		}
		text = text[i+len(seg):]
	}
	return true
}
