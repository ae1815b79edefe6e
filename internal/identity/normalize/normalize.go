// Package normalize expands a raw login identifier into the closed set of
// textual variants that could represent the same identity.
//
// The rules are India-centric by convention (most accounts carry +91 phone
// numbers) but lossless: the original identifier is always preserved, and
// the output is a small closed set rather than unbounded fuzzing.
package normalize

import "strings"

// CountryCode is the default dialing prefix applied when expanding bare
// national numbers.
const CountryCode = "91"

const nationalNumberLength = 10

// Variants returns the deduplicated set of plausible equivalent forms of
// raw, in a deterministic order with raw always first.
func Variants(raw string) []string {
	raw = strings.TrimSpace(raw)
	out := make([]string, 0, 6)
	seen := make(map[string]struct{}, 6)
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(raw)

	if strings.HasPrefix(raw, "+"+CountryCode) {
		add(strings.TrimPrefix(raw, "+"+CountryCode))
		add(strings.TrimPrefix(raw, "+"))
	}

	digits := digitsOnly(raw)
	if digits == raw && len(digits) == nationalNumberLength {
		add("+" + CountryCode + digits)
		add(CountryCode + digits)
	}

	add(digits)
	if len(digits) >= nationalNumberLength {
		add("+" + CountryCode + digits[len(digits)-nationalNumberLength:])
	}

	return out
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
