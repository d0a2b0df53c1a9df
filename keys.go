package relay

import (
	"sort"
	"strings"
	"unicode"
)

// Canonical flag keys may contain word separators ("dark-mode",
// "beta_checkout"). Lookups also accept the separator-free alternate
// form ("darkMode", "betaCheckout").

func isKeySeparator(r rune) bool {
	return r == '-' || r == '_'
}

// alternateKey removes separators from key and upper-cases the letter
// that followed each removed separator.
func alternateKey(key string) string {
	if !hasSeparators(key) {
		return key
	}
	var b strings.Builder
	b.Grow(len(key))
	upperNext := false
	for _, r := range key {
		if isKeySeparator(r) {
			upperNext = true
			continue
		}
		if upperNext {
			r = unicode.ToUpper(r)
			upperNext = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hasSeparators(key string) bool {
	return strings.ContainsFunc(key, isKeySeparator)
}

// resolveCanonicalKey maps a lookup key to the canonical key stored in
// the snapshot. An exact canonical match always wins. Otherwise the
// snapshot keys are scanned in sorted order for one whose alternate
// form equals the lookup key, so that a collision between two canonical
// keys resolves to the same winner on every run.
func resolveCanonicalKey(lookup string, snapshot Snapshot) (string, bool) {
	if _, ok := snapshot[lookup]; ok {
		return lookup, true
	}
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if alternateKey(k) == lookup {
			return k, true
		}
	}
	return "", false
}
