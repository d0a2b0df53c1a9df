package relay

import "testing"

func TestAlternateKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"dark-mode", "darkMode"},
		{"beta_checkout", "betaCheckout"},
		{"multi-word-flag-name", "multiWordFlagName"},
		{"mixed_sep-styles", "mixedSepStyles"},
		{"plain", "plain"},
		{"", ""},
		{"-leading", "Leading"},
		{"trailing-", "trailing"},
		{"double--dash", "doubleDash"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := alternateKey(tt.key); got != tt.want {
				t.Errorf("alternateKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestHasSeparators(t *testing.T) {
	if !hasSeparators("dark-mode") || !hasSeparators("a_b") {
		t.Error("expected separators to be detected")
	}
	if hasSeparators("plain") || hasSeparators("") {
		t.Error("expected no separators")
	}
}

func TestResolveCanonicalKey(t *testing.T) {
	snap := Snapshot{
		"dark-mode": {Key: "dark-mode"},
		"darkMode":  {Key: "darkMode"},
		"plain":     {Key: "plain"},
	}

	// Exact canonical match wins even when an alternate form collides.
	got, ok := resolveCanonicalKey("darkMode", snap)
	if !ok || got != "darkMode" {
		t.Errorf("resolveCanonicalKey(darkMode) = %q, %v", got, ok)
	}

	got, ok = resolveCanonicalKey("dark-mode", snap)
	if !ok || got != "dark-mode" {
		t.Errorf("resolveCanonicalKey(dark-mode) = %q, %v", got, ok)
	}

	if _, ok := resolveCanonicalKey("missing", snap); ok {
		t.Error("expected no match for missing key")
	}
}

func TestResolveCanonicalKeyAlternateForm(t *testing.T) {
	snap := Snapshot{"beta_checkout": {Key: "beta_checkout"}}
	got, ok := resolveCanonicalKey("betaCheckout", snap)
	if !ok || got != "beta_checkout" {
		t.Errorf("resolveCanonicalKey(betaCheckout) = %q, %v", got, ok)
	}
}

// Two canonical keys sharing an alternate form must resolve to the same
// winner on every call: the lexicographically first canonical key.
func TestResolveCanonicalKeyAmbiguityDeterministic(t *testing.T) {
	snap := Snapshot{
		"dark_mode": {Key: "dark_mode"},
		"dark-mode": {Key: "dark-mode"},
	}
	for i := 0; i < 50; i++ {
		got, ok := resolveCanonicalKey("darkMode", snap)
		if !ok || got != "dark-mode" {
			t.Fatalf("resolveCanonicalKey(darkMode) = %q, %v; want dark-mode", got, ok)
		}
	}
}
