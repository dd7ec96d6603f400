package i18n

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := map[string]Lang{
		"":               English,
		"en":             English,
		"nl-NL":          Dutch,
		"NL":             Dutch,
		"de-AT":          German,
		"pl":             Polish,
		"fr":             English,
		"not a tag!!":    English,
		"fr-FR,nl;q=0.8": Dutch,
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEveryLanguageHasEveryText(t *testing.T) {
	for _, l := range Supported {
		for key := range texts[Default] {
			if texts[l][key] == "" {
				t.Fatalf("%s missing %s", l, key)
			}
		}
	}
}

func TestTInterpolates(t *testing.T) {
	got := T(Dutch, LocationWithTrailer, "trailer", "TR9", "location", "P12")
	if !strings.Contains(got, "TR9") || !strings.Contains(got, "P12") || strings.Contains(got, "{") {
		t.Fatalf("bad interpolation: %q", got)
	}
}
