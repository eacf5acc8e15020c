package domain

import (
	"errors"
	"testing"
)

func TestParseSpellingLanguagesCanonicalizes(t *testing.T) {
	got, err := ParseSpellingLanguages([]string{"pt-BR", "EN", " de "})
	if err != nil {
		t.Fatalf("ParseSpellingLanguages: %v", err)
	}
	want := []string{"pt", "en", "de"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseSpellingLanguagesDedupesAndCaps(t *testing.T) {
	got, err := ParseSpellingLanguages([]string{"en", "en-US", "pt", "de", "fr"})
	if err != nil {
		t.Fatalf("ParseSpellingLanguages: %v", err)
	}
	if len(got) != MaxSpellingLanguages {
		t.Fatalf("len = %d, want %d (%v)", len(got), MaxSpellingLanguages, got)
	}
	if got[0] != "en" || got[1] != "pt" || got[2] != "de" {
		t.Fatalf("got %v, want [en pt de]", got)
	}
}

func TestParseSpellingLanguagesRejectsUnsupported(t *testing.T) {
	// Arabic parses as a valid tag but the engine has no pack for it.
	if _, err := ParseSpellingLanguages([]string{"ar"}); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("err = %v, want ErrUnsupportedLanguage", err)
	}
	if _, err := ParseSpellingLanguages([]string{"not a tag"}); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("err = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestParseSpellingLanguagesEmptyInput(t *testing.T) {
	got, err := ParseSpellingLanguages([]string{"", "  "})
	if err != nil {
		t.Fatalf("ParseSpellingLanguages: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}
