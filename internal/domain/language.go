package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// MaxSpellingLanguages caps how many languages a single job may mix in the
// OCR spelling pass. Extra codes beyond the cap are dropped, not rejected.
const MaxSpellingLanguages = 3

// supportedSpelling mirrors the language packs installed on the engine.
var supportedSpelling = map[string]struct{}{
	"pt": {}, "en": {}, "es": {}, "fr": {}, "de": {},
	"zh": {}, "ja": {}, "it": {}, "ru": {}, "ko": {},
}

// ParseSpellingLanguages canonicalizes user-supplied language codes to the
// base codes the engine understands. Region subtags collapse to their base
// ("pt-BR" becomes "pt"), duplicates are removed preserving order and at most
// MaxSpellingLanguages survive. Unknown or unsupported codes are rejected.
func ParseSpellingLanguages(codes []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{}, len(codes))
	for _, raw := range codes {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, raw)
		}
		base, _ := tag.Base()
		code := base.String()
		if _, ok := supportedSpelling[code]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, raw)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
		if len(out) == MaxSpellingLanguages {
			break
		}
	}
	return out, nil
}
