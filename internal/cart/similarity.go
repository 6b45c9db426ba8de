package cart

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// stopWords are packaging and filler words that carry no product
// identity and are stripped before similarity scoring.
var stopWords = map[string]struct{}{
	"can": {}, "bottle": {}, "box": {}, "pack": {}, "container": {},
	"the": {}, "a": {}, "an": {}, "grab": {}, "go": {}, "snack": {},
	"potato": {}, "crisps": {},
}

// brandTokens are well-known brand words; two names sharing one are
// scored as same-brand variants rather than distinct products.
var brandTokens = []string{"pringles", "coca-cola", "coke", "diet", "ensure"}

// brandAliases maps lowercase brand variants to the canonical brand.
// Matching is by substring, longest-effect aliases first is not needed
// because all variants of one brand map to the same canonical name.
var brandAliases = map[string]string{
	"coca-cola":             "Coca-Cola",
	"coca cola":             "Coca-Cola",
	"coke":                  "Coca-Cola",
	"diet coke":             "Coca-Cola",
	"coca-cola (diet coke)": "Coca-Cola",
	"pringles":              "Pringles",
	"pringle":               "Pringles",
	"ensure":                "Ensure",
}

var titleCaser = cases.Title(language.English)

// NormalizeBrand maps brand name variants onto a canonical form so the
// same brand never produces sibling cart entries. Blank and
// unidentified brands normalize to "Unknown".
func NormalizeBrand(brand string) string {
	trimmed := strings.TrimSpace(brand)
	lower := strings.ToLower(trimmed)
	if lower == "" || lower == "unknown" || lower == "n/a" || lower == "uncertain" {
		return "Unknown"
	}

	for alias, canonical := range brandAliases {
		if strings.Contains(lower, alias) {
			return canonical
		}
	}

	return titleCaser.String(trimmed)
}

// NameSimilarity scores how alike two product names are, in [0, 1].
// Stop words are removed, then token-set overlap is computed. Names
// sharing a known brand token are treated as same-brand variants: a
// 0.9 floor when no product tokens remain, otherwise core-token
// overlap boosted by 0.3 and capped at 0.95.
func NameSimilarity(name1, name2 string) float64 {
	words1 := significantTokens(name1)
	words2 := significantTokens(name2)

	if len(words1) == 0 || len(words2) == 0 {
		return 0.0
	}

	if sharesBrandToken(words1, words2) {
		core1 := excludeBrandTokens(words1)
		core2 := excludeBrandTokens(words2)
		if len(core1) == 0 || len(core2) == 0 {
			return 0.9
		}
		similarity := tokenOverlap(core1, core2) + 0.3
		if similarity > 0.95 {
			similarity = 0.95
		}
		return similarity
	}

	return tokenOverlap(words1, words2)
}

func significantTokens(name string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(name)) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		tokens[w] = struct{}{}
	}
	return tokens
}

func sharesBrandToken(a, b map[string]struct{}) bool {
	for _, brand := range brandTokens {
		_, inA := a[brand]
		_, inB := b[brand]
		if inA && inB {
			return true
		}
	}
	return false
}

func excludeBrandTokens(tokens map[string]struct{}) map[string]struct{} {
	core := make(map[string]struct{}, len(tokens))
	for w := range tokens {
		core[w] = struct{}{}
	}
	for _, brand := range brandTokens {
		delete(core, brand)
	}
	return core
}

func tokenOverlap(a, b map[string]struct{}) float64 {
	overlap := 0
	for w := range a {
		if _, ok := b[w]; ok {
			overlap++
		}
	}
	union := len(a) + len(b) - overlap
	if union == 0 {
		return 0.0
	}
	return float64(overlap) / float64(union)
}
