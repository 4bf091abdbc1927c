// Package text provides name normalization and tokenization for GeneaFlow.
//
// Genealogical records arrive with accents, mixed case, and stray
// punctuation ("José María  O'Donnell-Ruíz "). Identity comparison and
// search indexing both work on a canonical lowercase ASCII form produced
// here, so every comparison in the consistency engine goes through
// Normalize first.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics decomposes to NFD, drops combining marks, and recomposes.
// "José" -> "Jose", "Müller" -> "Muller".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize converts text to its canonical search form: diacritics stripped,
// lowercased, anything outside [a-z0-9'- ] replaced with a space, whitespace
// collapsed and trimmed.
//
// Normalize is pure and total. It never fails, and it is idempotent:
// Normalize(Normalize(s)) == Normalize(s) for every s.
//
// Example:
//
//	text.Normalize("  José María O'Donnell-Ruíz ") => "jose maria o'donnell-ruiz"
func Normalize(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		// Remove is total over valid UTF-8; a transform error means the
		// input had broken encoding. Fall back to the raw string and let
		// the character filter below discard the garbage.
		folded = s
	}

	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize normalizes and splits into a deduplicated token set.
// Order of the returned slice is the first-seen order, but callers must
// treat it as a set.
//
// Example:
//
//	text.Tokenize("María de la María") => ["maria", "de", "la"]
func Tokenize(s string) []string {
	n := Normalize(s)
	if n == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var tokens []string
	for _, tok := range strings.Split(n, " ") {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Clean removes extra whitespace and trims, without lowercasing or folding.
//
// Example:
//
//	text.Clean("  Juan   Pérez  ") => "Juan Pérez"
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FullName builds a person's display-oriented full name: the explicit display
// name when present, otherwise given names followed by family names.
//
// Example:
//
//	text.FullName([]string{"Juan"}, []string{"Pérez"}, "") => "Juan Pérez"
//	text.FullName([]string{"Juan"}, []string{"Pérez"}, "El Abuelo") => "El Abuelo"
func FullName(givenNames, familyNames []string, displayName string) string {
	if d := Clean(displayName); d != "" {
		return d
	}
	parts := make([]string, 0, len(givenNames)+len(familyNames))
	parts = append(parts, givenNames...)
	parts = append(parts, familyNames...)
	return Clean(strings.Join(parts, " "))
}

// Distance calculates the Levenshtein distance between two strings.
// Used by search to rank near-miss name matches.
//
// Example:
//
//	text.Distance("garcia", "garzia") => 1
func Distance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}
	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,
				min(matrix[i][j-1]+1,
					matrix[i-1][j-1]+cost),
			)
		}
	}

	return matrix[len(s1)][len(s2)]
}
