package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText canonicalizes text for cache keys: NFC form, trimmed, inner
// whitespace collapsed to single spaces. Case and punctuation are kept since
// they can change an embedding.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// QuestionKey reduces a question to the form used for topic lookup: NFC,
// lower case, punctuation and symbols dropped, whitespace collapsed.
// "Где находится клуб?" and "где  находится клуб" share a key.
func QuestionKey(s string) string {
	s = norm.NFC.String(s)
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
