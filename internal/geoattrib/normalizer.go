package geoattrib

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	electronicTailRe = regexp.MustCompile(`(?i)electronic address:.*$`)
	emailRe          = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
	// Numeric postal codes (optionally ZIP+4) and UK-style alphanumeric
	// postcodes embedded in a token.
	postalNumericRe = regexp.MustCompile(`\b\d{3}\s?\d{2,4}\b|\b\d{4,6}(-\d{4})?\b`)
	postalUKRe      = regexp.MustCompile(`\b[A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2}\b`)
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldKey lowercases, strips accents, and collapses whitespace. Used for all
// normalized lookup keys (LocationKey halves, registry names, synonym keys).
func foldKey(s string) string {
	out, _, err := transform.String(stripAccents, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		out = strings.ToLower(strings.TrimSpace(s))
	}
	return whitespaceRe.ReplaceAllString(out, " ")
}

// Fold exposes the lookup-key folding for registry and aggregation keys.
func Fold(s string) string {
	return foldKey(s)
}

// Normalize cleans a raw affiliation string and splits it into comma-level
// tokens. Pure: no I/O, no state.
func Normalize(raw string) []string {
	s := electronicTailRe.ReplaceAllString(raw, "")
	s = emailRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ";", ",")
	s = whitespaceRe.ReplaceAllString(s, " ")

	var tokens []string
	for _, part := range strings.Split(s, ",") {
		tok := strings.TrimSpace(part)
		tok = postalUKRe.ReplaceAllString(tok, "")
		tok = postalNumericRe.ReplaceAllString(tok, "")
		tok = strings.Trim(tok, "()[]{} ")
		tok = strings.TrimSpace(whitespaceRe.ReplaceAllString(tok, " "))
		if tok == "" || tok == "." {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
