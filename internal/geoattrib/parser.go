package geoattrib

import (
	"regexp"
	"strings"
)

// fusedRegionRe splits tokens like "Washington DC" or "Nashville TN" where a
// two-letter region abbreviation is fused to the city in one comma token.
var fusedRegionRe = regexp.MustCompile(`^(.+?)\s+([A-Z]{2})\.?$`)

var (
	canonicalIndex = map[string]string{}
	synonymIndex   = map[string]string{}
)

func init() {
	for _, name := range canonicalCountries {
		canonicalIndex[countryKey(name)] = name
	}
	for alias, canonical := range countrySynonyms {
		synonymIndex[countryKey(alias)] = canonical
	}
}

// countryKey folds a label for country lookup: accents, case, whitespace, and
// periods are all insignificant ("U.S.A." and "usa" share a key).
func countryKey(s string) string {
	k := strings.ReplaceAll(foldKey(s), ".", "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(k, " "))
}

// NormalizeCountry resolves a raw country label to its canonical name, or ""
// when the label is not a known country or synonym.
func NormalizeCountry(tok string) string {
	key := countryKey(tok)
	if key == "" {
		return ""
	}
	if c, ok := synonymIndex[key]; ok {
		return c
	}
	if c, ok := canonicalIndex[key]; ok {
		return c
	}
	return ""
}

// InstitutionMatch is a canonical-registry hit consulted during parsing.
type InstitutionMatch struct {
	Name       string
	Country    string
	City       string
	Confidence Confidence
}

// InstitutionLookup resolves free text against the canonical institution
// registry. Implemented by institution.Matcher; injected so the parser stays
// testable without a registry.
type InstitutionLookup interface {
	Match(text string) (InstitutionMatch, bool)
}

// Parser is the deterministic rule engine. Affiliations are usually
// comma-delimited right-to-left hierarchies (department, institution, city,
// region, country), so geography is scanned right-to-left and institutions
// left-to-right.
type Parser struct {
	institutions InstitutionLookup
}

func NewParser(institutions InstitutionLookup) *Parser {
	return &Parser{institutions: institutions}
}

// ParseString normalizes and parses one raw affiliation string.
func (p *Parser) ParseString(raw string) GeoAttribution {
	return p.Parse(Normalize(raw))
}

// Parse extracts a GeoAttribution from normalized tokens. Identical tokens
// always yield an identical result.
func (p *Parser) Parse(tokens []string) GeoAttribution {
	country, countryIdx := findCountry(tokens)
	region, regionIdx, fusedCity, countryHint := findRegion(tokens, countryIdx)
	if country == "" {
		if countryHint != "" {
			country = countryHint
		} else {
			country = countryFromJoined(tokens)
		}
	}
	institution := findInstitution(tokens)
	department := findDepartment(tokens)
	city, trailingRegion := findCity(tokens, countryIdx, regionIdx, fusedCity)
	if region == "" {
		region = trailingRegion
	}

	attr := GeoAttribution{
		Country:     country,
		Region:      region,
		City:        city,
		Institution: institution,
		Department:  department,
		Source:      SourceRules,
	}
	if p.institutions != nil {
		text := institution
		if text == "" {
			text = strings.Join(tokens, ", ")
		}
		if m, ok := p.institutions.Match(text); ok {
			if attr.Institution == "" {
				attr.Institution = m.Name
			}
			if attr.Country == "" {
				attr.Country = m.Country
			}
			if attr.City == "" {
				attr.City = m.City
			}
			attr.Source = SourceRulesRegistry
		}
	}
	attr.Confidence = scoreConfidence(attr)
	return attr
}

func scoreConfidence(a GeoAttribution) Confidence {
	switch {
	case a.Country != "" && a.City != "":
		return ConfidenceHigh
	case a.Country != "":
		return ConfidenceMedium
	case a.Region != "" || a.City != "" || a.Institution != "":
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// findCountry scans right-to-left: exact canonical/synonym lookup first, then
// whole-word substring match with the longest canonical name winning.
func findCountry(tokens []string) (string, int) {
	for i := len(tokens) - 1; i >= 0; i-- {
		if c := NormalizeCountry(tokens[i]); c != "" {
			return c, i
		}
	}
	for i := len(tokens) - 1; i >= 0; i-- {
		if c := countryBySubstring(tokens[i]); c != "" {
			return c, i
		}
	}
	return "", -1
}

func countryBySubstring(tok string) string {
	key := countryKey(tok)
	padded := " " + key + " "
	best := ""
	bestLen := 0
	for _, name := range canonicalCountries {
		nameKey := countryKey(name)
		// An ambiguous name (country that is also a region) only matches
		// when the whole token equals it.
		if ambiguousCountries[nameKey] {
			if key == nameKey {
				return name
			}
			continue
		}
		if strings.Contains(padded, " "+nameKey+" ") && len(nameKey) > bestLen {
			best = name
			bestLen = len(nameKey)
		}
	}
	return best
}

// findRegion scans right-to-left against the US state and Canadian province
// tables, skipping the country token. Returns the region as written, its
// token index, the city half of a fused "City XX" token, and the country
// implied by the matched table.
func findRegion(tokens []string, countryIdx int) (region string, idx int, fusedCity string, countryHint string) {
	for i := len(tokens) - 1; i >= 0; i-- {
		if i == countryIdx {
			continue
		}
		tok := strings.TrimSuffix(strings.TrimSpace(tokens[i]), ".")
		upper := strings.ToUpper(tok)
		if len(tok) == 2 && tok == upper {
			if _, ok := usStateCodes[upper]; ok {
				return tok, i, "", "United States"
			}
			if _, ok := caProvinceCodes[upper]; ok {
				return tok, i, "", "Canada"
			}
			continue
		}
		if _, ok := stateNameSet[foldKey(tok)]; ok {
			return tok, i, "", "United States"
		}
		if _, ok := provinceNameSet[foldKey(tok)]; ok {
			return tok, i, "", "Canada"
		}
		if m := fusedRegionRe.FindStringSubmatch(tok); m != nil {
			if _, ok := usStateCodes[m[2]]; ok {
				return m[2], i, strings.TrimSpace(m[1]), "United States"
			}
			if _, ok := caProvinceCodes[m[2]]; ok {
				return m[2], i, strings.TrimSpace(m[1]), "Canada"
			}
		}
	}
	return "", -1, "", ""
}

// countryFromJoined is the last-resort country pass: any synonym appearing as
// a whole word anywhere in the joined tokens.
func countryFromJoined(tokens []string) string {
	padded := " " + countryKey(strings.Join(tokens, " ")) + " "
	best := ""
	bestLen := 0
	for alias, canonical := range countrySynonyms {
		aliasKey := countryKey(alias)
		if strings.Contains(padded, " "+aliasKey+" ") && len(aliasKey) > bestLen {
			best = canonical
			bestLen = len(aliasKey)
		}
	}
	return best
}

// findInstitution keeps the LAST keyword match scanning left-to-right. Some
// affiliation formats restate the parent institution after a sub-unit and
// downstream consumers rely on the parent winning.
func findInstitution(tokens []string) string {
	best := ""
	for _, tok := range tokens {
		if containsInstitutionKeyword(tok) {
			best = tok
		}
	}
	return best
}

// HasInstitutionKeyword reports whether text names an institution according
// to the keyword table. Shared with the registry matcher's candidate-phrase
// extraction.
func HasInstitutionKeyword(text string) bool {
	return containsInstitutionKeyword(text)
}

func containsInstitutionKeyword(tok string) bool {
	lower := strings.ToLower(tok)
	for _, kw := range institutionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func findDepartment(tokens []string) string {
	for _, tok := range tokens {
		if containsInstitutionKeyword(tok) {
			continue
		}
		folded := foldKey(tok)
		for _, prefix := range departmentPrefixes {
			if strings.HasPrefix(folded, prefix) {
				return tok
			}
		}
	}
	return ""
}

func isDepartmentToken(tok string) bool {
	folded := foldKey(tok)
	for _, prefix := range departmentPrefixes {
		if strings.HasPrefix(folded, prefix) {
			return true
		}
	}
	return false
}

// findCity picks the city token. Preference order: the city half of a fused
// city+abbreviation token, the token immediately preceding the region token,
// the comma hierarchy directly before the country (city, province, country),
// then a right-to-left scan over whatever remains.
//
// The province branch never consumes the leading token: that slot belongs to
// the organization, so "Acme Corp, Stockholm, Sweden" keeps Stockholm as the
// city. The cost is that a bare "Wuhan, Hubei, China" with no organization
// reads its province as the city; without a gazetteer the two shapes are
// indistinguishable, and real affiliation strings almost always carry an
// institution ahead of the hierarchy.
func findCity(tokens []string, countryIdx, regionIdx int, fusedCity string) (city string, trailingRegion string) {
	if regionIdx >= 0 {
		if fusedCity != "" && plausibleCity(fusedCity) {
			return fusedCity, ""
		}
		for j := regionIdx - 1; j >= 0; j-- {
			if j == countryIdx || containsInstitutionKeyword(tokens[j]) {
				continue
			}
			if plausibleCity(tokens[j]) {
				return tokens[j], ""
			}
			break
		}
	}

	if regionIdx < 0 && countryIdx >= 1 {
		prev := tokens[countryIdx-1]
		if plausibleCity(prev) {
			if b := countryIdx - 2; b >= 1 && plausibleCity(tokens[b]) {
				return tokens[b], prev
			}
			return prev, ""
		}
	}

	for i := len(tokens) - 1; i >= 0; i-- {
		if i == countryIdx || i == regionIdx {
			continue
		}
		tok := tokens[i]
		if m := fusedRegionRe.FindStringSubmatch(tok); m != nil {
			if _, ok := usStateCodes[m[2]]; ok {
				tok = strings.TrimSpace(m[1])
			} else if _, ok := caProvinceCodes[m[2]]; ok {
				tok = strings.TrimSpace(m[1])
			}
		}
		if plausibleCity(tok) {
			return tok, ""
		}
	}
	return "", ""
}

func plausibleCity(tok string) bool {
	if tok == "" || containsInstitutionKeyword(tok) || isDepartmentToken(tok) {
		return false
	}
	if strings.ContainsAny(tok, "0123456789") {
		return false
	}
	if len(tok) <= 3 && tok == strings.ToUpper(tok) {
		return false
	}
	return NormalizeCountry(tok) == ""
}
