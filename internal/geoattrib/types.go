package geoattrib

import "strings"

// Confidence is the ordinal quality label attached to an attribution or a
// cached coordinate lookup.
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c meets the given confidence floor.
func (c Confidence) AtLeast(floor Confidence) bool {
	return c.Rank() >= floor.Rank()
}

// ParseConfidence maps a string to a Confidence, defaulting to none.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	case "low":
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// Source records which extraction path produced an attribution.
type Source string

const (
	SourceRules         Source = "rules"
	SourceRulesRegistry Source = "rules+registry"
	SourceLLM           Source = "llm"
	SourceRegistry      Source = "registry"
)

// GeoAttribution is the extracted geographic/institutional interpretation of
// one affiliation string. Empty fields mean "not found".
type GeoAttribution struct {
	Country     string     `json:"country" db:"country"`
	Region      string     `json:"region,omitempty" db:"region"`
	City        string     `json:"city,omitempty" db:"city"`
	Institution string     `json:"institution,omitempty" db:"institution"`
	Department  string     `json:"department,omitempty" db:"department"`
	Confidence  Confidence `json:"confidence" db:"confidence"`
	Source      Source     `json:"source" db:"source"`
}

// LocationKey is the canonical (country,city) identity used for the geocoding
// cache and for aggregation grouping. Aliases are resolved and case, accents,
// and whitespace are folded before the key is formed.
type LocationKey string

// MakeLocationKey builds the canonical key for a (country,city) pair.
// Synonym country labels collapse to the same key.
func MakeLocationKey(country, city string) LocationKey {
	c := NormalizeCountry(country)
	if c == "" {
		c = strings.TrimSpace(country)
	}
	return LocationKey(foldKey(c) + "|" + foldKey(city))
}

// Country returns the country half of the key.
func (k LocationKey) Country() string {
	s := string(k)
	if i := strings.IndexByte(s, '|'); i >= 0 {
		return s[:i]
	}
	return s
}

// City returns the city half of the key.
func (k LocationKey) City() string {
	s := string(k)
	if i := strings.IndexByte(s, '|'); i >= 0 {
		return s[i+1:]
	}
	return ""
}
