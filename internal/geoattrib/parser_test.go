package geoattrib

import (
	"reflect"
	"testing"
)

func TestNormalizeStripsNoiseAndSplits(t *testing.T) {
	raw := "Dept. of Oncology; Karolinska Institutet, 171 77 Stockholm, Sweden. Electronic address: a.person@ki.se."
	got := Normalize(raw)
	want := []string{"Dept. of Oncology", "Karolinska Institutet", "Stockholm", "Sweden."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalize: got %v want %v", got, want)
	}
}

func TestNormalizeBracketAndPostal(t *testing.T) {
	got := Normalize("(Institute of Physics), Oxford OX1 3PU, UK")
	want := []string{"Institute of Physics", "Oxford", "UK"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalize: got %v want %v", got, want)
	}
}

func TestNormalizeCountryAliases(t *testing.T) {
	cases := map[string]string{
		"U.S.A.":                     "United States",
		"USA":                        "United States",
		"UK":                         "United Kingdom",
		"P.R. China":                 "China",
		"People's Republic of China": "China",
		"The Netherlands":            "Netherlands",
		"Republic of Korea":          "South Korea",
		"china.":                     "China",
		"Narnia":                     "",
	}
	for in, want := range cases {
		if got := NormalizeCountry(in); got != want {
			t.Errorf("NormalizeCountry(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCommaHierarchyWithProvince(t *testing.T) {
	p := NewParser(nil)
	attr := p.ParseString("Department of Neurosurgery, Union Hospital, Tongji Medical College, Huazhong University of Science and Technology, Wuhan, Hubei, China.")
	if attr.Country != "China" {
		t.Errorf("country = %q, want China", attr.Country)
	}
	if attr.Region != "Hubei" {
		t.Errorf("region = %q, want Hubei", attr.Region)
	}
	if attr.City != "Wuhan" {
		t.Errorf("city = %q, want Wuhan (not the province)", attr.City)
	}
	if attr.Institution != "Huazhong University of Science and Technology" {
		t.Errorf("institution = %q", attr.Institution)
	}
	if attr.Department != "Department of Neurosurgery" {
		t.Errorf("department = %q", attr.Department)
	}
	if attr.Confidence != ConfidenceHigh {
		t.Errorf("confidence = %q, want high", attr.Confidence)
	}
}

func TestParseLeadingOrganizationIsNotCity(t *testing.T) {
	p := NewParser(nil)
	attr := p.ParseString("Acme Corp, Stockholm, Sweden")
	if attr.City != "Stockholm" {
		t.Errorf("city = %q, want Stockholm", attr.City)
	}
	if attr.Region != "" {
		t.Errorf("region = %q, want empty", attr.Region)
	}
	if attr.Country != "Sweden" {
		t.Errorf("country = %q, want Sweden", attr.Country)
	}
}

func TestParseUSStateCode(t *testing.T) {
	p := NewParser(nil)
	attr := p.ParseString("Massachusetts General Hospital, Boston, MA, USA")
	if attr.Country != "United States" {
		t.Errorf("country = %q, want United States", attr.Country)
	}
	if attr.Region != "MA" {
		t.Errorf("region = %q, want MA", attr.Region)
	}
	if attr.City != "Boston" {
		t.Errorf("city = %q, want Boston", attr.City)
	}
	if attr.Institution != "Massachusetts General Hospital" {
		t.Errorf("institution = %q", attr.Institution)
	}
}

func TestParseFusedCityAbbreviation(t *testing.T) {
	p := NewParser(nil)
	attr := p.ParseString("Georgetown University Medical Center, Washington DC, USA")
	if attr.Region != "DC" {
		t.Errorf("region = %q, want DC", attr.Region)
	}
	if attr.City != "Washington" {
		t.Errorf("city = %q, want Washington", attr.City)
	}
}

func TestParseCountryInferredFromRegion(t *testing.T) {
	p := NewParser(nil)
	attr := p.ParseString("Vanderbilt University, Nashville, TN")
	if attr.Country != "United States" {
		t.Errorf("country = %q, want United States", attr.Country)
	}
	if attr.City != "Nashville" {
		t.Errorf("city = %q, want Nashville", attr.City)
	}
}

func TestParseAmbiguousCountryGuard(t *testing.T) {
	p := NewParser(nil)
	attr := p.ParseString("University of New Mexico, Albuquerque, NM, USA")
	if attr.Country != "United States" {
		t.Errorf("country = %q, want United States", attr.Country)
	}

	attr = p.ParseString("Tbilisi State University, Tbilisi, Georgia")
	if attr.Country != "Georgia" {
		t.Errorf("country = %q, want Georgia", attr.Country)
	}
	if attr.City != "Tbilisi" {
		t.Errorf("city = %q, want Tbilisi", attr.City)
	}
}

func TestParseInstitutionLastKeywordWins(t *testing.T) {
	tokens := Normalize("Union Hospital, Tongji Medical College, Huazhong University of Science and Technology, Wuhan, China")
	if got := findInstitution(tokens); got != "Huazhong University of Science and Technology" {
		t.Fatalf("institution = %q, want the last keyword token", got)
	}
}

func TestParseNoSignalYieldsNone(t *testing.T) {
	p := NewParser(nil)
	attr := p.ParseString("Ward 12B")
	if attr.Confidence != ConfidenceNone {
		t.Fatalf("confidence = %q, want none", attr.Confidence)
	}
	if attr.Source != SourceRules {
		t.Fatalf("source = %q, want rules", attr.Source)
	}
}

func TestParseIsPure(t *testing.T) {
	p := NewParser(nil)
	tokens := Normalize("Institute of Zoology, Chinese Academy of Sciences, Beijing, China")
	first := p.Parse(tokens)
	for i := 0; i < 5; i++ {
		if got := p.Parse(tokens); !reflect.DeepEqual(got, first) {
			t.Fatalf("Parse not deterministic: %+v vs %+v", got, first)
		}
	}
}

type fakeLookup struct {
	match InstitutionMatch
	ok    bool
}

func (f *fakeLookup) Match(string) (InstitutionMatch, bool) { return f.match, f.ok }

func TestParseRegistryFillsMissingFields(t *testing.T) {
	p := NewParser(&fakeLookup{
		match: InstitutionMatch{Name: "Karolinska Institutet", Country: "Sweden", City: "Stockholm"},
		ok:    true,
	})
	attr := p.ParseString("Karolinska Inst., Solna Campus")
	if attr.Source != SourceRulesRegistry {
		t.Fatalf("source = %q, want rules+registry", attr.Source)
	}
	if attr.Country != "Sweden" || attr.Institution != "Karolinska Institutet" {
		t.Fatalf("registry fields not filled: %+v", attr)
	}
}

func TestMakeLocationKeyCollapsesAliases(t *testing.T) {
	a := MakeLocationKey("USA", "Boston")
	b := MakeLocationKey("United States", "Boston")
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
	c := MakeLocationKey("U.S.A.", "  BOSTON ")
	if a != c {
		t.Fatalf("case/whitespace not folded: %q vs %q", a, c)
	}
	if a.Country() != "united states" || a.City() != "boston" {
		t.Fatalf("key halves: country=%q city=%q", a.Country(), a.City())
	}
}

func TestConfidenceOrdering(t *testing.T) {
	order := []Confidence{ConfidenceNone, ConfidenceLow, ConfidenceMedium, ConfidenceHigh}
	for i := 1; i < len(order); i++ {
		if !order[i].AtLeast(order[i-1]) {
			t.Errorf("%s should be at least %s", order[i], order[i-1])
		}
		if order[i-1].AtLeast(order[i]) {
			t.Errorf("%s should not be at least %s", order[i-1], order[i])
		}
	}
}
