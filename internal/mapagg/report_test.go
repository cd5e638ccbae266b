package mapagg

import (
	"strings"
	"testing"
)

func TestBuildCountriesMarkdown(t *testing.T) {
	md := BuildCountriesMarkdown([]CountryBucket{
		{Country: "United States", Records: 10, Documents: 4, Cities: 3},
		{Country: "Sweden", Records: 2, Documents: 2, Cities: 1},
	})
	for _, want := range []string{"# Research Activity by Country", "| United States | 10 | 4 | 3 |", "| Sweden | 2 | 2 | 1 |"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestBuildCitiesMarkdownCoordinates(t *testing.T) {
	lat, lon := 59.3293, 18.0686
	md := BuildCitiesMarkdown("Sweden", []CityBucket{
		{City: "Stockholm", Records: 5, Documents: 3, Latitude: &lat, Longitude: &lon},
		{City: "Norrland Sta", Records: 1, Documents: 1},
	})
	if !strings.Contains(md, "| Stockholm | 5 | 3 | 59.3293, 18.0686 |") {
		t.Fatalf("resolved city row wrong:\n%s", md)
	}
	if !strings.Contains(md, "| Norrland Sta | 1 | 1 | - |") {
		t.Fatalf("unresolved city row wrong:\n%s", md)
	}
}

func TestBuildMarkdownEmpty(t *testing.T) {
	md := BuildScholarsMarkdown("Karolinska Institutet", nil)
	if !strings.Contains(md, "No attributed records match the filter.") {
		t.Fatalf("empty notice missing:\n%s", md)
	}
}
