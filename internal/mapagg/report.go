package mapagg

import (
	"fmt"
	"strings"
)

// BuildCountriesMarkdown renders the world view as a table.
func BuildCountriesMarkdown(buckets []CountryBucket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Activity by Country\n\n")
	if len(buckets) == 0 {
		fmt.Fprintf(&b, "No attributed records match the filter.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "| Country | Records | Documents | Cities |\n|---|---|---|---|\n")
	for _, bucket := range buckets {
		fmt.Fprintf(&b, "| %s | %d | %d | %d |\n", bucket.Country, bucket.Records, bucket.Documents, bucket.Cities)
	}
	return b.String()
}

// BuildCitiesMarkdown renders the country drill-down. Unresolved cities show
// a dash instead of coordinates.
func BuildCitiesMarkdown(country string, buckets []CityBucket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Activity in %s\n\n", country)
	if len(buckets) == 0 {
		fmt.Fprintf(&b, "No attributed records match the filter.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "| City | Records | Documents | Coordinates |\n|---|---|---|---|\n")
	for _, bucket := range buckets {
		coords := "-"
		if bucket.Latitude != nil && bucket.Longitude != nil {
			coords = fmt.Sprintf("%.4f, %.4f", *bucket.Latitude, *bucket.Longitude)
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %s |\n", bucket.City, bucket.Records, bucket.Documents, coords)
	}
	return b.String()
}

// BuildInstitutionsMarkdown renders the city drill-down.
func BuildInstitutionsMarkdown(country, city string, buckets []InstitutionBucket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Institutions in %s, %s\n\n", city, country)
	if len(buckets) == 0 {
		fmt.Fprintf(&b, "No attributed records match the filter.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "| Institution | Records | Scholars |\n|---|---|---|\n")
	for _, bucket := range buckets {
		fmt.Fprintf(&b, "| %s | %d | %d |\n", bucket.Institution, bucket.Records, bucket.Scholars)
	}
	return b.String()
}

// BuildScholarsMarkdown renders the institution drill-down.
func BuildScholarsMarkdown(institutionName string, buckets []ScholarBucket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Scholars at %s\n\n", institutionName)
	if len(buckets) == 0 {
		fmt.Fprintf(&b, "No attributed records match the filter.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "| Scholar | Records | Documents |\n|---|---|---|\n")
	for _, bucket := range buckets {
		fmt.Fprintf(&b, "| %s | %d | %d |\n", bucket.Name, bucket.Records, bucket.Documents)
	}
	return b.String()
}
