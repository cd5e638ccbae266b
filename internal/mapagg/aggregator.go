// Package mapagg builds the drill-down views behind the research activity
// map: world, country, city, and institution levels, each a grouping of the
// same authorship records at a finer grain.
package mapagg

import (
	"context"
	"fmt"
	"sort"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
	"github.com/joelkehle/scholar-atlas/internal/geocode"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

// Filter narrows the record set before any grouping. The confidence floor is
// inclusive, so lowering it only ever adds records to a view.
type Filter struct {
	MinConfidence geoattrib.Confidence
	RunID         string
	DocumentIDs   []string
}

func (f Filter) keep(r store.AuthorshipRecord) bool {
	if f.MinConfidence != "" && !r.Confidence.AtLeast(f.MinConfidence) {
		return false
	}
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	if len(f.DocumentIDs) > 0 {
		found := false
		for _, id := range f.DocumentIDs {
			if r.DocumentID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type CountryBucket struct {
	Country   string `json:"country"`
	Records   int    `json:"records"`
	Documents int    `json:"documents"`
	Cities    int    `json:"cities"`
}

type CityBucket struct {
	Country   string   `json:"country"`
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Records   int      `json:"records"`
	Documents int      `json:"documents"`
}

type InstitutionBucket struct {
	Institution string `json:"institution"`
	Records     int    `json:"records"`
	Scholars    int    `json:"scholars"`
}

type ScholarBucket struct {
	Name      string `json:"name"`
	Records   int    `json:"records"`
	Documents int    `json:"documents"`
}

// Aggregator turns records into map views. The resolver supplies city
// coordinates, serving standing unresolved cache entries as-is instead of
// retrying locations the reconciler already marked unresolvable.
type Aggregator struct {
	resolver *geocode.Resolver
}

func NewAggregator(resolver *geocode.Resolver) *Aggregator {
	return &Aggregator{resolver: resolver}
}

// Countries is the world view. Aliases like "USA" and "United States" are
// folded into one bucket before counting.
func (a *Aggregator) Countries(records []store.AuthorshipRecord, filter Filter) []CountryBucket {
	type agg struct {
		records int
		docs    map[string]bool
		cities  map[geoattrib.LocationKey]bool
	}
	byCountry := map[string]*agg{}
	for _, r := range records {
		if !filter.keep(r) {
			continue
		}
		country := displayCountry(r.Country)
		if country == "" {
			continue
		}
		g, ok := byCountry[country]
		if !ok {
			g = &agg{docs: map[string]bool{}, cities: map[geoattrib.LocationKey]bool{}}
			byCountry[country] = g
		}
		g.records++
		g.docs[r.DocumentID] = true
		if r.City != "" {
			g.cities[geoattrib.MakeLocationKey(country, r.City)] = true
		}
	}
	out := make([]CountryBucket, 0, len(byCountry))
	for country, g := range byCountry {
		out = append(out, CountryBucket{Country: country, Records: g.records, Documents: len(g.docs), Cities: len(g.cities)})
	}
	sortBuckets(out, func(b CountryBucket) (int, string) { return b.Records, b.Country })
	return out
}

// Cities is the country drill-down. Coordinates come from the geocoding
// cache; cities with a standing unresolved entry are listed without them.
func (a *Aggregator) Cities(ctx context.Context, records []store.AuthorshipRecord, country string, filter Filter) ([]CityBucket, error) {
	want := displayCountry(country)
	type agg struct {
		city    string
		records int
		docs    map[string]bool
	}
	byKey := map[geoattrib.LocationKey]*agg{}
	var locations []geocode.Location
	for _, r := range records {
		if !filter.keep(r) || displayCountry(r.Country) != want || r.City == "" {
			continue
		}
		key := geoattrib.MakeLocationKey(want, r.City)
		g, ok := byKey[key]
		if !ok {
			g = &agg{city: r.City, docs: map[string]bool{}}
			byKey[key] = g
			locations = append(locations, geocode.Location{Country: want, City: r.City})
		}
		g.records++
		g.docs[r.DocumentID] = true
	}
	coords, err := a.resolver.ResolveKeys(ctx, locations)
	if err != nil {
		return nil, fmt.Errorf("map cities %s: %w", want, err)
	}
	out := make([]CityBucket, 0, len(byKey))
	for key, g := range byKey {
		b := CityBucket{Country: want, City: g.city, Records: g.records, Documents: len(g.docs)}
		if entry, ok := coords[key]; ok && entry.Resolved() {
			b.Latitude = entry.Latitude
			b.Longitude = entry.Longitude
		}
		out = append(out, b)
	}
	sortBuckets(out, func(b CityBucket) (int, string) { return b.Records, b.City })
	return out, nil
}

// Institutions is the city drill-down.
func (a *Aggregator) Institutions(records []store.AuthorshipRecord, country, city string, filter Filter) []InstitutionBucket {
	want := geoattrib.MakeLocationKey(country, city)
	type agg struct {
		records  int
		scholars map[string]bool
	}
	byInst := map[string]*agg{}
	for _, r := range records {
		if !filter.keep(r) || r.Institution == "" {
			continue
		}
		if geoattrib.MakeLocationKey(r.Country, r.City) != want {
			continue
		}
		g, ok := byInst[r.Institution]
		if !ok {
			g = &agg{scholars: map[string]bool{}}
			byInst[r.Institution] = g
		}
		g.records++
		g.scholars[r.AuthorName] = true
	}
	out := make([]InstitutionBucket, 0, len(byInst))
	for inst, g := range byInst {
		out = append(out, InstitutionBucket{Institution: inst, Records: g.records, Scholars: len(g.scholars)})
	}
	sortBuckets(out, func(b InstitutionBucket) (int, string) { return b.Records, b.Institution })
	return out
}

// Scholars is the institution drill-down. Names group by exact display
// string: two spellings of one person stay two rows rather than guessing at
// identity.
func (a *Aggregator) Scholars(records []store.AuthorshipRecord, country, city, institutionName string, filter Filter) []ScholarBucket {
	want := geoattrib.MakeLocationKey(country, city)
	type agg struct {
		records int
		docs    map[string]bool
	}
	byName := map[string]*agg{}
	for _, r := range records {
		if !filter.keep(r) || r.Institution != institutionName || r.AuthorName == "" {
			continue
		}
		if geoattrib.MakeLocationKey(r.Country, r.City) != want {
			continue
		}
		g, ok := byName[r.AuthorName]
		if !ok {
			g = &agg{docs: map[string]bool{}}
			byName[r.AuthorName] = g
		}
		g.records++
		g.docs[r.DocumentID] = true
	}
	out := make([]ScholarBucket, 0, len(byName))
	for name, g := range byName {
		out = append(out, ScholarBucket{Name: name, Records: g.records, Documents: len(g.docs)})
	}
	sortBuckets(out, func(b ScholarBucket) (int, string) { return b.Records, b.Name })
	return out
}

// displayCountry folds aliases to the canonical name, passing through values
// that are not in the country tables rather than dropping them.
func displayCountry(raw string) string {
	if raw == "" {
		return ""
	}
	if c := geoattrib.NormalizeCountry(raw); c != "" {
		return c
	}
	return raw
}

func sortBuckets[T any](buckets []T, key func(T) (int, string)) {
	sort.Slice(buckets, func(i, j int) bool {
		ci, ni := key(buckets[i])
		cj, nj := key(buckets[j])
		if ci != cj {
			return ci > cj
		}
		return ni < nj
	})
}
