package institution

import (
	"testing"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

func testEntries() []store.InstitutionEntry {
	return []store.InstitutionEntry{
		{
			PrimaryName:    "Massachusetts General Hospital",
			NormalizedName: "massachusetts general hospital",
			Aliases:        []string{"MGH", "Mass General"},
			Country:        "United States",
			City:           "Boston",
			Provenance:     store.ProvenanceCurated,
		},
		{
			PrimaryName:    "Karolinska Institutet",
			NormalizedName: "karolinska institutet",
			Aliases:        []string{"Karolinska Institute"},
			Country:        "Sweden",
			City:           "Stockholm",
			Provenance:     store.ProvenanceCurated,
		},
	}
}

func TestMatchExactNameAndAlias(t *testing.T) {
	m := NewMatcher(testEntries(), MatcherConfig{})

	got, ok := m.Match("Massachusetts General Hospital")
	if !ok || got.Name != "Massachusetts General Hospital" || got.Confidence != geoattrib.ConfidenceHigh {
		t.Fatalf("exact name: ok=%v match=%+v", ok, got)
	}

	got, ok = m.Match("MGH")
	if !ok || got.City != "Boston" {
		t.Fatalf("alias: ok=%v match=%+v", ok, got)
	}
}

func TestMatchCandidatePhrase(t *testing.T) {
	m := NewMatcher(testEntries(), MatcherConfig{})
	got, ok := m.Match("Dept of Oncology; Karolinska Institutet, Stockholm")
	if !ok || got.Name != "Karolinska Institutet" {
		t.Fatalf("candidate phrase: ok=%v match=%+v", ok, got)
	}
}

func TestMatchFuzzyDowngradesConfidence(t *testing.T) {
	m := NewMatcher(testEntries(), MatcherConfig{})
	got, ok := m.Match("Massachusetts General Hospital Boston")
	if !ok {
		t.Fatal("expected fuzzy match")
	}
	if got.Confidence != geoattrib.ConfidenceMedium {
		t.Fatalf("fuzzy confidence = %q, want medium", got.Confidence)
	}
}

func TestMatchThresholdConfigurable(t *testing.T) {
	m := NewMatcher(testEntries(), MatcherConfig{FuzzyThreshold: 0.99})
	if _, ok := m.Match("Massachusetts General Hospital Boston"); ok {
		t.Fatal("threshold 0.99 should reject word-overlap matches")
	}
}

func TestMatchMiss(t *testing.T) {
	m := NewMatcher(testEntries(), MatcherConfig{})
	if _, ok := m.Match("Completely Unrelated Gardening Club"); ok {
		t.Fatal("unexpected match")
	}
	// Memoized misses stay misses.
	if _, ok := m.Match("Completely Unrelated Gardening Club"); ok {
		t.Fatal("memoized miss flipped")
	}
}

func TestAddRejectsCollisions(t *testing.T) {
	m := NewMatcher(testEntries(), MatcherConfig{})
	dup := store.InstitutionEntry{
		PrimaryName:    "Mass General",
		NormalizedName: "massachusetts general hospital",
		Country:        "United States",
	}
	if m.Add(dup) {
		t.Fatal("normalized-name collision must be rejected")
	}

	withBadAlias := store.InstitutionEntry{
		PrimaryName:    "Uppsala University",
		NormalizedName: "uppsala university",
		Aliases:        []string{"MGH", "UU"},
		Country:        "Sweden",
		City:           "Uppsala",
	}
	if !m.Add(withBadAlias) {
		t.Fatal("entry with one colliding alias should still land")
	}
	got, ok := m.Match("UU")
	if !ok || got.Name != "Uppsala University" {
		t.Fatalf("fresh alias should resolve: ok=%v %+v", ok, got)
	}
	got, ok = m.Match("MGH")
	if !ok || got.Name != "Massachusetts General Hospital" {
		t.Fatalf("colliding alias must keep original owner: ok=%v %+v", ok, got)
	}
}

func TestImportSeedSkipsCollisions(t *testing.T) {
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	registry := store.NewInstitutionRegistry(db)
	m := NewMatcher(nil, MatcherConfig{})

	seed := []SeedRecord{
		{PrimaryName: "University of Oslo", Country: "Norway", City: "Oslo", Aliases: []string{"UiO"}, Source: "curated"},
		{PrimaryName: "University of Oslo", Country: "Norway", City: "Elsewhere", Source: "qs_import"},
		{PrimaryName: "", Country: "Norway"},
	}
	stats, err := ImportSeed(registry, m, seed)
	if err != nil {
		t.Fatalf("ImportSeed: %v", err)
	}
	if stats.Read != 3 || stats.Inserted != 1 || stats.Skipped != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	all, err := registry.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all[0].City != "Oslo" || all[0].Provenance != store.ProvenanceCurated {
		t.Fatalf("registry state: %+v", all)
	}
}
