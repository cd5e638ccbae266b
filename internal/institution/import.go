package institution

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joelkehle/scholar-atlas/internal/store"
)

// SeedRecord is one row of bulk registry seed data.
type SeedRecord struct {
	PrimaryName string   `json:"primary_name"`
	Country     string   `json:"country"`
	City        string   `json:"city,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Rank        *int     `json:"rank,omitempty"`
	RegistryID  string   `json:"registry_id,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// ImportStats summarizes one bulk import.
type ImportStats struct {
	Read     int
	Inserted int
	Skipped  int
}

// ImportSeed loads seed records into the registry and the live matcher.
// Collisions are skips, never overwrites.
func ImportSeed(registry *store.InstitutionRegistry, matcher *Matcher, records []SeedRecord) (ImportStats, error) {
	stats := ImportStats{Read: len(records)}
	for _, rec := range records {
		if strings.TrimSpace(rec.PrimaryName) == "" {
			stats.Skipped++
			continue
		}
		entry := store.InstitutionEntry{
			PrimaryName:    rec.PrimaryName,
			NormalizedName: NormalizeName(rec.PrimaryName),
			Aliases:        rec.Aliases,
			Country:        rec.Country,
			City:           rec.City,
			Rank:           rec.Rank,
			RegistryID:     rec.RegistryID,
			Provenance:     provenanceForSource(rec.Source),
		}
		if !matcher.Add(entry) {
			log.Printf("registry-import skip name=%q reason=collision", entry.NormalizedName)
			stats.Skipped++
			continue
		}
		inserted, err := registry.Insert(entry)
		if err != nil {
			return stats, fmt.Errorf("import %q: %w", rec.PrimaryName, err)
		}
		if inserted {
			stats.Inserted++
		} else {
			stats.Skipped++
		}
	}
	return stats, nil
}

// LoadSeedFile reads a JSON array of seed records.
func LoadSeedFile(path string) ([]SeedRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var records []SeedRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return records, nil
}

func provenanceForSource(source string) string {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "curated", "":
		return store.ProvenanceCurated
	default:
		return store.ProvenanceRegistryImport
	}
}
