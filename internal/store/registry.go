package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Provenance records how a registry entry was created.
const (
	ProvenanceCurated        = "curated"
	ProvenanceRegistryImport = "registry_import"
	ProvenanceAutoAdded      = "auto_added"
	ProvenanceLLMCompleted   = "llm_completed"
)

// InstitutionEntry is one canonical institution. PrimaryName is display-only;
// matching goes through NormalizedName and Aliases.
type InstitutionEntry struct {
	PrimaryName    string   `json:"primary_name"`
	NormalizedName string   `json:"normalized_name"`
	Aliases        []string `json:"aliases,omitempty"`
	Country        string   `json:"country"`
	City           string   `json:"city,omitempty"`
	Rank           *int     `json:"rank,omitempty"`
	RegistryID     string   `json:"registry_id,omitempty"`
	Provenance     string   `json:"provenance"`
}

// InstitutionRegistry persists the canonical institution list.
type InstitutionRegistry struct {
	db *sqlx.DB
}

func NewInstitutionRegistry(db *sqlx.DB) *InstitutionRegistry {
	return &InstitutionRegistry{db: db}
}

// All loads every entry. The matcher keeps the working copy in memory; the
// registry is tens to low hundreds of rows.
func (r *InstitutionRegistry) All() ([]InstitutionEntry, error) {
	rows, err := r.db.Query(`SELECT normalized_name, primary_name, aliases, country, city, rank, registry_id, provenance
		FROM institutions`)
	if err != nil {
		return nil, fmt.Errorf("registry load: %w", err)
	}
	defer rows.Close()
	var out []InstitutionEntry
	for rows.Next() {
		var e InstitutionEntry
		var aliasesJSON string
		var rank sql.NullInt64
		if err := rows.Scan(&e.NormalizedName, &e.PrimaryName, &aliasesJSON, &e.Country, &e.City, &rank, &e.RegistryID, &e.Provenance); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(aliasesJSON), &e.Aliases)
		if rank.Valid {
			v := int(rank.Int64)
			e.Rank = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Insert adds an entry unless its normalized name is already taken. A
// collision is a no-op skip, never an overwrite: curated entries win over
// anything arriving later.
func (r *InstitutionRegistry) Insert(e InstitutionEntry) (bool, error) {
	var rank sql.NullInt64
	if e.Rank != nil {
		rank = sql.NullInt64{Int64: int64(*e.Rank), Valid: true}
	}
	res, err := r.db.Exec(`INSERT OR IGNORE INTO institutions
		(normalized_name, primary_name, aliases, country, city, rank, registry_id, provenance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.NormalizedName, e.PrimaryName, marshalJSON(e.Aliases), e.Country, e.City,
		rank, e.RegistryID, e.Provenance, nowString())
	if err != nil {
		return false, fmt.Errorf("registry insert %q: %w", e.NormalizedName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
