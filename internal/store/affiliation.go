package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
)

// AffiliationCache is the persistent dedup store mapping a raw affiliation
// string to its extracted attribution. The raw string is the exact-identity
// key; later writes fully overwrite earlier ones.
type AffiliationCache struct {
	db *sqlx.DB
}

func NewAffiliationCache(db *sqlx.DB) *AffiliationCache {
	return &AffiliationCache{db: db}
}

// Get returns the cached attribution for raw, if any.
func (c *AffiliationCache) Get(raw string) (geoattrib.GeoAttribution, bool, error) {
	var attr geoattrib.GeoAttribution
	row := c.db.QueryRow(`SELECT country, region, city, institution, department, confidence, source
		FROM affiliation_cache WHERE raw = ?`, raw)
	var confidence, source string
	err := row.Scan(&attr.Country, &attr.Region, &attr.City, &attr.Institution, &attr.Department, &confidence, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return attr, false, nil
	}
	if err != nil {
		return attr, false, fmt.Errorf("affiliation get: %w", err)
	}
	attr.Confidence = geoattrib.Confidence(confidence)
	attr.Source = geoattrib.Source(source)
	return attr, true, nil
}

// GetBatch returns whatever subset of raws is cached.
func (c *AffiliationCache) GetBatch(raws []string) (map[string]geoattrib.GeoAttribution, error) {
	out := map[string]geoattrib.GeoAttribution{}
	if len(raws) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT raw, country, region, city, institution, department, confidence, source
		FROM affiliation_cache WHERE raw IN (?)`, raws)
	if err != nil {
		return nil, fmt.Errorf("affiliation batch query: %w", err)
	}
	rows, err := c.db.Query(c.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("affiliation batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw, confidence, source string
		var attr geoattrib.GeoAttribution
		if err := rows.Scan(&raw, &attr.Country, &attr.Region, &attr.City, &attr.Institution, &attr.Department, &confidence, &source); err != nil {
			return nil, err
		}
		attr.Confidence = geoattrib.Confidence(confidence)
		attr.Source = geoattrib.Source(source)
		out[raw] = attr
	}
	return out, rows.Err()
}

// PutBatch writes attributions for their raw-string keys, each row an
// independent full overwrite. Commits as one transaction so a partial batch
// never lands.
func (c *AffiliationCache) PutBatch(attrs map[string]geoattrib.GeoAttribution) error {
	if len(attrs) == 0 {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("affiliation put: %w", err)
	}
	now := nowString()
	for raw, attr := range attrs {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO affiliation_cache
			(raw, country, region, city, institution, department, confidence, source, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			raw, attr.Country, attr.Region, attr.City, attr.Institution, attr.Department,
			string(attr.Confidence), string(attr.Source), now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("affiliation put %q: %w", raw, err)
		}
	}
	return tx.Commit()
}
