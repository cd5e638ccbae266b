package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
)

// DefaultSampleCap bounds the per-entry diagnostic sample list.
const DefaultSampleCap = 5

// CoordinateEntry is one geocoding cache row. Nil Latitude/Longitude with the
// row present is a standing negative result: the external service was asked
// and found nothing, and must not be asked again until the entry is cleared.
type CoordinateEntry struct {
	Key       geoattrib.LocationKey
	Country   string
	City      string
	Latitude  *float64
	Longitude *float64
	Samples   []string
}

// Resolved reports whether the entry carries coordinates.
func (e *CoordinateEntry) Resolved() bool {
	return e != nil && e.Latitude != nil && e.Longitude != nil
}

// GeocodeCache is the persistent (country,city) -> coordinate store keyed by
// LocationKey.
type GeocodeCache struct {
	db        *sqlx.DB
	SampleCap int
}

func NewGeocodeCache(db *sqlx.DB) *GeocodeCache {
	return &GeocodeCache{db: db, SampleCap: DefaultSampleCap}
}

// Get returns the entry for key, if one exists.
func (c *GeocodeCache) Get(key geoattrib.LocationKey) (*CoordinateEntry, bool, error) {
	entry, err := scanEntry(c.db.QueryRow(`SELECT location_key, country, city, latitude, longitude, samples
		FROM geocode_cache WHERE location_key = ?`, string(key)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("geocode get: %w", err)
	}
	return entry, true, nil
}

// GetBatch fetches all requested keys in one query.
func (c *GeocodeCache) GetBatch(keys []geoattrib.LocationKey) (map[geoattrib.LocationKey]*CoordinateEntry, error) {
	out := map[geoattrib.LocationKey]*CoordinateEntry{}
	if len(keys) == 0 {
		return out, nil
	}
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = string(k)
	}
	query, args, err := sqlx.In(`SELECT location_key, country, city, latitude, longitude, samples
		FROM geocode_cache WHERE location_key IN (?)`, raw)
	if err != nil {
		return nil, fmt.Errorf("geocode batch query: %w", err)
	}
	rows, err := c.db.Query(c.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("geocode batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out[entry.Key] = entry
	}
	return out, rows.Err()
}

// Put records the outcome of one external resolution, including an explicit
// null. Coordinates overwrite; an existing sample list is preserved.
func (c *GeocodeCache) Put(key geoattrib.LocationKey, country, city string, lat, lon *float64) error {
	_, err := c.db.Exec(`INSERT INTO geocode_cache (location_key, country, city, latitude, longitude, samples, updated_at)
		VALUES (?, ?, ?, ?, ?, '[]', ?)
		ON CONFLICT(location_key) DO UPDATE SET
			country = excluded.country,
			city = excluded.city,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			updated_at = excluded.updated_at`,
		string(key), country, city, nullFloat(lat), nullFloat(lon), nowString())
	if err != nil {
		return fmt.Errorf("geocode put %s: %w", key, err)
	}
	return nil
}

// AppendSamples adds diagnostic affiliation strings to an entry's bounded
// sample list, oldest evicted first. Read-modify-write runs inside one
// transaction so concurrent appenders to the same key cannot lose updates.
func (c *GeocodeCache) AppendSamples(key geoattrib.LocationKey, samples []string) error {
	if len(samples) == 0 {
		return nil
	}
	limit := c.SampleCap
	if limit <= 0 {
		limit = DefaultSampleCap
	}
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("geocode samples: %w", err)
	}
	defer tx.Rollback()

	var samplesJSON string
	err = tx.QueryRow(`SELECT samples FROM geocode_cache WHERE location_key = ?`, string(key)).Scan(&samplesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("geocode samples read: %w", err)
	}
	var existing []string
	_ = json.Unmarshal([]byte(samplesJSON), &existing)
	existing = append(existing, samples...)
	if len(existing) > limit {
		existing = existing[len(existing)-limit:]
	}
	if _, err := tx.Exec(`UPDATE geocode_cache SET samples = ?, updated_at = ? WHERE location_key = ?`,
		marshalJSON(existing), nowString(), string(key)); err != nil {
		return fmt.Errorf("geocode samples write: %w", err)
	}
	return tx.Commit()
}

// ClearNegative deletes a standing null entry so the next resolution retries
// the external service. Entries with coordinates are left alone.
func (c *GeocodeCache) ClearNegative(key geoattrib.LocationKey) error {
	_, err := c.db.Exec(`DELETE FROM geocode_cache WHERE location_key = ? AND latitude IS NULL`, string(key))
	if err != nil {
		return fmt.Errorf("geocode clear %s: %w", key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*CoordinateEntry, error) {
	var e CoordinateEntry
	var key, samplesJSON string
	var lat, lon sql.NullFloat64
	if err := row.Scan(&key, &e.Country, &e.City, &lat, &lon, &samplesJSON); err != nil {
		return nil, err
	}
	e.Key = geoattrib.LocationKey(key)
	if lat.Valid && lon.Valid {
		e.Latitude = &lat.Float64
		e.Longitude = &lon.Float64
	}
	_ = json.Unmarshal([]byte(samplesJSON), &e.Samples)
	return &e, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
