package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
)

// AuthorshipRecord is one author-on-document row with denormalized copies of
// the attribution fields captured at ingestion. The copies go stale until a
// reconciliation pass rewrites them.
type AuthorshipRecord struct {
	ID             int64                `db:"id"`
	DocumentID     string               `db:"document_id"`
	AuthorName     string               `db:"author_name"`
	RawAffiliation string               `db:"raw_affiliation"`
	Country        string               `db:"country"`
	Region         string               `db:"region"`
	City           string               `db:"city"`
	Institution    string               `db:"institution"`
	Confidence     geoattrib.Confidence `db:"confidence"`
	RunID          string               `db:"run_id"`
}

// RecordStore persists authorship records for the engine's two writers:
// ingestion and reconciliation.
type RecordStore struct {
	db *sqlx.DB
}

func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) InsertBatch(records []AuthorshipRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("records insert: %w", err)
	}
	for _, r := range records {
		if _, err := tx.Exec(`INSERT INTO authorship_records
			(document_id, author_name, raw_affiliation, country, region, city, institution, confidence, run_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.DocumentID, r.AuthorName, r.RawAffiliation, r.Country, r.Region, r.City,
			r.Institution, string(r.Confidence), r.RunID,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("records insert doc=%s: %w", r.DocumentID, err)
		}
	}
	return tx.Commit()
}

// ByRun returns every record of one analysis run.
func (s *RecordStore) ByRun(runID string) ([]AuthorshipRecord, error) {
	return s.query(`SELECT id, document_id, author_name, raw_affiliation, country, region, city, institution, confidence, run_id
		FROM authorship_records WHERE run_id = ? ORDER BY id`, runID)
}

// All returns the full record table, oldest first.
func (s *RecordStore) All() ([]AuthorshipRecord, error) {
	return s.query(`SELECT id, document_id, author_name, raw_affiliation, country, region, city, institution, confidence, run_id
		FROM authorship_records ORDER BY id`)
}

func (s *RecordStore) query(q string, args ...any) ([]AuthorshipRecord, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("records query: %w", err)
	}
	defer rows.Close()
	var out []AuthorshipRecord
	for rows.Next() {
		var r AuthorshipRecord
		var confidence string
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.AuthorName, &r.RawAffiliation, &r.Country, &r.Region, &r.City, &r.Institution, &confidence, &r.RunID); err != nil {
			return nil, err
		}
		r.Confidence = geoattrib.Confidence(confidence)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateAttribution rewrites the denormalized fields of every record carrying
// the given raw affiliation string. Returns the number of rows touched.
func (s *RecordStore) UpdateAttribution(rawAffiliation string, attr geoattrib.GeoAttribution) (int64, error) {
	res, err := s.db.Exec(`UPDATE authorship_records
		SET country = ?, region = ?, city = ?, institution = ?, confidence = ?
		WHERE raw_affiliation = ?`,
		attr.Country, attr.Region, attr.City, attr.Institution, string(attr.Confidence), rawAffiliation)
	if err != nil {
		return 0, fmt.Errorf("records update: %w", err)
	}
	return res.RowsAffected()
}

// DistinctDocuments counts the documents touched by any of the given raw
// affiliation strings.
func (s *RecordStore) DistinctDocuments(raws []string) (int, error) {
	if len(raws) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`SELECT COUNT(DISTINCT document_id) FROM authorship_records WHERE raw_affiliation IN (?)`, raws)
	if err != nil {
		return 0, fmt.Errorf("records distinct docs: %w", err)
	}
	var n int
	if err := s.db.QueryRow(s.db.Rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("records distinct docs: %w", err)
	}
	return n, nil
}
