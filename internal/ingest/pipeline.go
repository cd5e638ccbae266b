// Package ingest turns raw document metadata into attributed authorship
// records. Every raw affiliation string resolves exactly once per run: cache
// first, then rules, then the LLM for strings the rules cannot place.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
	"github.com/joelkehle/scholar-atlas/internal/institution"
	"github.com/joelkehle/scholar-atlas/internal/llmgeo"
	"github.com/joelkehle/scholar-atlas/internal/reconcile"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

// DefaultEscalateBelow is the confidence floor under which a rules result is
// sent to the LLM for a second opinion.
const DefaultEscalateBelow = geoattrib.ConfidenceMedium

type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation"`
}

type Document struct {
	DocumentID string   `json:"document_id"`
	Authors    []Author `json:"authors"`
}

// Extractor is the LLM escalation path.
type Extractor interface {
	ExtractAll(ctx context.Context, raws []string) ([]geoattrib.GeoAttribution, llmgeo.Stats)
}

type Result struct {
	RunID            string
	Documents        int
	Records          int
	UniqueStrings    int
	CacheHits        int
	RulesResolved    int
	Escalated        int
	LLMBatches       int
	LLMFailedBatches int
	Pending          []reconcile.PendingInstitution
}

type Pipeline struct {
	cache     *store.AffiliationCache
	records   *store.RecordStore
	parser    *geoattrib.Parser
	matcher   *institution.Matcher
	extractor Extractor

	// EscalateBelow sends any rules result under this confidence to the
	// LLM. Set it to ConfidenceNone to disable escalation entirely.
	EscalateBelow geoattrib.Confidence
}

func NewPipeline(cache *store.AffiliationCache, records *store.RecordStore, matcher *institution.Matcher, extractor Extractor) *Pipeline {
	var lookup geoattrib.InstitutionLookup
	if matcher != nil {
		lookup = matcher
	}
	return &Pipeline{
		cache:         cache,
		records:       records,
		parser:        geoattrib.NewParser(lookup),
		matcher:       matcher,
		extractor:     extractor,
		EscalateBelow: DefaultEscalateBelow,
	}
}

// ReadDocuments parses one JSON document per line.
func ReadDocuments(r io.Reader) ([]Document, error) {
	var docs []Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("ingest input line %d: %w", line, err)
		}
		if doc.DocumentID == "" {
			return nil, fmt.Errorf("ingest input line %d: missing document_id", line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest input: %w", err)
	}
	return docs, nil
}

// Run attributes every author entry and persists the resulting records.
func (p *Pipeline) Run(ctx context.Context, docs []Document) (Result, error) {
	result := Result{RunID: uuid.NewString(), Documents: len(docs)}

	raws := distinctAffiliations(docs)
	result.UniqueStrings = len(raws)
	log.Printf("ingest run=%s documents=%d unique_affiliations=%d", result.RunID, len(docs), len(raws))

	resolved, err := p.cache.GetBatch(raws)
	if err != nil {
		return result, fmt.Errorf("ingest cache check: %w", err)
	}
	result.CacheHits = len(resolved)

	// Rules pass over the cache misses.
	var escalate []string
	fresh := map[string]geoattrib.GeoAttribution{}
	for _, raw := range raws {
		if _, ok := resolved[raw]; ok {
			continue
		}
		attr := p.parser.ParseString(raw)
		fresh[raw] = attr
		if !attr.Confidence.AtLeast(p.escalateBelow()) {
			escalate = append(escalate, raw)
		} else {
			result.RulesResolved++
		}
	}

	// LLM pass over the strings the rules could not place. The rules
	// result survives a weaker LLM answer.
	if len(escalate) > 0 && p.extractor != nil {
		result.Escalated = len(escalate)
		attrs, stats := p.extractor.ExtractAll(ctx, escalate)
		result.LLMBatches = stats.Batches
		result.LLMFailedBatches = stats.FailedBatches
		for i, raw := range escalate {
			if attrs[i].Confidence.Rank() > fresh[raw].Confidence.Rank() {
				fresh[raw] = attrs[i]
			}
		}
	}

	if len(fresh) > 0 {
		if err := p.cache.PutBatch(fresh); err != nil {
			return result, fmt.Errorf("ingest cache store: %w", err)
		}
	}
	for raw, attr := range fresh {
		resolved[raw] = attr
	}

	result.Pending = p.pendingInstitutions(fresh)

	var records []store.AuthorshipRecord
	for _, doc := range docs {
		for _, author := range doc.Authors {
			attr := resolved[author.Affiliation]
			if attr.Confidence == "" {
				attr.Confidence = geoattrib.ConfidenceNone
			}
			records = append(records, store.AuthorshipRecord{
				DocumentID:     doc.DocumentID,
				AuthorName:     author.Name,
				RawAffiliation: author.Affiliation,
				Country:        attr.Country,
				Region:         attr.Region,
				City:           attr.City,
				Institution:    attr.Institution,
				Confidence:     attr.Confidence,
				RunID:          result.RunID,
			})
		}
	}
	if err := p.records.InsertBatch(records); err != nil {
		return result, fmt.Errorf("ingest record store: %w", err)
	}
	result.Records = len(records)

	log.Printf("ingest run=%s records=%d cache_hits=%d rules=%d escalated=%d pending_institutions=%d",
		result.RunID, result.Records, result.CacheHits, result.RulesResolved, result.Escalated, len(result.Pending))
	return result, nil
}

// pendingInstitutions collects freshly seen institutions the registry does
// not know yet. They stay unverified until a reconciliation pass geocodes
// their location.
func (p *Pipeline) pendingInstitutions(fresh map[string]geoattrib.GeoAttribution) []reconcile.PendingInstitution {
	seen := map[string]bool{}
	var pending []reconcile.PendingInstitution
	for _, attr := range fresh {
		if attr.Institution == "" || attr.Country == "" || attr.City == "" {
			continue
		}
		norm := institution.NormalizeName(attr.Institution)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		if p.matcher != nil {
			if _, ok := p.matcher.Match(attr.Institution); ok {
				continue
			}
		}
		pending = append(pending, reconcile.PendingInstitution{
			Name:    attr.Institution,
			Country: attr.Country,
			City:    attr.City,
		})
	}
	return pending
}

func (p *Pipeline) escalateBelow() geoattrib.Confidence {
	if p.EscalateBelow == "" {
		return DefaultEscalateBelow
	}
	return p.EscalateBelow
}

func distinctAffiliations(docs []Document) []string {
	seen := map[string]bool{}
	var raws []string
	for _, doc := range docs {
		for _, author := range doc.Authors {
			if author.Affiliation == "" || seen[author.Affiliation] {
				continue
			}
			seen[author.Affiliation] = true
			raws = append(raws, author.Affiliation)
		}
	}
	return raws
}
