package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
	"github.com/joelkehle/scholar-atlas/internal/institution"
	"github.com/joelkehle/scholar-atlas/internal/llmgeo"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

type fakeExtractor struct {
	attrs map[string]geoattrib.GeoAttribution
	seen  []string
}

func (f *fakeExtractor) ExtractAll(ctx context.Context, raws []string) ([]geoattrib.GeoAttribution, llmgeo.Stats) {
	f.seen = append(f.seen, raws...)
	out := make([]geoattrib.GeoAttribution, len(raws))
	for i, raw := range raws {
		if attr, ok := f.attrs[raw]; ok {
			out[i] = attr
		} else {
			out[i] = geoattrib.GeoAttribution{Confidence: geoattrib.ConfidenceNone, Source: geoattrib.SourceLLM}
		}
	}
	return out, llmgeo.Stats{Batches: 1}
}

func newPipeline(t *testing.T) (*Pipeline, *store.AffiliationCache, *store.RecordStore, *fakeExtractor) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cache := store.NewAffiliationCache(db)
	records := store.NewRecordStore(db)
	matcher := institution.NewMatcher(nil, institution.MatcherConfig{})
	extractor := &fakeExtractor{attrs: map[string]geoattrib.GeoAttribution{}}
	return NewPipeline(cache, records, matcher, extractor), cache, records, extractor
}

func TestReadDocuments(t *testing.T) {
	input := `{"document_id":"d1","authors":[{"name":"Li Wei","affiliation":"Wuhan University, Wuhan, Hubei, China"}]}
{"document_id":"d2","authors":[{"name":"A. B.","affiliation":"MGH, Boston, MA, USA"}]}
`
	docs, err := ReadDocuments(strings.NewReader(input))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 2 || docs[0].DocumentID != "d1" || docs[1].Authors[0].Name != "A. B." {
		t.Fatalf("docs = %+v", docs)
	}
}

func TestReadDocumentsRejectsMissingID(t *testing.T) {
	if _, err := ReadDocuments(strings.NewReader(`{"authors":[]}`)); err == nil {
		t.Fatal("expected error for missing document_id")
	}
}

func TestRunResolvesWithRulesAndPersists(t *testing.T) {
	p, cache, records, extractor := newPipeline(t)
	docs := []Document{
		{DocumentID: "d1", Authors: []Author{
			{Name: "Li Wei", Affiliation: "Department of Neurosurgery, Tongji Hospital, Wuhan, Hubei, China"},
		}},
	}
	result, err := p.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.RulesResolved != 1 || result.Escalated != 0 || len(extractor.seen) != 0 {
		t.Fatalf("result = %+v", result)
	}

	got, err := records.ByRun(result.RunID)
	if err != nil {
		t.Fatalf("by run: %v", err)
	}
	if len(got) != 1 || got[0].Country != "China" || got[0].City != "Wuhan" {
		t.Fatalf("records = %+v", got)
	}

	attr, ok, err := cache.Get("Department of Neurosurgery, Tongji Hospital, Wuhan, Hubei, China")
	if err != nil || !ok {
		t.Fatalf("cache get: ok=%v err=%v", ok, err)
	}
	if attr.Source != geoattrib.SourceRules {
		t.Fatalf("cache attr = %+v", attr)
	}
}

func TestRunEscalatesLowConfidenceToLLM(t *testing.T) {
	p, _, records, extractor := newPipeline(t)
	raw := "Natl Ctr Tumor Dis"
	extractor.attrs[raw] = geoattrib.GeoAttribution{
		Country: "Germany", City: "Heidelberg",
		Confidence: geoattrib.ConfidenceMedium, Source: geoattrib.SourceLLM,
	}
	docs := []Document{{DocumentID: "d1", Authors: []Author{{Name: "C. D.", Affiliation: raw}}}}
	result, err := p.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Escalated != 1 || len(extractor.seen) != 1 {
		t.Fatalf("result = %+v", result)
	}
	got, err := records.ByRun(result.RunID)
	if err != nil {
		t.Fatalf("by run: %v", err)
	}
	if got[0].Country != "Germany" || got[0].Confidence != geoattrib.ConfidenceMedium {
		t.Fatalf("record = %+v", got[0])
	}
}

func TestRunKeepsRulesResultOverWeakerLLMAnswer(t *testing.T) {
	p, cache, _, _ := newPipeline(t)
	// Rules find an institution but no geography: low confidence,
	// escalated. The scripted LLM does no better.
	raw := "University of Nowhereville"
	docs := []Document{{DocumentID: "d1", Authors: []Author{{Name: "E. F.", Affiliation: raw}}}}
	result, err := p.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Escalated != 1 {
		t.Fatalf("result = %+v", result)
	}
	attr, ok, err := cache.Get(raw)
	if err != nil || !ok {
		t.Fatalf("cache get: ok=%v err=%v", ok, err)
	}
	if attr.Source != geoattrib.SourceRules {
		t.Fatalf("rules result lost to a confidence-none answer: %+v", attr)
	}
}

func TestRunReusesCacheAcrossRuns(t *testing.T) {
	p, _, _, extractor := newPipeline(t)
	docs := []Document{{DocumentID: "d1", Authors: []Author{
		{Name: "A. One", Affiliation: "Karolinska Institutet, Stockholm, Sweden"},
		{Name: "B. Two", Affiliation: "Karolinska Institutet, Stockholm, Sweden"},
	}}}
	first, err := p.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.UniqueStrings != 1 || first.CacheHits != 0 {
		t.Fatalf("first = %+v", first)
	}

	docs[0].DocumentID = "d2"
	second, err := p.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.CacheHits != 1 || second.RulesResolved != 0 {
		t.Fatalf("second = %+v", second)
	}
	if len(extractor.seen) != 0 {
		t.Fatalf("extractor saw %v", extractor.seen)
	}
}

func TestRunCollectsPendingInstitutions(t *testing.T) {
	p, _, _, _ := newPipeline(t)
	docs := []Document{{DocumentID: "d1", Authors: []Author{
		{Name: "G. H.", Affiliation: "Tongji Hospital, Wuhan, Hubei, China"},
	}}}
	result, err := p.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Pending) != 1 {
		t.Fatalf("pending = %+v", result.Pending)
	}
	got := result.Pending[0]
	if got.Name != "Tongji Hospital" || got.Country != "China" || got.City != "Wuhan" {
		t.Fatalf("pending = %+v", got)
	}
}
