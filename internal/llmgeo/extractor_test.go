package llmgeo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
)

type fakeCaller struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
}

func (f *fakeCaller) GenerateJSON(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "[]", nil
}

func (f *fakeCaller) ModelName() string { return "fake-model" }

func TestExtractBatchParsesResponse(t *testing.T) {
	caller := &fakeCaller{responses: []string{
		"```json\n[{\"country\":\"USA\",\"city\":\"Boston\",\"institution\":\"MGH\",\"confidence\":\"high\"}]\n```",
	}}
	e := NewExtractor(caller)
	got, stats := e.ExtractAll(context.Background(), []string{"MGH, Boston, MA, USA"})
	if stats.Batches != 1 || stats.FailedBatches != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Country != "United States" {
		t.Errorf("country alias not normalized: %q", got[0].Country)
	}
	if got[0].City != "Boston" || got[0].Confidence != geoattrib.ConfidenceHigh || got[0].Source != geoattrib.SourceLLM {
		t.Errorf("attribution: %+v", got[0])
	}
}

func TestExtractBatchPadsShortResponse(t *testing.T) {
	caller := &fakeCaller{responses: []string{
		`[{"country":"Japan","city":"Tokyo","confidence":"high"},{"country":"France","city":"Paris","confidence":"medium"}]`,
	}}
	e := NewExtractor(caller)
	got, _ := e.ExtractAll(context.Background(), []string{"a", "b", "c"})
	if len(got) != 3 {
		t.Fatalf("len = %d, want input length 3", len(got))
	}
	if got[2].Confidence != geoattrib.ConfidenceNone {
		t.Fatalf("missing entry must pad with confidence none: %+v", got[2])
	}
	if got[0].Country != "Japan" || got[1].Country != "France" {
		t.Fatalf("order lost: %+v", got[:2])
	}
}

func TestExtractBatchTruncatesLongResponse(t *testing.T) {
	caller := &fakeCaller{responses: []string{
		`[{"country":"Japan"},{"country":"France"},{"country":"Chile"}]`,
	}}
	e := NewExtractor(caller)
	got, _ := e.ExtractAll(context.Background(), []string{"a", "b"})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestExtractBatchMalformedJSONDegrades(t *testing.T) {
	caller := &fakeCaller{responses: []string{`not json at all`}}
	e := NewExtractor(caller)
	got, stats := e.ExtractAll(context.Background(), []string{"a", "b"})
	if stats.FailedBatches != 0 {
		t.Fatalf("malformed JSON is not a transport failure: %+v", stats)
	}
	for _, attr := range got {
		if attr.Confidence != geoattrib.ConfidenceNone {
			t.Fatalf("expected confidence none, got %+v", attr)
		}
	}
}

func TestExtractAllTransportFailureDegrades(t *testing.T) {
	caller := &fakeCaller{errs: []error{errors.New("connection refused")}}
	e := NewExtractor(caller)
	got, stats := e.ExtractAll(context.Background(), []string{"a"})
	if stats.FailedBatches != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if got[0].Confidence != geoattrib.ConfidenceNone {
		t.Fatalf("failed batch must degrade: %+v", got[0])
	}
}

func TestExtractAllSplitsBatches(t *testing.T) {
	caller := &fakeCaller{responses: []string{
		`[{"country":"Japan"},{"country":"France"}]`,
		`[{"country":"Chile"}]`,
	}}
	e := NewExtractor(caller)
	e.BatchSize = 2
	e.Parallelism = 1
	got, stats := e.ExtractAll(context.Background(), []string{"a", "b", "c"})
	if stats.Batches != 2 {
		t.Fatalf("batches = %d, want 2", stats.Batches)
	}
	if got[0].Country != "Japan" || got[1].Country != "France" || got[2].Country != "Chile" {
		t.Fatalf("batch assembly out of order: %+v", got)
	}
}
