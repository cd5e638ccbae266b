// Package llmgeo is the model-based fallback extractor for affiliation
// strings the rule engine got wrong.
package llmgeo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
)

const (
	DefaultLLMModel    = "claude-sonnet-4-5"
	DefaultBatchSize   = 20
	DefaultParallelism = 2
)

const systemPrompt = "You are a bibliographic affiliation analyst. You extract geographic and institutional facts from author affiliation strings. You never introduce facts that are not present in the input text. Return strict JSON only."

const batchPromptHeader = `For each numbered affiliation string below, extract the country (canonical English name), city, and institution. Use an empty string for anything the text does not state. Rate your confidence as "high", "medium", "low", or "none".

Return a JSON array with exactly %d objects, one per input, in input order:
[{"country": "...", "city": "...", "institution": "...", "confidence": "..."}]

Affiliation strings:
%s`

// LLMCaller abstracts the model call so tests can script responses.
type LLMCaller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
	model    string
}

func NewAnthropicCallerFromEnv() (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	model := strings.TrimSpace(os.Getenv("GEO_LLM_MODEL"))
	if model == "" {
		model = DefaultLLMModel
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicCaller{messages: &c.Messages, model: model}, nil
}

func (a *AnthropicCaller) ModelName() string { return a.model }

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   4096,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// Extractor batches affiliation strings through the model. One call per
// batch; batches may run in parallel against each other.
type Extractor struct {
	caller      LLMCaller
	BatchSize   int
	Parallelism int
}

func NewExtractor(caller LLMCaller) *Extractor {
	return &Extractor{caller: caller, BatchSize: DefaultBatchSize, Parallelism: DefaultParallelism}
}

// Stats counts batch outcomes across one ExtractAll call.
type Stats struct {
	Batches       int
	FailedBatches int
}

// ExtractAll runs every input through the model in batches and returns one
// attribution per input, same order and length. A failed batch degrades to
// confidence-none entries instead of failing the whole set.
func (e *Extractor) ExtractAll(ctx context.Context, raws []string) ([]geoattrib.GeoAttribution, Stats) {
	out := make([]geoattrib.GeoAttribution, len(raws))
	size := e.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	var mu sync.Mutex
	stats := Stats{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for start := 0; start < len(raws); start += size {
		end := start + size
		if end > len(raws) {
			end = len(raws)
		}
		batch := raws[start:end]
		offset := start
		mu.Lock()
		stats.Batches++
		mu.Unlock()
		g.Go(func() error {
			attrs, err := e.extractBatch(gctx, batch)
			if err != nil {
				log.Printf("llmgeo batch_failed offset=%d size=%d err=%q", offset, len(batch), err.Error())
				mu.Lock()
				stats.FailedBatches++
				mu.Unlock()
				attrs = padNone(nil, len(batch))
			}
			copy(out[offset:offset+len(batch)], attrs)
			return nil
		})
	}
	_ = g.Wait()
	return out, stats
}

type llmItem struct {
	Country     string `json:"country"`
	City        string `json:"city"`
	Institution string `json:"institution"`
	Confidence  string `json:"confidence"`
}

// extractBatch makes one model call. Malformed or wrong-length responses are
// reconciled to the input length by truncating extras and padding gaps with
// confidence-none entries; only transport failures return an error.
func (e *Extractor) extractBatch(ctx context.Context, batch []string) ([]geoattrib.GeoAttribution, error) {
	var list strings.Builder
	for i, raw := range batch {
		fmt.Fprintf(&list, "%d. %s\n", i+1, raw)
	}
	prompt := fmt.Sprintf(batchPromptHeader, len(batch), list.String())

	start := time.Now()
	raw, err := e.caller.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}

	var items []llmItem
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &items); err != nil {
		log.Printf("llmgeo malformed_response size=%d elapsed_ms=%d err=%q", len(batch), time.Since(start).Milliseconds(), err.Error())
		return padNone(nil, len(batch)), nil
	}
	if len(items) > len(batch) {
		log.Printf("llmgeo response_truncated got=%d want=%d", len(items), len(batch))
		items = items[:len(batch)]
	}

	attrs := make([]geoattrib.GeoAttribution, 0, len(batch))
	for _, item := range items {
		country := geoattrib.NormalizeCountry(item.Country)
		if country == "" {
			country = strings.TrimSpace(item.Country)
		}
		attrs = append(attrs, geoattrib.GeoAttribution{
			Country:     country,
			City:        strings.TrimSpace(item.City),
			Institution: strings.TrimSpace(item.Institution),
			Confidence:  geoattrib.ParseConfidence(item.Confidence),
			Source:      geoattrib.SourceLLM,
		})
	}
	if len(attrs) < len(batch) {
		log.Printf("llmgeo response_padded got=%d want=%d", len(attrs), len(batch))
	}
	return padNone(attrs, len(batch)), nil
}

func padNone(attrs []geoattrib.GeoAttribution, n int) []geoattrib.GeoAttribution {
	for len(attrs) < n {
		attrs = append(attrs, geoattrib.GeoAttribution{
			Confidence: geoattrib.ConfidenceNone,
			Source:     geoattrib.SourceLLM,
		})
	}
	return attrs
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
