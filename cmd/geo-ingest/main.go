package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/joelkehle/scholar-atlas/internal/ingest"
	"github.com/joelkehle/scholar-atlas/internal/institution"
	"github.com/joelkehle/scholar-atlas/internal/llmgeo"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

func main() {
	_ = godotenv.Load()

	var (
		dbPath      = flag.String("db", envOr("GEO_DB_PATH", "scholar-atlas.db"), "SQLite database path")
		inputPath   = flag.String("input", "", "JSONL documents file (defaults to stdin)")
		pendingPath = flag.String("pending-out", "", "Optional path to write unverified institutions JSON for the next reconciliation")
		noLLM       = flag.Bool("no-llm", false, "Disable LLM escalation for low-confidence strings")
	)
	flag.Parse()

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	entries, err := store.NewInstitutionRegistry(db).All()
	if err != nil {
		log.Fatalf("load registry: %v", err)
	}
	matcher := institution.NewMatcher(entries, institution.MatcherConfig{})

	var extractor ingest.Extractor
	if !*noLLM {
		caller, err := llmgeo.NewAnthropicCallerFromEnv()
		if err != nil {
			log.Fatal(err)
		}
		ex := llmgeo.NewExtractor(caller)
		ex.BatchSize = envInt("GEO_LLM_BATCH_SIZE", llmgeo.DefaultBatchSize)
		ex.Parallelism = envInt("GEO_LLM_PARALLELISM", llmgeo.DefaultParallelism)
		extractor = ex
	}

	pipeline := ingest.NewPipeline(store.NewAffiliationCache(db), store.NewRecordStore(db), matcher, extractor)

	docs, err := readInput(*inputPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := pipeline.Run(ctx, docs)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}

	if *pendingPath != "" && len(result.Pending) > 0 {
		b, err := json.MarshalIndent(result.Pending, "", "  ")
		if err != nil {
			log.Fatalf("encode pending institutions: %v", err)
		}
		if err := os.WriteFile(*pendingPath, b, 0o644); err != nil {
			log.Fatalf("write pending institutions: %v", err)
		}
	}

	fmt.Printf("run_id=%s documents=%d records=%d cache_hits=%d rules=%d escalated=%d llm_failed_batches=%d pending_institutions=%d\n",
		result.RunID, result.Documents, result.Records, result.CacheHits,
		result.RulesResolved, result.Escalated, result.LLMFailedBatches, len(result.Pending))
}

func readInput(path string) ([]ingest.Document, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	return ingest.ReadDocuments(r)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
