package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/joelkehle/scholar-atlas/internal/geocode"
	"github.com/joelkehle/scholar-atlas/internal/institution"
	"github.com/joelkehle/scholar-atlas/internal/llmgeo"
	"github.com/joelkehle/scholar-atlas/internal/reconcile"
	"github.com/joelkehle/scholar-atlas/internal/report"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

func main() {
	_ = godotenv.Load()

	var (
		dbPath      = flag.String("db", envOr("GEO_DB_PATH", "scholar-atlas.db"), "SQLite database path")
		runID       = flag.String("run", "", "Restrict the pass to one ingestion run (default: reconcile everything)")
		pendingPath = flag.String("pending", "", "Unverified institutions JSON produced by geo-ingest")
		reportPath  = flag.String("report", "", "Write the markdown run report to this path")
		pdfPath     = flag.String("pdf", "", "Render the run report to PDF at this path")
	)
	flag.Parse()

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	recordStore := store.NewRecordStore(db)
	registry := store.NewInstitutionRegistry(db)
	entries, err := registry.All()
	if err != nil {
		log.Fatalf("load registry: %v", err)
	}
	matcher := institution.NewMatcher(entries, institution.MatcherConfig{})

	geocoder, err := geocode.NewClient(geocode.Config{
		BaseURL:   os.Getenv("GEO_GEOCODER_URL"),
		UserAgent: requiredEnv("GEO_USER_AGENT"),
	})
	if err != nil {
		log.Fatal(err)
	}
	resolver := geocode.NewResolver(store.NewGeocodeCache(db), geocoder)

	caller, err := llmgeo.NewAnthropicCallerFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	extractor := llmgeo.NewExtractor(caller)
	extractor.BatchSize = envInt("GEO_LLM_BATCH_SIZE", llmgeo.DefaultBatchSize)
	extractor.Parallelism = envInt("GEO_LLM_PARALLELISM", llmgeo.DefaultParallelism)

	reconciler := reconcile.NewReconciler(
		store.NewAffiliationCache(db), store.NewGeocodeCache(db), recordStore,
		registry, matcher, resolver, extractor,
	)
	reconciler.SamplesPerGroup = envInt("GEO_SAMPLES_PER_GROUP", reconcile.DefaultSamplesPerGroup)

	records, err := loadRecords(recordStore, *runID)
	if err != nil {
		log.Fatal(err)
	}
	pending, err := loadPending(*pendingPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stats, err := reconciler.ReconcileWithProgress(ctx, records, pending, func(stage, message string) {
		log.Printf("reconcile stage=%s %s", stage, message)
	})
	if err != nil {
		log.Fatalf("reconciliation failed: %v", err)
	}

	markdown := reconcile.BuildReportMarkdown(stats)
	if *reportPath != "" {
		if err := os.WriteFile(*reportPath, []byte(markdown), 0o644); err != nil {
			log.Fatalf("write report: %v", err)
		}
	}
	if *pdfPath != "" {
		renderer := report.NewChromiumPDFRenderer()
		pdf, err := renderer.Render(ctx, markdown, report.Meta{
			Title:    "Reconciliation Report",
			RunID:    stats.RunID,
			Produced: time.Now(),
		})
		if err != nil {
			log.Fatalf("render pdf: %v", err)
		}
		if err := os.WriteFile(*pdfPath, pdf, 0o644); err != nil {
			log.Fatalf("write pdf: %v", err)
		}
	}

	fmt.Printf("run_id=%s records=%d locations=%d errors=%d records_updated=%d promotions=%d\n",
		stats.RunID, stats.RecordsExamined, stats.UniqueLocations,
		stats.ErrorAffiliations, stats.RecordRowsUpdated, stats.RegistryPromotions)
}

func loadRecords(s *store.RecordStore, runID string) ([]store.AuthorshipRecord, error) {
	if runID != "" {
		return s.ByRun(runID)
	}
	return s.All()
}

func loadPending(path string) ([]reconcile.PendingInstitution, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pending institutions: %w", err)
	}
	var pending []reconcile.PendingInstitution
	if err := json.Unmarshal(b, &pending); err != nil {
		return nil, fmt.Errorf("decode pending institutions: %w", err)
	}
	return pending, nil
}

func requiredEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Fatalf("missing required env var %s", key)
	}
	return v
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
