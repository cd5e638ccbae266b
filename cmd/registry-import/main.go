package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/joelkehle/scholar-atlas/internal/institution"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

func main() {
	_ = godotenv.Load()

	var (
		dbPath   = flag.String("db", envOr("GEO_DB_PATH", "scholar-atlas.db"), "SQLite database path")
		seedPath = flag.String("input", "", "Seed institutions JSON file")
	)
	flag.Parse()

	if *seedPath == "" {
		log.Fatal("missing required -input")
	}

	records, err := institution.LoadSeedFile(*seedPath)
	if err != nil {
		log.Fatal(err)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	registry := store.NewInstitutionRegistry(db)
	existing, err := registry.All()
	if err != nil {
		log.Fatalf("load registry: %v", err)
	}
	matcher := institution.NewMatcher(existing, institution.MatcherConfig{})

	stats, err := institution.ImportSeed(registry, matcher, records)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}
	fmt.Printf("read=%d inserted=%d skipped=%d\n", stats.Read, stats.Inserted, stats.Skipped)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
