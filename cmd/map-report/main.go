package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
	"github.com/joelkehle/scholar-atlas/internal/geocode"
	"github.com/joelkehle/scholar-atlas/internal/mapagg"
	"github.com/joelkehle/scholar-atlas/internal/report"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

func main() {
	_ = godotenv.Load()

	var (
		dbPath        = flag.String("db", envOr("GEO_DB_PATH", "scholar-atlas.db"), "SQLite database path")
		level         = flag.String("level", "countries", "View level: countries, cities, institutions, scholars")
		country       = flag.String("country", "", "Country for the cities/institutions/scholars levels")
		city          = flag.String("city", "", "City for the institutions/scholars levels")
		institutionID = flag.String("institution", "", "Institution for the scholars level")
		minConfidence = flag.String("min-confidence", "none", "Confidence floor: none, low, medium, high")
		runID         = flag.String("run", "", "Restrict the view to one ingestion run")
		outputPath    = flag.String("output", "", "Write markdown to this path (defaults to stdout)")
		pdfPath       = flag.String("pdf", "", "Render the view to PDF at this path")
	)
	flag.Parse()

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	records, err := loadRecords(store.NewRecordStore(db), *runID)
	if err != nil {
		log.Fatal(err)
	}
	filter := mapagg.Filter{
		MinConfidence: geoattrib.ParseConfidence(*minConfidence),
		RunID:         *runID,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	agg := mapagg.NewAggregator(geocode.NewResolver(store.NewGeocodeCache(db), buildGeocoder()))

	markdown, err := buildView(ctx, agg, records, *level, *country, *city, *institutionID, filter)
	if err != nil {
		log.Fatal(err)
	}

	if *outputPath == "" {
		fmt.Print(markdown)
	} else if err := os.WriteFile(*outputPath, []byte(markdown), 0o644); err != nil {
		log.Fatalf("write output: %v", err)
	}

	if *pdfPath != "" {
		renderer := report.NewChromiumPDFRenderer()
		pdf, err := renderer.Render(ctx, markdown, report.Meta{Title: "Research Activity Map", Produced: time.Now()})
		if err != nil {
			log.Fatalf("render pdf: %v", err)
		}
		if err := os.WriteFile(*pdfPath, pdf, 0o644); err != nil {
			log.Fatalf("write pdf: %v", err)
		}
	}
}

func buildView(ctx context.Context, agg *mapagg.Aggregator, records []store.AuthorshipRecord, level, country, city, institutionName string, filter mapagg.Filter) (string, error) {
	switch level {
	case "countries":
		return mapagg.BuildCountriesMarkdown(agg.Countries(records, filter)), nil
	case "cities":
		if country == "" {
			return "", fmt.Errorf("-country is required for the cities level")
		}
		buckets, err := agg.Cities(ctx, records, country, filter)
		if err != nil {
			return "", err
		}
		return mapagg.BuildCitiesMarkdown(country, buckets), nil
	case "institutions":
		if country == "" || city == "" {
			return "", fmt.Errorf("-country and -city are required for the institutions level")
		}
		return mapagg.BuildInstitutionsMarkdown(country, city, agg.Institutions(records, country, city, filter)), nil
	case "scholars":
		if country == "" || city == "" || institutionName == "" {
			return "", fmt.Errorf("-country, -city and -institution are required for the scholars level")
		}
		return mapagg.BuildScholarsMarkdown(institutionName, agg.Scholars(records, country, city, institutionName, filter)), nil
	default:
		return "", fmt.Errorf("unknown level %q", level)
	}
}

// buildGeocoder returns the external client when configured, or a stub whose
// errors leave unknown locations uncached and without coordinates. The map
// rarely needs external lookups: the reconciler keeps the cache warm.
func buildGeocoder() geocode.Geocoder {
	userAgent := strings.TrimSpace(os.Getenv("GEO_USER_AGENT"))
	if userAgent == "" {
		return noGeocoder{}
	}
	client, err := geocode.NewClient(geocode.Config{
		BaseURL:   os.Getenv("GEO_GEOCODER_URL"),
		UserAgent: userAgent,
	})
	if err != nil {
		log.Fatal(err)
	}
	return client
}

type noGeocoder struct{}

func (noGeocoder) Geocode(ctx context.Context, country, city string) (*geocode.Result, error) {
	return nil, errors.New("no geocoder configured, set GEO_USER_AGENT")
}

func loadRecords(s *store.RecordStore, runID string) ([]store.AuthorshipRecord, error) {
	if runID != "" {
		return s.ByRun(runID)
	}
	return s.All()
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
