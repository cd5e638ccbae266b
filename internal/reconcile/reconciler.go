// Package reconcile is the batch repair pass: it regroups stored authorship
// records by location, detects geocoding-cache failures, re-extracts the
// broken affiliations through the model, and writes corrections back through
// every store.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
	"github.com/joelkehle/scholar-atlas/internal/geocode"
	"github.com/joelkehle/scholar-atlas/internal/institution"
	"github.com/joelkehle/scholar-atlas/internal/llmgeo"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

// DefaultSamplesPerGroup is how many affiliation strings a healthy group
// contributes to its cache entry's diagnostic list.
const DefaultSamplesPerGroup = 2

// Extractor is the LLM fallback path.
type Extractor interface {
	ExtractAll(ctx context.Context, raws []string) ([]geoattrib.GeoAttribution, llmgeo.Stats)
}

// PendingInstitution is an institution observed during ingestion that has not
// yet earned a registry slot. Promotion requires a successful external
// geocode of its location in the same pass.
type PendingInstitution struct {
	Name    string
	Country string
	City    string
}

// Stats is the reconciliation run summary.
type Stats struct {
	RunID              string    `json:"run_id"`
	RecordsExamined    int       `json:"records_examined"`
	UniqueLocations    int       `json:"unique_locations"`
	UnattributedGroups int       `json:"unattributed_groups"`
	CacheHitsValid     int       `json:"cache_hits_valid"`
	CacheHitsNull      int       `json:"cache_hits_null"`
	CacheMisses        int       `json:"cache_misses"`
	GeocodeSuccesses   int       `json:"geocode_successes"`
	GeocodeFailures    int       `json:"geocode_failures"`
	ErrorAffiliations  int       `json:"error_affiliations"`
	AffectedDocuments  int       `json:"affected_documents"`
	LLMBatches         int       `json:"llm_batches"`
	LLMFailedBatches   int       `json:"llm_failed_batches"`
	CacheRowsUpdated   int       `json:"cache_rows_updated"`
	RecordRowsUpdated  int64     `json:"record_rows_updated"`
	RegistryPromotions int       `json:"registry_promotions"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`
	DurationMS         int64     `json:"duration_ms"`
}

// ProgressFn receives coarse stage updates for long runs.
type ProgressFn func(stage, message string)

type Reconciler struct {
	affiliations *store.AffiliationCache
	geocache     *store.GeocodeCache
	records      *store.RecordStore
	registry     *store.InstitutionRegistry
	matcher      *institution.Matcher
	resolver     *geocode.Resolver
	extractor    Extractor

	SamplesPerGroup int
}

func NewReconciler(
	affiliations *store.AffiliationCache,
	geocache *store.GeocodeCache,
	records *store.RecordStore,
	registry *store.InstitutionRegistry,
	matcher *institution.Matcher,
	resolver *geocode.Resolver,
	extractor Extractor,
) *Reconciler {
	return &Reconciler{
		affiliations:    affiliations,
		geocache:        geocache,
		records:         records,
		registry:        registry,
		matcher:         matcher,
		resolver:        resolver,
		extractor:       extractor,
		SamplesPerGroup: DefaultSamplesPerGroup,
	}
}

type locationGroup struct {
	country string
	city    string
	raws    []string
	rawSet  map[string]bool
}

// Reconcile runs the repair pass over the given records. Every cache write
// commits independently: a cancelled run leaves a consistent, resumable cache.
func (r *Reconciler) Reconcile(ctx context.Context, records []store.AuthorshipRecord, pending []PendingInstitution) (Stats, error) {
	return r.ReconcileWithProgress(ctx, records, pending, nil)
}

func (r *Reconciler) ReconcileWithProgress(ctx context.Context, records []store.AuthorshipRecord, pending []PendingInstitution, progress ProgressFn) (Stats, error) {
	stats := Stats{RunID: uuid.NewString(), RecordsExamined: len(records), StartedAt: time.Now()}
	defer func() {
		stats.CompletedAt = time.Now()
		stats.DurationMS = stats.CompletedAt.Sub(stats.StartedAt).Milliseconds()
	}()

	// Step 1: collapse records to distinct locations.
	emit(progress, "group", "Grouping records by location...")
	groups := groupByLocation(records)
	stats.UniqueLocations = len(groups)
	keys := sortedKeys(groups)
	log.Printf("reconcile run=%s records=%d unique_locations=%d", stats.RunID, len(records), len(groups))

	// Step 2: one batch query against the geocoding cache.
	cached, err := r.geocache.GetBatch(keys)
	if err != nil {
		return stats, fmt.Errorf("reconcile cache check: %w", err)
	}

	// Steps 3-5: classify groups, geocode misses, collect error candidates.
	emit(progress, "geocode", "Checking and resolving locations...")
	errorRaws := map[string]bool{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		group := groups[key]
		if group.country == "" {
			// Nothing to geocode; straight to the repair path.
			stats.UnattributedGroups++
			markError(errorRaws, group.raws)
			continue
		}
		entry, hit := cached[key]
		switch {
		case hit && entry.Resolved():
			stats.CacheHitsValid++
			if err := r.geocache.AppendSamples(key, sampleRaws(group.raws, r.samplesPerGroup())); err != nil {
				log.Printf("reconcile sample_append_failed key=%s err=%v", key, err)
			}
		case hit:
			// Standing null: known-bad location, no redundant external call.
			stats.CacheHitsNull++
			markError(errorRaws, group.raws)
		default:
			stats.CacheMisses++
			resolved, err := r.resolver.Resolve(ctx, group.country, group.city)
			if err != nil {
				// Service error: nothing cached, next pass retries.
				stats.GeocodeFailures++
				markError(errorRaws, group.raws)
				continue
			}
			if resolved.Resolved() {
				stats.GeocodeSuccesses++
				stats.RegistryPromotions += r.promotePending(pending, key)
			} else {
				stats.GeocodeFailures++
				markError(errorRaws, group.raws)
			}
		}
	}

	// Step 6: deduplicated error candidates through the LLM extractor.
	raws := sortedRaws(errorRaws)
	stats.ErrorAffiliations = len(raws)
	if len(raws) == 0 {
		log.Printf("reconcile run=%s clean records=%d", stats.RunID, len(records))
		return stats, nil
	}
	if docs, err := r.records.DistinctDocuments(raws); err == nil {
		stats.AffectedDocuments = docs
	}

	emit(progress, "llm", fmt.Sprintf("Re-extracting %d affiliations...", len(raws)))
	attrs, llmStats := r.extractor.ExtractAll(ctx, raws)
	stats.LLMBatches = llmStats.Batches
	stats.LLMFailedBatches = llmStats.FailedBatches

	fixes := make(map[string]geoattrib.GeoAttribution, len(raws))
	for i, raw := range raws {
		fixes[raw] = attrs[i]
	}
	if err := r.affiliations.PutBatch(fixes); err != nil {
		return stats, fmt.Errorf("reconcile cache overwrite: %w", err)
	}
	stats.CacheRowsUpdated = len(fixes)

	// Step 7: regroup by the corrected locations and geocode each new
	// unique key once. Both outcomes land in the cache.
	emit(progress, "regeocode", "Resolving corrected locations...")
	var locations []geocode.Location
	var newKeys []geoattrib.LocationKey
	seenKeys := map[geoattrib.LocationKey]bool{}
	for _, attr := range attrs {
		if attr.Country == "" {
			continue
		}
		loc := geocode.Location{Country: attr.Country, City: attr.City}
		locations = append(locations, loc)
		if k := loc.Key(); !seenKeys[k] {
			seenKeys[k] = true
			newKeys = append(newKeys, k)
		}
	}
	preCached, err := r.geocache.GetBatch(newKeys)
	if err != nil {
		return stats, fmt.Errorf("reconcile regeocode: %w", err)
	}
	resolvedNew, err := r.resolver.ResolveKeys(ctx, locations)
	if err != nil {
		return stats, fmt.Errorf("reconcile regeocode: %w", err)
	}
	for _, k := range newKeys {
		if _, hit := preCached[k]; hit {
			continue
		}
		if entry, ok := resolvedNew[k]; ok && entry.Resolved() {
			stats.GeocodeSuccesses++
		} else {
			stats.GeocodeFailures++
		}
	}

	// Step 8: repair the denormalized record rows in place.
	emit(progress, "records", "Updating affected records...")
	for raw, attr := range fixes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		n, err := r.records.UpdateAttribution(raw, attr)
		if err != nil {
			log.Printf("reconcile record_update_failed raw=%q err=%v", raw, err)
			continue
		}
		stats.RecordRowsUpdated += n
	}

	log.Printf("reconcile run=%s done errors=%d llm_batches=%d records_updated=%d promotions=%d",
		stats.RunID, stats.ErrorAffiliations, stats.LLMBatches, stats.RecordRowsUpdated, stats.RegistryPromotions)
	return stats, nil
}

// promotePending inserts pending institutions whose location just verified.
// This is the only path that turns an unverified institution into a registry
// entry.
func (r *Reconciler) promotePending(pending []PendingInstitution, key geoattrib.LocationKey) int {
	promoted := 0
	for _, p := range pending {
		if geoattrib.MakeLocationKey(p.Country, p.City) != key {
			continue
		}
		entry := store.InstitutionEntry{
			PrimaryName:    p.Name,
			NormalizedName: institution.NormalizeName(p.Name),
			Country:        p.Country,
			City:           p.City,
			Provenance:     store.ProvenanceAutoAdded,
		}
		if !r.matcher.Add(entry) {
			continue
		}
		inserted, err := r.registry.Insert(entry)
		if err != nil {
			log.Printf("reconcile promotion_failed name=%q err=%v", p.Name, err)
			continue
		}
		if inserted {
			log.Printf("reconcile promoted institution=%q key=%s", p.Name, key)
			promoted++
		}
	}
	return promoted
}

func (r *Reconciler) samplesPerGroup() int {
	if r.SamplesPerGroup > 0 {
		return r.SamplesPerGroup
	}
	return DefaultSamplesPerGroup
}

func groupByLocation(records []store.AuthorshipRecord) map[geoattrib.LocationKey]*locationGroup {
	groups := map[geoattrib.LocationKey]*locationGroup{}
	for _, rec := range records {
		key := geoattrib.MakeLocationKey(rec.Country, rec.City)
		g, ok := groups[key]
		if !ok {
			g = &locationGroup{country: rec.Country, city: rec.City, rawSet: map[string]bool{}}
			groups[key] = g
		}
		if rec.RawAffiliation != "" && !g.rawSet[rec.RawAffiliation] {
			g.rawSet[rec.RawAffiliation] = true
			g.raws = append(g.raws, rec.RawAffiliation)
		}
	}
	return groups
}

func sortedKeys(groups map[geoattrib.LocationKey]*locationGroup) []geoattrib.LocationKey {
	keys := make([]geoattrib.LocationKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedRaws(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for raw := range set {
		out = append(out, raw)
	}
	sort.Strings(out)
	return out
}

func sampleRaws(raws []string, n int) []string {
	if len(raws) <= n {
		return raws
	}
	return raws[:n]
}

func markError(set map[string]bool, raws []string) {
	for _, raw := range raws {
		set[raw] = true
	}
}

func emit(progress ProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}
