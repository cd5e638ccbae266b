package reconcile

import (
	"fmt"
	"strings"
	"time"
)

// BuildReportMarkdown renders a run summary suitable for the PDF renderer or
// a plain terminal dump.
func BuildReportMarkdown(stats Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Reconciliation Report\n\n")
	fmt.Fprintf(&b, "- Run ID: %s\n", stats.RunID)
	fmt.Fprintf(&b, "- Date: %s\n", stats.CompletedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n\n", time.Duration(stats.DurationMS)*time.Millisecond)

	fmt.Fprintf(&b, "## Coverage\n\n")
	fmt.Fprintf(&b, "| Metric | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Records examined | %d |\n", stats.RecordsExamined)
	fmt.Fprintf(&b, "| Unique locations | %d |\n", stats.UniqueLocations)
	fmt.Fprintf(&b, "| Unattributed groups | %d |\n", stats.UnattributedGroups)
	fmt.Fprintf(&b, "| Cache hits (resolved) | %d |\n", stats.CacheHitsValid)
	fmt.Fprintf(&b, "| Cache hits (unresolved) | %d |\n", stats.CacheHitsNull)
	fmt.Fprintf(&b, "| Cache misses | %d |\n\n", stats.CacheMisses)

	fmt.Fprintf(&b, "## Geocoding\n\n")
	fmt.Fprintf(&b, "| Metric | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| External successes | %d |\n", stats.GeocodeSuccesses)
	fmt.Fprintf(&b, "| External failures | %d |\n", stats.GeocodeFailures)
	fmt.Fprintf(&b, "| Institutions promoted | %d |\n\n", stats.RegistryPromotions)

	fmt.Fprintf(&b, "## Repairs\n\n")
	fmt.Fprintf(&b, "| Metric | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Error affiliations (deduplicated) | %d |\n", stats.ErrorAffiliations)
	fmt.Fprintf(&b, "| Documents affected | %d |\n", stats.AffectedDocuments)
	fmt.Fprintf(&b, "| LLM batches | %d |\n", stats.LLMBatches)
	fmt.Fprintf(&b, "| LLM batches failed | %d |\n", stats.LLMFailedBatches)
	fmt.Fprintf(&b, "| Cache rows overwritten | %d |\n", stats.CacheRowsUpdated)
	fmt.Fprintf(&b, "| Record rows updated | %d |\n\n", stats.RecordRowsUpdated)

	if stats.ErrorAffiliations == 0 {
		fmt.Fprintf(&b, "No broken affiliations found. The cache is consistent with the record store.\n")
	} else if stats.LLMFailedBatches > 0 {
		fmt.Fprintf(&b, "Some extraction batches failed; affected affiliations were cached with no attribution and will be retried on the next run.\n")
	}
	return b.String()
}
