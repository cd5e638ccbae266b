// Package institution matches free text against the canonical institution
// registry: exact normalized-name/alias lookup first, then candidate-phrase
// extraction, then fuzzy similarity.
package institution

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

var punctRe = regexp.MustCompile(`[^\p{L}\p{N} ]+`)

// NormalizeName builds the registry lookup key: folded, punctuation replaced
// by spaces, whitespace collapsed.
func NormalizeName(s string) string {
	folded := geoattrib.Fold(punctRe.ReplaceAllString(s, " "))
	return strings.TrimSpace(folded)
}

// MatcherConfig carries the tunables of the fuzzy stage. The threshold and
// the downgraded confidence are parameters, not invariants.
type MatcherConfig struct {
	FuzzyThreshold  float64
	FuzzyConfidence geoattrib.Confidence
}

func (c *MatcherConfig) applyDefaults() {
	if c.FuzzyThreshold <= 0 {
		c.FuzzyThreshold = 0.7
	}
	if c.FuzzyConfidence == "" {
		c.FuzzyConfidence = geoattrib.ConfidenceMedium
	}
}

// Matcher resolves institution text against an in-memory copy of the
// registry. Match results are memoized for the process lifetime. PrimaryName
// is never matched directly: display formatting varies too much.
type Matcher struct {
	cfg MatcherConfig

	mu         sync.RWMutex
	entries    map[string]store.InstitutionEntry
	aliasIndex map[string]string
	memo       map[string]memoResult
}

type memoResult struct {
	match geoattrib.InstitutionMatch
	ok    bool
}

func NewMatcher(entries []store.InstitutionEntry, cfg MatcherConfig) *Matcher {
	cfg.applyDefaults()
	m := &Matcher{
		cfg:        cfg,
		entries:    map[string]store.InstitutionEntry{},
		aliasIndex: map[string]string{},
		memo:       map[string]memoResult{},
	}
	for _, e := range entries {
		m.add(e)
	}
	return m
}

// Add registers an entry. A normalized-name collision rejects the whole
// entry; a colliding alias is dropped while the rest of the entry lands.
// Reported via the bool so callers can count skips.
func (m *Matcher) Add(e store.InstitutionEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(e)
}

func (m *Matcher) add(e store.InstitutionEntry) bool {
	name := NormalizeName(e.NormalizedName)
	if name == "" {
		name = NormalizeName(e.PrimaryName)
	}
	if name == "" {
		return false
	}
	if _, taken := m.entries[name]; taken {
		return false
	}
	if _, taken := m.aliasIndex[name]; taken {
		return false
	}
	e.NormalizedName = name
	var kept []string
	for _, alias := range e.Aliases {
		a := NormalizeName(alias)
		if a == "" || a == name {
			continue
		}
		if _, taken := m.entries[a]; taken {
			continue
		}
		if _, taken := m.aliasIndex[a]; taken {
			continue
		}
		m.aliasIndex[a] = name
		kept = append(kept, a)
	}
	e.Aliases = kept
	m.entries[name] = e
	return true
}

// Match resolves text to a registry entry.
func (m *Matcher) Match(text string) (geoattrib.InstitutionMatch, bool) {
	key := NormalizeName(text)
	if key == "" {
		return geoattrib.InstitutionMatch{}, false
	}

	m.mu.RLock()
	if r, seen := m.memo[key]; seen {
		m.mu.RUnlock()
		return r.match, r.ok
	}
	m.mu.RUnlock()

	match, ok := m.resolve(text, key)

	m.mu.Lock()
	m.memo[key] = memoResult{match: match, ok: ok}
	m.mu.Unlock()
	return match, ok
}

func (m *Matcher) resolve(text, key string) (geoattrib.InstitutionMatch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.lookupExact(key); ok {
		return toMatch(e, geoattrib.ConfidenceHigh), true
	}
	for _, phrase := range candidatePhrases(text) {
		if e, ok := m.lookupExact(NormalizeName(phrase)); ok {
			return toMatch(e, geoattrib.ConfidenceHigh), true
		}
	}

	best := ""
	bestScore := 0.0
	for name := range m.entries {
		if s := similarity(key, name); s > bestScore {
			best, bestScore = name, s
		}
	}
	for alias, name := range m.aliasIndex {
		if s := similarity(key, alias); s > bestScore {
			best, bestScore = name, s
		}
	}
	if bestScore >= m.cfg.FuzzyThreshold {
		return toMatch(m.entries[best], m.cfg.FuzzyConfidence), true
	}
	return geoattrib.InstitutionMatch{}, false
}

func (m *Matcher) lookupExact(key string) (store.InstitutionEntry, bool) {
	if key == "" {
		return store.InstitutionEntry{}, false
	}
	if e, ok := m.entries[key]; ok {
		return e, true
	}
	if name, ok := m.aliasIndex[key]; ok {
		return m.entries[name], true
	}
	return store.InstitutionEntry{}, false
}

// candidatePhrases pulls the re-matchable fragments out of longer text: the
// part before the first separator, plus every comma phrase carrying an
// institution keyword.
func candidatePhrases(text string) []string {
	var out []string
	parts := strings.Split(strings.ReplaceAll(text, ";", ","), ",")
	if len(parts) > 0 {
		if head := strings.TrimSpace(parts[0]); head != "" {
			out = append(out, head)
		}
	}
	for _, p := range parts[1:] {
		phrase := strings.TrimSpace(p)
		if phrase != "" && geoattrib.HasInstitutionKeyword(phrase) {
			out = append(out, phrase)
		}
	}
	return out
}

func toMatch(e store.InstitutionEntry, conf geoattrib.Confidence) geoattrib.InstitutionMatch {
	return geoattrib.InstitutionMatch{
		Name:       e.PrimaryName,
		Country:    e.Country,
		City:       e.City,
		Confidence: conf,
	}
}

// similarity is a word-overlap score in [0,1]. Good enough to catch word
// order and filler-word variance between alias spellings.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}
	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}
	intersection := 0
	for _, w := range wordsB {
		if setA[w] {
			intersection++
		}
	}
	union := len(setA) + len(wordsB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// Names returns the sorted normalized names currently registered. Test and
// diagnostics helper.
func (m *Matcher) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for name := range m.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
