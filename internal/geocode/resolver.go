package geocode

import (
	"context"
	"fmt"

	"github.com/joelkehle/scholar-atlas/internal/geoattrib"
	"github.com/joelkehle/scholar-atlas/internal/store"
)

// Location is one (country,city) pair to resolve.
type Location struct {
	Country string
	City    string
}

// Key returns the location's canonical identity.
func (l Location) Key() geoattrib.LocationKey {
	return geoattrib.MakeLocationKey(l.Country, l.City)
}

// Resolver is the cache-first resolution path. A cached null is a standing
// negative result and never re-triggers the external call; only a true cache
// miss reaches the geocoder, and whatever comes back is persisted.
type Resolver struct {
	cache    *store.GeocodeCache
	geocoder Geocoder
}

func NewResolver(cache *store.GeocodeCache, geocoder Geocoder) *Resolver {
	return &Resolver{cache: cache, geocoder: geocoder}
}

// Resolve returns the coordinate entry for (country,city), consulting the
// external service only on a cache miss. Service errors are returned without
// caching so the next pass naturally retries.
func (r *Resolver) Resolve(ctx context.Context, country, city string) (*store.CoordinateEntry, error) {
	key := geoattrib.MakeLocationKey(country, city)
	if entry, ok, err := r.cache.Get(key); err != nil {
		return nil, err
	} else if ok {
		return entry, nil
	}
	return r.resolveExternal(ctx, key, country, city)
}

func (r *Resolver) resolveExternal(ctx context.Context, key geoattrib.LocationKey, country, city string) (*store.CoordinateEntry, error) {
	res, err := r.geocoder.Geocode(ctx, country, city)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", key, err)
	}
	entry := &store.CoordinateEntry{Key: key, Country: country, City: city}
	if res != nil {
		entry.Latitude = &res.Latitude
		entry.Longitude = &res.Longitude
	}
	if err := r.cache.Put(key, country, city, entry.Latitude, entry.Longitude); err != nil {
		return nil, err
	}
	return entry, nil
}

// ResolveKeys is the batch pattern shared by reconciliation and aggregation:
// deduplicate by LocationKey, hit the cache once for the whole set, then
// geocode each missing key exactly once. Cached nulls stay null.
func (r *Resolver) ResolveKeys(ctx context.Context, locations []Location) (map[geoattrib.LocationKey]*store.CoordinateEntry, error) {
	byKey := map[geoattrib.LocationKey]Location{}
	keys := make([]geoattrib.LocationKey, 0, len(locations))
	for _, loc := range locations {
		k := loc.Key()
		if _, seen := byKey[k]; !seen {
			byKey[k] = loc
			keys = append(keys, k)
		}
	}

	out, err := r.cache.GetBatch(keys)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if _, ok := out[k]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		loc := byKey[k]
		entry, err := r.resolveExternal(ctx, k, loc.Country, loc.City)
		if err != nil {
			// One bad location must not sink the batch.
			continue
		}
		out[k] = entry
	}
	return out, nil
}
