// Package geocode wraps the external geocoding service behind the persistent
// coordinate cache and one process-wide rate-limited lane.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	// DefaultMinInterval keeps us under the service's ~1 req/s hard limit
	// with a little headroom. This is a service contract, not a tunable.
	DefaultMinInterval = 1100 * time.Millisecond
)

// Result is one successful external lookup.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

// Geocoder is the external lookup. A nil Result with a nil error is an
// explicit "no match" that callers must cache as a negative entry.
type Geocoder interface {
	Geocode(ctx context.Context, country, city string) (*Result, error)
}

type Config struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration
	HTTPClient  *http.Client
}

// Client calls a Nominatim-style search endpoint. All callers share one
// limiter lane: consecutive external calls are separated by at least
// MinInterval regardless of goroutine count.
type Client struct {
	cfg       Config
	limiter   <-chan time.Time
	limiterMu sync.Mutex
}

func NewClient(cfg Config) (*Client, error) {
	cfg.UserAgent = strings.TrimSpace(cfg.UserAgent)
	if cfg.UserAgent == "" {
		return nil, errors.New("geocoder user agent is required by the service's usage policy")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	ticker := time.NewTicker(cfg.MinInterval)
	return &Client{cfg: cfg, limiter: ticker.C}, nil
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.limiter:
		return nil
	}
}

type searchHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves a free-text (country[, city]) query to its best match.
func (c *Client) Geocode(ctx context.Context, country, city string) (*Result, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}

	query := strings.TrimSpace(country)
	if city = strings.TrimSpace(city); city != "" {
		query = city + ", " + query
	}
	u := fmt.Sprintf("%s/search?q=%s&format=json&limit=1", c.cfg.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode call %q: %w", query, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("geocode read %q: %w", query, err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("geocode external_error query=%q status=%d elapsed_ms=%d", query, resp.StatusCode, time.Since(start).Milliseconds())
		return nil, fmt.Errorf("geocode %q: status %d", query, resp.StatusCode)
	}

	var hits []searchHit
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, fmt.Errorf("geocode decode %q: %w", query, err)
	}
	if len(hits) == 0 {
		log.Printf("geocode external_miss query=%q elapsed_ms=%d", query, time.Since(start).Milliseconds())
		return nil, nil
	}
	lat, latErr := strconv.ParseFloat(hits[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(hits[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, fmt.Errorf("geocode %q: bad coordinates %q,%q", query, hits[0].Lat, hits[0].Lon)
	}
	log.Printf("geocode external_hit query=%q lat=%f lon=%f elapsed_ms=%d", query, lat, lon, time.Since(start).Milliseconds())
	return &Result{Latitude: lat, Longitude: lon, DisplayName: hits[0].DisplayName}, nil
}
