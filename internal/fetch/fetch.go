// Package fetch implements the three reading fetchers (flood, hydrology,
// rainfall), each talking to a different upstream JSON API and enriching
// its output with station coordinates from a single batch lookup.
package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/riverwatch/riverwatch/internal/httpx"
	"github.com/riverwatch/riverwatch/internal/model"
)

// StationLookup is the subset of stationstore.Store the fetchers need,
// kept narrow so unit tests can supply an in-memory fake.
type StationLookup interface {
	LookupBatch(ctx context.Context, source model.Source, ids []string) (map[string]model.Station, error)
}

// Fetcher returns the current "latest" reading snapshot from one upstream
// source, enriched with coordinates from the station store. Readings
// whose station is unresolvable are still returned (HasCoords=false) so
// the run log can count them; C3 drops them before clustering.
type Fetcher interface {
	Source() model.Source
	FetchLatest(ctx context.Context) ([]model.Reading, error)
}

// ExtractStationID applies the shared rule described in spec.md §4.2: the
// upstream measure URL's final path segment, leading component before the
// first hyphen, is the station id. Used identically by flood and
// hydrology; rainfall shares the same upstream shape.
func ExtractStationID(measureURL string) string {
	measureURL = strings.TrimRight(measureURL, "/")
	idx := strings.LastIndex(measureURL, "/")
	segment := measureURL
	if idx >= 0 {
		segment = measureURL[idx+1:]
	}
	if dash := strings.Index(segment, "-"); dash >= 0 {
		return segment[:dash]
	}
	return segment
}

// enrich resolves coordinates for every reading in place via one batch
// lookup, the shared tail of all three fetchers.
func enrich(ctx context.Context, lookup StationLookup, source model.Source, readings []model.Reading) ([]model.Reading, error) {
	ids := make([]string, 0, len(readings))
	seen := make(map[string]struct{}, len(readings))
	for _, r := range readings {
		if _, ok := seen[r.StationID]; ok {
			continue
		}
		seen[r.StationID] = struct{}{}
		ids = append(ids, r.StationID)
	}

	stations, err := lookup.LookupBatch(ctx, source, ids)
	if err != nil {
		return nil, err
	}

	out := make([]model.Reading, len(readings))
	for i, r := range readings {
		st, ok := stations[r.StationID]
		if ok {
			r.Lat = st.Lat
			r.Lon = st.Lon
			r.Easting = st.Easting
			r.Northing = st.Northing
			r.HasCoords = true
		}
		out[i] = r
	}
	return out, nil
}

// FetcherConfig is the narrow slice of config.UpstreamServiceConfig each
// fetcher constructor needs, kept local so this package does not import
// the config package.
type FetcherConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

type httpxClient = httpx.Client

func newHTTPXClient(cfg FetcherConfig) *httpxClient {
	return httpx.New(cfg.Timeout, cfg.MaxRetries, cfg.Backoff)
}
