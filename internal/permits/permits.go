// Package permits implements the permit-search enrichment stage (C5):
// an HTTP CSV client against the permits search endpoint, with static
// category tagging and optional postcode geocoding for rows lacking a distance.
package permits

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/riverwatch/riverwatch/internal/geo"
	"github.com/riverwatch/riverwatch/internal/httpx"
	"github.com/riverwatch/riverwatch/internal/model"
)

// categoryByType is the static mapping from the permits API's free-text
// `type` field to a model.PermitCategory, per spec.md §4.5.
var categoryByType = map[string]model.PermitCategory{
	"waste":          model.PermitWaste,
	"discharge":      model.PermitDischarge,
	"flood defence":  model.PermitFloodRisk,
	"flood risk":     model.PermitFloodRisk,
	"abstraction":    model.PermitAbstraction,
}

func categorize(permitType string) model.PermitCategory {
	if cat, ok := categoryByType[strings.ToLower(strings.TrimSpace(permitType))]; ok {
		return cat
	}
	return model.PermitOther
}

// Searcher queries the permits API and annotates results with distance
// from a centroid.
type Searcher struct {
	client       *httpx.Client
	baseURL      string
	geocode      *GeocodeClient
}

// GeocodeClient resolves a postcode to coordinates for permits the search
// endpoint returns without a distance, per spec.md §6's optional geocoder.
type GeocodeClient struct {
	client  *httpx.Client
	baseURL string
}

// NewGeocodeClient builds a GeocodeClient. An empty baseURL disables
// geocoding (it returns nil); permits without a distance are then left
// ungeocoded.
func NewGeocodeClient(client *httpx.Client, baseURL string) *GeocodeClient {
	if baseURL == "" {
		return nil
	}
	return &GeocodeClient{client: client, baseURL: baseURL}
}

type geocodeResponse struct {
	Result struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"result"`
}

// Resolve looks up a postcode's coordinates.
func (g *GeocodeClient) Resolve(ctx context.Context, postcode string) (lat, lon float64, err error) {
	var resp geocodeResponse
	url := fmt.Sprintf("%s/postcodes/%s", g.baseURL, postcode)
	if err := g.client.DoJSON(ctx, "geocode", "GET", url, nil, &resp); err != nil {
		return 0, 0, err
	}
	return resp.Result.Latitude, resp.Result.Longitude, nil
}

// NewSearcher builds a Searcher. geocode may be nil to disable geocoding.
func NewSearcher(client *httpx.Client, baseURL string, geocode *GeocodeClient) *Searcher {
	return &Searcher{client: client, baseURL: baseURL, geocode: geocode}
}

// SearchNear calls the permits API for permits within radiusKM of the
// centroid, given as both a geographic point (for the geocode-fallback
// distance calculation) and a British National Grid easting/northing
// pair (the coordinate system the public registers search endpoint
// actually indexes on). An HTTP-successful empty result is a valid,
// empty slice.
func (s *Searcher) SearchNear(ctx context.Context, centroidLat, centroidLon, centroidEasting, centroidNorthing, radiusKM float64) ([]model.Permit, error) {
	url := fmt.Sprintf("%s/api/search.csv?easting=%.0f&northing=%.0f&dist=%g", s.baseURL, centroidEasting, centroidNorthing, radiusKM)
	raw, err := s.client.DoRaw(ctx, "permits", "GET", url, nil)
	if err != nil {
		return nil, err
	}

	records, err := parseCSV(raw)
	if err != nil {
		return nil, model.ErrTerminalUpstream{Stage: "permits", Err: err}
	}

	out := make([]model.Permit, 0, len(records))
	for _, rec := range records {
		permitType := firstNonEmpty(rec["registrationtype.label"], rec["exemption.registrationtype.notation"])
		p := model.Permit{
			PermitID: firstNonEmpty(rec["registrationnumber"], rec["@id"]),
			Operator: rec["holder.name"],
			Type:     permitType,
			Address:  rec["site.siteaddress.address"],
			Category: categorize(permitType),
		}

		// The public registers API already computes distance from the
		// queried easting/northing; trust it over recomputing from a
		// geocoded postcode.
		if dist, ok := parseFloat(rec["distance"]); ok {
			p.DistanceKM = dist
		} else if s.geocode != nil && rec["site.siteaddress.postcode"] != "" {
			if lat, lon, err := s.geocode.Resolve(ctx, rec["site.siteaddress.postcode"]); err == nil {
				p.Lat, p.Lon, p.HasGeocode = lat, lon, true
				p.DistanceKM = geo.HaversineKM(centroidLat, centroidLon, lat, lon)
			}
		}

		out = append(out, p)
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

// parseCSV decodes the permits CSV payload into header-keyed row maps.
func parseCSV(raw []byte) ([]map[string]string, error) {
	r := csv.NewReader(strings.NewReader(string(raw)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[strings.ToLower(strings.TrimSpace(h))] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
