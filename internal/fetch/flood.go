package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/riverwatch/riverwatch/internal/model"
)

// floodAPIResponse mirrors the flood readings endpoint's JSON shape:
// {"items": [{"measure": "<url>", "value": 3.97, "dateTime": "..."}]}.
type floodAPIResponse struct {
	Items []floodAPIItem `json:"items"`
}

type floodAPIItem struct {
	Measure  string  `json:"measure"`
	Value    float64 `json:"value"`
	DateTime string  `json:"dateTime"`
}

// FloodFetcher implements Fetcher against the flood readings API.
type FloodFetcher struct {
	client  *httpxClient
	baseURL string
	lookup  StationLookup
}

// NewFloodFetcher builds a FloodFetcher. cfg supplies the base URL and
// retry policy; lookup resolves station coordinates.
func NewFloodFetcher(cfg FetcherConfig, lookup StationLookup) *FloodFetcher {
	return &FloodFetcher{
		client:  newHTTPXClient(cfg),
		baseURL: cfg.BaseURL,
		lookup:  lookup,
	}
}

func (f *FloodFetcher) Source() model.Source { return model.SourceFlood }

func (f *FloodFetcher) FetchLatest(ctx context.Context) ([]model.Reading, error) {
	var resp floodAPIResponse
	url := fmt.Sprintf("%s/data/readings?latest&parameter=level", f.baseURL)
	if err := f.client.DoJSON(ctx, "flood", "GET", url, nil, &resp); err != nil {
		return nil, err
	}

	readings := make([]model.Reading, 0, len(resp.Items))
	for _, item := range resp.Items {
		ts, err := time.Parse(time.RFC3339, item.DateTime)
		if err != nil {
			continue
		}
		readings = append(readings, model.Reading{
			Source:    model.SourceFlood,
			StationID: ExtractStationID(item.Measure),
			Timestamp: ts,
			Parameter: "level",
			Value:     item.Value,
		})
	}

	return enrich(ctx, f.lookup, model.SourceFlood, readings)
}
