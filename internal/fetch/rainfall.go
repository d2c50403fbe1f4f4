package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/riverwatch/riverwatch/internal/model"
)

// rainfallAPIResponse shares the flood API's flat measure-string shape.
type rainfallAPIResponse struct {
	Items []rainfallAPIItem `json:"items"`
}

type rainfallAPIItem struct {
	Measure  string  `json:"measure"`
	Value    float64 `json:"value"`
	DateTime string  `json:"dateTime"`
}

// RainfallFetcher implements Fetcher against the rainfall readings API.
// Its output bypasses C3 (detection) and feeds C6 (correlation) directly.
type RainfallFetcher struct {
	client  *httpxClient
	baseURL string
	lookup  StationLookup
}

// NewRainfallFetcher builds a RainfallFetcher.
func NewRainfallFetcher(cfg FetcherConfig, lookup StationLookup) *RainfallFetcher {
	return &RainfallFetcher{
		client:  newHTTPXClient(cfg),
		baseURL: cfg.BaseURL,
		lookup:  lookup,
	}
}

func (f *RainfallFetcher) Source() model.Source { return model.SourceRainfall }

func (f *RainfallFetcher) FetchLatest(ctx context.Context) ([]model.Reading, error) {
	var resp rainfallAPIResponse
	url := fmt.Sprintf("%s/data/readings?latest&parameter=rainfall", f.baseURL)
	if err := f.client.DoJSON(ctx, "rainfall", "GET", url, nil, &resp); err != nil {
		return nil, err
	}

	readings := make([]model.Reading, 0, len(resp.Items))
	for _, item := range resp.Items {
		ts, err := time.Parse(time.RFC3339, item.DateTime)
		if err != nil {
			continue
		}
		readings = append(readings, model.Reading{
			Source:    model.SourceRainfall,
			StationID: ExtractStationID(item.Measure),
			Timestamp: ts,
			Parameter: "rainfall",
			Value:     item.Value,
		})
	}

	return enrich(ctx, f.lookup, model.SourceRainfall, readings)
}
