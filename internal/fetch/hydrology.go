package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/riverwatch/riverwatch/internal/model"
)

// hydrologyAPIResponse mirrors the hydrology readings endpoint's JSON
// shape, where measure is an object rather than a bare string.
type hydrologyAPIResponse struct {
	Items []hydrologyAPIItem `json:"items"`
}

type hydrologyAPIItem struct {
	Measure  hydrologyMeasure `json:"measure"`
	Value    float64          `json:"value"`
	DateTime string           `json:"dateTime"`
}

type hydrologyMeasure struct {
	ID string `json:"@id"`
}

// HydrologyFetcher implements Fetcher against the hydrology readings API.
type HydrologyFetcher struct {
	client  *httpxClient
	baseURL string
	lookup  StationLookup
}

// NewHydrologyFetcher builds a HydrologyFetcher.
func NewHydrologyFetcher(cfg FetcherConfig, lookup StationLookup) *HydrologyFetcher {
	return &HydrologyFetcher{
		client:  newHTTPXClient(cfg),
		baseURL: cfg.BaseURL,
		lookup:  lookup,
	}
}

func (f *HydrologyFetcher) Source() model.Source { return model.SourceHydrology }

func (f *HydrologyFetcher) FetchLatest(ctx context.Context) ([]model.Reading, error) {
	var resp hydrologyAPIResponse
	url := fmt.Sprintf("%s/data/readings?latest&parameter=flow", f.baseURL)
	if err := f.client.DoJSON(ctx, "hydrology", "GET", url, nil, &resp); err != nil {
		return nil, err
	}

	readings := make([]model.Reading, 0, len(resp.Items))
	for _, item := range resp.Items {
		ts, err := time.Parse(time.RFC3339, item.DateTime)
		if err != nil {
			continue
		}
		readings = append(readings, model.Reading{
			Source:    model.SourceHydrology,
			StationID: ExtractStationID(item.Measure.ID),
			Timestamp: ts,
			Parameter: "flow",
			Value:     item.Value,
		})
	}

	return enrich(ctx, f.lookup, model.SourceHydrology, readings)
}
