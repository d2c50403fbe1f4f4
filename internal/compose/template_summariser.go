package compose

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/riverwatch/riverwatch/internal/model"
)

// summaryData is the value every source_kind template renders against.
type summaryData struct {
	StationList   string
	StationCount  int
	Peak          float64
	Average       float64
	Threshold     float64
	RainfallPhrase string
	PermitPhrase   string
}

// templatesBySourceKind selects the summary template by source_kind, per
// spec.md §4.7. Each must name: station count+ids, peak/average value,
// threshold, rainfall phrase, permit phrase, and stay within 600 chars.
var templatesBySourceKind = map[model.SourceKind]*template.Template{
	model.SourceKindFlood:     template.Must(template.New("flood").Parse(floodTemplateText)),
	model.SourceKindHydrology: template.Must(template.New("hydrology").Parse(hydrologyTemplateText)),
	model.SourceKindMixed:     template.Must(template.New("mixed").Parse(mixedTemplateText)),
}

const floodTemplateText = `Flood level anomaly across {{.StationCount}} station(s) ({{.StationList}}): peak {{printf "%.2f" .Peak}}, average {{printf "%.2f" .Average}}, against a threshold of {{printf "%.2f" .Threshold}}. {{.RainfallPhrase}} {{.PermitPhrase}}`

const hydrologyTemplateText = `Hydrology flow anomaly across {{.StationCount}} station(s) ({{.StationList}}): peak {{printf "%.2f" .Peak}}, average {{printf "%.2f" .Average}}, against a threshold of {{printf "%.2f" .Threshold}}. {{.RainfallPhrase}} {{.PermitPhrase}}`

const mixedTemplateText = `Combined flood and hydrology anomaly across {{.StationCount}} station(s) ({{.StationList}}): peak {{printf "%.2f" .Peak}}, average {{printf "%.2f" .Average}}, against a threshold of {{printf "%.2f" .Threshold}}. {{.RainfallPhrase}} {{.PermitPhrase}}`

// TemplateSummariser is the required, deterministic default Summariser.
type TemplateSummariser struct{}

// NewTemplateSummariser builds the default summariser.
func NewTemplateSummariser() *TemplateSummariser {
	return &TemplateSummariser{}
}

func (TemplateSummariser) Summarise(cluster model.Cluster, permits []model.Permit, rainfall model.RainfallSummary) (string, error) {
	tmpl, ok := templatesBySourceKind[cluster.SourceKind]
	if !ok {
		return "", fmt.Errorf("no summary template for source kind %q", cluster.SourceKind)
	}

	data := summaryData{
		StationList:    stationListPhrase(cluster.StationIDs()),
		StationCount:   len(cluster.StationIDs()),
		Peak:           peakValue(cluster.Members),
		Average:        averageValue(cluster.Members),
		Threshold:      cluster.Members[0].Threshold,
		RainfallPhrase: rainfallPhrase(rainfall),
		PermitPhrase:   permitPhrase(permits),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render summary template: %w", err)
	}

	text := strings.TrimSpace(buf.String())
	if len(text) > 600 {
		text = text[:597] + "..."
	}
	return text, nil
}

func stationListPhrase(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	if len(sorted) > 6 {
		return strings.Join(sorted[:6], ", ") + ", …"
	}
	return strings.Join(sorted, ", ")
}

func peakValue(members []model.Anomaly) float64 {
	var peak float64
	for _, m := range members {
		if m.Value > peak {
			peak = m.Value
		}
	}
	return peak
}

func averageValue(members []model.Anomaly) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, m := range members {
		sum += m.Value
	}
	return sum / float64(len(members))
}

func rainfallPhrase(r model.RainfallSummary) string {
	if r.Category == model.RainfallNone || r.GaugeCount == 0 {
		return "No correlated rainfall was recorded nearby."
	}
	return fmt.Sprintf("%s rainfall nearby (%.1fmm across %d gauge(s)).", strings.Title(string(r.Category)), r.TotalMM, r.GaugeCount)
}

func permitPhrase(permits []model.Permit) string {
	if len(permits) == 0 {
		return "No regulatory permits were found nearby."
	}
	return fmt.Sprintf("%d regulatory permit(s) found nearby.", len(permits))
}
