// Package compose implements the incident composition stage (C7):
// priority assignment, a pluggable summary-text capability, a static
// suggested-actions rule table, and the content_hash used for
// deduplication.
package compose

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/riverwatch/riverwatch/internal/model"
)

// Summariser produces the human-readable summary_text for an Incident.
// The core depends only on this capability (spec.md §9 DESIGN NOTES);
// TemplateSummariser is the required deterministic default, LLMSummariser
// is an optional, explicitly out-of-core replacement.
type Summariser interface {
	Summarise(cluster model.Cluster, permits []model.Permit, rainfall model.RainfallSummary) (string, error)
}

// Composer builds an Incident from an enriched cluster.
type Composer struct {
	summariser   Summariser
	highFraction float64
	medFraction  float64
}

// New builds a Composer. highFraction/medFraction pin the priority rule's
// exceedance-fraction cutoffs (spec.md §9 Open Question, resolved as
// config — see config.PriorityConfig).
func New(summariser Summariser, highFraction, medFraction float64) *Composer {
	return &Composer{summariser: summariser, highFraction: highFraction, medFraction: medFraction}
}

// Compose assembles one Incident from a cluster plus its enrichments.
// Priority is a pure function of the cluster's anomalies alone; rainfall
// and permits inform summary text and suggested actions only.
func (c *Composer) Compose(cluster model.Cluster, permits []model.Permit, rainfall model.RainfallSummary, runID string) (model.Incident, error) {
	priority := c.priority(cluster)

	summaryText, err := c.summariser.Summarise(cluster, permits, rainfall)
	if err != nil {
		return model.Incident{}, fmt.Errorf("compose summary: %w", err)
	}

	return model.Incident{
		IncidentID:       uuid.NewString(),
		ContentHash:      ContentHash(cluster, priority),
		CreatedAt:        cluster.WindowEnd,
		Priority:         priority,
		SourceKind:       cluster.SourceKind,
		CentroidLat:      cluster.CentroidLat,
		CentroidLon:      cluster.CentroidLon,
		SummaryText:      summaryText,
		SuggestedActions: SuggestedActions(cluster.SourceKind, priority, permits, rainfall),
		Readings:         cluster.Members,
		Permits:          permits,
		Rainfall:         rainfall,
		RunID:            runID,
	}, nil
}

// priority is `high` if any anomaly's exceed fraction is ≥ highFraction,
// `medium` if ≥ medFraction, otherwise `low`.
func (c *Composer) priority(cluster model.Cluster) model.Priority {
	var maxFraction float64
	for _, m := range cluster.Members {
		if m.ExceedFraction > maxFraction {
			maxFraction = m.ExceedFraction
		}
	}
	switch {
	case maxFraction >= c.highFraction:
		return model.PriorityHigh
	case maxFraction >= c.medFraction:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// contentHashTuple is the normalized per-anomaly tuple hashed into
// content_hash, in the exact field order spec.md §4.7 specifies.
type contentHashTuple struct {
	stationID string
	timestamp string
	parameter string
	value     string
}

// ContentHash computes the SHA-256 fingerprint over
// `source_kind | priority | sorted(station_id, iso_timestamp, parameter, round(value,3))`.
// Reordering the cluster's anomalies never changes the result.
func ContentHash(cluster model.Cluster, priority model.Priority) string {
	tuples := make([]contentHashTuple, len(cluster.Members))
	for i, m := range cluster.Members {
		tuples[i] = contentHashTuple{
			stationID: m.StationID,
			timestamp: m.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			parameter: m.Parameter,
			value:     fmt.Sprintf("%.3f", m.Value),
		}
	}
	sort.Slice(tuples, func(i, j int) bool {
		if tuples[i].stationID != tuples[j].stationID {
			return tuples[i].stationID < tuples[j].stationID
		}
		if tuples[i].timestamp != tuples[j].timestamp {
			return tuples[i].timestamp < tuples[j].timestamp
		}
		if tuples[i].parameter != tuples[j].parameter {
			return tuples[i].parameter < tuples[j].parameter
		}
		return tuples[i].value < tuples[j].value
	})

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s", cluster.SourceKind, priority)
	for _, t := range tuples {
		fmt.Fprintf(h, "|%s,%s,%s,%s", t.stationID, t.timestamp, t.parameter, t.value)
	}
	return hex.EncodeToString(h.Sum(nil))
}
