package compose_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/riverwatch/internal/compose"
	"github.com/riverwatch/riverwatch/internal/model"
)

func member(stationID string, value, threshold float64, ts time.Time) model.Anomaly {
	return model.Anomaly{
		Reading: model.Reading{
			Source:    model.SourceFlood,
			StationID: stationID,
			Timestamp: ts,
			Parameter: "level",
			Value:     value,
		},
		Threshold:      threshold,
		ExceedFraction: (value - threshold) / threshold,
	}
}

func sampleCluster() model.Cluster {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return model.Cluster{
		Members: []model.Anomaly{
			member("a", 3.0, 2.0, ts),
			member("b", 2.2, 2.0, ts),
		},
		CentroidLat: 51.5,
		CentroidLon: -0.1,
		WindowStart: ts.Add(-24 * time.Hour),
		WindowEnd:   ts,
		SourceKind:  model.SourceKindFlood,
	}
}

func TestCompose_PriorityHighWhenExceedFractionAtHighCutoff(t *testing.T) {
	c := compose.New(compose.NewTemplateSummariser(), 0.5, 0.2)
	incident, err := c.Compose(sampleCluster(), nil, model.RainfallSummary{Category: model.RainfallNone}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, incident.Priority)
}

func TestCompose_PriorityMediumWhenBelowHighButAboveMediumCutoff(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cluster := model.Cluster{
		Members: []model.Anomaly{
			member("a", 2.3, 2.0, ts),
			member("b", 2.2, 2.0, ts),
		},
		SourceKind: model.SourceKindFlood,
		WindowEnd:  ts,
	}
	c := compose.New(compose.NewTemplateSummariser(), 0.5, 0.1)
	incident, err := c.Compose(cluster, nil, model.RainfallSummary{Category: model.RainfallNone}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityMedium, incident.Priority)
}

func TestContentHash_StableUnderMemberReordering(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	forward := model.Cluster{
		Members: []model.Anomaly{
			member("a", 3.0, 2.0, ts),
			member("b", 2.5, 2.0, ts),
		},
		SourceKind: model.SourceKindFlood,
	}
	reversed := model.Cluster{
		Members: []model.Anomaly{
			member("b", 2.5, 2.0, ts),
			member("a", 3.0, 2.0, ts),
		},
		SourceKind: model.SourceKindFlood,
	}

	h1 := compose.ContentHash(forward, model.PriorityHigh)
	h2 := compose.ContentHash(reversed, model.PriorityHigh)
	assert.Equal(t, h1, h2)
}

func TestContentHash_DiffersByPriority(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cluster := model.Cluster{
		Members:    []model.Anomaly{member("a", 3.0, 2.0, ts)},
		SourceKind: model.SourceKindFlood,
	}
	h1 := compose.ContentHash(cluster, model.PriorityHigh)
	h2 := compose.ContentHash(cluster, model.PriorityMedium)
	assert.NotEqual(t, h1, h2)
}

func TestSuggestedActions_HighPriorityFloodIncludesWarning(t *testing.T) {
	actions := compose.SuggestedActions(model.SourceKindFlood, model.PriorityHigh, nil, model.RainfallSummary{Category: model.RainfallNone})
	assert.Contains(t, actions, "Issue a high-priority flood warning to downstream residents")
	assert.Contains(t, actions, "Dispatch a field crew to verify gauge readings")
}

func TestSuggestedActions_LowPriorityNoPermitsNoRainfallLogsRoutine(t *testing.T) {
	actions := compose.SuggestedActions(model.SourceKindHydrology, model.PriorityLow, nil, model.RainfallSummary{Category: model.RainfallNone})
	assert.Equal(t, []string{"Log for routine review; no immediate rainfall or permit correlation found"}, actions)
}

func TestSuggestedActions_DischargePermitTriggersComplianceReview(t *testing.T) {
	permits := []model.Permit{{Category: model.PermitDischarge}}
	actions := compose.SuggestedActions(model.SourceKindFlood, model.PriorityLow, permits, model.RainfallSummary{Category: model.RainfallNone})
	assert.Contains(t, actions, "Review nearby discharge permits for compliance")
}

func TestTemplateSummariser_StaysWithinCharacterBudget(t *testing.T) {
	s := compose.NewTemplateSummariser()
	text, err := s.Summarise(sampleCluster(), nil, model.RainfallSummary{Category: model.RainfallNone})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text), 600)
	assert.Contains(t, text, "Flood level anomaly")
}
