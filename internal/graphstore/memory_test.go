package graphstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/riverwatch/internal/graphstore"
	"github.com/riverwatch/riverwatch/internal/model"
)

func sampleIncident() model.Incident {
	return model.Incident{
		IncidentID: "inc-1",
		Readings: []model.Anomaly{
			{Reading: model.Reading{Source: model.SourceFlood, StationID: "a"}},
			{Reading: model.Reading{Source: model.SourceFlood, StationID: "b"}},
		},
		Permits: []model.Permit{
			{PermitID: "P1", DistanceKM: 1.2},
			{PermitID: "P2", DistanceKM: 3.4},
		},
	}
}

func TestMemoryIngestor_IngestIsIdempotent(t *testing.T) {
	m := graphstore.NewMemoryIngestor()
	incident := sampleIncident()

	require.NoError(t, m.Ingest(t.Context(), incident))
	require.NoError(t, m.Ingest(t.Context(), incident))
	require.NoError(t, m.Ingest(t.Context(), incident))

	assert.Equal(t, 1, m.NodeCount())
	assert.Equal(t, 4, m.EdgeCount())
}

func TestMemoryIngestor_DistinctIncidentsAccumulate(t *testing.T) {
	m := graphstore.NewMemoryIngestor()
	first := sampleIncident()
	second := sampleIncident()
	second.IncidentID = "inc-2"

	require.NoError(t, m.Ingest(t.Context(), first))
	require.NoError(t, m.Ingest(t.Context(), second))

	assert.Equal(t, 2, m.NodeCount())
	assert.Equal(t, 8, m.EdgeCount())
}

func TestMemoryIngestor_DuplicateStationWithinIncidentDedupes(t *testing.T) {
	m := graphstore.NewMemoryIngestor()
	incident := model.Incident{
		IncidentID: "inc-3",
		Readings: []model.Anomaly{
			{Reading: model.Reading{Source: model.SourceFlood, StationID: "a"}},
			{Reading: model.Reading{Source: model.SourceFlood, StationID: "a"}},
		},
	}

	require.NoError(t, m.Ingest(t.Context(), incident))
	assert.Equal(t, 1, m.EdgeCount())
}
