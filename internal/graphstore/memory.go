package graphstore

import (
	"context"
	"sync"

	"github.com/riverwatch/riverwatch/internal/model"
)

// MemoryIngestor is a plain adjacency-map Ingestor for unit tests that
// don't need a live Neo4j instance.
type MemoryIngestor struct {
	mu           sync.Mutex
	incidents    map[string]model.Incident
	measuredAt   map[string]map[model.StationKey]struct{}
	nearPermit   map[string]map[string]float64
}

// NewMemoryIngestor builds an empty MemoryIngestor.
func NewMemoryIngestor() *MemoryIngestor {
	return &MemoryIngestor{
		incidents:  make(map[string]model.Incident),
		measuredAt: make(map[string]map[model.StationKey]struct{}),
		nearPermit: make(map[string]map[string]float64),
	}
}

func (m *MemoryIngestor) Ingest(ctx context.Context, incident model.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.incidents[incident.IncidentID]; !ok {
		m.incidents[incident.IncidentID] = incident
	}

	if m.measuredAt[incident.IncidentID] == nil {
		m.measuredAt[incident.IncidentID] = make(map[model.StationKey]struct{})
	}
	for _, st := range uniqueStations(incident.Readings) {
		m.measuredAt[incident.IncidentID][st.Key()] = struct{}{}
	}

	if m.nearPermit[incident.IncidentID] == nil {
		m.nearPermit[incident.IncidentID] = make(map[string]float64)
	}
	for _, p := range incident.Permits {
		m.nearPermit[incident.IncidentID][p.PermitID] = p.DistanceKM
	}
	return nil
}

// NodeCount returns the number of distinct incident nodes, for idempotence
// assertions in tests.
func (m *MemoryIngestor) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.incidents)
}

// EdgeCount returns the total MEASURED_AT + NEAR_PERMIT edge count.
func (m *MemoryIngestor) EdgeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, stations := range m.measuredAt {
		count += len(stations)
	}
	for _, permits := range m.nearPermit {
		count += len(permits)
	}
	return count
}
