package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/riverwatch/riverwatch/internal/model"
)

// Neo4jIngestor is the production Ingestor: idempotent MERGE Cypher
// statements for Incident, Station and Permit nodes and the
// MEASURED_AT/NEAR_PERMIT edges, per spec.md §4.9/§6. No SIMILAR_TO edges
// are written.
// neo4j-go-driver/v5 is the one out-of-pack dependency in this module (no
// example repo ships a property-graph client); see DESIGN.md.
type Neo4jIngestor struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jIngestor wraps an already-connected driver.
func NewNeo4jIngestor(driver neo4j.DriverWithContext) *Neo4jIngestor {
	return &Neo4jIngestor{driver: driver}
}

// Ingest merges the incident and every reading/permit relationship it
// carries. Existing nodes are never overwritten (merge, not replace).
func (n *Neo4jIngestor) Ingest(ctx context.Context, incident model.Incident) error {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (i:Incident {incident_id: $incidentID})
			ON CREATE SET i.content_hash = $contentHash, i.priority = $priority,
				i.source_kind = $sourceKind, i.created_at = $createdAt,
				i.summary_text = $summaryText
		`, map[string]any{
			"incidentID":  incident.IncidentID,
			"contentHash": incident.ContentHash,
			"priority":    string(incident.Priority),
			"sourceKind":  string(incident.SourceKind),
			"createdAt":   incident.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			"summaryText": incident.SummaryText,
		}); err != nil {
			return nil, fmt.Errorf("merge incident node: %w", err)
		}

		for _, station := range uniqueStations(incident.Readings) {
			if _, err := tx.Run(ctx, `
				MERGE (s:Station {source: $source, station_id: $stationID})
				WITH s
				MATCH (i:Incident {incident_id: $incidentID})
				MERGE (i)-[:MEASURED_AT]->(s)
			`, map[string]any{
				"source":     string(station.Source),
				"stationID":  station.StationID,
				"incidentID": incident.IncidentID,
			}); err != nil {
				return nil, fmt.Errorf("merge station node/edge: %w", err)
			}
		}

		for _, permit := range incident.Permits {
			if _, err := tx.Run(ctx, `
				MERGE (p:Permit {permit_id: $permitID})
				ON CREATE SET p.operator = $operator, p.type = $permitType, p.category = $category
				WITH p
				MATCH (i:Incident {incident_id: $incidentID})
				MERGE (i)-[r:NEAR_PERMIT]->(p)
				SET r.distance_km = $distanceKM
			`, map[string]any{
				"permitID":   permit.PermitID,
				"operator":   permit.Operator,
				"permitType": permit.Type,
				"category":   string(permit.Category),
				"incidentID": incident.IncidentID,
				"distanceKM": permit.DistanceKM,
			}); err != nil {
				return nil, fmt.Errorf("merge permit node/edge: %w", err)
			}
		}

		return nil, nil
	})
	return err
}

func uniqueStations(readings []model.Anomaly) []model.Station {
	seen := make(map[model.StationKey]struct{}, len(readings))
	var out []model.Station
	for _, r := range readings {
		st := model.Station{Source: r.Source, StationID: r.StationID}
		if _, ok := seen[st.Key()]; ok {
			continue
		}
		seen[st.Key()] = struct{}{}
		out = append(out, st)
	}
	return out
}
