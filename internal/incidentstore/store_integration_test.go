package incidentstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/riverwatch/riverwatch/internal/incidentstore"
	"github.com/riverwatch/riverwatch/internal/model"
)

// TestStoreIfNew_DedupsConcurrentSameContentHash exercises the insert-and-
// catch-on-23505 race path against a real Postgres instance: two
// concurrent StoreIfNew calls with the same content_hash must leave
// exactly one row, with one caller observing stored=true and the other
// stored=false.
func TestStoreIfNew_DedupsConcurrentSameContentHash(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dsn := startPostgres(t, ctx)
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	s := incidentstore.New(db, 24)
	incident := model.Incident{
		IncidentID:  "inc-race-1",
		ContentHash: "race-hash",
		CreatedAt:   time.Now().UTC(),
		Priority:    model.PriorityHigh,
		SourceKind:  model.SourceKindFlood,
		SummaryText: "concurrent race test",
		RunID:       "run-race",
	}
	other := incident
	other.IncidentID = "inc-race-2"

	type outcome struct {
		stored bool
		id     string
		err    error
	}
	results := make(chan outcome, 2)
	go func() {
		stored, id, err := s.StoreIfNew(ctx, incident)
		results <- outcome{stored, id, err}
	}()
	go func() {
		stored, id, err := s.StoreIfNew(ctx, other)
		results <- outcome{stored, id, err}
	}()

	first, second := <-results, <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)

	storedCount := 0
	if first.stored {
		storedCount++
	}
	if second.stored {
		storedCount++
	}
	require.Equal(t, 1, storedCount, "exactly one of the two concurrent writers must win")

	var rowCount int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM incidents WHERE content_hash = $1", "race-hash").Scan(&rowCount))
	require.Equal(t, 1, rowCount)
}

func TestStoreIfNew_RecentReturnsPersistedIncident(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dsn := startPostgres(t, ctx)
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	s := incidentstore.New(db, 24)
	now := time.Now().UTC()
	incident := model.Incident{
		IncidentID:       "inc-recent-1",
		ContentHash:      "recent-hash",
		CreatedAt:        now,
		Priority:         model.PriorityMedium,
		SourceKind:       model.SourceKindHydrology,
		SummaryText:      "recent incident",
		SuggestedActions: []string{"Log for routine review"},
		RunID:            "run-recent",
	}
	stored, _, err := s.StoreIfNew(ctx, incident)
	require.NoError(t, err)
	require.True(t, stored)

	recent, err := s.Recent(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "inc-recent-1", recent[0].IncidentID)
	require.Equal(t, []string{"Log for routine review"}, recent[0].SuggestedActions)
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("riverwatch"),
		tcPostgres.WithUsername("riverwatch"),
		tcPostgres.WithPassword("riverwatch"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://riverwatch:riverwatch@%s:%s/riverwatch?sslmode=disable", host, port.Port())

	m, err := migrate.New("file://../../migrations", dsn)
	require.NoError(t, err)
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err)
	}

	return dsn
}
