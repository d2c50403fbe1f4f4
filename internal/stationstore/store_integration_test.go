package stationstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/riverwatch/riverwatch/internal/model"
	"github.com/riverwatch/riverwatch/internal/stationstore"
)

func TestUpsertAndLookupBatch_RoundTripsAgainstRealPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dsn := startPostgres(t, ctx)
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	s := stationstore.New(db)
	require.NoError(t, s.Upsert(ctx, model.Station{Source: model.SourceFlood, StationID: "a", Lat: 51.5, Lon: -0.1, Label: "River A"}))
	require.NoError(t, s.Upsert(ctx, model.Station{Source: model.SourceFlood, StationID: "a", Lat: 51.6, Lon: -0.2, Label: "River A (moved)"}))

	out, err := s.LookupBatch(ctx, model.SourceFlood, []string{"a", "missing"})
	require.NoError(t, err)
	require.Contains(t, out, "a")
	require.Equal(t, 51.6, out["a"].Lat, "second upsert must overwrite the first")
	require.NotContains(t, out, "missing")
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
