package runlog_test

import (
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/riverwatch/internal/model"
	"github.com/riverwatch/riverwatch/internal/runlog"
)

func TestRecord_WritesExpectedRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := runlog.New(db, nil)
	entry := model.AgentRunLog{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		ReadingsFetched: map[model.Source]int{model.SourceFlood: 10},
	}
	r.Record(t.Context(), entry)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_SwallowsWriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO run_logs")).
		WillReturnError(assertableErr{})

	r := runlog.New(db, nil)
	entry := model.AgentRunLog{RunID: "run-2", StartedAt: time.Now()}

	require.NotPanics(t, func() {
		r.Record(t.Context(), entry)
	})
}

type assertableErr struct{}

func (assertableErr) Error() string { return "write failed" }
