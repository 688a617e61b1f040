package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightpipe-io/flightpipe/internal/pipeline"
)

var copyColumns = []string{
	"file", "status", "rows_parsed", "rows_loaded", "error_limit", "errors_seen",
	"first_error", "first_error_line", "first_error_character", "first_error_column_name",
}

func newMockLoader(t *testing.T) (*Loader, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	connector := func(context.Context, *Config) (*sql.DB, error) {
		return db, nil
	}

	loader := New(NewConfig("loader", "s3cret", "xy12345"),
		WithConnector(connector),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	return loader, mock
}

func expectCopy(mock sqlmock.Sqlmock) *sqlmock.ExpectedQuery {
	stmt := CopyStatement("staging_all_airlines", "flight_data_stage", ".*all_airlines[.]csv")

	return mock.ExpectQuery(regexp.QuoteMeta(stmt))
}

func TestLoadStaging_Success(t *testing.T) {
	loader, mock := newMockLoader(t)

	rows := sqlmock.NewRows(copyColumns).
		AddRow("s3://bucket/processed/2024/01/01/all_airlines.csv", "LOADED", "10", "10", "10", "0", nil, nil, nil, nil).
		AddRow("s3://bucket/processed/2024/01/02/all_airlines.csv", "PARTIALLY_LOADED", "5", "4", "5", "1",
			"Numeric value 'x' is not recognized", "3", "7", `"STAGING_ALL_AIRLINES"["FLIGHT_NUMBER":3]`)
	expectCopy(mock).WillReturnRows(rows)
	mock.ExpectClose()

	outcome := loader.LoadStaging(context.Background())

	assert.Equal(t, pipeline.StatusSuccess, outcome.Status)
	assert.Equal(t, pipeline.StageLoad, outcome.Stage)
	assert.Equal(t, 14, outcome.Rows)
	assert.Equal(t, "Data loaded into staging_all_airlines successfully. Files: 2, rows loaded: 14.", outcome.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadStaging_NothingNewToLoad(t *testing.T) {
	loader, mock := newMockLoader(t)

	expectCopy(mock).WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Copy executed with 0 files processed."))
	mock.ExpectClose()

	outcome := loader.LoadStaging(context.Background())

	assert.False(t, outcome.Failed())
	assert.Equal(t, 0, outcome.Rows)
	assert.Equal(t, "Data loaded into staging_all_airlines successfully. Files: 0, rows loaded: 0.", outcome.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadStaging_SnowflakeError(t *testing.T) {
	loader, mock := newMockLoader(t)

	sfErr := &gosnowflake.SnowflakeError{
		Number:   2003,
		SQLState: "02000",
		Message:  "Stage 'FLIGHT_DATA_STAGE' does not exist or not authorized.",
	}
	expectCopy(mock).WillReturnError(sfErr)
	mock.ExpectClose()

	outcome := loader.LoadStaging(context.Background())

	assert.True(t, outcome.Failed())
	assert.Equal(t, "Snowflake error: "+sfErr.Error(), outcome.Message)

	result := pipeline.NewResult(pipeline.StageLoad, []pipeline.Outcome{outcome})
	assert.Equal(t, 500, result.StatusCode)
	assert.Equal(t, outcome.Message, result.Body)
}

func TestLoadStaging_UnexpectedError(t *testing.T) {
	loader, mock := newMockLoader(t)

	expectCopy(mock).WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectClose()

	outcome := loader.LoadStaging(context.Background())

	assert.True(t, outcome.Failed())
	assert.Equal(t, "Unexpected error: connection reset by peer", outcome.Message)
}

func TestLoadStaging_ConnectFailure(t *testing.T) {
	loader := New(NewConfig("loader", "s3cret", "xy12345"),
		WithConnector(func(context.Context, *Config) (*sql.DB, error) {
			return nil, &gosnowflake.SnowflakeError{Number: 390100, Message: "Incorrect username or password was specified."}
		}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	outcome := loader.LoadStaging(context.Background())

	assert.True(t, outcome.Failed())
	assert.Contains(t, outcome.Message, "Snowflake error: ")
	assert.Contains(t, outcome.Message, "Incorrect username or password")
}

func TestLoadStaging_MissingCredentialsNeverConnects(t *testing.T) {
	called := false
	cfg := NewConfig("loader", "", "xy12345")

	loader := New(cfg,
		WithConnector(func(context.Context, *Config) (*sql.DB, error) {
			called = true

			return nil, errors.New("should not connect")
		}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	outcome := loader.LoadStaging(context.Background())

	assert.False(t, called)
	assert.Equal(t, "Unexpected error: "+ErrCredentialsMissing.Error(), outcome.Message)
}

func TestStage(t *testing.T) {
	loader, mock := newMockLoader(t)

	expectCopy(mock).WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Copy executed with 0 files processed."))
	mock.ExpectClose()

	outcomes := loader.Stage()(context.Background(), pipeline.Run{Stage: pipeline.StageLoad})

	require.Len(t, outcomes, 1)
	assert.Equal(t, pipeline.StatusSuccess, outcomes[0].Status)
}
