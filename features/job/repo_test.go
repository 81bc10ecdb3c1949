package job_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"bunko/features/job"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepo_RecordFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO failed_documents").
		WithArgs("a.txt", "decode", "bad bytes").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "retries"}).AddRow("1", now, 0))

	repo := job.NewPostgresRepo(db)
	require.NoError(t, repo.RecordFailure(context.Background(), "a.txt", "decode", errors.New("bad bytes")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "path", "stage", "error", "retries", "created_at"})
}

func TestPostgresRepo_List(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		filter job.Filter
		query  string
		args   []driver.Value
	}{
		{"unfiltered", job.Filter{}, `FROM failed_documents ORDER BY created_at DESC$`, nil},
		{"stage", job.Filter{Stage: "sink"}, `FROM failed_documents WHERE stage = \$1 ORDER BY created_at DESC$`, []driver.Value{"sink"}},
		{"limit", job.Filter{Limit: 20}, `ORDER BY created_at DESC LIMIT \$1$`, []driver.Value{20}},
		{"stage and limit", job.Filter{Stage: "decode", Limit: 5}, `WHERE stage = \$1 ORDER BY created_at DESC LIMIT \$2$`, []driver.Value{"decode", 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectQuery(tt.query).WithArgs(tt.args...).WillReturnRows(jobRows().
				AddRow("2", "b.txt", "sink", "weaviate down", 1, now).
				AddRow("1", "a.txt", "decode", "bad bytes", 0, now.Add(-time.Minute)))

			jobs, err := job.NewPostgresRepo(db).List(context.Background(), tt.filter)
			require.NoError(t, err)
			require.Len(t, jobs, 2)
			assert.Equal(t, "b.txt", jobs[0].Path)
			assert.Equal(t, 1, jobs[0].Retries)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepo_ListEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM failed_documents").WillReturnRows(jobRows())
	jobs, err := job.NewPostgresRepo(db).List(context.Background(), job.Filter{})
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestPostgresRepo_GetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM failed_documents WHERE id").WithArgs("x").WillReturnRows(jobRows())
	_, err = job.NewPostgresRepo(db).Get(context.Background(), "x")
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestPostgresRepo_GetDeleteCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := job.NewPostgresRepo(db)
	ctx := context.Background()

	mock.ExpectQuery("FROM failed_documents WHERE id").WithArgs("1").
		WillReturnRows(jobRows().AddRow("1", "a.txt", "read", "missing", 0, time.Now()))
	mock.ExpectExec("DELETE FROM failed_documents").WithArgs("1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	j, err := repo.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "read", j.Stage)

	require.NoError(t, repo.Delete(ctx, "1"))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
