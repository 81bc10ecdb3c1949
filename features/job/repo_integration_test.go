package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bunko/features/job"
	"bunko/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB)
	ctx := context.Background()

	require.NoError(t, repo.RecordFailure(ctx, "cards/000879/files/127_15260.txt", "decode", errors.New("error 1")))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, repo.RecordFailure(ctx, "cards/000035/files/1567_14913.txt", "sink", errors.New("error 2")))
	// Same path again bumps retries instead of adding a row.
	require.NoError(t, repo.RecordFailure(ctx, "cards/000879/files/127_15260.txt", "sink", errors.New("error 3")))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	jobs, err := repo.List(ctx, job.Filter{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	sinkOnly, err := repo.List(ctx, job.Filter{Stage: "sink", Limit: 1})
	require.NoError(t, err)
	require.Len(t, sinkOnly, 1)
	assert.Equal(t, "sink", sinkOnly[0].Stage)
	assert.Equal(t, "cards/000035/files/1567_14913.txt", jobs[0].Path)

	first := jobs[1]
	assert.Equal(t, 1, first.Retries)
	assert.Equal(t, "sink", first.Stage)
	assert.Equal(t, "error 3", first.Error)

	require.NoError(t, repo.Delete(ctx, first.ID))
	_, err = repo.Get(ctx, first.ID)
	assert.ErrorIs(t, err, job.ErrNotFound)
}
