package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bunko/internal/app"
	"bunko/internal/testutils"
)

func TestBootstrap_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := *suite.GetAppConfig()
	cfg.BootstrapRetryAttempts = 3

	deps, err := app.Bootstrap(context.Background(), &cfg)
	require.NoError(t, err)
	defer deps.Close()

	for _, table := range []string{"works", "failed_documents"} {
		var exists bool
		err = deps.DB.QueryRow("SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	// EnsureSchema doubles as a connectivity check.
	assert.NoError(t, deps.VectorStore.EnsureSchema(context.Background()))
	assert.NoError(t, deps.NSQProducer.Ping())

	// A second bootstrap against the migrated database is a no-op.
	again, err := app.Bootstrap(context.Background(), &cfg)
	require.NoError(t, err)
	again.Close()
}
