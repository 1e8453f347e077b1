package db

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/storage"
)

// testConfig reads connection settings from SCANVAULT_TEST_DB_* variables.
// Integration tests are skipped when no database name is given.
func testConfig(t *testing.T) *Config {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	name := os.Getenv("SCANVAULT_TEST_DB_NAME")
	if name == "" {
		t.Skip("SCANVAULT_TEST_DB_NAME not set")
	}

	cfg := DefaultConfig()
	cfg.Database = name
	cfg.Username = os.Getenv("SCANVAULT_TEST_DB_USER")
	cfg.Password = os.Getenv("SCANVAULT_TEST_DB_PASSWORD")
	if host := os.Getenv("SCANVAULT_TEST_DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("SCANVAULT_TEST_DB_PORT")); err == nil {
		cfg.Port = port
	}
	return &cfg
}

func TestIntegration_StoreRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	database, err := Connect(ctx, cfg)
	if err != nil {
		t.Skipf("Cannot connect to test database: %v", err)
	}
	defer database.Close()

	migrator := NewMigrator(database.DB)
	_, err = migrator.Reset(ctx)
	require.NoError(t, err)

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.True(t, s.Applied, s.Name)
		assert.False(t, s.Modified, s.Name)
	}

	data, err := os.ReadFile(filepath.Join("..", "report", "testdata", "test-scan.xml"))
	require.NoError(t, err)
	result, err := report.ParseAndLoad(data)
	require.NoError(t, err)

	store := NewStore(database)
	scanID, err := store.InsertScan(ctx, result)
	require.NoError(t, err)

	scan, err := store.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, 27, scan.HostCount)
	assert.Equal(t, *result.Started, *scan.Started)

	hosts, err := store.ListHosts(ctx, storage.PageRequest{ItemsPerPage: 100, SortColumn: "started", SortAscending: true})
	require.NoError(t, err)
	assert.Equal(t, int64(27), hosts.TotalCount)

	var first storage.HostSummary
	for _, h := range hosts.Items {
		if h.Addresses[0] == result.Hosts[0].Addresses[0] {
			first = h
		}
	}
	require.NotEmpty(t, first.ID)

	detail, err := store.GetHost(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Hosts[0].Ports, detail.Ports)
	assert.Equal(t, result.Hosts[0].Scripts, detail.Scripts)
	assert.Equal(t, result.Hosts[0].OS, detail.OS)
}
