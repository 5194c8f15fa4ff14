package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withValues(t *testing.T) {
	t.Helper()
	_ = Load()
	mu.Lock()
	saved := make(map[string]string, len(values))
	for k, v := range values {
		saved[k] = v
	}
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		values = saved
		mu.Unlock()
	})
}

func TestLoadFromFilesPrecedence(t *testing.T) {
	withValues(t)
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "app.json")
	envPath := filepath.Join(dir, ".env")

	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"app_port": 9000, "low_stock_threshold": 3, "order_initial_status": "pending"}`), 0o644))
	require.NoError(t, os.WriteFile(envPath, []byte("# comment\nAPP_PORT=9100\nKAFKA_BROKERS=\"k1:9092, k2:9092,\"\n"), 0o644))
	t.Setenv("LOW_STOCK_THRESHOLD", "7")

	require.NoError(t, loadFromFiles(jsonPath, envPath))

	assert.Equal(t, "9100", AppPort(), ".env beats app.json")
	assert.Equal(t, 7, LowStockThreshold(), "process env beats files")
	assert.Equal(t, "PENDING", OrderInitialStatus())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, KafkaBrokers())
}

func TestMissingFilesAreFine(t *testing.T) {
	withValues(t)
	dir := t.TempDir()
	require.NoError(t, loadFromFiles(filepath.Join(dir, "nope.json"), filepath.Join(dir, ".env")))
	assert.Equal(t, defaultDatabaseDriver, DatabaseDriver())
}

func TestFallbacks(t *testing.T) {
	withValues(t)

	Set("ORDER_INITIAL_STATUS", "shipped")
	assert.Equal(t, "COMPLETED", OrderInitialStatus())

	Set("DB_DRIVER", "oracle")
	assert.Equal(t, "sqlite", DatabaseDriver())

	Set("DB_DRIVER", "Postgres")
	Set("DATABASE_DSN", "")
	assert.Equal(t, defaultPostgresDSN, DatabaseDSN())

	Set("ORDER_MAX_LINES", "-4")
	assert.Equal(t, defaultOrderMaxLines, OrderMaxLines())

	Set("QUEUE_WORKERS", "0")
	assert.Equal(t, 1, QueueWorkers())

	Set("QUEUE_DRIVER", "MEMORY")
	assert.Equal(t, "memory", QueueDriver())
}
