package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp switches into a fresh directory with a configs/ subdirectory
func chdirTemp(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tempDir, "configs"), 0755))

	originalWD, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.Chdir(originalWD)
	})
	require.NoError(t, os.Chdir(tempDir))
	return tempDir
}

func TestLoadConfig_HappyPath(t *testing.T) {
	tempDir := chdirTemp(t)

	envContent := fmt.Sprintf(
		"APP_NAME=%s\nSERVER_PORT=%d\nLOG_LEVEL=%s\nLEDGER_MAX_CONFLICT_RETRIES=%d\nLEDGER_IDEMPOTENCY_WAIT_TIMEOUT=%s\n",
		"TestLedger", 9090, "debug", 8, "3s",
	)
	err := os.WriteFile(filepath.Join(tempDir, "configs", "test_happy.env"), []byte(envContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig("test_happy")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "TestLedger", cfg.Application.Name)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Ledger.MaxConflictRetries)
	assert.Equal(t, 3*time.Second, cfg.Ledger.IdempotencyWaitTimeout)

	// Defaults
	assert.Equal(t, StorageMemory, cfg.Ledger.Storage)
	assert.False(t, cfg.Persistent())
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "ledger_operations", cfg.Kafka.OperationTopic)
	assert.Equal(t, "ledger_transactions", cfg.Kafka.EventTopic)
	assert.Equal(t, "transactions", cfg.MongoDB.Collection)
	assert.Equal(t, 10, cfg.WorkerPool.Size)

	cfgWithType, err := LoadConfigWithNameAndType("configs/test_happy", "env")
	require.NoError(t, err)
	assert.Equal(t, "TestLedger", cfgWithType.Application.Name)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	tempDir := chdirTemp(t)
	err := os.WriteFile(filepath.Join(tempDir, "configs", "test_env.env"), []byte("LEDGER_STORAGE=memory\n"), 0644)
	require.NoError(t, err)

	t.Setenv("LEDGER_STORAGE", "PERSISTENT")
	t.Setenv("KAFKA_ENABLED", "true")

	cfg, err := LoadConfig("test_env")
	require.NoError(t, err)
	assert.True(t, cfg.Persistent())
	assert.True(t, cfg.Kafka.Enabled)
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := LoadConfig("missing")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Ledger.MaxConflictRetries)
}

func TestLoadConfig_Invalid(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LEDGER_STORAGE", "redis")
	t.Setenv("WORKER_POOL_SIZE", "0")

	cfg, err := LoadConfig("missing")
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "LEDGER_STORAGE")
	assert.Contains(t, err.Error(), "WORKER_POOL_SIZE must be greater than 0")
}

func TestConfig_Validate(t *testing.T) {
	defaults := func() *Config {
		v := viper.New()
		setDefaults(v)
		return fromViper(v)
	}

	t.Run("DefaultsAreValid", func(t *testing.T) {
		assert.NoError(t, defaults().validate())
	})

	t.Run("PersistentRequiresDatabases", func(t *testing.T) {
		cfg := defaults()
		cfg.Ledger.Storage = StoragePersistent
		cfg.Postgres.URL = ""
		cfg.MongoDB.Collection = ""

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "POSTGRES_URL is required")
		assert.Contains(t, err.Error(), "MONGO_JOURNAL_COLLECTION is required")
	})

	t.Run("MemoryIgnoresDatabases", func(t *testing.T) {
		cfg := defaults()
		cfg.Postgres.URL = ""
		assert.NoError(t, cfg.validate())
	})

	t.Run("KafkaValidatedOnlyWhenEnabled", func(t *testing.T) {
		cfg := defaults()
		cfg.Kafka.EventTopic = ""
		assert.NoError(t, cfg.validate())

		cfg.Kafka.Enabled = true
		assert.ErrorContains(t, cfg.validate(), "KAFKA_EVENT_TOPIC is required")
	})

	t.Run("RetryDelays", func(t *testing.T) {
		cfg := defaults()
		cfg.Ledger.RetryMaxDelay = cfg.Ledger.RetryBaseDelay / 2
		assert.ErrorContains(t, cfg.validate(), "LEDGER_RETRY_MAX_DELAY")
	})
}
