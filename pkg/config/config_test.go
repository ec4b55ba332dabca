package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
store:
  backend: memory
index:
  table: test-index
  key:
    partitionAttribute: Id
  attributes:
    - name: Message
      shortName: M
      analyzer:
        tokenizer:
          type: delimiter
        tokenFilters:
          - type: lowercase
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "test-index", cfg.Index.Table)
	require.Len(t, cfg.Index.Attributes, 1)
	assert.Equal(t, "M", cfg.Index.Attributes[0].ShortName)
	assert.Equal(t, "delimiter", cfg.Index.Attributes[0].Analyzer.Tokenizer.Type)

	// Unspecified sections keep defaults.
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "change-events", cfg.Kafka.Topic)
	assert.Equal(t, 60*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, 100, cfg.Search.MaxItems)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SS_STORE_BACKEND", "postgres")
	t.Setenv("SS_INDEX_TABLE", "overridden")
	t.Setenv("SS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "overridden", cfg.Index.Table)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing partition attribute",
			mutate:  func(c *Config) { c.Index.Key.PartitionAttribute = "" },
			wantErr: "partitionAttribute",
		},
		{
			name: "duplicate attribute name",
			mutate: func(c *Config) {
				c.Index.Attributes = append(c.Index.Attributes, c.Index.Attributes[0])
			},
			wantErr: "duplicate attribute",
		},
		{
			name: "duplicate short name",
			mutate: func(c *Config) {
				dup := c.Index.Attributes[0]
				dup.Name = "Other"
				c.Index.Attributes = append(c.Index.Attributes, dup)
			},
			wantErr: "duplicate short name",
		},
		{
			name:    "negative boost",
			mutate:  func(c *Config) { c.Index.Attributes[0].Boost = -1 },
			wantErr: "negative boost",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "dynamo" },
			wantErr: "store.backend",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validConfig))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
