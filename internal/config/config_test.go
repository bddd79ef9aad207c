package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lookup(env map[string]string) func(string, string) string {
	return func(key, def string) string {
		if v, ok := env[key]; ok {
			return v
		}
		return def
	}
}

func TestDefaults(t *testing.T) {
	cfg := FromLookup(lookup(nil))
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "Production", cfg.Environment)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 4, cfg.UploadWorkers)
	assert.Equal(t, int64(32<<20), cfg.MaxFormMemory)
	assert.True(t, cfg.CleanupOrphans)
	assert.Equal(t, "principals.yaml", cfg.PrincipalsFile)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestOverrides(t *testing.T) {
	cfg := FromLookup(lookup(map[string]string{
		"PORT":                        "8080",
		"ENVIRONMENT":                 "Development",
		"LOCATION":                    "eu",
		"LOCAL_SA_CONNECTION_STRING":  "file:///srv/eu",
		"OTHER_SA_CONNECTION_STRINGS": "us->file:///srv/us",
		"UPLOAD_WORKERS":              "8",
		"MAX_FORM_MEMORY_MB":          "1",
		"CLEANUP_ORPHANS":             "false",
	}))
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "eu", cfg.Backends.Location)
	assert.Equal(t, "file:///srv/eu", cfg.Backends.Primary)
	assert.Equal(t, "us->file:///srv/us", cfg.Backends.Secondaries)
	assert.Equal(t, 8, cfg.UploadWorkers)
	assert.Equal(t, int64(1<<20), cfg.MaxFormMemory)
	assert.False(t, cfg.CleanupOrphans)
}

func TestInvalidNumbersFallBack(t *testing.T) {
	cfg := FromLookup(lookup(map[string]string{
		"UPLOAD_WORKERS":     "-2",
		"MAX_FORM_MEMORY_MB": "lots",
		"CLEANUP_ORPHANS":    "maybe",
	}))
	assert.Equal(t, 4, cfg.UploadWorkers)
	assert.Equal(t, int64(32<<20), cfg.MaxFormMemory)
	assert.True(t, cfg.CleanupOrphans)
}
