// Package config reads the gateway settings from the environment and an
// optional .env file.
package config

import (
	"strconv"
	"strings"

	"filegate/internal/registry"

	"github.com/gnitoahc/go-dotenv"
)

type Config struct {
	Port        string
	Environment string

	Backends registry.Config

	PrincipalsFile string
	UploadWorkers  int
	// MaxFormMemory is the part of a multipart form kept in memory; the rest spills to disk.
	MaxFormMemory  int64
	LogLevel       string
	LogFormat      string
	CleanupOrphans bool
}

// Load reads envFile (if it exists) and then the environment.
func Load(envFile string) Config {
	if envFile != "" {
		dotenv.Load(envFile)
	}
	return FromLookup(func(key, def string) string {
		return dotenv.Get(key, def)
	})
}

// FromLookup builds a Config from get, which returns def for unset keys.
func FromLookup(get func(key, def string) string) Config {
	return Config{
		Port:        get("PORT", "3000"),
		Environment: get("ENVIRONMENT", "Production"),
		Backends: registry.Config{
			Location:    get("LOCATION", ""),
			Primary:     get("LOCAL_SA_CONNECTION_STRING", ""),
			Secondaries: get("OTHER_SA_CONNECTION_STRINGS", ""),
		},
		PrincipalsFile: get("PRINCIPALS_FILE", "principals.yaml"),
		UploadWorkers:  positiveInt(get("UPLOAD_WORKERS", ""), 4),
		MaxFormMemory:  int64(positiveInt(get("MAX_FORM_MEMORY_MB", ""), 32)) << 20,
		LogLevel:       get("LOG_LEVEL", "info"),
		LogFormat:      get("LOG_FORMAT", "text"),
		CleanupOrphans: boolOr(get("CLEANUP_ORPHANS", ""), true),
	}
}

// IsDevelopment relaxes the application-only check on service uploads.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "development")
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func boolOr(s string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return b
}
