package config

import (
	"os"
	"strconv"

	"github.com/james-see/sv2midi/pkg/converter"
)

// Config holds the server configuration
type Config struct {
	Environment string
	Port        string

	// Observability
	SentryDSN string

	// Conversion defaults, overridable per request
	DefaultBPM        float64
	DefaultResolution int
	MaxPolyphony      int
	Workers           int

	// MaxUploadBytes bounds multipart uploads
	MaxUploadBytes int64
}

// Load reads the configuration from the environment
func Load() *Config {
	return &Config{
		Environment:       getEnv("ENVIRONMENT", "development"),
		Port:              getEnv("PORT", "8080"),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		DefaultBPM:        getEnvFloat("DEFAULT_BPM", converter.DefaultBPM),
		DefaultResolution: getEnvInt("DEFAULT_RESOLUTION", converter.DefaultResolution),
		MaxPolyphony:      getEnvInt("MAX_POLYPHONY", converter.DefaultMaxPolyphony),
		Workers:           getEnvInt("WORKERS", 0),
		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_BYTES", 32<<20)),
	}
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ConverterOptions returns the conversion options derived from the configuration
func (c *Config) ConverterOptions() converter.Options {
	opts := converter.DefaultOptions()
	opts.MaxPolyphony = c.MaxPolyphony
	opts.Workers = c.Workers
	return opts
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && v > 0 {
		return v
	}
	return defaultValue
}
