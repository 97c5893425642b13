// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// GeocodingConfig provides settings for the geocoding service.
type GeocodingConfig interface {
	GetGeocodeCacheTTL() time.Duration
	GetGeocodeRequestBudget() time.Duration
	GetProviderTimeout() time.Duration
	GetRetryMaxAttempts() int
	GetRetryBaseDelay() time.Duration
	GetBreakerFailureThreshold() int
	GetBreakerRecoveryTimeout() time.Duration
	GetNominatimBaseURL() string
	GetNominatimUserAgent() string
	GetNominatimCountryCodes() string
	GetCensusBaseURL() string
	IsCensusEnabled() bool
}

// ResolverConfig provides settings for the coverage resolver.
type ResolverConfig interface {
	GetDefaultRadiusMiles() float64
	IsSpatialEnabled() bool
	GetSpatialIndexResolution() int
}

// SchedulerConfig provides settings for background job scheduling.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetCacheSweepInterval() time.Duration
	GetCacheSweepBatchSize() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env         string
	HTTPAddr    string
	DatabaseURL string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	GeocodeCacheTTL         time.Duration
	GeocodeRequestBudget    time.Duration
	ProviderTimeout         time.Duration
	RetryMaxAttempts        int
	RetryBaseDelay          time.Duration
	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration
	NominatimBaseURL        string
	NominatimUserAgent      string
	NominatimCountryCodes   string
	CensusBaseURL           string
	CensusEnabled           bool

	DefaultRadiusMiles     float64
	SpatialEnabled         bool
	SpatialIndexResolution int

	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	CacheSweepInterval  time.Duration
	CacheSweepBatchSize int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// GeocodingConfig implementation
func (c *Config) GetGeocodeCacheTTL() time.Duration        { return c.GeocodeCacheTTL }
func (c *Config) GetGeocodeRequestBudget() time.Duration   { return c.GeocodeRequestBudget }
func (c *Config) GetProviderTimeout() time.Duration        { return c.ProviderTimeout }
func (c *Config) GetRetryMaxAttempts() int                 { return c.RetryMaxAttempts }
func (c *Config) GetRetryBaseDelay() time.Duration         { return c.RetryBaseDelay }
func (c *Config) GetBreakerFailureThreshold() int          { return c.BreakerFailureThreshold }
func (c *Config) GetBreakerRecoveryTimeout() time.Duration { return c.BreakerRecoveryTimeout }
func (c *Config) GetNominatimBaseURL() string              { return c.NominatimBaseURL }
func (c *Config) GetNominatimUserAgent() string            { return c.NominatimUserAgent }
func (c *Config) GetNominatimCountryCodes() string         { return c.NominatimCountryCodes }
func (c *Config) GetCensusBaseURL() string                 { return c.CensusBaseURL }
func (c *Config) IsCensusEnabled() bool                    { return c.CensusEnabled }

// ResolverConfig implementation
func (c *Config) GetDefaultRadiusMiles() float64 { return c.DefaultRadiusMiles }
func (c *Config) IsSpatialEnabled() bool         { return c.SpatialEnabled }
func (c *Config) GetSpatialIndexResolution() int { return c.SpatialIndexResolution }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                  { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool            { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string            { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int             { return c.AsynqConcurrency }
func (c *Config) GetCacheSweepInterval() time.Duration { return c.CacheSweepInterval }
func (c *Config) GetCacheSweepBatchSize() int          { return c.CacheSweepBatchSize }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		GeocodeCacheTTL:         mustDuration(getEnv("GEOCODE_CACHE_TTL", "24h")),
		GeocodeRequestBudget:    mustDuration(getEnv("GEOCODE_REQUEST_BUDGET", "45s")),
		ProviderTimeout:         mustDuration(getEnv("GEOCODE_PROVIDER_TIMEOUT", "15s")),
		RetryMaxAttempts:        mustInt(getEnv("GEOCODE_RETRY_MAX_ATTEMPTS", "3")),
		RetryBaseDelay:          mustDuration(getEnv("GEOCODE_RETRY_BASE_DELAY", "500ms")),
		BreakerFailureThreshold: mustInt(getEnv("GEOCODE_BREAKER_FAILURE_THRESHOLD", "5")),
		BreakerRecoveryTimeout:  mustDuration(getEnv("GEOCODE_BREAKER_RECOVERY_TIMEOUT", "60s")),
		NominatimBaseURL:        getEnv("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent:      getEnv("NOMINATIM_USER_AGENT", "CoverageBackend/1.0"),
		NominatimCountryCodes:   getEnv("NOMINATIM_COUNTRY_CODES", "us"),
		CensusBaseURL:           getEnv("CENSUS_GEOCODER_BASE_URL", "https://geocoding.geo.census.gov"),
		CensusEnabled:           strings.EqualFold(getEnv("CENSUS_GEOCODER_ENABLED", "true"), "true"),

		DefaultRadiusMiles:     mustFloat64(getEnv("RESOLVER_DEFAULT_RADIUS_MILES", "30")),
		SpatialEnabled:         strings.EqualFold(getEnv("RESOLVER_SPATIAL_ENABLED", "true"), "true"),
		SpatialIndexResolution: mustInt(getEnv("RESOLVER_SPATIAL_INDEX_RESOLUTION", "5")),

		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		CacheSweepInterval:  mustDuration(getEnv("GEOCODE_CACHE_SWEEP_INTERVAL", "1h")),
		CacheSweepBatchSize: mustInt(getEnv("GEOCODE_CACHE_SWEEP_BATCH_SIZE", "500")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("GEOCODE_RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.BreakerFailureThreshold < 1 {
		return nil, fmt.Errorf("GEOCODE_BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat64(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
