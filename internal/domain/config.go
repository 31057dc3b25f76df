// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is the application configuration, loaded from config.toml and
// environment overrides.
type Config struct {
	Version string

	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	MetricsEnabled bool   `mapstructure:"metricsEnabled"`
	MetricsHost    string `mapstructure:"metricsHost"`
	MetricsPort    int    `mapstructure:"metricsPort"`

	RedisEnabled  bool   `mapstructure:"redisEnabled"`
	RedisAddr     string `mapstructure:"redisAddr"`
	RedisPassword string `mapstructure:"redisPassword"`
	RedisDB       int    `mapstructure:"redisDB"`

	// LocalCacheTTLSeconds is the lifetime of the in-process cache tier.
	LocalCacheTTLSeconds int `mapstructure:"localCacheTtlSeconds"`

	MetadataBaseURL     string  `mapstructure:"metadataBaseUrl"`
	MetadataConcurrency int     `mapstructure:"metadataConcurrency"`
	MetadataRateLimit   float64 `mapstructure:"metadataRateLimit"`
	MetadataRateBurst   int     `mapstructure:"metadataRateBurst"`
	MetadataTimeout     int     `mapstructure:"metadataTimeoutSeconds"`

	TrackerTimeoutMillis int      `mapstructure:"trackerTimeoutMillis"`
	TrackerRetries       int      `mapstructure:"trackerRetries"`
	MaxTrackers          int      `mapstructure:"maxTrackers"`
	ExtraTrackers        []string `mapstructure:"extraTrackers"`

	BreakerFailureThreshold int `mapstructure:"breakerFailureThreshold"`
	BreakerCooldownSeconds  int `mapstructure:"breakerCooldownSeconds"`

	EnrichConcurrency int `mapstructure:"enrichConcurrency"`
}
