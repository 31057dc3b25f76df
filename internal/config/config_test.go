// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dflexy/dfindexer/internal/domain"
)

func TestNewLoadsConfigFromFileOrDirectory(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, tmpDir string) (inputPath string, expectedLevel string, expectedRedisAddr string)
	}{
		{
			name: "config_file_path",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "myconfig.toml")
				content := "logLevel = \"DEBUG\"\nredisAddr = \"redis-a:6379\"\n"
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "DEBUG", "redis-a:6379"
			},
		},
		{
			name: "config_directory_path",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configDir := filepath.Join(tmpDir, "configdir")
				require.NoError(t, os.MkdirAll(configDir, 0o755))
				content := "logLevel = \"ERROR\"\nredisAddr = \"redis-b:6379\"\n"
				require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
				return configDir, "ERROR", "redis-b:6379"
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath, expectedLevel, expectedRedisAddr := tt.prepare(t, tmpDir)

			cfg, err := New(inputPath)
			require.NoError(t, err)

			assert.Equal(t, expectedLevel, cfg.Config.LogLevel)
			assert.Equal(t, expectedRedisAddr, cfg.Config.RedisAddr)
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	cfg, err := New(configPath)
	require.NoError(t, err)

	// File is generated on first run with defaults applied.
	_, statErr := os.Stat(configPath)
	require.NoError(t, statErr)

	assert.Equal(t, "INFO", cfg.Config.LogLevel)
	assert.Equal(t, "https://itorrents.org", cfg.Config.MetadataBaseURL)
	assert.Equal(t, 32, cfg.Config.MetadataConcurrency)
	assert.Equal(t, 1000, cfg.Config.TrackerTimeoutMillis)
	assert.Equal(t, 2, cfg.Config.TrackerRetries)
	assert.Equal(t, 3, cfg.Config.BreakerFailureThreshold)
	assert.Equal(t, 60, cfg.Config.BreakerCooldownSeconds)
	assert.Equal(t, 128, cfg.Config.EnrichConcurrency)
	assert.False(t, cfg.Config.RedisEnabled)
	assert.False(t, cfg.Config.MetricsEnabled)
	assert.Equal(t, 9716, cfg.Config.MetricsPort)
}

func TestEnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envs   map[string]string
		verify func(t *testing.T, cfg *AppConfig)
	}{
		{
			name: "log_level",
			envs: map[string]string{envPrefix + "LOG_LEVEL": "TRACE"},
			verify: func(t *testing.T, cfg *AppConfig) {
				assert.Equal(t, "TRACE", cfg.Config.LogLevel)
			},
		},
		{
			name: "metadata_base_url",
			envs: map[string]string{envPrefix + "METADATA_BASE_URL": "https://archive.example.org"},
			verify: func(t *testing.T, cfg *AppConfig) {
				assert.Equal(t, "https://archive.example.org", cfg.Config.MetadataBaseURL)
			},
		},
		{
			name: "redis",
			envs: map[string]string{
				envPrefix + "REDIS_ENABLED": "true",
				envPrefix + "REDIS_ADDR":    "cache:6380",
			},
			verify: func(t *testing.T, cfg *AppConfig) {
				assert.True(t, cfg.Config.RedisEnabled)
				assert.Equal(t, "cache:6380", cfg.Config.RedisAddr)
			},
		},
		{
			name: "tracker_tuning",
			envs: map[string]string{
				envPrefix + "TRACKER_TIMEOUT_MILLIS": "250",
				envPrefix + "MAX_TRACKERS":           "5",
			},
			verify: func(t *testing.T, cfg *AppConfig) {
				assert.Equal(t, 250, cfg.Config.TrackerTimeoutMillis)
				assert.Equal(t, 5, cfg.Config.MaxTrackers)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envs {
				t.Setenv(k, v)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.toml")

			cfg, err := New(configPath)
			require.NoError(t, err)

			tt.verify(t, cfg)
		})
	}
}

func TestRedisPasswordFromFile(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		useFile  bool
		expected string
	}{
		{name: "only_file_env", useFile: true, expected: "secret-from-file"},
		{name: "only_plain_env", envValue: "plain-secret", expected: "plain-secret"},
		{name: "file_wins_over_plain", envValue: "plain-secret", useFile: true, expected: "secret-from-file"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			envVar := envPrefix + "REDIS_PASSWORD"
			if tt.envValue != "" {
				t.Setenv(envVar, tt.envValue)
			}
			if tt.useFile {
				secretPath := filepath.Join(t.TempDir(), "redis-password")
				require.NoError(t, os.WriteFile(secretPath, []byte("secret-from-file\n"), 0o600))
				t.Setenv(envVar+"_FILE", secretPath)
			}

			configPath := filepath.Join(t.TempDir(), "config.toml")
			cfg, err := New(configPath)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, cfg.Config.RedisPassword)
		})
	}
}

func TestConfigDirResolution(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		setupFile      bool
		fileIsDir      bool
		expectedSuffix string
	}{
		{
			name:           "toml_file_extension",
			input:          "custom.toml",
			expectedSuffix: "custom.toml",
		},
		{
			name:           "TOML_file_extension_uppercase",
			input:          "CONFIG.TOML",
			expectedSuffix: "CONFIG.TOML",
		},
		{
			name:           "directory_path",
			input:          "config",
			expectedSuffix: "config.toml",
		},
		{
			name:           "existing_file_without_toml",
			input:          "configfile",
			setupFile:      true,
			expectedSuffix: "configfile",
		},
		{
			name:           "existing_directory",
			input:          "configdir",
			setupFile:      true,
			fileIsDir:      true,
			expectedSuffix: "config.toml",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath := filepath.Join(tmpDir, tt.input)

			if tt.setupFile {
				if tt.fileIsDir {
					require.NoError(t, os.MkdirAll(inputPath, 0o755))
				} else {
					require.NoError(t, os.WriteFile(inputPath, []byte("test"), 0o644))
				}
			}

			c := &AppConfig{}
			result := c.resolveConfigPath(inputPath)
			assert.True(t, strings.HasSuffix(result, tt.expectedSuffix),
				"Expected result %s to end with %s", result, tt.expectedSuffix)
		})
	}
}

func TestWriteDefaultConfigDoesNotOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	original := "logLevel = \"DEBUG\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(original), 0o644))

	require.NoError(t, WriteDefaultConfig(configPath))

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, original, string(content))
}

func TestReloadListenersNotified(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("metadataRateLimit = 2.5\nmetadataRateBurst = 4\n"), 0o644))

	c, err := New(configPath, "test")
	require.NoError(t, err)

	var gotRate float64
	var gotBurst int
	c.RegisterReloadListener(func(cfg *domain.Config) {
		gotRate = cfg.MetadataRateLimit
		gotBurst = cfg.MetadataRateBurst
	})

	// Listeners receive a copy of the freshly unmarshaled config.
	c.applyDynamicChanges()

	assert.Equal(t, 2.5, gotRate)
	assert.Equal(t, 4, gotBurst)
}
