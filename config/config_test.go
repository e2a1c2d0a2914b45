package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dicomizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func parseFlags(t *testing.T, args ...string) (*pflag.FlagSet, *Config) {
	t.Helper()
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs, &cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 20, cfg.Workers)
	assert.Equal(t, "./out", cfg.OutputDir)
	assert.Equal(t, 5*time.Minute, cfg.FetchTimeout)
	assert.Zero(t, cfg.CollectTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
datastore_id: ds-1
study_id: study-1
workers: 4
endpoint: https://imaging.example.com
requests_per_second: 2.5
region: eu-west-1
fetch_timeout: 30s
collect_timeout: 10m
skip_preview: true
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "ds-1", cfg.DatastoreID)
	assert.Equal(t, "study-1", cfg.StudyID)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 10*time.Minute, cfg.CollectTimeout)
	assert.True(t, cfg.SkipPreview)
	// Untouched fields keep their defaults
	assert.Equal(t, "./out", cfg.OutputDir)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfig(t, "unknown_key: 1\n"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfig(t, "workers: [1, 2]\n"))
	assert.Error(t, err)
}

func TestLoadFile_Empty(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestAddFlags(t *testing.T) {
	fs, cfg := parseFlags(t, "-d", "ds-1", "-s", "study-1", "-t", "8", "--fetch-timeout", "1m", "--no-preview", "--region", "us-east-1")

	assert.Equal(t, "ds-1", cfg.DatastoreID)
	assert.Equal(t, "study-1", cfg.StudyID)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, time.Minute, cfg.FetchTimeout)
	assert.True(t, cfg.SkipPreview)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.True(t, fs.Changed(FlagWorkers))
	assert.False(t, fs.Changed(FlagOutputDir))
}

func TestResolve_Precedence(t *testing.T) {
	path := writeConfig(t, `
datastore_id: from-file
study_id: from-file
workers: 4
output_dir: /data/out
token: file-token
`)
	t.Setenv(TokenEnv, "env-token")

	fs, flags := parseFlags(t, "--studyId", "from-flag", "--thread", "20")

	cfg, err := Resolve(fs, *flags, path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.DatastoreID)
	// Explicit flags win even when equal to the default
	assert.Equal(t, "from-flag", cfg.StudyID)
	assert.Equal(t, 20, cfg.Workers)
	assert.Equal(t, "/data/out", cfg.OutputDir)
	assert.Equal(t, "env-token", cfg.Token)
}

func TestResolve_TokenFlagBeatsEnv(t *testing.T) {
	t.Setenv(TokenEnv, "env-token")
	fs, flags := parseFlags(t, "--token", "flag-token")

	cfg, err := Resolve(fs, *flags, "")
	require.NoError(t, err)
	assert.Equal(t, "flag-token", cfg.Token)
}

func TestResolve_MissingFile(t *testing.T) {
	fs, flags := parseFlags(t)
	_, err := Resolve(fs, *flags, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.DatastoreID = "ds"
	valid.StudyID = "study"
	valid.StoreDir = "/data/store"

	tests := []struct {
		name     string
		mutate   func(*Config)
		argument string
		sentinel error
	}{
		{"Valid", func(*Config) {}, "", nil},
		{"Missing datastore", func(c *Config) { c.DatastoreID = "" }, FlagDatastoreID, dcmerrors.ErrMissingArgument},
		{"Missing study", func(c *Config) { c.StudyID = "  " }, FlagStudyID, dcmerrors.ErrMissingArgument},
		{"No store selects AWS", func(c *Config) { c.StoreDir = "" }, "", nil},
		{"No workers", func(c *Config) { c.Workers = 0 }, FlagWorkers, dcmerrors.ErrMissingArgument},
		{"Negative rps", func(c *Config) { c.RequestsPerSecond = -1 }, FlagRPS, dcmerrors.ErrInvalidValue},
		{"Negative timeout", func(c *Config) { c.CollectTimeout = -time.Second }, FlagFetchTimeout, dcmerrors.ErrInvalidValue},
		{"Bad level", func(c *Config) { c.LogLevel = "loud" }, FlagLogLevel, dcmerrors.ErrInvalidValue},
		{"Bad format", func(c *Config) { c.LogFormat = "xml" }, FlagLogFormat, dcmerrors.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.sentinel == nil {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			var argErr *dcmerrors.ArgumentError
			require.True(t, errors.As(err, &argErr))
			assert.Equal(t, tt.argument, argErr.Name)
		})
	}
}

func TestLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for text, want := range tests {
		cfg := Config{LogLevel: text}
		got, err := cfg.Level()
		require.NoError(t, err, text)
		assert.Equal(t, want, got, text)
	}
}
