// Package config provides configuration loading for the converter.
//
// Values come from three places, later ones winning:
//   - built-in defaults
//   - an optional YAML file (--config)
//   - command-line flags that were set explicitly
//
// The image store token may also be supplied through DICOMIZER_TOKEN, which
// overrides the file but not the flag.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
)

// TokenEnv names the environment variable holding the image store token.
const TokenEnv = "DICOMIZER_TOKEN"

// Config is the complete converter configuration.
type Config struct {
	// DatastoreID identifies the datastore holding the study. Required.
	DatastoreID string `yaml:"datastore_id"`

	// StudyID identifies the study (image set) to convert. Required.
	StudyID string `yaml:"study_id"`

	// Workers is the number of concurrent frame fetch workers.
	// Default: 20
	Workers int `yaml:"workers"`

	// OutputDir receives one directory per study.
	// Default: ./out
	OutputDir string `yaml:"output_dir"`

	// Endpoint is the base URL of an HTTP image store.
	Endpoint string `yaml:"endpoint"`

	// StoreDir is the root of a directory backed image store. Used when
	// Endpoint is empty.
	StoreDir string `yaml:"store_dir"`

	// Region is the AWS region of the HealthImaging datastore, used when
	// neither Endpoint nor StoreDir is set. Empty defers to the AWS
	// configuration chain.
	Region string `yaml:"region"`

	// Token is sent as a bearer token to the HTTP image store.
	Token string `yaml:"token"`

	// RequestsPerSecond throttles HTTP image store requests. 0 is unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// FetchTimeout bounds each frame fetch and decode. 0 disables it.
	// Default: 5m
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// CollectTimeout bounds the wait for all frames. 0 disables it.
	CollectTimeout time.Duration `yaml:"collect_timeout"`

	// SkipPreview disables PNG preview rendering.
	SkipPreview bool `yaml:"skip_preview"`

	// Verify re-reads every written file and counts mismatches as failures.
	Verify bool `yaml:"verify"`

	// LogLevel is one of debug, info, warn, error.
	// Default: info
	LogLevel string `yaml:"log_level"`

	// LogFormat is json or text.
	// Default: json
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workers:      20,
		OutputDir:    "./out",
		FetchTimeout: 5 * time.Minute,
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// LoadFile reads a YAML file on top of the defaults. Unknown keys are errors.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Flag names.
const (
	FlagConfig         = "config"
	FlagDatastoreID    = "datastoreId"
	FlagStudyID        = "studyId"
	FlagWorkers        = "thread"
	FlagOutputDir      = "out"
	FlagEndpoint       = "endpoint"
	FlagStoreDir       = "store-dir"
	FlagRegion         = "region"
	FlagToken          = "token"
	FlagRPS            = "rps"
	FlagFetchTimeout   = "fetch-timeout"
	FlagCollectTimeout = "collect-timeout"
	FlagNoPreview      = "no-preview"
	FlagVerify         = "verify"
	FlagLogLevel       = "log-level"
	FlagLogFormat      = "log-format"
)

// AddFlags registers one flag per field, bound to c. The current values of
// c are the flag defaults.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.DatastoreID, FlagDatastoreID, "d", c.DatastoreID, "datastore identifier (required)")
	fs.StringVarP(&c.StudyID, FlagStudyID, "s", c.StudyID, "study (image set) identifier (required)")
	fs.IntVarP(&c.Workers, FlagWorkers, "t", c.Workers, "number of frame fetch workers")
	fs.StringVarP(&c.OutputDir, FlagOutputDir, "o", c.OutputDir, "output directory")
	fs.StringVar(&c.Endpoint, FlagEndpoint, c.Endpoint, "HTTP image store base URL")
	fs.StringVar(&c.StoreDir, FlagStoreDir, c.StoreDir, "directory backed image store root")
	fs.StringVar(&c.Region, FlagRegion, c.Region, "AWS region of the HealthImaging datastore (default from the AWS configuration)")
	fs.StringVar(&c.Token, FlagToken, c.Token, "bearer token for the HTTP image store (or "+TokenEnv+")")
	fs.Float64Var(&c.RequestsPerSecond, FlagRPS, c.RequestsPerSecond, "maximum image store requests per second (0 = unlimited)")
	fs.DurationVar(&c.FetchTimeout, FlagFetchTimeout, c.FetchTimeout, "timeout for each frame fetch (0 = none)")
	fs.DurationVar(&c.CollectTimeout, FlagCollectTimeout, c.CollectTimeout, "timeout for collecting all frames (0 = none)")
	fs.BoolVar(&c.SkipPreview, FlagNoPreview, c.SkipPreview, "do not render PNG previews")
	fs.BoolVar(&c.Verify, FlagVerify, c.Verify, "re-read written files and count mismatches as failures")
	fs.StringVar(&c.LogLevel, FlagLogLevel, c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, FlagLogFormat, c.LogFormat, "log format: json or text")
}

// flagFields copies the field behind each flag from src to dst.
var flagFields = map[string]func(dst, src *Config){
	FlagDatastoreID:    func(dst, src *Config) { dst.DatastoreID = src.DatastoreID },
	FlagStudyID:        func(dst, src *Config) { dst.StudyID = src.StudyID },
	FlagWorkers:        func(dst, src *Config) { dst.Workers = src.Workers },
	FlagOutputDir:      func(dst, src *Config) { dst.OutputDir = src.OutputDir },
	FlagEndpoint:       func(dst, src *Config) { dst.Endpoint = src.Endpoint },
	FlagStoreDir:       func(dst, src *Config) { dst.StoreDir = src.StoreDir },
	FlagRegion:         func(dst, src *Config) { dst.Region = src.Region },
	FlagToken:          func(dst, src *Config) { dst.Token = src.Token },
	FlagRPS:            func(dst, src *Config) { dst.RequestsPerSecond = src.RequestsPerSecond },
	FlagFetchTimeout:   func(dst, src *Config) { dst.FetchTimeout = src.FetchTimeout },
	FlagCollectTimeout: func(dst, src *Config) { dst.CollectTimeout = src.CollectTimeout },
	FlagNoPreview:      func(dst, src *Config) { dst.SkipPreview = src.SkipPreview },
	FlagVerify:         func(dst, src *Config) { dst.Verify = src.Verify },
	FlagLogLevel:       func(dst, src *Config) { dst.LogLevel = src.LogLevel },
	FlagLogFormat:      func(dst, src *Config) { dst.LogFormat = src.LogFormat },
}

// Resolve combines the sources. flags is the configuration bound with
// AddFlags to fs after parsing; configPath may be empty.
func Resolve(fs *pflag.FlagSet, flags Config, configPath string) (Config, error) {
	cfg := Default()
	if configPath != "" {
		loaded, err := LoadFile(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if token := os.Getenv(TokenEnv); token != "" {
		cfg.Token = token
	}

	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := flagFields[f.Name]; ok {
			apply(&cfg, &flags)
		}
	})
	return cfg, nil
}

// Validate checks that a conversion can start.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatastoreID) == "" {
		return dcmerrors.NewArgumentError(FlagDatastoreID, "datastore identifier (-d or --datastoreId) must be provided", dcmerrors.ErrMissingArgument)
	}
	if strings.TrimSpace(c.StudyID) == "" {
		return dcmerrors.NewArgumentError(FlagStudyID, "study identifier (-s or --studyId) must be provided", dcmerrors.ErrMissingArgument)
	}
	if c.Workers < 1 {
		return dcmerrors.NewArgumentError(FlagWorkers, fmt.Sprintf("worker count must be at least 1, got %d", c.Workers), dcmerrors.ErrMissingArgument)
	}
	if c.RequestsPerSecond < 0 {
		return dcmerrors.NewArgumentError(FlagRPS, "requests per second cannot be negative", dcmerrors.ErrInvalidValue)
	}
	if c.FetchTimeout < 0 || c.CollectTimeout < 0 {
		return dcmerrors.NewArgumentError(FlagFetchTimeout, "timeouts cannot be negative", dcmerrors.ErrInvalidValue)
	}
	if _, err := c.Level(); err != nil {
		return dcmerrors.NewArgumentError(FlagLogLevel, err.Error(), dcmerrors.ErrInvalidValue)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return dcmerrors.NewArgumentError(FlagLogFormat, fmt.Sprintf("unknown log format %q", c.LogFormat), dcmerrors.ErrInvalidValue)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return level, nil
}
