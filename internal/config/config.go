// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package config loads and validates the weft daemon configuration.
// Values resolve with the usual precedence: flags, then WEFT_-prefixed
// environment variables, then an optional YAML file, then defaults.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/model"
)

// Config is the top-level weft configuration.
type Config struct {
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Linker   LinkerConfig   `mapstructure:"linker"`
	Sessions SessionsConfig `mapstructure:"sessions"`
}

// DaemonConfig controls the daemon's paths and logging.
type DaemonConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SocketPath string `mapstructure:"socket_path"`
	DBPath     string `mapstructure:"db_path"`
	LogLevel   string `mapstructure:"log_level"`
}

// IngestConfig controls event validation and deduplication.
type IngestConfig struct {
	DedupWindowMS     int64 `mapstructure:"dedup_window_ms"`
	PruneIntervalSecs int64 `mapstructure:"prune_interval_secs"`
}

// LinkerConfig controls relationship inference and reinforcement.
// Relations maps "subject_kind>context_kind" pairs to relation tags;
// pairs not listed default to related_to.
type LinkerConfig struct {
	InitialStrength    float64           `mapstructure:"initial_strength"`
	ReinforceIncrement float64           `mapstructure:"reinforce_increment"`
	Relations          map[string]string `mapstructure:"relations"`
}

// SessionsConfig controls activity-session aggregation.
type SessionsConfig struct {
	GapMS                 int64 `mapstructure:"gap_ms"`
	AggregateIntervalSecs int64 `mapstructure:"aggregate_interval_secs"`
}

// defaultRelations is the built-in relation-inference table.
func defaultRelations() map[string]string {
	return map[string]string{
		"file>project":       string(model.RelBelongsTo),
		"commit>repository":  string(model.RelBelongsTo),
		"branch>repository":  string(model.RelBelongsTo),
		"url>domain":         string(model.RelBelongsTo),
		"project>repository": string(model.RelContains),
	}
}

// SetDefaults registers all configuration defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("daemon.data_dir", defaultDataDir())
	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.db_path", "")
	v.SetDefault("daemon.log_level", "info")
	v.SetDefault("ingest.dedup_window_ms", 1000)
	v.SetDefault("ingest.prune_interval_secs", 60)
	v.SetDefault("linker.initial_strength", 0.5)
	v.SetDefault("linker.reinforce_increment", 0.1)
	v.SetDefault("linker.relations", defaultRelations())
	v.SetDefault("sessions.gap_ms", 30_000)
	v.SetDefault("sessions.aggregate_interval_secs", 300)
}

// SetupEnv enables WEFT_-prefixed environment overrides, with dots
// replaced by underscores (daemon.log_level -> WEFT_DAEMON_LOG_LEVEL).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("WEFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".weft"
	}
	return filepath.Join(home, ".local", "share", "weft")
}

// Load reads configuration from the given file path (optional) with
// environment overrides, fills derived paths, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, werr.Errorf(werr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a fully-populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, werr.Errorf(werr.CodeConfigLoadReadFailure, "unmarshalling config: %w", err)
	}

	if cfg.Daemon.SocketPath == "" {
		cfg.Daemon.SocketPath = filepath.Join(cfg.Daemon.DataDir, "weftd.sock")
	}
	if cfg.Daemon.DBPath == "" {
		cfg.Daemon.DBPath = filepath.Join(cfg.Daemon.DataDir, "weft.db")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, werr.Errorf(werr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors, collecting all
// issues rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Daemon.LogLevel] {
		errs = append(errs, werr.Errorf(werr.CodeConfigValidateInvalidValue,
			"daemon.log_level must be one of [debug, info, warn, error], got %q", c.Daemon.LogLevel))
	}
	if c.Ingest.DedupWindowMS <= 0 {
		errs = append(errs, werr.Errorf(werr.CodeConfigValidateInvalidValue,
			"ingest.dedup_window_ms must be positive, got %d", c.Ingest.DedupWindowMS))
	}
	if c.Linker.InitialStrength <= 0 || c.Linker.InitialStrength > 1 {
		errs = append(errs, werr.Errorf(werr.CodeConfigValidateInvalidValue,
			"linker.initial_strength must be in (0, 1], got %g", c.Linker.InitialStrength))
	}
	if c.Linker.ReinforceIncrement <= 0 || c.Linker.ReinforceIncrement > 1 {
		errs = append(errs, werr.Errorf(werr.CodeConfigValidateInvalidValue,
			"linker.reinforce_increment must be in (0, 1], got %g", c.Linker.ReinforceIncrement))
	}
	for pair := range c.Linker.Relations {
		if !strings.Contains(pair, ">") {
			errs = append(errs, werr.Errorf(werr.CodeConfigValidateInvalidValue,
				"linker.relations key %q must have the form subject_kind>context_kind", pair))
		}
	}
	if c.Sessions.GapMS <= 0 {
		errs = append(errs, werr.Errorf(werr.CodeConfigValidateInvalidValue,
			"sessions.gap_ms must be positive, got %d", c.Sessions.GapMS))
	}

	return errs
}

// RelationRules converts the configured relation table into typed
// (subject kind, context kind) -> relation lookups.
func (c *Config) RelationRules() map[[2]model.EntityKind]model.Relation {
	rules := make(map[[2]model.EntityKind]model.Relation, len(c.Linker.Relations))
	for pair, rel := range c.Linker.Relations {
		subj, ctx, ok := strings.Cut(pair, ">")
		if !ok {
			continue
		}
		key := [2]model.EntityKind{model.EntityKind(subj), model.EntityKind(ctx)}
		rules[key] = model.Relation(rel)
	}
	return rules
}
