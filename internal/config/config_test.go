// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-dev/weft/internal/config"
	"github.com/weft-dev/weft/pkg/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Daemon.LogLevel)
	assert.EqualValues(t, 1000, cfg.Ingest.DedupWindowMS)
	assert.InDelta(t, 0.5, cfg.Linker.InitialStrength, 1e-9)
	assert.InDelta(t, 0.1, cfg.Linker.ReinforceIncrement, 1e-9)
	assert.EqualValues(t, 30_000, cfg.Sessions.GapMS)
	assert.NotEmpty(t, cfg.Daemon.SocketPath)
	assert.NotEmpty(t, cfg.Daemon.DBPath)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weft.yaml")
	content := `
daemon:
  data_dir: ` + dir + `
  log_level: debug
ingest:
  dedup_window_ms: 250
linker:
  initial_strength: 0.7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Daemon.LogLevel)
	assert.EqualValues(t, 250, cfg.Ingest.DedupWindowMS)
	assert.InDelta(t, 0.7, cfg.Linker.InitialStrength, 1e-9)
	assert.Equal(t, filepath.Join(dir, "weftd.sock"), cfg.Daemon.SocketPath)
	assert.Equal(t, filepath.Join(dir, "weft.db"), cfg.Daemon.DBPath)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &config.Config{
		Daemon: config.DaemonConfig{LogLevel: "loud"},
		Ingest: config.IngestConfig{DedupWindowMS: 0},
		Linker: config.LinkerConfig{
			InitialStrength:    1.5,
			ReinforceIncrement: 0,
			Relations:          map[string]string{"file-project": "belongs_to"},
		},
		Sessions: config.SessionsConfig{GapMS: -1},
	}
	errs := cfg.Validate()
	assert.Len(t, errs, 6)
}

func TestRelationRulesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	rules := cfg.RelationRules()
	assert.Equal(t, model.RelBelongsTo, rules[[2]model.EntityKind{model.KindFile, model.KindProject}])
	assert.Equal(t, model.RelContains, rules[[2]model.EntityKind{model.KindProject, model.KindRepository}])
	_, ok := rules[[2]model.EntityKind{model.KindApp, model.KindFile}]
	assert.False(t, ok)
}
