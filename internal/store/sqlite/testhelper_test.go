// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weft-dev/weft/internal/store/sqlite"
	"github.com/weft-dev/weft/pkg/model"
)

// testStore opens a store on a temp-dir database and closes it on cleanup.
func testStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "weft-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeEntity(kind model.EntityKind, name string, ts model.Timestamp) *model.Entity {
	return &model.Entity{
		ID:        model.NewEntityID(),
		Kind:      kind,
		Name:      name,
		FirstSeen: ts,
		LastSeen:  ts,
	}
}

func makeEdge(from, to model.EntityID, rel model.Relation, ts model.Timestamp) *model.Edge {
	return &model.Edge{
		ID:             model.NewEdgeID(),
		From:           from,
		To:             to,
		Relation:       rel,
		Strength:       0.5,
		CreatedAt:      ts,
		LastReinforced: ts,
	}
}
