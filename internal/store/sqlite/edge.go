// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package sqlite

import (
	"context"
	"database/sql"

	"github.com/weft-dev/weft/internal/store"
	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/model"
)

const edgeColumns = "id, from_id, to_id, relation, strength, created_at, last_reinforced"

func upsertEdge(ctx context.Context, q querier, e *model.Edge) error {
	const stmt = `INSERT INTO edges (` + edgeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	strength        = excluded.strength,
	last_reinforced = excluded.last_reinforced`

	_, err := q.ExecContext(ctx, stmt,
		string(e.ID), string(e.From), string(e.To), string(e.Relation),
		e.Strength, e.CreatedAt, e.LastReinforced,
	)
	if err != nil {
		return werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "upserting edge %s", e.ID)
	}
	return nil
}

func scanEdge(row interface{ Scan(...any) error }) (*model.Edge, error) {
	var e model.Edge
	var id, from, to, rel string
	if err := row.Scan(&id, &from, &to, &rel, &e.Strength, &e.CreatedAt, &e.LastReinforced); err != nil {
		return nil, err
	}
	e.ID = model.EdgeID(id)
	e.From = model.EntityID(from)
	e.To = model.EntityID(to)
	e.Relation = model.Relation(rel)
	return &e, nil
}

func findEdge(ctx context.Context, q querier, from, to model.EntityID, rel model.Relation) (*model.Edge, error) {
	const stmt = `SELECT ` + edgeColumns + ` FROM edges WHERE from_id = ? AND to_id = ? AND relation = ?`
	e, err := scanEdge(q.QueryRowContext(ctx, stmt, string(from), string(to), string(rel)))
	if err == sql.ErrNoRows {
		return nil, werr.Wrapf(store.ErrNotFound, werr.CodeStoreEntityNotFound, "edge %s-%s-%s", from, rel, to)
	}
	if err != nil {
		return nil, werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "finding edge %s-%s-%s", from, rel, to)
	}
	return e, nil
}

// AllEdges returns every edge row, used for graph rebuilds.
func (s *Store) AllEdges(ctx context.Context) ([]model.Edge, error) {
	const stmt = `SELECT ` + edgeColumns + ` FROM edges ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "listing edges")
	}
	defer rows.Close() //nolint:errcheck

	var edges []model.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "scanning edge row")
		}
		edges = append(edges, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "iterating edge rows")
	}
	return edges, nil
}

// Writer methods delegating to the shared helpers on the transaction.

func (w *writer) FindEntityByNaturalKey(ctx context.Context, kind model.EntityKind, name string) (*model.Entity, error) {
	return findEntityByNaturalKey(ctx, w.tx, kind, name)
}

func (w *writer) UpsertEntity(ctx context.Context, e *model.Entity) error {
	return upsertEntity(ctx, w.tx, e)
}

func (w *writer) FindEdge(ctx context.Context, from, to model.EntityID, rel model.Relation) (*model.Edge, error) {
	return findEdge(ctx, w.tx, from, to, rel)
}

func (w *writer) UpsertEdge(ctx context.Context, e *model.Edge) error {
	return upsertEdge(ctx, w.tx, e)
}

func (w *writer) InsertEvent(ctx context.Context, ev *model.Event, subject model.EntityID, contexts []model.EntityID) error {
	return insertEvent(ctx, w.tx, ev, subject, contexts)
}
