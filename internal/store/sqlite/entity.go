// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/weft-dev/weft/internal/store"
	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/model"
)

const entityColumns = "id, kind, name, attributes, first_seen, last_seen"

func upsertEntity(ctx context.Context, q querier, e *model.Entity) error {
	attrs, err := marshalAttrs(e.Attributes)
	if err != nil {
		return werr.Wrapf(err, werr.CodeStoreInvalidInput, "marshalling attributes for entity %s", e.ID)
	}

	const stmt = `INSERT INTO entities (` + entityColumns + `) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name       = excluded.name,
	attributes = excluded.attributes,
	last_seen  = excluded.last_seen`

	_, err = q.ExecContext(ctx, stmt,
		string(e.ID), string(e.Kind), e.Name, attrs, e.FirstSeen, e.LastSeen,
	)
	if err != nil {
		return werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "upserting entity %s", e.ID)
	}
	return nil
}

func scanEntity(row interface{ Scan(...any) error }) (*model.Entity, error) {
	var e model.Entity
	var id, kind, attrs string
	if err := row.Scan(&id, &kind, &e.Name, &attrs, &e.FirstSeen, &e.LastSeen); err != nil {
		return nil, err
	}
	e.ID = model.EntityID(id)
	e.Kind = model.EntityKind(kind)
	if err := unmarshalAttrs(attrs, &e.Attributes); err != nil {
		return nil, werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "unmarshalling attributes for entity %s", id)
	}
	return &e, nil
}

func getEntity(ctx context.Context, q querier, id model.EntityID) (*model.Entity, error) {
	const stmt = `SELECT ` + entityColumns + ` FROM entities WHERE id = ?`
	e, err := scanEntity(q.QueryRowContext(ctx, stmt, string(id)))
	if err == sql.ErrNoRows {
		return nil, werr.Wrapf(store.ErrNotFound, werr.CodeStoreEntityNotFound, "entity %s", id)
	}
	if err != nil {
		return nil, werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "getting entity %s", id)
	}
	return e, nil
}

func findEntityByNaturalKey(ctx context.Context, q querier, kind model.EntityKind, name string) (*model.Entity, error) {
	const stmt = `SELECT ` + entityColumns + ` FROM entities WHERE kind = ? AND name = ?`
	e, err := scanEntity(q.QueryRowContext(ctx, stmt, string(kind), name))
	if err == sql.ErrNoRows {
		return nil, werr.Wrapf(store.ErrNotFound, werr.CodeStoreEntityNotFound, "entity %s/%s", kind, name)
	}
	if err != nil {
		return nil, werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "finding entity %s/%s", kind, name)
	}
	return e, nil
}

// GetEntity returns the entity with the given id.
func (s *Store) GetEntity(ctx context.Context, id model.EntityID) (*model.Entity, error) {
	return getEntity(ctx, s.db, id)
}

// AllEntities returns every entity row, used for graph rebuilds.
func (s *Store) AllEntities(ctx context.Context) ([]model.Entity, error) {
	const stmt = `SELECT ` + entityColumns + ` FROM entities ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "listing entities")
	}
	defer rows.Close() //nolint:errcheck

	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "scanning entity row")
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "iterating entity rows")
	}
	return entities, nil
}

// SearchEntities runs a keyword search over entity names and
// attributes via the FTS5 shadow index.
func (s *Store) SearchEntities(ctx context.Context, text string, limit int) ([]model.Entity, error) {
	if limit <= 0 {
		limit = 50
	}

	const stmt = `SELECT e.id, e.kind, e.name, e.attributes, e.first_seen, e.last_seen
FROM entities_fts f
JOIN entities e ON e.rowid = f.rowid
WHERE entities_fts MATCH ?
ORDER BY rank
LIMIT ?`

	rows, err := s.db.QueryContext(ctx, stmt, ftsQuery(text), limit)
	if err != nil {
		return nil, werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "searching entities for %q", text)
	}
	defer rows.Close() //nolint:errcheck

	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "scanning search row")
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "iterating search rows")
	}
	return entities, nil
}

// ftsQuery turns free text into a prefix-matching FTS5 phrase so
// caller input can never be misparsed as query syntax.
func ftsQuery(text string) string {
	escaped := strings.ReplaceAll(text, `"`, `""`)
	return `"` + escaped + `"*`
}

func marshalAttrs(attrs model.Attrs) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalAttrs(s string, dest *model.Attrs) error {
	if s == "" || s == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(s), dest)
}
