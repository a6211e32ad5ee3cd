// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package sqlite

import (
	"context"

	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/model"
)

const eventColumns = "id, timestamp, source, kind, subject_id, metadata"

func insertEvent(ctx context.Context, q querier, ev *model.Event, subject model.EntityID, contexts []model.EntityID) error {
	meta, err := marshalAttrs(ev.Metadata)
	if err != nil {
		return werr.Wrapf(err, werr.CodeStoreInvalidInput, "marshalling metadata for event %s", ev.ID)
	}

	const stmt = `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = q.ExecContext(ctx, stmt,
		string(ev.ID), ev.Timestamp, string(ev.Source), string(ev.Kind), string(subject), meta,
	)
	if err != nil {
		return werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "inserting event %s", ev.ID)
	}

	const ctxStmt = `INSERT INTO event_context (event_id, entity_id) VALUES (?, ?)`
	for _, id := range contexts {
		if _, err := q.ExecContext(ctx, ctxStmt, string(ev.ID), string(id)); err != nil {
			return werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "inserting context %s for event %s", id, ev.ID)
		}
	}
	return nil
}

func scanStoredEvent(row interface{ Scan(...any) error }) (*model.StoredEvent, error) {
	var ev model.StoredEvent
	var id, source, kind, subject, meta string
	if err := row.Scan(&id, &ev.Timestamp, &source, &kind, &subject, &meta); err != nil {
		return nil, err
	}
	ev.ID = model.EventID(id)
	ev.Source = model.Source(source)
	ev.Kind = model.EventKind(kind)
	ev.SubjectID = model.EntityID(subject)
	if err := unmarshalAttrs(meta, &ev.Metadata); err != nil {
		return nil, werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "unmarshalling metadata for event %s", id)
	}
	return &ev, nil
}

func (s *Store) queryEvents(ctx context.Context, stmt string, args ...any) ([]model.StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "querying events")
	}
	defer rows.Close() //nolint:errcheck

	var events []model.StoredEvent
	for rows.Next() {
		ev, err := scanStoredEvent(rows)
		if err != nil {
			return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "scanning event row")
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "iterating event rows")
	}
	return events, nil
}

// RecentEvents returns the most recent events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]model.StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const stmt = `SELECT ` + eventColumns + ` FROM events ORDER BY timestamp DESC, id DESC LIMIT ?`
	return s.queryEvents(ctx, stmt, limit)
}

// EventsInRange returns events with from <= timestamp <= to, oldest first.
func (s *Store) EventsInRange(ctx context.Context, from, to model.Timestamp) ([]model.StoredEvent, error) {
	const stmt = `SELECT ` + eventColumns + ` FROM events WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC, id ASC`
	return s.queryEvents(ctx, stmt, from, to)
}
