// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/model"
)

const sessionColumns = "id, app_name, window_titles, project, category, start_time, end_time, duration_secs, event_count, metadata"

// InsertSession persists one aggregated activity session.
func (s *Store) InsertSession(ctx context.Context, sess *model.Session) error {
	titles, err := json.Marshal(sess.WindowTitles)
	if err != nil {
		return werr.Wrapf(err, werr.CodeStoreInvalidInput, "marshalling titles for session %s", sess.ID)
	}
	meta, err := marshalAttrs(sess.Metadata)
	if err != nil {
		return werr.Wrapf(err, werr.CodeStoreInvalidInput, "marshalling metadata for session %s", sess.ID)
	}

	const stmt = `INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		sess.ID, sess.AppName, string(titles), nullable(sess.Project), sess.Category,
		sess.StartTime, sess.EndTime, sess.DurationSecs, sess.EventCount, meta,
	)
	if err != nil {
		return werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "inserting session %s", sess.ID)
	}
	return nil
}

// SessionsInRange returns sessions overlapping [from, to], oldest first.
func (s *Store) SessionsInRange(ctx context.Context, from, to model.Timestamp, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 100
	}

	const stmt = `SELECT ` + sessionColumns + ` FROM sessions
WHERE end_time >= ? AND start_time <= ?
ORDER BY start_time ASC
LIMIT ?`

	rows, err := s.db.QueryContext(ctx, stmt, from, to, limit)
	if err != nil {
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "querying sessions")
	}
	defer rows.Close() //nolint:errcheck

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		var titles, meta string
		var project sql.NullString
		if err := rows.Scan(
			&sess.ID, &sess.AppName, &titles, &project, &sess.Category,
			&sess.StartTime, &sess.EndTime, &sess.DurationSecs, &sess.EventCount, &meta,
		); err != nil {
			return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "scanning session row")
		}
		if err := json.Unmarshal([]byte(titles), &sess.WindowTitles); err != nil {
			return nil, werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "unmarshalling titles for session %s", sess.ID)
		}
		sess.Project = project.String
		if err := unmarshalAttrs(meta, &sess.Metadata); err != nil {
			return nil, werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "unmarshalling metadata for session %s", sess.ID)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "iterating session rows")
	}
	return sessions, nil
}

// LastSessionEnd returns the latest session end time, or 0 when the
// sessions table is empty. Used as the aggregation watermark.
func (s *Store) LastSessionEnd(ctx context.Context) (model.Timestamp, error) {
	var end sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(end_time) FROM sessions`).Scan(&end)
	if err != nil {
		return 0, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "reading session watermark")
	}
	return end.Int64, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
