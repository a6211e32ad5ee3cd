// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package store defines the durable-store interfaces the engine and
// linker program against. The SQLite implementation lives in the
// sqlite subpackage.
package store

import (
	"context"
	"errors"

	"github.com/weft-dev/weft/pkg/model"
)

// ErrNotFound is returned (wrapped) when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Writer is the transactional write surface used by the linker. All
// calls on one Writer belong to a single transaction: either the whole
// subject+context+edges+event unit commits or none of it does.
type Writer interface {
	// FindEntityByNaturalKey looks up an entity by its (kind, name)
	// natural key. Returns ErrNotFound (wrapped) when absent.
	FindEntityByNaturalKey(ctx context.Context, kind model.EntityKind, name string) (*model.Entity, error)

	// UpsertEntity inserts the entity or, on id conflict, overwrites
	// name, attributes, and last_seen only. first_seen is immutable.
	UpsertEntity(ctx context.Context, e *model.Entity) error

	// FindEdge looks up an edge by (from, to, relation). Returns
	// ErrNotFound (wrapped) when absent.
	FindEdge(ctx context.Context, from, to model.EntityID, rel model.Relation) (*model.Edge, error)

	// UpsertEdge inserts the edge or, on id conflict, overwrites
	// strength and last_reinforced only.
	UpsertEdge(ctx context.Context, e *model.Edge) error

	// InsertEvent appends an event with its resolved subject and
	// context entity ids.
	InsertEvent(ctx context.Context, ev *model.Event, subject model.EntityID, contexts []model.EntityID) error
}

// Store is the full durable-store surface.
type Store interface {
	// InTx runs fn inside a transaction, committing on nil and rolling
	// back on error.
	InTx(ctx context.Context, fn func(Writer) error) error

	GetEntity(ctx context.Context, id model.EntityID) (*model.Entity, error)
	AllEntities(ctx context.Context) ([]model.Entity, error)
	AllEdges(ctx context.Context) ([]model.Edge, error)
	SearchEntities(ctx context.Context, text string, limit int) ([]model.Entity, error)

	RecentEvents(ctx context.Context, limit int) ([]model.StoredEvent, error)
	EventsInRange(ctx context.Context, from, to model.Timestamp) ([]model.StoredEvent, error)

	EntityCount(ctx context.Context) (int64, error)
	EdgeCount(ctx context.Context) (int64, error)
	EventCount(ctx context.Context) (int64, error)

	InsertSession(ctx context.Context, s *model.Session) error
	SessionsInRange(ctx context.Context, from, to model.Timestamp, limit int) ([]model.Session, error)
	// LastSessionEnd returns the latest session end time, or 0 when no
	// sessions exist.
	LastSessionEnd(ctx context.Context) (model.Timestamp, error)

	Close() error
}
