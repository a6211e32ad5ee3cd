// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package linker resolves event entity references into durable
// entities and maintains the weighted relationship edges between them.
package linker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/weft-dev/weft/internal/store"
	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/model"
)

// Rules maps (subject kind, context kind) pairs to the relation an
// edge between them carries. Pairs not listed fall back to RelatedTo.
type Rules map[[2]model.EntityKind]model.Relation

// Linker turns accepted events into entity and edge mutations. All
// writes go through a single store transaction; graph-side effects are
// reported back as a Delta for the caller to apply after commit.
type Linker struct {
	rules     Rules
	initial   float64
	increment float64
	log       *slog.Logger
}

// Delta is the set of graph mutations produced by one Link call. Every
// entry is already durable by the time the enclosing transaction
// commits.
type Delta struct {
	SubjectID  model.EntityID
	ContextIDs []model.EntityID
	Entities   []model.Entity
	Edges      []model.Edge
}

func New(rules Rules, initialStrength, reinforceIncrement float64, log *slog.Logger) *Linker {
	return &Linker{
		rules:     rules,
		initial:   initialStrength,
		increment: reinforceIncrement,
		log:       log,
	}
}

// Resolve finds the entity matching ref's (kind, identity) natural key
// or creates it, bumping last_seen to observedAt either way.
func (l *Linker) Resolve(ctx context.Context, w store.Writer, ref model.EntityRef, observedAt model.Timestamp) (*model.Entity, error) {
	existing, err := w.FindEntityByNaturalKey(ctx, ref.Kind, ref.Identity)
	switch {
	case err == nil:
		existing.LastSeen = observedAt
		if err := w.UpsertEntity(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, store.ErrNotFound):
		e := &model.Entity{
			ID:         model.NewEntityID(),
			Kind:       ref.Kind,
			Name:       ref.Identity,
			Attributes: ref.Attributes,
			FirstSeen:  observedAt,
			LastSeen:   observedAt,
		}
		if err := w.UpsertEntity(ctx, e); err != nil {
			return nil, err
		}
		l.log.Debug("created entity", "entity_id", e.ID, "kind", e.Kind, "name", e.Name)
		return e, nil
	default:
		return nil, err
	}
}

// Link resolves the event's subject and context refs, ensures an edge
// from the subject to each context entity, and records the event. The
// returned Delta reflects post-mutation state.
func (l *Linker) Link(ctx context.Context, w store.Writer, ev *model.Event) (*Delta, error) {
	now := ev.Timestamp

	subject, err := l.Resolve(ctx, w, ev.Subject, now)
	if err != nil {
		return nil, werr.Wrap(err, werr.CodeEngineLinkFailure, "resolving event subject")
	}

	delta := &Delta{
		SubjectID: subject.ID,
		Entities:  []model.Entity{*subject},
	}

	for _, ref := range ev.Context {
		ctxEnt, err := l.Resolve(ctx, w, ref, now)
		if err != nil {
			return nil, werr.Wrap(err, werr.CodeEngineLinkFailure, "resolving event context")
		}
		delta.ContextIDs = append(delta.ContextIDs, ctxEnt.ID)
		delta.Entities = append(delta.Entities, *ctxEnt)

		rel := l.inferRelation(ev.Subject.Kind, ref.Kind)
		edge, err := l.ensureEdge(ctx, w, subject.ID, ctxEnt.ID, rel, now)
		if err != nil {
			return nil, werr.Wrap(err, werr.CodeEngineLinkFailure, "ensuring edge")
		}
		delta.Edges = append(delta.Edges, *edge)
	}

	if err := w.InsertEvent(ctx, ev, subject.ID, delta.ContextIDs); err != nil {
		return nil, werr.Wrap(err, werr.CodeEngineLinkFailure, "recording event")
	}
	return delta, nil
}

// ensureEdge reinforces an existing (from, to, relation) edge or
// creates one at the initial strength. Strength is capped at 1.0.
func (l *Linker) ensureEdge(ctx context.Context, w store.Writer, from, to model.EntityID, rel model.Relation, now model.Timestamp) (*model.Edge, error) {
	existing, err := w.FindEdge(ctx, from, to, rel)
	switch {
	case err == nil:
		existing.Strength = min(existing.Strength+l.increment, 1.0)
		existing.LastReinforced = now
		if err := w.UpsertEdge(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, store.ErrNotFound):
		edge := &model.Edge{
			ID:             model.NewEdgeID(),
			From:           from,
			To:             to,
			Relation:       rel,
			Strength:       l.initial,
			CreatedAt:      now,
			LastReinforced: now,
		}
		if err := w.UpsertEdge(ctx, edge); err != nil {
			return nil, err
		}
		return edge, nil
	default:
		return nil, err
	}
}

func (l *Linker) inferRelation(subject, ctx model.EntityKind) model.Relation {
	if rel, ok := l.rules[[2]model.EntityKind{subject, ctx}]; ok {
		return rel
	}
	return model.RelRelatedTo
}
