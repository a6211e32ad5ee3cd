// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package ingest gates raw collector events before they may touch any
// durable state: structural validation plus timestamp-based
// deduplication. The stage has no side effects beyond its own cache.
package ingest

import (
	"log/slog"

	"github.com/weft-dev/weft/pkg/model"
)

type dedupKey struct {
	source   model.Source
	identity string
}

// Pipeline deduplicates events on (source, subject identity) within a
// fixed window. Not safe for concurrent use; the engine serializes
// calls under its own lock.
type Pipeline struct {
	cache    map[dedupKey]model.Timestamp
	windowMS int64
	log      *slog.Logger
}

func New(windowMS int64, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cache:    make(map[dedupKey]model.Timestamp),
		windowMS: windowMS,
		log:      log,
	}
}

// Process decides whether the event may proceed to linking. Events
// with an empty subject identity are dropped. A repeat of the same
// (source, subject identity) is dropped when its declared timestamp is
// within the window of the cached one, in either direction. Dropping
// is normal operation, not an error.
func (p *Pipeline) Process(ev *model.Event) (*model.Event, bool) {
	if ev.Subject.Identity == "" {
		p.log.Warn("dropping event with empty subject identity", "event_id", ev.ID)
		return nil, false
	}

	key := dedupKey{source: ev.Source, identity: ev.Subject.Identity}
	if last, ok := p.cache[key]; ok {
		delta := ev.Timestamp - last
		if delta < 0 {
			delta = -delta
		}
		if delta < p.windowMS {
			p.log.Debug("deduplicating event", "event_id", ev.ID, "source", ev.Source)
			return nil, false
		}
	}
	p.cache[key] = ev.Timestamp
	return ev, true
}

// Forget removes the cache entry for (source, identity). The engine
// calls this when persisting an accepted event fails, so a retry is
// not mistaken for a duplicate of something that was never stored.
func (p *Pipeline) Forget(source model.Source, identity string) {
	delete(p.cache, dedupKey{source: source, identity: identity})
}

// Prune drops cache entries with timestamps older than before. The
// engine calls this periodically so the cache cannot grow without
// bound.
func (p *Pipeline) Prune(before model.Timestamp) {
	for k, ts := range p.cache {
		if ts < before {
			delete(p.cache, k)
		}
	}
}

// CacheSize reports the number of live dedup entries.
func (p *Pipeline) CacheSize() int {
	return len(p.cache)
}
