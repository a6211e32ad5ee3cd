// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package engine ties the pipeline together: it owns the durable
// store, the in-memory graph mirror, the ingestion stage, and the
// linker, and dispatches every protocol request to them under a single
// lock discipline.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weft-dev/weft/internal/config"
	"github.com/weft-dev/weft/internal/graph"
	"github.com/weft-dev/weft/internal/ingest"
	"github.com/weft-dev/weft/internal/linker"
	"github.com/weft-dev/weft/internal/session"
	"github.com/weft-dev/weft/internal/store"
	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/model"
	"github.com/weft-dev/weft/pkg/proto"
)

// Engine serializes all state mutation. mu orders every write as
// store-then-graph so the durable copy is never behind the mirror;
// queries take it read-style. The collector registry has its own
// lock because registry updates never touch the stores. The lock is
// never held across socket I/O.
type Engine struct {
	cfg   *config.Config
	log   *slog.Logger
	start time.Time

	mu     sync.RWMutex
	store  store.Store
	graph  *graph.Graph
	ingest *ingest.Pipeline
	linker *linker.Linker
	agg    *session.Aggregator

	regMu      sync.Mutex
	collectors map[string]*proto.CollectorInfo
	paused     bool
}

// Open builds an engine over the given store and rebuilds the graph
// mirror from it.
func Open(ctx context.Context, cfg *config.Config, st store.Store, log *slog.Logger) (*Engine, error) {
	entities, err := st.AllEntities(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := st.AllEdges(ctx)
	if err != nil {
		return nil, err
	}
	g := graph.New()
	g.Rebuild(entities, edges)
	log.Info("rebuilt in-memory graph", "entities", len(entities), "edges", len(edges))

	return &Engine{
		cfg:        cfg,
		log:        log,
		start:      time.Now(),
		store:      st,
		graph:      g,
		ingest:     ingest.New(cfg.Ingest.DedupWindowMS, log),
		linker:     linker.New(cfg.RelationRules(), cfg.Linker.InitialStrength, cfg.Linker.ReinforceIncrement, log),
		agg:        session.New(cfg.Sessions.GapMS),
		collectors: make(map[string]*proto.CollectorInfo),
	}, nil
}

// Close closes the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Handle dispatches one request and always returns exactly one
// response message carrying the request's correlation id.
func (e *Engine) Handle(ctx context.Context, msg *proto.Message) *proto.Message {
	switch msg.Type {
	case proto.TypeEmitEvent:
		return e.handleEmitEvent(ctx, msg)
	case proto.TypeCollectorHandshake:
		return e.handleHandshake(msg)
	case proto.TypeHeartbeat:
		return e.handleHeartbeat(msg)
	case proto.TypeQuery:
		return e.handleQuery(ctx, msg)
	case proto.TypeStatus:
		return e.handleStatus(ctx, msg)
	case proto.TypeListCollectors:
		return e.handleListCollectors(msg)
	case proto.TypeSetTrackingPaused:
		return e.handleSetTrackingPaused(msg)
	default:
		return proto.Err(msg.ID, proto.ErrBadRequest, "unexpected message type "+string(msg.Type))
	}
}

func (e *Engine) handleEmitEvent(ctx context.Context, msg *proto.Message) *proto.Message {
	if msg.Event == nil {
		return proto.Err(msg.ID, proto.ErrInvalidMessage, "emit_event without event payload")
	}
	if e.trackingPaused() {
		return proto.Ack(msg.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ev, ok := e.ingest.Process(msg.Event)
	if !ok {
		// Dropped or deduplicated events are normal operation.
		return proto.Ack(msg.ID)
	}

	var delta *linker.Delta
	err := e.store.InTx(ctx, func(w store.Writer) error {
		var err error
		delta, err = e.linker.Link(ctx, w, ev)
		return err
	})
	if err != nil {
		// Nothing was persisted, so the dedup entry must not survive
		// either; a retried event has to be accepted.
		e.ingest.Forget(ev.Source, ev.Subject.Identity)
		e.log.Error("linking event failed", "event_id", ev.ID, "error", err)
		return proto.ErrFrom(msg.ID, err)
	}

	// The transaction committed; mirror the delta.
	for i := range delta.Entities {
		e.graph.AddEntity(&delta.Entities[i])
	}
	for i := range delta.Edges {
		e.graph.AddEdge(&delta.Edges[i])
	}

	e.creditCollector(ev.Source)
	return proto.Ack(msg.ID)
}

func (e *Engine) handleHandshake(msg *proto.Message) *proto.Message {
	if msg.Handshake == nil || msg.Handshake.Name == "" {
		return proto.Err(msg.ID, proto.ErrInvalidMessage, "handshake without collector name")
	}
	now := model.Now()

	e.regMu.Lock()
	defer e.regMu.Unlock()
	e.collectors[msg.Handshake.Name] = &proto.CollectorInfo{
		Name:          msg.Handshake.Name,
		Source:        msg.Handshake.Source,
		Connected:     true,
		LastHeartbeat: &now,
	}
	e.log.Info("collector registered", "name", msg.Handshake.Name, "source", msg.Handshake.Source)
	return proto.Ack(msg.ID)
}

func (e *Engine) handleHeartbeat(msg *proto.Message) *proto.Message {
	if msg.Heartbeat != nil && msg.Heartbeat.Collector != "" {
		e.regMu.Lock()
		if info, ok := e.collectors[msg.Heartbeat.Collector]; ok {
			now := model.Now()
			info.LastHeartbeat = &now
		}
		e.regMu.Unlock()
	}
	return proto.Ack(msg.ID)
}

func (e *Engine) handleQuery(ctx context.Context, msg *proto.Message) *proto.Message {
	if msg.Query == nil {
		return proto.Err(msg.ID, proto.ErrInvalidMessage, "query without payload")
	}
	q := msg.Query

	e.mu.RLock()
	defer e.mu.RUnlock()

	var (
		result *proto.QueryResult
		err    error
	)
	switch q.Kind {
	case proto.QuerySearch:
		result, err = e.querySearch(ctx, q)
	case proto.QueryRecent:
		result, err = e.queryRecent(ctx, q)
	case proto.QueryTimeline:
		result, err = e.queryTimeline(ctx, q)
	case proto.QueryRelated:
		result, err = e.queryRelated(ctx, q)
	case proto.QuerySessions:
		result, err = e.querySessions(ctx, q)
	default:
		return proto.Err(msg.ID, proto.ErrBadRequest, "unknown query kind "+string(q.Kind))
	}
	if err != nil {
		return proto.ErrFrom(msg.ID, err)
	}

	resp := proto.New(msg.ID, proto.TypeQueryResult)
	resp.Result = result
	return resp
}

func (e *Engine) querySearch(ctx context.Context, q *proto.QueryRequest) (*proto.QueryResult, error) {
	entities, err := e.store.SearchEntities(ctx, q.Text, q.Limit)
	if err != nil {
		return nil, err
	}
	return &proto.QueryResult{Entities: entities}, nil
}

func (e *Engine) queryRecent(ctx context.Context, q *proto.QueryRequest) (*proto.QueryResult, error) {
	stored, err := e.store.RecentEvents(ctx, q.Limit)
	if err != nil {
		return nil, err
	}
	return &proto.QueryResult{Events: e.inflateEvents(ctx, stored)}, nil
}

func (e *Engine) queryTimeline(ctx context.Context, q *proto.QueryRequest) (*proto.QueryResult, error) {
	stored, err := e.store.EventsInRange(ctx, q.From, q.To)
	if err != nil {
		return nil, err
	}
	return &proto.QueryResult{Events: e.inflateEvents(ctx, stored)}, nil
}

func (e *Engine) queryRelated(ctx context.Context, q *proto.QueryRequest) (*proto.QueryResult, error) {
	if q.EntityID == "" {
		return nil, werr.New(werr.CodeEngineRequestInvalid, "related query requires entity_id")
	}
	// Depth zero (or negative) means an empty neighborhood; the graph
	// handles that, so the request value passes through untouched.
	return &proto.QueryResult{Entities: e.graph.Related(q.EntityID, q.Depth)}, nil
}

func (e *Engine) querySessions(ctx context.Context, q *proto.QueryRequest) (*proto.QueryResult, error) {
	to := q.To
	if to == 0 {
		to = model.Now()
	}
	sessions, err := e.store.SessionsInRange(ctx, q.From, to, q.Limit)
	if err != nil {
		return nil, err
	}
	return &proto.QueryResult{Sessions: sessions}, nil
}

// inflateEvents reconstructs wire events from stored rows, resolving
// each subject id back to an entity reference. Events whose subject
// has vanished are skipped.
func (e *Engine) inflateEvents(ctx context.Context, stored []model.StoredEvent) []model.Event {
	cache := make(map[model.EntityID]*model.Entity)
	out := make([]model.Event, 0, len(stored))
	for i := range stored {
		se := &stored[i]
		ent, ok := cache[se.SubjectID]
		if !ok {
			var err error
			ent, err = e.store.GetEntity(ctx, se.SubjectID)
			if err != nil {
				cache[se.SubjectID] = nil
				continue
			}
			cache[se.SubjectID] = ent
		}
		if ent == nil {
			continue
		}
		out = append(out, model.Event{
			ID:        se.ID,
			Timestamp: se.Timestamp,
			Source:    se.Source,
			Kind:      se.Kind,
			Subject:   model.EntityRef{Kind: ent.Kind, Identity: ent.Name},
			Metadata:  se.Metadata,
		})
	}
	return out
}

func (e *Engine) handleStatus(ctx context.Context, msg *proto.Message) *proto.Message {
	e.mu.RLock()
	entities, err := e.store.EntityCount(ctx)
	if err != nil {
		e.mu.RUnlock()
		return proto.ErrFrom(msg.ID, err)
	}
	edges, err := e.store.EdgeCount(ctx)
	if err != nil {
		e.mu.RUnlock()
		return proto.ErrFrom(msg.ID, err)
	}
	events, err := e.store.EventCount(ctx)
	e.mu.RUnlock()
	if err != nil {
		return proto.ErrFrom(msg.ID, err)
	}

	e.regMu.Lock()
	connected := len(e.collectors)
	paused := e.paused
	e.regMu.Unlock()

	resp := proto.New(msg.ID, proto.TypeStatusResult)
	resp.Status = &proto.StatusInfo{
		UptimeSecs:          int64(time.Since(e.start).Seconds()),
		EntityCount:         entities,
		EdgeCount:           edges,
		EventCount:          events,
		ConnectedCollectors: connected,
		TrackingPaused:      paused,
	}
	return resp
}

func (e *Engine) handleListCollectors(msg *proto.Message) *proto.Message {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	resp := proto.New(msg.ID, proto.TypeCollectorList)
	resp.Collectors = make([]proto.CollectorInfo, 0, len(e.collectors))
	for _, info := range e.collectors {
		resp.Collectors = append(resp.Collectors, *info)
	}
	return resp
}

func (e *Engine) handleSetTrackingPaused(msg *proto.Message) *proto.Message {
	if msg.Paused == nil {
		return proto.Err(msg.ID, proto.ErrInvalidMessage, "set_tracking_paused without paused flag")
	}

	e.regMu.Lock()
	e.paused = *msg.Paused
	paused := e.paused
	e.regMu.Unlock()
	e.log.Info("tracking pause changed", "paused", paused)

	resp := proto.New(msg.ID, proto.TypeTrackingStatus)
	resp.Paused = &paused
	return resp
}

func (e *Engine) trackingPaused() bool {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	return e.paused
}

// creditCollector bumps events_sent on the registered collector whose
// source matches the event. Caller holds e.mu.
func (e *Engine) creditCollector(source model.Source) {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	for _, info := range e.collectors {
		if info.Source == source {
			info.EventsSent++
			return
		}
	}
}

// StartMaintenance runs the dedup-cache prune and session-aggregation
// tickers until ctx is cancelled.
func (e *Engine) StartMaintenance(ctx context.Context) {
	go e.runPrune(ctx)
	go e.runAggregation(ctx)
}

func (e *Engine) runPrune(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(e.cfg.Ingest.PruneIntervalSecs) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			// Entries older than the window cannot dedup anything new.
			e.ingest.Prune(model.Now() - e.cfg.Ingest.DedupWindowMS)
			e.mu.Unlock()
		}
	}
}

func (e *Engine) runAggregation(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(e.cfg.Sessions.AggregateIntervalSecs) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.RunAggregator(ctx)
			if err != nil {
				e.log.Warn("session aggregation failed", "error", err)
				continue
			}
			if n > 0 {
				e.log.Info("aggregated new sessions", "sessions", n)
			}
		}
	}
}

// RunAggregator folds pending app events into sessions once.
func (e *Engine) RunAggregator(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Aggregate(ctx, e.store)
}
