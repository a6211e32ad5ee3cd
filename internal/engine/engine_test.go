// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-dev/weft/internal/config"
	"github.com/weft-dev/weft/internal/engine"
	"github.com/weft-dev/weft/internal/store"
	"github.com/weft-dev/weft/internal/store/sqlite"
	"github.com/weft-dev/weft/pkg/model"
	"github.com/weft-dev/weft/pkg/proto"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	cfg.Daemon.DataDir = t.TempDir()
	return cfg
}

func testEngine(t *testing.T) (*engine.Engine, *sqlite.Store) {
	t.Helper()
	cfg := testConfig(t)
	st, err := sqlite.Open(filepath.Join(cfg.Daemon.DataDir, "weft.db"))
	require.NoError(t, err)
	eng, err := engine.Open(context.Background(), cfg, st, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, st
}

func emit(subject model.EntityRef, context []model.EntityRef, ts model.Timestamp) *proto.Message {
	msg := proto.New("req-emit", proto.TypeEmitEvent)
	msg.Event = &model.Event{
		ID:        model.NewEventID(),
		Timestamp: ts,
		Source:    model.SourceFilesystem,
		Kind:      model.EventFileModified,
		Subject:   subject,
		Context:   context,
	}
	return msg
}

func fileRef(identity string) model.EntityRef {
	return model.EntityRef{Kind: model.KindFile, Identity: identity}
}

func projectRef(identity string) model.EntityRef {
	return model.EntityRef{Kind: model.KindProject, Identity: identity}
}

func status(t *testing.T, eng *engine.Engine) *proto.StatusInfo {
	t.Helper()
	resp := eng.Handle(context.Background(), proto.New("req-status", proto.TypeStatus))
	require.Equal(t, proto.TypeStatusResult, resp.Type)
	require.NotNil(t, resp.Status)
	return resp.Status
}

func TestEmitEventCreatesEntitiesAndEdge(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	resp := eng.Handle(ctx, emit(fileRef("/p/foo/main"), []model.EntityRef{projectRef("/p/foo")}, 1000))
	require.Equal(t, proto.TypeAck, resp.Type)
	assert.Equal(t, "req-emit", resp.ID)

	st := status(t, eng)
	assert.EqualValues(t, 2, st.EntityCount)
	assert.EqualValues(t, 1, st.EdgeCount)
	assert.EqualValues(t, 1, st.EventCount)
}

func TestRepeatedEmitReinforcesEdge(t *testing.T) {
	ctx := context.Background()
	eng, store := testEngine(t)

	subject := fileRef("/p/foo/main")
	context_ := []model.EntityRef{projectRef("/p/foo")}

	// 1000 ms apart: outside the default dedup window.
	require.Equal(t, proto.TypeAck, eng.Handle(ctx, emit(subject, context_, 1000)).Type)
	require.Equal(t, proto.TypeAck, eng.Handle(ctx, emit(subject, context_, 2000)).Type)

	st := status(t, eng)
	assert.EqualValues(t, 2, st.EntityCount)
	assert.EqualValues(t, 1, st.EdgeCount)
	assert.EqualValues(t, 2, st.EventCount)

	edges, err := store.AllEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, model.RelBelongsTo, edges[0].Relation)
	assert.InDelta(t, 0.6, edges[0].Strength, 1e-9)
}

func TestDeduplicatedEmitStillAcks(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	subject := fileRef("/p/foo/main")

	// 500 ms apart: inside the default 1000 ms window.
	require.Equal(t, proto.TypeAck, eng.Handle(ctx, emit(subject, nil, 1000)).Type)
	require.Equal(t, proto.TypeAck, eng.Handle(ctx, emit(subject, nil, 1500)).Type)

	assert.EqualValues(t, 1, status(t, eng).EventCount)
}

func TestEmptyIdentityDroppedWithAck(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	resp := eng.Handle(ctx, emit(fileRef(""), nil, 1000))
	assert.Equal(t, proto.TypeAck, resp.Type)
	assert.EqualValues(t, 0, status(t, eng).EventCount)
}

func TestGraphMirrorsStoreAndSurvivesRebuild(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	dbPath := filepath.Join(cfg.Daemon.DataDir, "weft.db")

	st, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	eng, err := engine.Open(ctx, cfg, st, slog.Default())
	require.NoError(t, err)

	eng.Handle(ctx, emit(fileRef("/p/foo/main"), []model.EntityRef{projectRef("/p/foo")}, 1000))
	eng.Handle(ctx, emit(fileRef("/p/foo/lib"), []model.EntityRef{projectRef("/p/foo")}, 2000))

	related := func(e *engine.Engine, id model.EntityID) []model.Entity {
		msg := proto.New("req-rel", proto.TypeQuery)
		msg.Query = &proto.QueryRequest{Kind: proto.QueryRelated, EntityID: id, Depth: 2}
		resp := e.Handle(ctx, msg)
		require.Equal(t, proto.TypeQueryResult, resp.Type)
		return resp.Result.Entities
	}

	entities, err := st.AllEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 3)
	var fileID model.EntityID
	for _, e := range entities {
		if e.Name == "/p/foo/main" {
			fileID = e.ID
		}
	}
	before := related(eng, fileID)
	require.NoError(t, eng.Close())

	// Reopen: the graph rebuilt from the store answers identically.
	st, err = sqlite.Open(dbPath)
	require.NoError(t, err)
	eng, err = engine.Open(ctx, cfg, st, slog.Default())
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	after := related(eng, fileID)
	assert.ElementsMatch(t, before, after)
}

func TestRelatedDepthChain(t *testing.T) {
	ctx := context.Background()
	eng, store := testEngine(t)

	// File -> Project -> Repository, three-hop chain.
	eng.Handle(ctx, emit(fileRef("/p/foo/main"), []model.EntityRef{projectRef("/p/foo")}, 1000))
	repoEv := proto.New("req-emit2", proto.TypeEmitEvent)
	repoEv.Event = &model.Event{
		ID:        model.NewEventID(),
		Timestamp: 3000,
		Source:    model.SourceGit,
		Kind:      model.EventCommitCreated,
		Subject:   projectRef("/p/foo"),
		Context:   []model.EntityRef{{Kind: model.KindRepository, Identity: "foo.git"}},
	}
	require.Equal(t, proto.TypeAck, eng.Handle(ctx, repoEv).Type)

	entities, err := store.AllEntities(ctx)
	require.NoError(t, err)
	var fileID model.EntityID
	for _, e := range entities {
		if e.Kind == model.KindFile {
			fileID = e.ID
		}
	}

	query := func(depth int) []string {
		msg := proto.New("req-rel", proto.TypeQuery)
		msg.Query = &proto.QueryRequest{Kind: proto.QueryRelated, EntityID: fileID, Depth: depth}
		resp := eng.Handle(ctx, msg)
		require.Equal(t, proto.TypeQueryResult, resp.Type)
		names := make([]string, 0, len(resp.Result.Entities))
		for _, e := range resp.Result.Entities {
			names = append(names, e.Name)
		}
		return names
	}

	assert.ElementsMatch(t, []string{"/p/foo"}, query(1))
	assert.ElementsMatch(t, []string{"/p/foo", "foo.git"}, query(2))
}

func TestQuerySearch(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	eng.Handle(ctx, emit(fileRef("/src/billing.go"), nil, 1000))
	eng.Handle(ctx, emit(fileRef("/src/auth.go"), nil, 2000))

	msg := proto.New("req-search", proto.TypeQuery)
	msg.Query = &proto.QueryRequest{Kind: proto.QuerySearch, Text: "billing", Limit: 10}
	resp := eng.Handle(ctx, msg)
	require.Equal(t, proto.TypeQueryResult, resp.Type)
	require.Len(t, resp.Result.Entities, 1)
	assert.Equal(t, "/src/billing.go", resp.Result.Entities[0].Name)
}

func TestQueryRecentAndTimeline(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	eng.Handle(ctx, emit(fileRef("/src/a.go"), nil, 1000))
	eng.Handle(ctx, emit(fileRef("/src/b.go"), nil, 5000))

	recent := proto.New("req-recent", proto.TypeQuery)
	recent.Query = &proto.QueryRequest{Kind: proto.QueryRecent, Limit: 10}
	resp := eng.Handle(ctx, recent)
	require.Equal(t, proto.TypeQueryResult, resp.Type)
	require.Len(t, resp.Result.Events, 2)
	assert.Equal(t, "/src/b.go", resp.Result.Events[0].Subject.Identity)

	timeline := proto.New("req-timeline", proto.TypeQuery)
	timeline.Query = &proto.QueryRequest{Kind: proto.QueryTimeline, From: 0, To: 2000}
	resp = eng.Handle(ctx, timeline)
	require.Equal(t, proto.TypeQueryResult, resp.Type)
	require.Len(t, resp.Result.Events, 1)
	assert.Equal(t, "/src/a.go", resp.Result.Events[0].Subject.Identity)
}

// failOnceStore delegates to the real store but rejects the first
// transaction, as a crashed write would.
type failOnceStore struct {
	store.Store
	failed bool
}

func (s *failOnceStore) InTx(ctx context.Context, fn func(store.Writer) error) error {
	if !s.failed {
		s.failed = true
		return errors.New("disk full")
	}
	return s.Store.InTx(ctx, fn)
}

func TestFailedPersistDoesNotPoisonDedup(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	st, err := sqlite.Open(filepath.Join(cfg.Daemon.DataDir, "weft.db"))
	require.NoError(t, err)
	eng, err := engine.Open(ctx, cfg, &failOnceStore{Store: st}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	subject := fileRef("/p/foo/main")

	resp := eng.Handle(ctx, emit(subject, nil, 1000))
	require.Equal(t, proto.TypeError, resp.Type)
	assert.EqualValues(t, 0, status(t, eng).EventCount)

	// The retry lands inside the dedup window but nothing was stored,
	// so it must be accepted, not swallowed as a duplicate.
	resp = eng.Handle(ctx, emit(subject, nil, 1100))
	require.Equal(t, proto.TypeAck, resp.Type)
	assert.EqualValues(t, 1, status(t, eng).EventCount)
}

func TestRelatedDepthZeroReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	eng, st := testEngine(t)

	eng.Handle(ctx, emit(fileRef("/p/foo/main"), []model.EntityRef{projectRef("/p/foo")}, 1000))

	entities, err := st.AllEntities(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, entities)

	// Zero hops means an empty neighborhood even when neighbors exist.
	msg := proto.New("req-rel", proto.TypeQuery)
	msg.Query = &proto.QueryRequest{Kind: proto.QueryRelated, EntityID: entities[0].ID, Depth: 0}
	resp := eng.Handle(ctx, msg)
	require.Equal(t, proto.TypeQueryResult, resp.Type)
	assert.Empty(t, resp.Result.Entities)
}

func TestRelatedUnknownEntityReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	msg := proto.New("req-rel", proto.TypeQuery)
	msg.Query = &proto.QueryRequest{Kind: proto.QueryRelated, EntityID: model.NewEntityID(), Depth: 2}
	resp := eng.Handle(ctx, msg)
	require.Equal(t, proto.TypeQueryResult, resp.Type)
	assert.Empty(t, resp.Result.Entities)
}

func TestHandshakeHeartbeatAndListCollectors(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	hs := proto.New("req-hs", proto.TypeCollectorHandshake)
	hs.Handshake = &proto.Handshake{Name: "fswatch", Version: "0.1.0", Source: model.SourceFilesystem}
	require.Equal(t, proto.TypeAck, eng.Handle(ctx, hs).Type)

	hb := proto.New("req-hb", proto.TypeHeartbeat)
	hb.Heartbeat = &proto.Heartbeat{Collector: "fswatch"}
	require.Equal(t, proto.TypeAck, eng.Handle(ctx, hb).Type)

	eng.Handle(ctx, emit(fileRef("/src/a.go"), nil, 1000))

	resp := eng.Handle(ctx, proto.New("req-ls", proto.TypeListCollectors))
	require.Equal(t, proto.TypeCollectorList, resp.Type)
	require.Len(t, resp.Collectors, 1)
	got := resp.Collectors[0]
	assert.Equal(t, "fswatch", got.Name)
	assert.True(t, got.Connected)
	assert.NotNil(t, got.LastHeartbeat)
	assert.EqualValues(t, 1, got.EventsSent)

	assert.Equal(t, 1, status(t, eng).ConnectedCollectors)
}

func TestSetTrackingPaused(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	paused := true
	set := proto.New("req-pause", proto.TypeSetTrackingPaused)
	set.Paused = &paused
	resp := eng.Handle(ctx, set)
	require.Equal(t, proto.TypeTrackingStatus, resp.Type)
	require.NotNil(t, resp.Paused)
	assert.True(t, *resp.Paused)

	// Events are acked but never stored while paused.
	require.Equal(t, proto.TypeAck, eng.Handle(ctx, emit(fileRef("/src/a.go"), nil, 1000)).Type)
	st := status(t, eng)
	assert.EqualValues(t, 0, st.EventCount)
	assert.True(t, st.TrackingPaused)

	unpaused := false
	set = proto.New("req-resume", proto.TypeSetTrackingPaused)
	set.Paused = &unpaused
	eng.Handle(ctx, set)

	require.Equal(t, proto.TypeAck, eng.Handle(ctx, emit(fileRef("/src/a.go"), nil, 5000)).Type)
	assert.EqualValues(t, 1, status(t, eng).EventCount)
}

func TestUnexpectedMessageType(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	resp := eng.Handle(ctx, proto.New("req-bad", proto.TypeQueryResult))
	require.Equal(t, proto.TypeError, resp.Type)
	assert.Equal(t, proto.ErrBadRequest, resp.Error.Code)
	assert.Equal(t, "req-bad", resp.ID)
}

func TestMalformedPayloads(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	resp := eng.Handle(ctx, proto.New("req-1", proto.TypeEmitEvent))
	require.Equal(t, proto.TypeError, resp.Type)
	assert.Equal(t, proto.ErrInvalidMessage, resp.Error.Code)

	resp = eng.Handle(ctx, proto.New("req-2", proto.TypeQuery))
	require.Equal(t, proto.TypeError, resp.Type)

	resp = eng.Handle(ctx, proto.New("req-3", proto.TypeCollectorHandshake))
	require.Equal(t, proto.TypeError, resp.Type)

	resp = eng.Handle(ctx, proto.New("req-4", proto.TypeSetTrackingPaused))
	require.Equal(t, proto.TypeError, resp.Type)
}

func TestRunAggregator(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)

	for _, ts := range []model.Timestamp{1000, 4000, 7000} {
		msg := proto.New("req-app", proto.TypeEmitEvent)
		msg.Event = &model.Event{
			ID:        model.NewEventID(),
			Timestamp: ts,
			Source:    model.SourceAppMonitor,
			Kind:      model.EventAppFocused,
			Subject:   model.EntityRef{Kind: model.KindApp, Identity: "VS Code"},
			Metadata:  model.Attrs{"window_title": "main.go"},
		}
		require.Equal(t, proto.TypeAck, eng.Handle(ctx, msg).Type)
	}

	n, err := eng.RunAggregator(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msg := proto.New("req-sess", proto.TypeQuery)
	msg.Query = &proto.QueryRequest{Kind: proto.QuerySessions, From: 0, To: 100_000, Limit: 10}
	resp := eng.Handle(ctx, msg)
	require.Equal(t, proto.TypeQueryResult, resp.Type)
	require.Len(t, resp.Result.Sessions, 1)
	assert.Equal(t, "VS Code", resp.Result.Sessions[0].AppName)
	assert.Equal(t, "coding", resp.Result.Sessions[0].Category)
}
