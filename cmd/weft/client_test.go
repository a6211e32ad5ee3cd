// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package main

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-dev/weft/internal/config"
	"github.com/weft-dev/weft/internal/engine"
	"github.com/weft-dev/weft/internal/server"
	"github.com/weft-dev/weft/internal/store/sqlite"
	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/model"
	"github.com/weft-dev/weft/pkg/proto"
)

// startDaemon runs an engine and socket server in a temp dir and
// returns the socket path and engine for seeding state.
func startDaemon(t *testing.T) (string, *engine.Engine) {
	t.Helper()

	dir := t.TempDir()
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	cfg.Daemon.DataDir = dir

	st, err := sqlite.Open(filepath.Join(dir, "weft.db"))
	require.NoError(t, err)
	eng, err := engine.Open(context.Background(), cfg, st, slog.Default())
	require.NoError(t, err)

	socketPath := filepath.Join(dir, "weftd.sock")
	srv, err := server.New(server.Config{SocketPath: socketPath}, eng, slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = eng.Close()
	})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", socketPath); err == nil {
			_ = conn.Close()
			return socketPath, eng
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never became ready", socketPath)
	return "", nil
}

func seedEvent(t *testing.T, eng *engine.Engine, identity string, ts model.Timestamp) {
	t.Helper()
	msg := proto.New("seed", proto.TypeEmitEvent)
	msg.Event = &model.Event{
		ID:        model.NewEventID(),
		Timestamp: ts,
		Source:    model.SourceFilesystem,
		Kind:      model.EventFileModified,
		Subject:   model.EntityRef{Kind: model.KindFile, Identity: identity},
		Context:   []model.EntityRef{{Kind: model.KindProject, Identity: "/p/foo"}},
	}
	require.Equal(t, proto.TypeAck, eng.Handle(context.Background(), msg).Type)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestClientRequestResponse(t *testing.T) {
	socketPath, eng := startDaemon(t)
	seedEvent(t, eng, "/p/foo/main", 1000)

	resp, err := newDaemonClient(socketPath).request(newRequest(proto.TypeStatus))
	require.NoError(t, err)
	require.Equal(t, proto.TypeStatusResult, resp.Type)
	assert.EqualValues(t, 2, resp.Status.EntityCount)
}

func TestClientDaemonNotRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.sock")
	_, err := newDaemonClient(path).request(newRequest(proto.TypeStatus))
	require.Error(t, err)
	assert.True(t, werr.HasCode(err, werr.CodeCLIDaemonNotRunning))
}

func TestStatusCommandAgainstDaemon(t *testing.T) {
	socketPath, eng := startDaemon(t)
	seedEvent(t, eng, "/p/foo/main", 1000)

	out, err := runCLI(t, "status", "--socket", socketPath)
	require.NoError(t, err)
	assert.Contains(t, out, "entities:   2")
	assert.Contains(t, out, "edges:      1")
	assert.Contains(t, out, "events:     1")
	assert.Contains(t, out, "tracking:   active")
}

func TestStatusCommandDaemonDown(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "absent.sock")

	out, err := runCLI(t, "status", "--socket", socketPath)
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

func TestSearchCommandAgainstDaemon(t *testing.T) {
	socketPath, eng := startDaemon(t)
	seedEvent(t, eng, "/src/billing.go", 1000)
	seedEvent(t, eng, "/src/auth.go", 5000)

	out, err := runCLI(t, "query", "search", "billing", "--socket", socketPath)
	require.NoError(t, err)
	assert.Contains(t, out, "/src/billing.go")
	assert.NotContains(t, out, "/src/auth.go")
}

func TestRecentCommandAgainstDaemon(t *testing.T) {
	socketPath, eng := startDaemon(t)
	seedEvent(t, eng, "/p/foo/main", model.Now())

	out, err := runCLI(t, "query", "recent", "--socket", socketPath)
	require.NoError(t, err)
	assert.Contains(t, out, "/p/foo/main")
}

func TestCollectorsCommandAgainstDaemon(t *testing.T) {
	socketPath, eng := startDaemon(t)

	out, err := runCLI(t, "collectors", "--socket", socketPath)
	require.NoError(t, err)
	assert.Contains(t, out, "no collectors registered")

	hs := proto.New("hs", proto.TypeCollectorHandshake)
	hs.Handshake = &proto.Handshake{Name: "fswatch", Version: "0.1.0", Source: model.SourceFilesystem}
	require.Equal(t, proto.TypeAck, eng.Handle(context.Background(), hs).Type)

	out, err = runCLI(t, "collectors", "--socket", socketPath)
	require.NoError(t, err)
	assert.Contains(t, out, "fswatch")
	assert.Contains(t, out, "filesystem")
}

func TestPauseAndResumeCommands(t *testing.T) {
	socketPath, _ := startDaemon(t)

	out, err := runCLI(t, "pause", "--socket", socketPath)
	require.NoError(t, err)
	assert.Contains(t, out, "tracking is now paused")

	out, err = runCLI(t, "status", "--socket", socketPath)
	require.NoError(t, err)
	assert.Contains(t, out, "tracking:   paused")

	out, err = runCLI(t, "pause", "resume", "--socket", socketPath)
	require.NoError(t, err)
	assert.Contains(t, out, "tracking is now active")
}
