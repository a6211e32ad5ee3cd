// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package server exposes the engine over a unix domain socket using
// length-prefixed frames. One goroutine per connection; all state
// coordination lives in the engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/weft-dev/weft/internal/engine"
	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/proto"
)

// Config holds socket server configuration.
type Config struct {
	SocketPath   string
	WriteTimeout time.Duration
}

// Server accepts collector and CLI connections and shuttles frames
// between them and the engine.
type Server struct {
	cfg Config
	eng *engine.Engine
	log *slog.Logger

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

func New(cfg Config, eng *engine.Engine, log *slog.Logger) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, werr.New(werr.CodeServerStartFailure, "socket path is required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Server{
		cfg:   cfg,
		eng:   eng,
		log:   log,
		conns: make(map[net.Conn]struct{}),
	}, nil
}

// Start listens on the unix socket and blocks until the context is
// cancelled, then waits for in-flight connections to finish.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return werr.Wrap(err, werr.CodeServerStartFailure, "creating socket directory")
	}
	// A previous unclean shutdown may have left the socket behind.
	if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return werr.Wrap(err, werr.CodeServerStartFailure, "removing stale socket")
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return werr.Wrapf(err, werr.CodeServerStartFailure, "listening on %s", s.cfg.SocketPath)
	}
	s.log.Info("listening", "socket", s.cfg.SocketPath)

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		_ = ln.Close()
		// Connections block in ReadFrame waiting for the next request;
		// closing them unblocks the read so wg.Wait can finish.
		s.connMu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.connMu.Unlock()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}

	wg.Wait()
	_ = os.Remove(s.cfg.SocketPath)
	return nil
}

// serveConn runs the read-dispatch-write loop for one connection.
// Framing errors tear down this connection only.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
		_ = conn.Close()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := proto.ReadFrame(conn)
		if err != nil {
			if werr.HasCode(err, werr.CodeProtoConnectionClosed) {
				return
			}
			s.log.Warn("closing connection on protocol error", "error", err)
			return
		}

		resp := s.eng.Handle(ctx, msg)

		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := proto.WriteFrame(conn, resp); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				s.log.Warn("writing response failed", "error", err)
			}
			return
		}
	}
}

// Addr returns the socket path the server is configured for.
func (s *Server) Addr() string {
	return fmt.Sprintf("unix://%s", s.cfg.SocketPath)
}
