// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package main

import (
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/proto"
)

// defaultTimeout bounds a whole CLI round trip.
var defaultTimeout = 5 * time.Second

// daemonClient talks to a running weft daemon over its unix socket,
// one connection per invocation.
type daemonClient struct {
	socketPath string
	timeout    time.Duration
}

func newDaemonClient(socketPath string) *daemonClient {
	return &daemonClient{socketPath: socketPath, timeout: defaultTimeout}
}

// request sends one message and waits for its correlated response.
func (c *daemonClient) request(msg *proto.Message) (*proto.Message, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		if isNotRunning(err) {
			return nil, werr.Errorf(werr.CodeCLIDaemonNotRunning, "daemon is not running at %s", c.socketPath)
		}
		return nil, werr.Errorf(werr.CodeCLIRequestFailure, "connecting to daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := proto.WriteFrame(conn, msg); err != nil {
		return nil, werr.Errorf(werr.CodeCLIRequestFailure, "sending request: %w", err)
	}
	resp, err := proto.ReadFrame(conn)
	if err != nil {
		return nil, werr.Errorf(werr.CodeCLIResponseInvalid, "reading response: %w", err)
	}
	if resp.ID != msg.ID {
		return nil, werr.Errorf(werr.CodeCLIResponseInvalid, "response id %q does not match request id %q", resp.ID, msg.ID)
	}
	if resp.Type == proto.TypeError && resp.Error != nil {
		return nil, werr.Errorf(werr.CodeCLIRequestFailure, "daemon error (%s): %s", resp.Error.Code, resp.Error.Message)
	}
	return resp, nil
}

// newRequest creates a message with a fresh correlation id.
func newRequest(typ proto.Type) *proto.Message {
	return proto.New(uuid.NewString(), typ)
}

func isNotRunning(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, os.ErrNotExist)
}
