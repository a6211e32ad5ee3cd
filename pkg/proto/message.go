// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package proto defines the wire messages exchanged between collectors,
// CLI clients, and the weft daemon, plus the length-prefixed framing
// used to carry them over a byte stream.
package proto

import (
	werr "github.com/weft-dev/weft/pkg/errors"
	"github.com/weft-dev/weft/pkg/model"
)

// Version is the current protocol version, carried on every message.
const Version = 1

// Type discriminates the message payload.
type Type string

const (
	// Collector -> daemon.
	TypeEmitEvent          Type = "emit_event"
	TypeCollectorHandshake Type = "collector_handshake"
	TypeHeartbeat          Type = "heartbeat"

	// CLI -> daemon.
	TypeQuery             Type = "query"
	TypeStatus            Type = "status"
	TypeListCollectors    Type = "list_collectors"
	TypeSetTrackingPaused Type = "set_tracking_paused"

	// Daemon -> caller.
	TypeAck            Type = "ack"
	TypeError          Type = "error"
	TypeQueryResult    Type = "query_result"
	TypeStatusResult   Type = "status_result"
	TypeCollectorList  Type = "collector_list"
	TypeTrackingStatus Type = "tracking_status"
)

// Message is the protocol envelope. ID is a caller-chosen correlation
// identifier echoed back in the response. Exactly one payload field is
// populated, selected by Type.
type Message struct {
	Version int    `json:"version"`
	ID      string `json:"id"`
	Type    Type   `json:"type"`

	Event      *model.Event    `json:"event,omitempty"`
	Handshake  *Handshake      `json:"handshake,omitempty"`
	Heartbeat  *Heartbeat      `json:"heartbeat,omitempty"`
	Query      *QueryRequest   `json:"query,omitempty"`
	Paused     *bool           `json:"paused,omitempty"`
	Error      *ErrorInfo      `json:"error,omitempty"`
	Result     *QueryResult    `json:"result,omitempty"`
	Status     *StatusInfo     `json:"status,omitempty"`
	Collectors []CollectorInfo `json:"collectors,omitempty"`
}

// Handshake announces a collector to the daemon.
type Handshake struct {
	Name    string       `json:"name"`
	Version string       `json:"version"`
	Source  model.Source `json:"source"`
}

// Heartbeat is a periodic liveness signal. Collector names the sender
// so the registry can attribute it.
type Heartbeat struct {
	Collector string `json:"collector,omitempty"`
}

// QueryKind selects which query a QueryRequest performs.
type QueryKind string

const (
	QuerySearch   QueryKind = "search"
	QueryTimeline QueryKind = "timeline"
	QueryRelated  QueryKind = "related"
	QueryRecent   QueryKind = "recent"
	QuerySessions QueryKind = "sessions"
)

// QueryRequest carries one query; which fields matter depends on Kind.
type QueryRequest struct {
	Kind     QueryKind       `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	From     model.Timestamp `json:"from,omitempty"`
	To       model.Timestamp `json:"to,omitempty"`
	EntityID model.EntityID  `json:"entity_id,omitempty"`
	Depth    int             `json:"depth,omitempty"`
}

// QueryResult is the typed response to a QueryRequest.
type QueryResult struct {
	Entities []model.Entity  `json:"entities"`
	Edges    []model.Edge    `json:"edges"`
	Events   []model.Event   `json:"events"`
	Sessions []model.Session `json:"sessions,omitempty"`
}

// StatusInfo summarizes the daemon's state.
type StatusInfo struct {
	UptimeSecs          int64 `json:"uptime_secs"`
	EntityCount         int64 `json:"entity_count"`
	EdgeCount           int64 `json:"edge_count"`
	EventCount          int64 `json:"event_count"`
	ConnectedCollectors int   `json:"connected_collectors"`
	TrackingPaused      bool  `json:"tracking_paused"`
}

// CollectorInfo describes one registered collector.
type CollectorInfo struct {
	Name          string           `json:"name"`
	Source        model.Source     `json:"source"`
	Connected     bool             `json:"connected"`
	LastHeartbeat *model.Timestamp `json:"last_heartbeat,omitempty"`
	EventsSent    int64            `json:"events_sent"`
}

// ErrorCode classifies protocol-level error responses.
type ErrorCode string

const (
	ErrInvalidMessage ErrorCode = "invalid_message"
	ErrInternal       ErrorCode = "internal_error"
	ErrNotFound       ErrorCode = "not_found"
	ErrBadRequest     ErrorCode = "bad_request"
)

// ErrorInfo is the payload of an error response.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// New creates a message of the given type with the correlation id set.
func New(id string, typ Type) *Message {
	return &Message{Version: Version, ID: id, Type: typ}
}

// Ack creates a success acknowledgement for the given request.
func Ack(id string) *Message {
	return New(id, TypeAck)
}

// Err creates an error response for the given request.
func Err(id string, code ErrorCode, msg string) *Message {
	m := New(id, TypeError)
	m.Error = &ErrorInfo{Code: code, Message: msg}
	return m
}

// ErrFrom creates an error response whose wire code is derived from
// the error's machine code.
func ErrFrom(id string, err error) *Message {
	return Err(id, WireCode(err), err.Error())
}

// WireCode maps an internal error to its protocol error code.
func WireCode(err error) ErrorCode {
	switch {
	case werr.IsNotFound(err):
		return ErrNotFound
	case werr.HasCode(err, werr.CodeProtoDecodeInvalid),
		werr.HasCode(err, werr.CodeProtoFrameTooLarge):
		return ErrInvalidMessage
	case werr.IsInvalidInput(err):
		return ErrBadRequest
	default:
		return ErrInternal
	}
}
