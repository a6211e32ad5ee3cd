// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package model defines the core data types flowing through weft:
// entities, observation events, relationship edges, and their
// identifiers. All timestamps are millisecond epoch UTC.
package model

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Timestamp is a millisecond-precision UTC epoch time.
type Timestamp = int64

// Attrs is an open attribute map, stored as JSON text.
type Attrs = map[string]any

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return time.Now().UTC().UnixMilli()
}

// EntityID identifies an entity. ULIDs sort by creation time.
type EntityID string

// EventID identifies an event.
type EventID string

// EdgeID identifies an edge.
type EdgeID string

// NewEntityID allocates a fresh entity identifier.
func NewEntityID() EntityID { return EntityID(ulid.Make().String()) }

// NewEventID allocates a fresh event identifier.
func NewEventID() EventID { return EventID(ulid.Make().String()) }

// NewEdgeID allocates a fresh edge identifier.
func NewEdgeID() EdgeID { return EdgeID(ulid.Make().String()) }

// customPrefix marks named-extension values of the tag sets below.
// A custom tag never collides with a declared constant.
const customPrefix = "custom:"

// EntityKind classifies an entity.
type EntityKind string

const (
	KindProject         EntityKind = "project"
	KindFile            EntityKind = "file"
	KindRepository      EntityKind = "repository"
	KindBranch          EntityKind = "branch"
	KindCommit          EntityKind = "commit"
	KindUrl             EntityKind = "url"
	KindDomain          EntityKind = "domain"
	KindApp             EntityKind = "app"
	KindTerminalSession EntityKind = "terminal_session"
	KindTerminalCommand EntityKind = "terminal_command"
)

// CustomKind returns a named-extension entity kind.
func CustomKind(name string) EntityKind {
	return EntityKind(customPrefix + name)
}

// IsCustom reports whether k is a named extension.
func (k EntityKind) IsCustom() bool {
	return strings.HasPrefix(string(k), customPrefix)
}

// Source tags which collector produced an event.
type Source string

const (
	SourceFilesystem Source = "filesystem"
	SourceBrowser    Source = "browser"
	SourceGit        Source = "git"
	SourceTerminal   Source = "terminal"
	SourceAppMonitor Source = "app_monitor"
)

// CustomSource returns a named-extension source.
func CustomSource(name string) Source {
	return Source(customPrefix + name)
}

// EventKind classifies an observation.
type EventKind string

const (
	EventFileOpened      EventKind = "file_opened"
	EventFileModified    EventKind = "file_modified"
	EventFileCreated     EventKind = "file_created"
	EventFileDeleted     EventKind = "file_deleted"
	EventUrlVisited      EventKind = "url_visited"
	EventTabFocused      EventKind = "tab_focused"
	EventAppFocused      EventKind = "app_focused"
	EventCommitCreated   EventKind = "commit_created"
	EventBranchChanged   EventKind = "branch_changed"
	EventCommandExecuted EventKind = "command_executed"
)

// CustomEventKind returns a named-extension event kind.
func CustomEventKind(name string) EventKind {
	return EventKind(customPrefix + name)
}

// Relation tags a directed edge between two entities.
type Relation string

const (
	RelBelongsTo      Relation = "belongs_to"
	RelContains       Relation = "contains"
	RelReferences     Relation = "references"
	RelOccurredDuring Relation = "occurred_during"
	RelVisited        Relation = "visited"
	RelRelatedTo      Relation = "related_to"
)

// CustomRelation returns a named-extension relation.
func CustomRelation(name string) Relation {
	return Relation(customPrefix + name)
}

// Entity is a durable, identity-resolved thing in the graph. The
// (Kind, Name) pair is the natural key: no two entities share both.
type Entity struct {
	ID         EntityID   `json:"id"`
	Kind       EntityKind `json:"kind"`
	Name       string     `json:"name"`
	Attributes Attrs      `json:"attributes,omitempty"`
	FirstSeen  Timestamp  `json:"first_seen"`
	LastSeen   Timestamp  `json:"last_seen"`
}

// EntityRef is an unresolved pointer into entity-space: the natural
// key a collector knows before the linker assigns an identity.
type EntityRef struct {
	Kind       EntityKind `json:"kind"`
	Identity   string     `json:"identity"`
	Attributes Attrs      `json:"attributes,omitempty"`
}

// Event is an immutable observation emitted by a collector.
type Event struct {
	ID        EventID     `json:"id"`
	Timestamp Timestamp   `json:"timestamp"`
	Source    Source      `json:"source"`
	Kind      EventKind   `json:"kind"`
	Subject   EntityRef   `json:"subject"`
	Context   []EntityRef `json:"context,omitempty"`
	Metadata  Attrs       `json:"metadata,omitempty"`
}

// StoredEvent is an event as persisted, with the subject resolved to
// an entity identifier.
type StoredEvent struct {
	ID        EventID   `json:"id"`
	Timestamp Timestamp `json:"timestamp"`
	Source    Source    `json:"source"`
	Kind      EventKind `json:"kind"`
	SubjectID EntityID  `json:"subject_id"`
	Metadata  Attrs     `json:"metadata,omitempty"`
}

// Edge is a directed, strength-weighted relationship between two
// resolved entities. At most one edge exists per (From, To, Relation).
type Edge struct {
	ID             EdgeID    `json:"id"`
	From           EntityID  `json:"from"`
	To             EntityID  `json:"to"`
	Relation       Relation  `json:"relation"`
	Strength       float64   `json:"strength"`
	CreatedAt      Timestamp `json:"created_at"`
	LastReinforced Timestamp `json:"last_reinforced"`
}

// Session is a contiguous span of activity in one application,
// aggregated from app-focus events.
type Session struct {
	ID           string    `json:"id"`
	AppName      string    `json:"app_name"`
	WindowTitles []string  `json:"window_titles"`
	Project      string    `json:"project,omitempty"`
	Category     string    `json:"category"`
	StartTime    Timestamp `json:"start_time"`
	EndTime      Timestamp `json:"end_time"`
	DurationSecs int64     `json:"duration_secs"`
	EventCount   int64     `json:"event_count"`
	Metadata     Attrs     `json:"metadata,omitempty"`
}
