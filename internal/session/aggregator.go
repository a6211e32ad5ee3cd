// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package session folds raw app-focus events into coarse activity
// sessions: contiguous runs of the same application, split on long
// gaps, categorized by application name.
package session

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/weft-dev/weft/internal/store"
	"github.com/weft-dev/weft/pkg/model"
)

// resolvedEvent is an app-monitor event with the application name
// looked up from the entity table.
type resolvedEvent struct {
	timestamp model.Timestamp
	appName   string
	title     string
}

// Aggregator groups app-monitor events into sessions. Stateless
// between runs; the watermark lives in the sessions table.
type Aggregator struct {
	gapMS int64
}

func New(gapMS int64) *Aggregator {
	return &Aggregator{gapMS: gapMS}
}

// Aggregate folds all app-monitor events newer than the last stored
// session end into sessions and persists them. Returns the number of
// sessions created.
func (a *Aggregator) Aggregate(ctx context.Context, s store.Store) (int, error) {
	watermark, err := s.LastSessionEnd(ctx)
	if err != nil {
		return 0, err
	}
	now := model.Now()

	events, err := s.EventsInRange(ctx, watermark, now)
	if err != nil {
		return 0, err
	}

	nameCache := make(map[model.EntityID]string)
	var resolved []resolvedEvent
	for i := range events {
		ev := &events[i]
		if ev.Source != model.SourceAppMonitor {
			continue
		}
		// The range is inclusive; an event at exactly the watermark was
		// already counted by the previous run.
		if ev.Timestamp <= watermark && watermark != 0 {
			continue
		}

		name, ok := nameCache[ev.SubjectID]
		if !ok {
			ent, err := s.GetEntity(ctx, ev.SubjectID)
			if err != nil {
				name = "Unknown"
			} else {
				name = ent.Name
			}
			nameCache[ev.SubjectID] = name
		}

		title, _ := ev.Metadata["window_title"].(string)
		resolved = append(resolved, resolvedEvent{
			timestamp: ev.Timestamp,
			appName:   name,
			title:     title,
		})
	}
	if len(resolved) == 0 {
		return 0, nil
	}

	sessions := a.buildSessions(resolved)
	for i := range sessions {
		if err := s.InsertSession(ctx, &sessions[i]); err != nil {
			return 0, err
		}
	}
	return len(sessions), nil
}

// buildSessions walks events in timestamp order, extending the current
// session while the app stays the same and consecutive events are
// closer than the gap, and splitting otherwise.
func (a *Aggregator) buildSessions(events []resolvedEvent) []model.Session {
	var out []model.Session

	cur := events[0]
	app := cur.appName
	start, end := cur.timestamp, cur.timestamp
	var titles []string
	if cur.title != "" {
		titles = append(titles, cur.title)
	}
	count := int64(1)

	flush := func() {
		out = append(out, makeSession(app, titles, start, end, count))
	}

	for _, ev := range events[1:] {
		gap := ev.timestamp - end
		if ev.appName == app && gap < a.gapMS {
			end = ev.timestamp
			count++
			if ev.title != "" && !contains(titles, ev.title) {
				titles = append(titles, ev.title)
			}
			continue
		}
		flush()
		app = ev.appName
		start, end = ev.timestamp, ev.timestamp
		titles = nil
		if ev.title != "" {
			titles = append(titles, ev.title)
		}
		count = 1
	}
	flush()
	return out
}

func makeSession(app string, titles []string, start, end model.Timestamp, count int64) model.Session {
	return model.Session{
		ID:           ulid.Make().String(),
		AppName:      app,
		WindowTitles: titles,
		Category:     Categorize(app),
		StartTime:    start,
		EndTime:      end,
		DurationSecs: (end - start) / 1000,
		EventCount:   count,
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

var categories = []struct {
	name  string
	hints []string
}{
	{"coding", []string{"code", "xcode", "intellij", "terminal", "iterm", "warp", "alacritty", "kitty", "cursor"}},
	{"communication", []string{"discord", "slack", "messages", "telegram", "teams", "mail"}},
	{"browsing", []string{"chrome", "firefox", "safari", "arc", "brave", "edge"}},
	{"productivity", []string{"notion", "obsidian", "notes", "pages", "docs"}},
	{"media", []string{"spotify", "music", "vlc"}},
	{"system", []string{"finder", "preview"}},
}

// Categorize maps an application name to a broad activity category.
func Categorize(appName string) string {
	lower := strings.ToLower(appName)
	for _, c := range categories {
		for _, hint := range c.hints {
			if strings.Contains(lower, hint) {
				return c.name
			}
		}
	}
	return "other"
}
