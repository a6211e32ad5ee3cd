// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package graph keeps an in-memory mirror of the entity graph for
// traversal queries. The durable copy in SQLite is authoritative; the
// engine rebuilds this mirror at startup and applies deltas after each
// committed link.
package graph

import (
	"sync"

	"github.com/weft-dev/weft/pkg/model"
)

// Graph is an undirected adjacency view over directed edges. Safe for
// concurrent use.
type Graph struct {
	mu       sync.RWMutex
	entities map[model.EntityID]*model.Entity
	edges    map[model.EdgeID]*model.Edge
	// adjacency by entity id, both directions of every edge
	adjacent map[model.EntityID]map[model.EntityID]struct{}
}

func New() *Graph {
	return &Graph{
		entities: make(map[model.EntityID]*model.Entity),
		edges:    make(map[model.EdgeID]*model.Edge),
		adjacent: make(map[model.EntityID]map[model.EntityID]struct{}),
	}
}

// Rebuild replaces the whole mirror with the given snapshot.
func (g *Graph) Rebuild(entities []model.Entity, edges []model.Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entities = make(map[model.EntityID]*model.Entity, len(entities))
	g.edges = make(map[model.EdgeID]*model.Edge, len(edges))
	g.adjacent = make(map[model.EntityID]map[model.EntityID]struct{}, len(entities))

	for i := range entities {
		e := entities[i]
		g.entities[e.ID] = &e
	}
	for i := range edges {
		e := edges[i]
		g.edges[e.ID] = &e
		g.connect(e.From, e.To)
	}
}

// AddEntity inserts or replaces an entity node.
func (g *Graph) AddEntity(e *model.Entity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *e
	g.entities[e.ID] = &cp
}

// AddEdge inserts or replaces an edge by id. Both endpoints should
// already be present; adjacency is recorded regardless.
func (g *Graph) AddEdge(e *model.Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *e
	g.edges[e.ID] = &cp
	g.connect(e.From, e.To)
}

// connect records both directions. Caller holds mu.
func (g *Graph) connect(a, b model.EntityID) {
	if g.adjacent[a] == nil {
		g.adjacent[a] = make(map[model.EntityID]struct{})
	}
	if g.adjacent[b] == nil {
		g.adjacent[b] = make(map[model.EntityID]struct{})
	}
	g.adjacent[a][b] = struct{}{}
	g.adjacent[b][a] = struct{}{}
}

// Entity returns the node with the given id, or nil.
func (g *Graph) Entity(id model.EntityID) *model.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[id]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entities)
}

func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Related returns all entities reachable from start within depth hops,
// treating edges as undirected. The start entity itself is excluded.
// A depth of 0 or an unknown start yields nothing.
func (g *Graph) Related(start model.EntityID, depth int) []model.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if depth <= 0 {
		return nil
	}
	if _, ok := g.entities[start]; !ok {
		return nil
	}

	visited := map[model.EntityID]struct{}{start: {}}
	frontier := []model.EntityID{start}
	var out []model.Entity

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []model.EntityID
		for _, id := range frontier {
			for nb := range g.adjacent[id] {
				if _, seen := visited[nb]; seen {
					continue
				}
				visited[nb] = struct{}{}
				if e, ok := g.entities[nb]; ok {
					out = append(out, *e)
				}
				next = append(next, nb)
			}
		}
		frontier = next
	}
	return out
}
