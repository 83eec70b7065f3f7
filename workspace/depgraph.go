// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// GraphFileName is the canonical dependency graph artifact produced by
// architect sessions at the workspace root.
const GraphFileName = "dependency_graph.json"

// Graph is the module dependency graph.
//
// The on-disk form is a flat JSON object mapping each module name to
// the list of module names it depends on. Every name appearing as a
// dependency must also appear as a key.
type Graph struct {
	deps map[string][]string
}

// NewGraph builds a graph from an in-memory adjacency map and
// validates it.
func NewGraph(deps map[string][]string) (*Graph, error) {
	if deps == nil {
		deps = map[string][]string{}
	}
	g := &Graph{deps: deps}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// ParseGraph decodes a dependency graph from its JSON form.
func ParseGraph(data []byte) (*Graph, error) {
	var deps map[string][]string
	if err := json.Unmarshal(data, &deps); err != nil {
		return nil, fmt.Errorf("parse dependency graph: %w", err)
	}
	return NewGraph(deps)
}

// LoadGraph reads and decodes a dependency graph file.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load dependency graph %s: %w", path, err)
	}
	return ParseGraph(data)
}

// Save writes the graph to path in its canonical JSON form.
func (g *Graph) Save(path string) error {
	data, err := json.MarshalIndent(g.deps, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dependency graph: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save dependency graph %s: %w", path, err)
	}
	return nil
}

// Modules returns every module name in lexicographic order.
func (g *Graph) Modules() []string {
	names := make([]string, 0, len(g.deps))
	for name := range g.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dependencies returns the declared dependencies of a module. The
// second return is false when the module is not in the graph.
func (g *Graph) Dependencies(name string) ([]string, bool) {
	deps, ok := g.deps[name]
	if !ok {
		return nil, false
	}
	out := make([]string, len(deps))
	copy(out, deps)
	return out, true
}

// validate checks that every dependency names a declared module.
func (g *Graph) validate() error {
	for _, name := range g.Modules() {
		for _, dep := range g.deps[name] {
			if _, ok := g.deps[dep]; !ok {
				return fmt.Errorf("module %s: %w: %s", name, ErrUnknownDependency, dep)
			}
		}
	}
	return nil
}

// CheckCycles verifies the graph is acyclic.
//
// Outputs:
//
//	error - A *CycleError wrapping ErrCycleDetected when a cycle
//	exists, nil otherwise
func (g *Graph) CheckCycles() error {
	const (
		white = iota // unvisited
		gray         // on the current path
		black        // fully explored
	)

	colors := make(map[string]int, len(g.deps))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		colors[name] = gray
		path = append(path, name)

		deps, _ := g.Dependencies(name)
		sort.Strings(deps)
		for _, dep := range deps {
			switch colors[dep] {
			case gray:
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), dep)
				return &CycleError{Path: cycle}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		colors[name] = black
		path = path[:len(path)-1]
		return nil
	}

	for _, name := range g.Modules() {
		if colors[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildOrder returns a deterministic topological order: every module
// appears after all of its dependencies, with ties broken
// lexicographically.
func (g *Graph) BuildOrder() ([]string, error) {
	if err := g.CheckCycles(); err != nil {
		return nil, err
	}

	remaining := make(map[string]int, len(g.deps))
	dependents := make(map[string][]string, len(g.deps))
	var ready []string
	for _, name := range g.Modules() {
		deps := g.deps[name]
		remaining[name] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], name)
		}
		if len(deps) == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g.deps))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order, nil
}
