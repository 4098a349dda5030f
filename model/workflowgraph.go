// Copyright 2026 The Screwdriver Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import "strings"

// Node is one vertex of a WorkflowGraph.
type Node struct {
	ID   int
	Name string
}

// Edge is a directed dependency: Src must (help) complete before Dest runs.
type Edge struct {
	Src  string
	Dest string
}

// WorkflowGraph is the DAG snapshot carried by an Event. External node names
// match "sd@<pipelineId>:<jobName>"; PR-chained nodes are prefixed with '~'.
//
// This is a minimal, concrete stand-in for an external workflow-parser
// library. See DESIGN.md for why no third-party graph library from the
// examples was adopted for this exact query shape.
type WorkflowGraph struct {
	Nodes []Node
	Edges []Edge
}

// NextJobs returns the names of nodes directly reachable from trigger.
//
// When chainPR is false, edges whose destination is a PR-chained node
// (prefixed with '~') are skipped, mirroring the workflow parser's
// "don't chain PR jobs unless asked" behavior.
func (g *WorkflowGraph) NextJobs(trigger string, chainPR bool) []string {
	if g == nil {
		return nil
	}
	var out []string
	for _, e := range g.Edges {
		if e.Src != trigger {
			continue
		}
		if !chainPR && strings.HasPrefix(e.Dest, "~") {
			continue
		}
		out = append(out, strings.TrimPrefix(e.Dest, "~"))
	}
	return out
}

// SrcForJoin returns the names of every node with an edge into jobName: the
// declared join list for that destination. An empty result means jobName has
// no join requirement (sequential or OR-triggered).
func (g *WorkflowGraph) SrcForJoin(jobName string) []string {
	if g == nil {
		return nil
	}
	var out []string
	for _, e := range g.Edges {
		if strings.TrimPrefix(e.Dest, "~") == jobName {
			out = append(out, e.Src)
		}
	}
	return out
}

// FindNode returns the node whose Name equals name, or nil.
func (g *WorkflowGraph) FindNode(name string) *Node {
	if g == nil {
		return nil
	}
	for i := range g.Nodes {
		if g.Nodes[i].Name == name {
			return &g.Nodes[i]
		}
	}
	return nil
}

// FindNodeContaining returns the first node whose Name contains substr, used
// when matching external trigger node names like "sd@2:build" where the
// caller only has the raw next-job name to search for.
func (g *WorkflowGraph) FindNodeContaining(substr string) *Node {
	if g == nil {
		return nil
	}
	for i := range g.Nodes {
		if strings.Contains(g.Nodes[i].Name, substr) {
			return &g.Nodes[i]
		}
	}
	return nil
}
