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

import "time"

// PipelineEntry is the per-pipeline slice of a Build's parent-builds ledger:
// the event that produced the most recent contribution from that pipeline,
// and the build id contributed by each upstream job (nil if not yet known).
//
// Jobs uses a pointer so "not yet known" (nil) is distinguishable from
// "known to be build 0" without relying on a sentinel id.
type PipelineEntry struct {
	EventID *int64
	Jobs    map[string]*int64
}

// Clone returns a deep copy, since Ledger values are shared across builds
// and merges must never mutate their inputs.
func (e *PipelineEntry) Clone() *PipelineEntry {
	if e == nil {
		return nil
	}
	out := &PipelineEntry{Jobs: make(map[string]*int64, len(e.Jobs))}
	if e.EventID != nil {
		id := *e.EventID
		out.EventID = &id
	}
	for name, id := range e.Jobs {
		if id == nil {
			out.Jobs[name] = nil
			continue
		}
		v := *id
		out.Jobs[name] = &v
	}
	return out
}

// Ledger is the parent-builds bookkeeping structure L from the spec:
//
//	L : Map<pipelineId, { eventId: EventId|null, jobs: Map<jobName, BuildId|null> }>
type Ledger map[int64]*PipelineEntry

// Clone returns a deep copy of the ledger.
func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	for pid, entry := range l {
		out[pid] = entry.Clone()
	}
	return out
}

// Build is one execution of one Job within one Event.
type Build struct {
	ID       int64
	EventID  int64
	JobID    int64
	Status   Status
	Sha      string
	Username string

	// ParentBuildID is always modeled as an ordered list, even though a
	// single incoming parent is the common case (a one-element slice), to
	// avoid carrying both a scalar and a list form of the same field.
	ParentBuildID []int64

	ParentBuilds Ledger

	ConfigPipelineSha string
	ScmContext        string
	PrRef             string
	PrSource          string
	PrInfo            string
	BaseBranch        string

	Created time.Time

	// Version counts the ledger updates persisted through
	// BuildFactory.UpdateParentBuilds, so a factory implementation can
	// detect a ledger update that lost a race to a concurrent writer.
	// internal/memstore bumps it but never compares it.
	Version int64
}
