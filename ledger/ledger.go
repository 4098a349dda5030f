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

// Package ledger builds and merges the parent-builds ledger (model.Ledger)
// that travels with every Build: a nested map from pipeline id to the event
// and per-job upstream build ids that have contributed to it.
package ledger

import (
	"context"
	"fmt"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/ChillOrb/screwdriver/model"
	"github.com/ChillOrb/screwdriver/triggername"
)

// Singleton builds a one-entry ledger recording that buildID (from jobName,
// in pipelineID, from eventID) has contributed.
func Singleton(pipelineID, eventID int64, jobName string, buildID int64) model.Ledger {
	eid := eventID
	bid := buildID
	return model.Ledger{
		pipelineID: &model.PipelineEntry{
			EventID: &eid,
			Jobs:    map[string]*int64{jobName: &bid},
		},
	}
}

// JoinSkeleton builds a ledger with a null entry for every name in
// joinListNames, classified relative to currentPipelineID. Entries for the
// same pipeline are merged, so a join spanning two jobs on one external
// pipeline ends up as a single PipelineEntry with two job keys.
func JoinSkeleton(currentPipelineID int64, joinListNames []string) model.Ledger {
	out := model.Ledger{}
	for _, name := range joinListNames {
		c := triggername.Classify(name, currentPipelineID)
		jname := c.JobName
		if !c.IsExternal {
			jname = triggername.TrimJobName(name)
		}
		entry, ok := out[c.PipelineID]
		if !ok {
			entry = &model.PipelineEntry{Jobs: map[string]*int64{}}
			out[c.PipelineID] = entry
		}
		if _, exists := entry.Jobs[jname]; !exists {
			entry.Jobs[jname] = nil
		}
	}
	return out
}

// Merge deep-merges ledgers left to right: later ledgers win at the leaves,
// and keys union at every nested level. A nil build id or event id in a later
// ledger never replaces a non-nil one already merged. Merge is associative
// and its result does not alias any input.
func Merge(ledgers ...model.Ledger) model.Ledger {
	out := model.Ledger{}
	for _, l := range ledgers {
		for pid, entry := range l {
			if entry == nil {
				continue
			}
			dst, ok := out[pid]
			if !ok {
				dst = &model.PipelineEntry{Jobs: map[string]*int64{}}
				out[pid] = dst
			}
			if entry.EventID != nil {
				eid := *entry.EventID
				dst.EventID = &eid
			}
			for jname, bid := range entry.Jobs {
				if bid == nil {
					if _, exists := dst.Jobs[jname]; !exists {
						dst.Jobs[jname] = nil
					}
					continue
				}
				v := *bid
				dst.Jobs[jname] = &v
			}
		}
	}
	return out
}

// Fill patches every unset (nil) ledger entry in l by searching candidates
// for a build of the matching job. For pid == currentPipelineID the match is
// by the workflow-graph node whose name equals triggername.TrimJobName(jname);
// for other pipelines it is the node whose name contains "sd@<pid>:<jname>".
//
// Missing matches are not fatal. A missing workflow-graph node is logged and
// returned as a non-fatal error; a node with no matching candidate build is
// skipped without an error. Either way the ledger entry is left nil so the
// join evaluator will correctly report "not done" until a later call fills
// it in.
func Fill(ctx context.Context, l model.Ledger, currentPipelineID int64, graph *model.WorkflowGraph, candidates []*model.Build) []error {
	var errs []error
	byJobID := make(map[int64]*model.Build, len(candidates))
	for _, b := range candidates {
		byJobID[b.JobID] = b
	}
	for pid, entry := range l {
		for jname, bid := range entry.Jobs {
			if bid != nil {
				continue
			}
			var target *model.Node
			if pid == currentPipelineID {
				target = graph.FindNode(triggername.TrimJobName(jname))
			} else {
				target = graph.FindNodeContaining(fmt.Sprintf("sd@%d:%s", pid, jname))
			}
			if target == nil {
				err := errors.Reason("ledger fill: no workflow-graph node for pipeline %d job %q", pid, jname).Err()
				logging.Warningf(ctx, "%s", err)
				errs = append(errs, err)
				continue
			}
			b, ok := byJobID[int64(target.ID)]
			if !ok {
				continue // not found yet, will be retried on the next contribution
			}
			id := b.ID
			entry.Jobs[jname] = &id
			eid := b.EventID
			entry.EventID = &eid
		}
	}
	return errs
}

// JoinListNames extracts the job-name portion used as ledger keys from a
// raw workflow-graph join list (srcForJoin names), the same way JoinSkeleton
// does: the job name after "sd@<pid>:" for external names, and
// triggername.TrimJobName(name) otherwise. A leading '~' is not stripped.
func JoinListNames(currentPipelineID int64, joinList []string) []string {
	out := make([]string, 0, len(joinList))
	for _, name := range joinList {
		c := triggername.Classify(name, currentPipelineID)
		if c.IsExternal {
			out = append(out, c.JobName)
		} else {
			out = append(out, triggername.TrimJobName(name))
		}
	}
	return out
}
