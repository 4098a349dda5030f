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

// Package join evaluates whether a next build's join is complete, and
// whether any joined parent has failed.
package join

import (
	"context"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/sync/parallel"

	"github.com/ChillOrb/screwdriver/model"
	"github.com/ChillOrb/screwdriver/triggername"
)

// Result is the outcome of Evaluate.
type Result struct {
	Done       bool
	HasFailure bool
}

// BuildLoader loads a build by id, used to fetch join-member statuses.
type BuildLoader func(ctx context.Context, id int64) (*model.Build, error)

// Evaluate computes (done, hasFailure) for a next build given its ledger and
// the declared join list:
//
//  1. Any join member still unresolved in the ledger (nil or missing) makes
//     done=false immediately; nothing is loaded for it.
//  2. Every resolved member is loaded (fanned out in parallel).
//  3. A terminal-but-not-success status sets hasFailure; a non-terminal
//     status sets done=false (it's still running).
func Evaluate(ctx context.Context, l model.Ledger, joinList []string, currentPipelineID int64, loader BuildLoader) (Result, error) {
	if len(joinList) == 0 {
		return Result{Done: true}, nil
	}

	type member struct {
		buildID int64
	}
	var toLoad []member
	done := true

	for _, name := range joinList {
		c := triggername.Classify(name, currentPipelineID)
		jname := c.JobName
		if !c.IsExternal {
			jname = triggername.TrimJobName(name)
		}
		entry, ok := l[c.PipelineID]
		if !ok {
			done = false
			continue
		}
		bid, ok := entry.Jobs[jname]
		if !ok || bid == nil {
			done = false
			continue
		}
		toLoad = append(toLoad, member{buildID: *bid})
	}

	if len(toLoad) == 0 {
		return Result{Done: done}, nil
	}

	builds := make([]*model.Build, len(toLoad))
	err := parallel.WorkPool(len(toLoad), func(work chan<- func() error) {
		for i, m := range toLoad {
			i, m := i, m
			work <- func() error {
				b, err := loader(ctx, m.buildID)
				if err != nil {
					return errors.Annotate(err, "loading join member build %d", m.buildID).Err()
				}
				builds[i] = b
				return nil
			}
		}
	})
	if err != nil {
		return Result{}, err
	}

	hasFailure := false
	for _, b := range builds {
		if b.Status.IsFailure() {
			hasFailure = true
		}
		if !b.Status.IsTerminal() {
			done = false
		}
	}

	return Result{Done: done, HasFailure: hasFailure}, nil
}
