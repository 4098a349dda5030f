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

// Package resolver locates an already-created next build, internal or
// external, so the trigger orchestrator can update it instead of creating a
// duplicate.
package resolver

import (
	"context"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/sync/parallel"

	"github.com/ChillOrb/screwdriver/factory"
	"github.com/ChillOrb/screwdriver/model"
	"github.com/ChillOrb/screwdriver/triggername"
)

// CandidateLoader bundles the two build searches the resolver needs, both
// backed by factory.BuildFactory. Every method returns a fully joined result:
// any internal fan-out happens before the method returns, so callers never
// observe a partially-populated slice.
type CandidateLoader interface {
	// FinishedBuildsForEvent returns the builds belonging to eventID, whatever
	// their status, so a next build still waiting in CREATED is among them.
	FinishedBuildsForEvent(ctx context.Context, eventID int64) ([]*model.Build, error)

	// ParallelBuilds returns the builds, whatever their status, of sibling events sharing
	// parentEventID, excluding the ones on excludePipelineID (the event's own
	// pipeline, whose builds are already covered by FinishedBuildsForEvent).
	ParallelBuilds(ctx context.Context, parentEventID int64, excludePipelineID int64) ([]*model.Build, error)

	// LatestCreatedBuild returns the most recently created build for jobID
	// within eventID that is still in CREATED status, or nil if none exists.
	LatestCreatedBuild(ctx context.Context, jobID, eventID int64) (*model.Build, error)
}

// candidates gathers FinishedBuildsForEvent(event.ID) and, when event has a
// parent, ParallelBuilds(*event.ParentEventID, event.PipelineID), fanning
// both reads out concurrently since neither depends on the other.
func candidates(ctx context.Context, event *model.Event, loader CandidateLoader) ([]*model.Build, error) {
	var finished, parallelBuilds []*model.Build
	var errs [2]error

	err := parallel.WorkPool(2, func(work chan<- func() error) {
		work <- func() error {
			var err error
			finished, err = loader.FinishedBuildsForEvent(ctx, event.ID)
			errs[0] = err
			return err
		}
		work <- func() error {
			if !event.HasParent() {
				return nil
			}
			var err error
			parallelBuilds, err = loader.ParallelBuilds(ctx, *event.ParentEventID, event.PipelineID)
			errs[1] = err
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return append(finished, parallelBuilds...), nil
}

// FindInternal looks for a next build already created on this pipeline:
// among the union of finished-for-event and parallel builds, find the one
// whose JobID matches the workflow-graph node for trimJobName(nextJobName)
// and whose EventID equals event.ID. Returns (nil, nil) if no such build
// exists yet — the caller must create it.
func FindInternal(ctx context.Context, nextJobName string, event *model.Event, loader CandidateLoader) (*model.Build, error) {
	node := event.Graph.FindNode(triggername.TrimJobName(nextJobName))
	if node == nil {
		return nil, errors.Reason("resolver: no workflow-graph node for job %q", nextJobName).Err()
	}

	cs, err := candidates(ctx, event, loader)
	if err != nil {
		return nil, errors.Annotate(err, "resolver: loading candidates for %q", nextJobName).Err()
	}

	jobID := int64(node.ID)
	for _, b := range cs {
		if b.JobID == jobID && b.EventID == event.ID {
			return b, nil
		}
	}
	return nil, nil
}

// FindExternal looks for a next build already created on an external
// pipeline: resolve the target job by (externalPipelineID, externalJobName),
// then look up the latest CREATED build for that job within eventID. Returns
// (nil, nil) if none exists — the caller must create it.
func FindExternal(ctx context.Context, jobs factory.JobFactory, externalPipelineID int64, externalJobName string, eventID int64, loader CandidateLoader) (*model.Build, error) {
	job, err := jobs.GetByName(ctx, externalPipelineID, externalJobName)
	if err != nil {
		return nil, errors.Annotate(err, "resolver: resolving external job %d:%s", externalPipelineID, externalJobName).Err()
	}

	b, err := loader.LatestCreatedBuild(ctx, job.ID, eventID)
	if err != nil {
		return nil, errors.Annotate(err, "resolver: loading latest CREATED build for job %d", job.ID).Err()
	}
	return b, nil
}
