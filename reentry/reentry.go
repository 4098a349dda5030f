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

// Package reentry handles the case where a next job is external and the
// current build's ledger shows the flow already originated from that
// external pipeline: rather than fanning out a brand-new event, the
// existing one is located (or created once) and updated in place.
package reentry

import (
	"context"
	"fmt"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/ChillOrb/screwdriver/factory"
	"github.com/ChillOrb/screwdriver/join"
	"github.com/ChillOrb/screwdriver/ledger"
	"github.com/ChillOrb/screwdriver/lifecycle"
	"github.com/ChillOrb/screwdriver/model"
	"github.com/ChillOrb/screwdriver/resolver"
	"github.com/ChillOrb/screwdriver/triggername"
)

// Deps bundles the collaborators a re-entry needs.
type Deps struct {
	Events    factory.EventFactory
	Builds    factory.BuildFactory
	Jobs      factory.JobFactory
	Pipelines factory.PipelineFactory
	SCM       factory.SCM
	Loader    resolver.CandidateLoader
}

// Input describes the re-entering trigger.
type Input struct {
	CurrentBuild       *model.Build
	CurrentPipelineID  int64
	CurrentJobName     string
	ExternalPipelineID int64

	// ExternalJobName is the trimmed job name on the external pipeline
	// ("Y"); RawNextJobName is the raw workflow-graph node name as written
	// in the current graph ("sd@2:Y"), used for the graph's "contains" match.
	ExternalJobName string
	RawNextJobName  string

	// NewContributions is the ledger this re-entry contributes: typically
	// joinSkeleton(joinListNames) ∪ build.ParentBuilds ∪ singleton(currentBuild).
	NewContributions model.Ledger
}

// Handle resolves or creates the re-entering build and treats its join as
// already satisfied (done=true, hasFailure=false), deferring entirely to
// lifecycle.HandleNewBuild without re-checking the target's other join
// members. See HandleStrict for the more rigorous alternative.
func Handle(ctx context.Context, d Deps, in Input) (*model.Build, error) {
	nextBuild, _, _, err := resolveOrCreate(ctx, d, in)
	if err != nil {
		return nil, err
	}
	return lifecycle.HandleNewBuild(ctx, d.Builds, true, false, nextBuild)
}

// HandleStrict performs the same resolve-or-create steps as Handle, but
// re-runs join.Evaluate against the target node's actual join list instead
// of assuming it is already satisfied. Prefer this when a re-entering
// external trigger can plausibly still be waiting on other join members.
func HandleStrict(ctx context.Context, d Deps, in Input) (*model.Build, error) {
	nextBuild, graph, target, err := resolveOrCreate(ctx, d, in)
	if err != nil {
		return nil, err
	}
	if nextBuild == nil {
		return nil, nil
	}

	joinList := graph.SrcForJoin(target.Name)
	loader := func(ctx context.Context, id int64) (*model.Build, error) {
		return d.Builds.Get(ctx, id)
	}
	result, err := join.Evaluate(ctx, nextBuild.ParentBuilds, joinList, in.ExternalPipelineID, loader)
	if err != nil {
		return nil, errors.Annotate(err, "reentry: re-evaluating join for build %d", nextBuild.ID).Err()
	}
	return lifecycle.HandleNewBuild(ctx, d.Builds, result.Done, result.HasFailure, nextBuild)
}

// resolveOrCreate locates the external pipeline's in-flight event from the
// current build's ledger, finds or creates the target build on it, and
// returns it along with the external graph and target node (needed by
// HandleStrict's re-evaluation).
func resolveOrCreate(ctx context.Context, d Deps, in Input) (*model.Build, *model.WorkflowGraph, *model.Node, error) {
	extEntry, ok := in.CurrentBuild.ParentBuilds[in.ExternalPipelineID]
	if !ok || extEntry.EventID == nil {
		return nil, nil, nil, errors.Reason("reentry: current build %d has no ledger entry for pipeline %d", in.CurrentBuild.ID, in.ExternalPipelineID).Err()
	}

	extEvent, err := d.Events.Get(ctx, *extEntry.EventID)
	if err != nil {
		return nil, nil, nil, errors.Annotate(err, "reentry: loading external event %d", *extEntry.EventID).Err()
	}
	graph := extEvent.Graph

	target := graph.FindNode(triggername.TrimJobName(in.ExternalJobName))
	if target == nil {
		target = graph.FindNodeContaining(in.RawNextJobName)
	}
	if target == nil {
		return nil, nil, nil, errors.Reason("reentry: no workflow-graph node for %q in pipeline %d's graph", in.ExternalJobName, in.ExternalPipelineID).Err()
	}

	candidates, err := loadCandidates(ctx, extEvent, d.Loader)
	if err != nil {
		return nil, nil, nil, errors.Annotate(err, "reentry: loading candidates for event %d", extEvent.ID).Err()
	}

	// graph belongs to the external pipeline, so Fill's "local" pipeline for
	// plain-name matches is ExternalPipelineID, not CurrentPipelineID.
	for _, fillErr := range ledger.Fill(ctx, in.NewContributions, in.ExternalPipelineID, graph, candidates) {
		logging.Warningf(ctx, "reentry: %s", fillErr)
	}

	targetJobID := int64(target.ID)
	var nextBuild *model.Build
	for _, b := range candidates {
		if b.JobID == targetJobID && b.EventID == extEvent.ID {
			nextBuild = b
			break
		}
	}

	switch {
	case nextBuild == nil:
		parentName := parentJobName(graph, in.CurrentJobName)
		parentBuildID, ok := extEntry.Jobs[parentName]
		if !ok || parentBuildID == nil {
			return nil, nil, nil, errors.Reason("reentry: no ledger entry for parent job %q on pipeline %d", parentName, in.ExternalPipelineID).Err()
		}
		b, err := lifecycle.CreateInternalBuild(ctx, d.Jobs, d.Builds, lifecycle.CreateInternalBuildParams{
			PipelineID:    in.ExternalPipelineID,
			JobName:       target.Name,
			Sha:           extEvent.Sha,
			BaseBranch:    extEvent.BaseBranch,
			EventID:       extEvent.ID,
			ParentBuildID: []int64{*parentBuildID},
			ParentBuilds:  in.NewContributions,
			Start:         false,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		nextBuild = b

	case nextBuild.Status != model.StatusCreated:
		triggerNode := fmt.Sprintf("sd@%d:%s", in.CurrentPipelineID, in.CurrentJobName)
		startFrom := in.ExternalJobName
		if graph.FindNodeContaining(triggerNode) != nil {
			startFrom = "~" + triggerNode
		}
		groupEventID := nextBuild.EventID
		newEvent, err := lifecycle.CreateExternalBuild(ctx, d.Pipelines, d.SCM, d.Events, lifecycle.CreateExternalBuildParams{
			ExternalPipelineID: in.ExternalPipelineID,
			StartFrom:          startFrom,
			CauseMessage:       fmt.Sprintf("Triggered by %s", triggerNode),
			ParentBuildID:      []int64{in.CurrentBuild.ID},
			ParentBuilds:       ledger.Merge(nextBuild.ParentBuilds, in.NewContributions),
			GroupEventID:       &groupEventID,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		fresh, err := d.Builds.List(ctx, factory.ListBuildsParams{EventID: &newEvent.ID, JobID: &targetJobID})
		if err != nil {
			return nil, nil, nil, errors.Annotate(err, "reentry: listing builds for restarted event %d", newEvent.ID).Err()
		}
		if len(fresh) > 0 {
			nextBuild = fresh[0]
		}

	default:
		updated, err := lifecycle.UpdateParentBuilds(ctx, d.Builds, nextBuild.ID, in.NewContributions, in.CurrentBuild.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		nextBuild = updated
	}

	return nextBuild, graph, target, nil
}

// loadCandidates mirrors resolver.candidates' anchor choice for an arbitrary
// event rather than the one currently being processed: finished builds are
// anchored on event.ID, but ParallelBuilds is anchored on the event's parent
// (siblings reachable through the same fan-out), matching
// resolver.CandidateLoader's documented contract for that call. See
// DESIGN.md for why this mirrors resolver.go rather than anchoring on
// event.ID for both calls.
func loadCandidates(ctx context.Context, event *model.Event, loader resolver.CandidateLoader) ([]*model.Build, error) {
	finished, err := loader.FinishedBuildsForEvent(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if !event.HasParent() {
		return finished, nil
	}
	parallelBuilds, err := loader.ParallelBuilds(ctx, *event.ParentEventID, event.PipelineID)
	if err != nil {
		return nil, err
	}
	return append(finished, parallelBuilds...), nil
}

// parentJobName finds the src of the edge whose dest names currentJobName in
// graph — internally ("A") or as the external trigger that originally fed it
// ("sd@<pid>:A") — the upstream job that fed the re-entering trigger.
func parentJobName(graph *model.WorkflowGraph, currentJobName string) string {
	for _, e := range graph.Edges {
		dest := strings.TrimPrefix(e.Dest, "~")
		if triggername.Classify(dest, 0).JobName == currentJobName {
			return e.Src
		}
	}
	return ""
}
