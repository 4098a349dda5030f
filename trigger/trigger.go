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

// Package trigger implements the orchestrator that a finished build hands
// off to: compute this job's downstream jobs and, for each one, either
// create it, update its join ledger, or re-enter an external pipeline.
package trigger

import (
	"context"
	"fmt"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/ChillOrb/screwdriver/factory"
	"github.com/ChillOrb/screwdriver/join"
	"github.com/ChillOrb/screwdriver/ledger"
	"github.com/ChillOrb/screwdriver/lifecycle"
	"github.com/ChillOrb/screwdriver/model"
	"github.com/ChillOrb/screwdriver/reentry"
	"github.com/ChillOrb/screwdriver/resolver"
	"github.com/ChillOrb/screwdriver/triggername"
)

// ReentryHandler matches reentry.Handle's and reentry.HandleStrict's
// signature, letting Engine be pointed at either.
type ReentryHandler func(ctx context.Context, d reentry.Deps, in reentry.Input) (*model.Build, error)

// Engine wraps the factory collaborators and the workflow-graph parser and
// exposes the two operations the host process invokes after a build
// finishes: TriggerEvent and TriggerNextJobs.
type Engine struct {
	Pipelines factory.PipelineFactory
	Jobs      factory.JobFactory
	Events    factory.EventFactory
	Builds    factory.BuildFactory
	SCM       factory.SCM
	Parser    factory.WorkflowParser
	Loader    resolver.CandidateLoader

	// ReentryHandler defaults to reentry.Handle (the spec-documented
	// done=true short-circuit) when nil. Set to reentry.HandleStrict to
	// re-evaluate the join on every re-entry instead.
	ReentryHandler ReentryHandler
}

func (e *Engine) reentryHandler() ReentryHandler {
	if e.ReentryHandler != nil {
		return e.ReentryHandler
	}
	return reentry.Handle
}

func (e *Engine) reentryDeps() reentry.Deps {
	return reentry.Deps{
		Events:    e.Events,
		Builds:    e.Builds,
		Jobs:      e.Jobs,
		Pipelines: e.Pipelines,
		SCM:       e.SCM,
		Loader:    e.Loader,
	}
}

func (e *Engine) buildLoader() join.BuildLoader {
	return func(ctx context.Context, id int64) (*model.Build, error) {
		return e.Builds.Get(ctx, id)
	}
}

// TriggerEventConfig is the input to TriggerEvent.
type TriggerEventConfig struct {
	PipelineID    int64
	StartFrom     string
	CauseMessage  string
	ParentBuildID []int64
	ParentBuilds  model.Ledger
	ParentEventID *int64
	GroupEventID  *int64
}

// TriggerEvent creates a downstream event for an arbitrary pipeline.
func (e *Engine) TriggerEvent(ctx context.Context, cfg TriggerEventConfig) (*model.Event, error) {
	return lifecycle.CreateExternalBuild(ctx, e.Pipelines, e.SCM, e.Events, lifecycle.CreateExternalBuildParams{
		ExternalPipelineID: cfg.PipelineID,
		StartFrom:          cfg.StartFrom,
		CauseMessage:       cfg.CauseMessage,
		ParentBuildID:      cfg.ParentBuildID,
		ParentBuilds:       cfg.ParentBuilds,
		ParentEventID:      cfg.ParentEventID,
		GroupEventID:       cfg.GroupEventID,
	})
}

// TriggerNextJobsConfig is the input to TriggerNextJobs.
type TriggerNextJobsConfig struct {
	Pipeline   *model.Pipeline
	Job        *model.Job
	Build      *model.Build
	Username   string
	ScmContext string
}

// TriggerNextJobs is the orchestrator: for every job downstream of the one
// that just finished, dispatch the appropriate create/update/re-entry
// action. Next jobs are processed sequentially; one next job's failure is
// captured and logged but never prevents the others.
func (e *Engine) TriggerNextJobs(ctx context.Context, cfg TriggerNextJobsConfig) error {
	event, err := e.Events.Get(ctx, cfg.Build.EventID)
	if err != nil {
		return errors.Annotate(err, "trigger: loading event %d", cfg.Build.EventID).Err()
	}

	currentJobName := cfg.Job.CanonicalName()
	chainPR := triggername.IsPR(cfg.Job.Name)
	nextJobs := e.Parser.GetNextJobs(event.Graph, cfg.Job.Name, chainPR)

	var merr errors.MultiError
	for _, nextJobName := range nextJobs {
		if jobErr := e.dispatchOne(ctx, event, cfg, currentJobName, nextJobName); jobErr != nil {
			logging.Errorf(ctx, "trigger: next job %q failed: %s", nextJobName, jobErr)
			merr = append(merr, jobErr)
		}
	}
	if len(merr) == 0 {
		return nil
	}
	return merr
}

func (e *Engine) dispatchOne(ctx context.Context, event *model.Event, cfg TriggerNextJobsConfig, currentJobName, nextJobName string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Reason("trigger: panic processing next job %q: %v", nextJobName, r).Err()
		}
	}()

	joinList := e.Parser.GetSrcForJoin(event.Graph, nextJobName)
	parentBuilds := ledger.Merge(
		ledger.JoinSkeleton(cfg.Pipeline.ID, joinList),
		cfg.Build.ParentBuilds,
		ledger.Singleton(cfg.Pipeline.ID, event.ID, currentJobName, cfg.Build.ID),
	)
	classification := triggername.Classify(nextJobName, cfg.Pipeline.ID)
	isORTrigger := len(joinList) == 0 || !joinIncludesCurrentJob(joinList, cfg.Pipeline.ID, currentJobName)

	switch {
	case isORTrigger && !classification.IsExternal:
		_, err := lifecycle.CreateInternalBuild(ctx, e.Jobs, e.Builds, lifecycle.CreateInternalBuildParams{
			PipelineID:        cfg.Pipeline.ID,
			JobName:           triggername.TrimJobName(nextJobName),
			ParentSha:         cfg.Build.Sha,
			ParentBuildID:     []int64{cfg.Build.ID},
			ParentBuilds:      parentBuilds,
			EventID:           event.ID,
			Username:          cfg.Username,
			ConfigPipelineSha: cfg.Build.ConfigPipelineSha,
			ScmContext:        cfg.ScmContext,
			PrRef:             cfg.Build.PrRef,
			PrSource:          cfg.Build.PrSource,
			PrInfo:            cfg.Build.PrInfo,
			BaseBranch:        cfg.Build.BaseBranch,
			Start:             true,
		})
		return err

	case isORTrigger && classification.IsExternal:
		if _, hasEntry := cfg.Build.ParentBuilds[classification.PipelineID]; hasEntry {
			_, err := e.reentryHandler()(ctx, e.reentryDeps(), reentry.Input{
				CurrentBuild:       cfg.Build,
				CurrentPipelineID:  cfg.Pipeline.ID,
				CurrentJobName:     currentJobName,
				ExternalPipelineID: classification.PipelineID,
				ExternalJobName:    classification.JobName,
				RawNextJobName:     nextJobName,
				NewContributions:   parentBuilds,
			})
			return err
		}

		var parentEventID *int64
		if !event.HasParent() {
			id := event.ID
			parentEventID = &id
		}
		_, err := lifecycle.CreateExternalBuild(ctx, e.Pipelines, e.SCM, e.Events, lifecycle.CreateExternalBuildParams{
			ExternalPipelineID: classification.PipelineID,
			StartFrom:          fmt.Sprintf("~sd@%d:%s", cfg.Pipeline.ID, currentJobName),
			CauseMessage:       fmt.Sprintf("Triggered by sd@%d:%s", cfg.Pipeline.ID, currentJobName),
			ParentBuildID:      []int64{cfg.Build.ID},
			ParentBuilds:       parentBuilds,
			ParentEventID:      parentEventID,
		})
		return err

	case !classification.IsExternal:
		existing, err := resolver.FindInternal(ctx, nextJobName, event, e.Loader)
		if err != nil {
			return err
		}
		var nextBuild *model.Build
		if existing == nil {
			nextBuild, err = lifecycle.CreateInternalBuild(ctx, e.Jobs, e.Builds, lifecycle.CreateInternalBuildParams{
				PipelineID:        cfg.Pipeline.ID,
				JobName:           triggername.TrimJobName(nextJobName),
				ParentSha:         cfg.Build.Sha,
				ParentBuildID:     []int64{cfg.Build.ID},
				ParentBuilds:      parentBuilds,
				EventID:           event.ID,
				Username:          cfg.Username,
				ConfigPipelineSha: cfg.Build.ConfigPipelineSha,
				ScmContext:        cfg.ScmContext,
				BaseBranch:        cfg.Build.BaseBranch,
				Start:             false,
			})
		} else {
			nextBuild, err = lifecycle.UpdateParentBuilds(ctx, e.Builds, existing.ID, parentBuilds, cfg.Build.ID)
		}
		if err != nil || nextBuild == nil {
			return err
		}
		return e.evaluateAndHandle(ctx, nextBuild, joinList, cfg.Pipeline.ID)

	default:
		existing, err := resolver.FindExternal(ctx, e.Jobs, classification.PipelineID, classification.JobName, event.ID, e.Loader)
		if err != nil {
			return err
		}
		if existing == nil {
			// The external build is expected to already exist, created by
			// the initial OR-triggered fan-out to this pipeline; a join
			// arriving before that happens has nothing to attach to yet.
			logging.Warningf(ctx, "trigger: no external build yet for pipeline %d job %q, skipping join update", classification.PipelineID, classification.JobName)
			return nil
		}
		nextBuild, err := lifecycle.UpdateParentBuilds(ctx, e.Builds, existing.ID, parentBuilds, cfg.Build.ID)
		if err != nil || nextBuild == nil {
			return err
		}
		return e.evaluateAndHandle(ctx, nextBuild, joinList, classification.PipelineID)
	}
}

func (e *Engine) evaluateAndHandle(ctx context.Context, nextBuild *model.Build, joinList []string, joinPipelineID int64) error {
	result, err := join.Evaluate(ctx, nextBuild.ParentBuilds, joinList, joinPipelineID, e.buildLoader())
	if err != nil {
		return errors.Annotate(err, "trigger: evaluating join for build %d", nextBuild.ID).Err()
	}
	_, err = lifecycle.HandleNewBuild(ctx, e.Builds, result.Done, result.HasFailure, nextBuild)
	return err
}

// RequeuePoisonedJoins re-evaluates every CREATED build older than
// olderThan: a build stuck at CREATED is one whose join is either still
// waiting on a sibling or should have resolved already and didn't because a
// prior TriggerNextJobs call was dropped mid-flight. Re-running join.Evaluate
// against the build's current ledger is always safe — it is the same
// evaluation TriggerNextJobs would have performed, just re-triggered instead
// of event-driven.
func (e *Engine) RequeuePoisonedJoins(ctx context.Context, olderThan time.Duration) error {
	created := model.StatusCreated
	stale, err := e.Builds.List(ctx, factory.ListBuildsParams{Status: &created})
	if err != nil {
		return errors.Annotate(err, "trigger: listing CREATED builds").Err()
	}

	cutoff := time.Now().Add(-olderThan)
	var merr errors.MultiError
	for _, b := range stale {
		if b.Created.After(cutoff) {
			continue
		}
		if err := e.requeueOne(ctx, b); err != nil {
			logging.Errorf(ctx, "trigger: requeuing build %d failed: %s", b.ID, err)
			merr = append(merr, err)
		}
	}
	if len(merr) == 0 {
		return nil
	}
	return merr
}

func (e *Engine) requeueOne(ctx context.Context, b *model.Build) error {
	job, err := e.Jobs.GetByID(ctx, b.JobID)
	if err != nil {
		return errors.Annotate(err, "trigger: loading job %d", b.JobID).Err()
	}
	if job == nil {
		return errors.Reason("trigger: build %d references unknown job %d", b.ID, b.JobID).Err()
	}
	event, err := e.Events.Get(ctx, b.EventID)
	if err != nil {
		return errors.Annotate(err, "trigger: loading event %d", b.EventID).Err()
	}
	joinList := e.Parser.GetSrcForJoin(event.Graph, job.CanonicalName())
	return e.evaluateAndHandle(ctx, b, joinList, job.PipelineID)
}

// joinIncludesCurrentJob reports whether any raw join-list name refers to
// currentJobName on currentPipelineID, whether written as a bare name or as
// "sd@<currentPipelineID>:<currentJobName>".
func joinIncludesCurrentJob(joinList []string, currentPipelineID int64, currentJobName string) bool {
	for _, name := range joinList {
		c := triggername.Classify(name, currentPipelineID)
		if c.PipelineID == currentPipelineID && c.JobName == currentJobName {
			return true
		}
	}
	return false
}
