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

// Package lifecycle implements the build/event creation, ledger-update and
// start-or-delete actions the trigger orchestrator composes.
package lifecycle

import (
	"context"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"

	"github.com/ChillOrb/screwdriver/factory"
	"github.com/ChillOrb/screwdriver/model"
)

// CreateInternalBuildParams is the composed payload for CreateInternalBuild.
// Exactly one of JobID or (PipelineID, JobName) identifies the target job.
// Go has no default-argument sugar, so callers that want the spec's default
// "start (default true)" must set Start explicitly.
type CreateInternalBuildParams struct {
	JobID      *int64
	PipelineID int64
	JobName    string

	// Sha overrides the parent's sha when non-empty.
	Sha       string
	ParentSha string

	ParentBuildID []int64
	ParentBuilds  model.Ledger
	EventID       int64
	Username      string

	ConfigPipelineSha string
	ScmContext        string
	PrRef             string
	PrSource          string
	PrInfo            string
	BaseBranch        string
	Start             bool
}

// CreateInternalBuild resolves the target job and, if it is enabled,
// composes and persists a new build. Disabled jobs are silently skipped,
// returning (nil, nil) rather than an error.
func CreateInternalBuild(ctx context.Context, jobs factory.JobFactory, builds factory.BuildFactory, p CreateInternalBuildParams) (*model.Build, error) {
	var job *model.Job
	var err error
	if p.JobID != nil {
		job, err = jobs.GetByID(ctx, *p.JobID)
	} else {
		job, err = jobs.GetByName(ctx, p.PipelineID, p.JobName)
	}
	if err != nil {
		return nil, errors.Annotate(err, "lifecycle: resolving job for internal build").Err()
	}
	if job == nil {
		return nil, factory.ErrNotFound
	}
	if job.State != model.JobEnabled {
		return nil, nil
	}

	sha := p.Sha
	if sha == "" {
		sha = p.ParentSha
	}

	b, err := builds.Create(ctx, factory.BuildPayload{
		JobID:             job.ID,
		EventID:           p.EventID,
		Sha:               sha,
		ParentBuildID:     p.ParentBuildID,
		ParentBuilds:      p.ParentBuilds,
		Username:          p.Username,
		ConfigPipelineSha: p.ConfigPipelineSha,
		ScmContext:        p.ScmContext,
		PrRef:             p.PrRef,
		PrSource:          p.PrSource,
		PrInfo:            p.PrInfo,
		BaseBranch:        p.BaseBranch,
		Start:             p.Start,
	})
	if err != nil {
		return nil, errors.Annotate(err, "lifecycle: creating internal build for job %d", job.ID).Err()
	}
	return b, nil
}

// CreateExternalBuildParams is the composed payload for CreateExternalBuild.
type CreateExternalBuildParams struct {
	ExternalPipelineID int64
	StartFrom          string
	CauseMessage       string
	ParentBuildID      []int64
	ParentBuilds       model.Ledger
	ParentEventID      *int64
	GroupEventID       *int64
}

// CreateExternalBuild composes and persists a new Event on the external
// pipeline, minting the pipeline admin's commit sha (and, if the pipeline
// has a config pipeline, its sha too) via scm. The admin token is used for a
// single call and never retained.
func CreateExternalBuild(ctx context.Context, pipelines factory.PipelineFactory, scm factory.SCM, events factory.EventFactory, p CreateExternalBuildParams) (*model.Event, error) {
	pipeline, err := pipelines.Get(ctx, p.ExternalPipelineID)
	if err != nil {
		return nil, errors.Annotate(err, "lifecycle: loading external pipeline %d", p.ExternalPipelineID).Err()
	}

	sha, err := commitSha(ctx, scm, pipeline)
	if err != nil {
		return nil, errors.Annotate(err, "lifecycle: resolving commit sha for pipeline %d", pipeline.ID).Err()
	}

	var configSha string
	if pipeline.ConfigPipelineID != nil {
		configPipeline, err := pipelines.Get(ctx, *pipeline.ConfigPipelineID)
		if err != nil {
			return nil, errors.Annotate(err, "lifecycle: loading config pipeline %d", *pipeline.ConfigPipelineID).Err()
		}
		configSha, err = commitSha(ctx, scm, configPipeline)
		if err != nil {
			return nil, errors.Annotate(err, "lifecycle: resolving config pipeline commit sha").Err()
		}
	}

	event, err := events.Create(ctx, factory.EventPayload{
		PipelineID:        p.ExternalPipelineID,
		StartFrom:         p.StartFrom,
		CauseMessage:      p.CauseMessage,
		ParentBuildID:     p.ParentBuildID,
		ParentBuilds:      p.ParentBuilds,
		ParentEventID:     p.ParentEventID,
		GroupEventID:      p.GroupEventID,
		ScmContext:        pipeline.ScmContext,
		Username:          pipeline.Admin.Username(),
		Sha:               sha,
		ConfigPipelineSha: configSha,
	})
	if err != nil {
		return nil, errors.Annotate(err, "lifecycle: creating external event on pipeline %d", p.ExternalPipelineID).Err()
	}
	return event, nil
}

func commitSha(ctx context.Context, scm factory.SCM, pipeline *model.Pipeline) (string, error) {
	token, err := pipeline.Admin.UnsealToken(ctx)
	if err != nil {
		return "", errors.Annotate(err, "unsealing admin token").Err()
	}
	return scm.GetCommitSha(ctx, factory.CommitShaParams{
		ScmContext: pipeline.ScmContext,
		ScmUri:     pipeline.ScmUri,
		Token:      token,
	})
}

// UpdateParentBuilds merges newContributions into nextBuild's ledger and
// prepends fromBuildID to its parent-build list. The merge itself happens
// inside factory.BuildFactory.UpdateParentBuilds so the
// re-read-then-merge-then-persist sequence stays atomic from the caller's
// point of view. A factory.ErrConcurrencyConflict (or any other
// transient-tagged error) is retried with retry.Default's backoff before the
// error is returned.
func UpdateParentBuilds(ctx context.Context, builds factory.BuildFactory, nextBuildID int64, newContributions model.Ledger, fromBuildID int64) (*model.Build, error) {
	var b *model.Build
	err := retry.Retry(ctx, transient.Only(retry.Default), func() (err error) {
		b, err = builds.UpdateParentBuilds(ctx, nextBuildID, newContributions, fromBuildID)
		return err
	}, nil)
	if err != nil {
		return nil, errors.Annotate(err, "lifecycle: updating parent builds for build %d", nextBuildID).Err()
	}
	return b, nil
}

// HandleNewBuild is the final dispatch on a build whose join was just
// re-evaluated: a no-op when the join isn't done yet, a best-effort delete
// when it's done but poisoned by a failure, or a start when it's done and
// clean.
func HandleNewBuild(ctx context.Context, builds factory.BuildFactory, done, hasFailure bool, newBuild *model.Build) (*model.Build, error) {
	if !done || newBuild == nil {
		return nil, nil
	}
	if hasFailure {
		if err := builds.Remove(ctx, newBuild.ID); err != nil {
			logging.Warningf(ctx, "lifecycle: best-effort delete of join-poisoned build %d failed: %s", newBuild.ID, err)
		}
		return nil, nil
	}
	if err := builds.Start(ctx, newBuild.ID); err != nil {
		return nil, errors.Annotate(err, "lifecycle: starting build %d", newBuild.ID).Err()
	}
	newBuild.Status = model.StatusQueued
	return newBuild, nil
}
