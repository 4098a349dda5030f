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

// Package factory declares the collaborator interfaces the trigger engine
// consumes: persistence (Pipeline/Event/Build/Job factories) and
// source-control. Concrete storage is left to the host process;
// internal/memstore provides a reference implementation for tests and
// the demo server.
package factory

import (
	"context"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry/transient"

	"github.com/ChillOrb/screwdriver/model"
)

// ErrNotFound is returned when a requested entity does not exist — usually a
// stale event or a benign race with a concurrent writer.
var ErrNotFound = errors.New("no such entity")

// ErrConcurrencyConflict is returned by BuildFactory.UpdateParentBuilds when
// the ledger update lost a race to a concurrent writer. It is tagged
// transient so callers built on go.chromium.org/luci/common/retry retry it
// automatically.
var ErrConcurrencyConflict = errors.New("ledger update lost a race, retry", transient.Tag)

// PipelineFactory resolves pipelines by id.
type PipelineFactory interface {
	Get(ctx context.Context, id int64) (*model.Pipeline, error)
}

// JobFactory resolves jobs by id or by (pipelineID, name). A miss returns
// (nil, ErrNotFound), never (nil, nil).
type JobFactory interface {
	GetByID(ctx context.Context, id int64) (*model.Job, error)
	GetByName(ctx context.Context, pipelineID int64, name string) (*model.Job, error)
}

// ListEventsParams filters EventFactory.List.
type ListEventsParams struct {
	GroupEventID *int64
	ParentEvent  *int64
}

// EventFactory resolves and creates events.
type EventFactory interface {
	Get(ctx context.Context, id int64) (*model.Event, error)
	List(ctx context.Context, params ListEventsParams) ([]*model.Event, error)
	Create(ctx context.Context, payload EventPayload) (*model.Event, error)
}

// EventPayload is the input to EventFactory.Create, the composed payload
// for creating an event on an external pipeline.
type EventPayload struct {
	PipelineID        int64
	StartFrom         string
	CauseMessage      string
	ParentBuildID     []int64
	ParentBuilds      model.Ledger
	ParentEventID     *int64
	GroupEventID      *int64
	ScmContext        string
	Username          string
	Sha               string
	ConfigPipelineSha string
}

// ListBuildsParams filters BuildFactory.List.
type ListBuildsParams struct {
	EventID    *int64
	JobID      *int64
	Status     *model.Status
	Descending bool
	Limit      int
}

// BuildFactory resolves, creates and mutates builds.
type BuildFactory interface {
	Get(ctx context.Context, id int64) (*model.Build, error)
	List(ctx context.Context, params ListBuildsParams) ([]*model.Build, error)
	GetLatestBuilds(ctx context.Context, groupEventID int64) ([]*model.Build, error)
	Create(ctx context.Context, payload BuildPayload) (*model.Build, error)

	// UpdateParentBuilds re-reads the build's current ledger, merges in
	// newContributions, prepends fromBuildID to ParentBuildID, and persists.
	// Returns ErrConcurrencyConflict if a concurrent writer won the race and
	// the caller should retry with fresh data.
	UpdateParentBuilds(ctx context.Context, buildID int64, newContributions model.Ledger, fromBuildID int64) (*model.Build, error)

	// Start promotes a build to QUEUED and signals the executor to run it.
	Start(ctx context.Context, buildID int64) error

	// Remove deletes a build. Used only for joins that cannot complete
	// successfully; the build has not started, so deletion has no downstream
	// effects.
	Remove(ctx context.Context, buildID int64) error
}

// BuildPayload is the input to BuildFactory.Create, the composed payload
// for creating a build on an internal job.
type BuildPayload struct {
	JobID             int64
	EventID           int64
	Sha               string
	ParentBuildID     []int64
	ParentBuilds      model.Ledger
	Username          string
	ConfigPipelineSha string
	ScmContext        string
	PrRef             string
	PrSource          string
	PrInfo            string
	BaseBranch        string
	Start             bool
}

// CommitShaParams is the input to SCM.GetCommitSha.
type CommitShaParams struct {
	ScmContext string
	ScmUri     string
	Token      string
}

// SCM is the source-control collaborator: commit SHA lookups only. Auth,
// webhooks and the rest of SCM integration belong to the host process.
type SCM interface {
	GetCommitSha(ctx context.Context, params CommitShaParams) (string, error)
}

// WorkflowParser is the consumed workflow-graph library contract.
type WorkflowParser interface {
	GetNextJobs(graph *model.WorkflowGraph, trigger string, chainPR bool) []string
	GetSrcForJoin(graph *model.WorkflowGraph, jobName string) []string
}
