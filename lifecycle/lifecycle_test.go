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

package lifecycle

import (
	"context"
	"testing"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"github.com/ChillOrb/screwdriver/factory"
	"github.com/ChillOrb/screwdriver/model"
)

type fakeAdmin struct {
	username string
	token    string
}

func (a *fakeAdmin) Username() string { return a.username }
func (a *fakeAdmin) UnsealToken(_ context.Context) (string, error) { return a.token, nil }

type fakeJobs struct {
	byID   map[int64]*model.Job
	byName map[string]*model.Job
}

func (f *fakeJobs) GetByID(_ context.Context, id int64) (*model.Job, error) {
	j, ok := f.byID[id]
	if !ok {
		return nil, factory.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobs) GetByName(_ context.Context, pipelineID int64, name string) (*model.Job, error) {
	j, ok := f.byName[name]
	if !ok {
		return nil, factory.ErrNotFound
	}
	return j, nil
}

type fakeBuilds struct {
	created     *factory.BuildPayload
	createBuild *model.Build
	started     []int64
	removed     []int64
	removeErr   error
	updated     *model.Build
}

func (f *fakeBuilds) Get(_ context.Context, id int64) (*model.Build, error) { return nil, nil }
func (f *fakeBuilds) List(_ context.Context, _ factory.ListBuildsParams) ([]*model.Build, error) {
	return nil, nil
}
func (f *fakeBuilds) GetLatestBuilds(_ context.Context, _ int64) ([]*model.Build, error) {
	return nil, nil
}
func (f *fakeBuilds) Create(_ context.Context, payload factory.BuildPayload) (*model.Build, error) {
	f.created = &payload
	return f.createBuild, nil
}
func (f *fakeBuilds) UpdateParentBuilds(_ context.Context, buildID int64, newContributions model.Ledger, fromBuildID int64) (*model.Build, error) {
	return f.updated, nil
}
func (f *fakeBuilds) Start(_ context.Context, id int64) error {
	f.started = append(f.started, id)
	return nil
}
func (f *fakeBuilds) Remove(_ context.Context, id int64) error {
	f.removed = append(f.removed, id)
	return f.removeErr
}

func TestCreateInternalBuild(t *testing.T) {
	ftt.Run("enabled job is created with inherited sha", t, func(t *ftt.Test) {
		jobs := &fakeJobs{byID: map[int64]*model.Job{5: {ID: 5, State: model.JobEnabled}}}
		builds := &fakeBuilds{createBuild: &model.Build{ID: 99}}
		jobID := int64(5)

		b, err := CreateInternalBuild(context.Background(), jobs, builds, CreateInternalBuildParams{
			JobID:     &jobID,
			ParentSha: "deadbeef",
			Start:     true,
		})
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, b.ID, should.Equal(int64(99)))
		assert.Loosely(t, builds.created.Sha, should.Equal("deadbeef"))
		assert.Loosely(t, builds.created.Start, should.BeTrue)
	})

	ftt.Run("disabled job is silently skipped", t, func(t *ftt.Test) {
		jobs := &fakeJobs{byID: map[int64]*model.Job{5: {ID: 5, State: model.JobDisabled}}}
		builds := &fakeBuilds{}
		jobID := int64(5)

		b, err := CreateInternalBuild(context.Background(), jobs, builds, CreateInternalBuildParams{JobID: &jobID})
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, b, should.BeNil)
		assert.Loosely(t, builds.created, should.BeNil)
	})

	ftt.Run("explicit sha overrides the parent's", t, func(t *ftt.Test) {
		jobs := &fakeJobs{byID: map[int64]*model.Job{5: {ID: 5, State: model.JobEnabled}}}
		builds := &fakeBuilds{createBuild: &model.Build{ID: 99}}
		jobID := int64(5)

		_, err := CreateInternalBuild(context.Background(), jobs, builds, CreateInternalBuildParams{
			JobID: &jobID, Sha: "override", ParentSha: "deadbeef",
		})
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, builds.created.Sha, should.Equal("override"))
	})

	ftt.Run("unresolvable job id returns ErrNotFound, not a nil-pointer panic", t, func(t *ftt.Test) {
		jobs := &fakeJobs{}
		builds := &fakeBuilds{}
		jobID := int64(404)

		b, err := CreateInternalBuild(context.Background(), jobs, builds, CreateInternalBuildParams{JobID: &jobID})
		assert.Loosely(t, err, should.NotBeNil)
		assert.Loosely(t, b, should.BeNil)
		assert.Loosely(t, builds.created, should.BeNil)
	})
}

type fakePipelines struct {
	byID map[int64]*model.Pipeline
}

func (f *fakePipelines) Get(_ context.Context, id int64) (*model.Pipeline, error) {
	return f.byID[id], nil
}

type fakeSCM struct {
	sha string
}

func (s *fakeSCM) GetCommitSha(_ context.Context, _ factory.CommitShaParams) (string, error) {
	return s.sha, nil
}

type fakeEvents struct {
	created *factory.EventPayload
	event   *model.Event
}

func (f *fakeEvents) Get(_ context.Context, _ int64) (*model.Event, error) { return nil, nil }
func (f *fakeEvents) List(_ context.Context, _ factory.ListEventsParams) ([]*model.Event, error) {
	return nil, nil
}
func (f *fakeEvents) Create(_ context.Context, payload factory.EventPayload) (*model.Event, error) {
	f.created = &payload
	return f.event, nil
}

func TestCreateExternalBuild(t *testing.T) {
	ftt.Run("composes sha from the pipeline admin token", t, func(t *ftt.Test) {
		pipelines := &fakePipelines{byID: map[int64]*model.Pipeline{
			2: {ID: 2, ScmContext: "github:github.com", ScmUri: "repo:a/b", Admin: &fakeAdmin{username: "sd-admin", token: "tok"}},
		}}
		scm := &fakeSCM{sha: "abc123"}
		events := &fakeEvents{event: &model.Event{ID: 500}}

		e, err := CreateExternalBuild(context.Background(), pipelines, scm, events, CreateExternalBuildParams{
			ExternalPipelineID: 2,
			StartFrom:          "~sd@1:A",
			CauseMessage:       "Triggered by sd@1:A",
			ParentBuildID:      []int64{10},
		})
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, e.ID, should.Equal(int64(500)))
		assert.Loosely(t, events.created.Sha, should.Equal("abc123"))
		assert.Loosely(t, events.created.Username, should.Equal("sd-admin"))
	})

	ftt.Run("resolves a config pipeline sha when present", t, func(t *ftt.Test) {
		configID := int64(3)
		pipelines := &fakePipelines{byID: map[int64]*model.Pipeline{
			2: {ID: 2, ConfigPipelineID: &configID, Admin: &fakeAdmin{username: "a", token: "t1"}},
			3: {ID: 3, Admin: &fakeAdmin{username: "b", token: "t2"}},
		}}
		scm := &fakeSCM{sha: "x"}
		events := &fakeEvents{event: &model.Event{ID: 501}}

		_, err := CreateExternalBuild(context.Background(), pipelines, scm, events, CreateExternalBuildParams{ExternalPipelineID: 2})
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, events.created.ConfigPipelineSha, should.Equal("x"))
	})
}

func TestHandleNewBuild(t *testing.T) {
	ftt.Run("not done is a no-op", t, func(t *ftt.Test) {
		builds := &fakeBuilds{}
		b, err := HandleNewBuild(context.Background(), builds, false, false, &model.Build{ID: 1})
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, b, should.BeNil)
		assert.Loosely(t, len(builds.started), should.Equal(0))
	})

	ftt.Run("done with failure deletes the build", t, func(t *ftt.Test) {
		builds := &fakeBuilds{}
		b, err := HandleNewBuild(context.Background(), builds, true, true, &model.Build{ID: 1})
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, b, should.BeNil)
		assert.Loosely(t, builds.removed, should.Match([]int64{1}))
	})

	ftt.Run("done without failure queues and starts", t, func(t *ftt.Test) {
		builds := &fakeBuilds{}
		newBuild := &model.Build{ID: 1}
		b, err := HandleNewBuild(context.Background(), builds, true, false, newBuild)
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, b.Status, should.Equal(model.StatusQueued))
		assert.Loosely(t, builds.started, should.Match([]int64{1}))
	})
}
