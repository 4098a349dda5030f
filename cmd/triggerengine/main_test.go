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

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"go.chromium.org/luci/server/router"

	"github.com/ChillOrb/screwdriver/factory"
	"github.com/ChillOrb/screwdriver/internal/memstore"
	"github.com/ChillOrb/screwdriver/model"
	"github.com/ChillOrb/screwdriver/trigger"
)

type fakeParser struct{}

func (fakeParser) GetNextJobs(_ *model.WorkflowGraph, _ string, _ bool) []string { return nil }
func (fakeParser) GetSrcForJoin(_ *model.WorkflowGraph, _ string) []string       { return nil }

func TestBuildFinishedHandler(t *testing.T) {
	ftt.Run("decodes the request and dispatches TriggerNextJobs", t, func(t *ftt.Test) {
		ctx := context.Background()
		pipelines := memstore.NewPipelines()
		pipelines.Put(&model.Pipeline{ID: 1})
		jobs := memstore.NewJobs()
		jobs.Put(&model.Job{ID: 1, PipelineID: 1, Name: "A", State: model.JobEnabled})
		events := memstore.NewEvents()
		events.Put(&model.Event{ID: 100, PipelineID: 1, Graph: &model.WorkflowGraph{}})
		builds := memstore.NewBuilds(events)
		b, err := builds.Create(ctx, factory.BuildPayload{JobID: 1, EventID: 100, Start: true})
		assert.Loosely(t, err, should.BeNil)

		engine := &trigger.Engine{
			Pipelines: pipelines,
			Jobs:      jobs,
			Events:    events,
			Builds:    builds,
			Parser:    fakeParser{},
		}

		body := []byte(fmt.Sprintf(`{"pipelineId":1,"jobId":1,"buildId":%d}`, b.ID))
		req := httptest.NewRequest(http.MethodPost, "/internal/build-finished", bytes.NewReader(body))
		rr := httptest.NewRecorder()

		h := buildFinishedHandler(engine, jobs, pipelines)
		h(&router.Context{Request: req, Writer: rr})

		assert.Loosely(t, rr.Code, should.Equal(http.StatusNoContent))
	})

	ftt.Run("an unknown pipeline yields 404", t, func(t *ftt.Test) {
		pipelines := memstore.NewPipelines()
		jobs := memstore.NewJobs()
		events := memstore.NewEvents()
		builds := memstore.NewBuilds(events)
		engine := &trigger.Engine{Pipelines: pipelines, Jobs: jobs, Events: events, Builds: builds}

		req := httptest.NewRequest(http.MethodPost, "/internal/build-finished", bytes.NewReader([]byte(`{"pipelineId":99}`)))
		rr := httptest.NewRecorder()

		h := buildFinishedHandler(engine, jobs, pipelines)
		h(&router.Context{Request: req, Writer: rr})

		assert.Loosely(t, rr.Code, should.Equal(http.StatusNotFound))
	})
}
