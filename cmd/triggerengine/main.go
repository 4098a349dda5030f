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

// Command triggerengine hosts trigger.Engine behind an HTTP route and a
// periodic sweep, backed by an in-memory store. It exists to exercise the
// engine end to end; real deployments wire factory.* against durable
// storage instead of internal/memstore.
package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	luciserver "go.chromium.org/luci/server"
	"go.chromium.org/luci/server/cron"
	"go.chromium.org/luci/server/module"
	"go.chromium.org/luci/server/router"

	"github.com/ChillOrb/screwdriver/factory"
	"github.com/ChillOrb/screwdriver/internal/memstore"
	"github.com/ChillOrb/screwdriver/model"
	"github.com/ChillOrb/screwdriver/resolver"
	"github.com/ChillOrb/screwdriver/trigger"
)

// requeueSweepInterval is the minimum age of a CREATED build before
// RequeuePoisonedJoins re-evaluates it; younger CREATED builds are skipped.
const requeueSweepInterval = 10 * time.Minute

func main() {
	modules := []module.Module{
		cron.NewModuleFromFlags(),
	}

	luciserver.Main(nil, modules, func(srv *luciserver.Server) error {
		pipelines := memstore.NewPipelines()
		jobs := memstore.NewJobs()
		events := memstore.NewEvents()
		builds := memstore.NewBuilds(events)

		engine := &trigger.Engine{
			Pipelines: pipelines,
			Jobs:      jobs,
			Events:    events,
			Builds:    builds,
			Loader:    &loader{events: events, builds: builds},
		}

		srv.Routes.POST("/internal/build-finished", nil, buildFinishedHandler(engine, jobs, pipelines))

		cron.RegisterHandler("requeue-poisoned-joins", func(ctx context.Context) error {
			return engine.RequeuePoisonedJoins(ctx, requeueSweepInterval)
		})

		return nil
	})
}

// buildFinishedRequest is the payload the upstream build executor posts once
// a build reaches a terminal status.
type buildFinishedRequest struct {
	PipelineID int64  `json:"pipelineId"`
	JobID      int64  `json:"jobId"`
	BuildID    int64  `json:"buildId"`
	Username   string `json:"username"`
	ScmContext string `json:"scmContext"`
}

// buildFinishedHandler decodes the request and hands it to
// Engine.TriggerNextJobs. It does no business logic of its own: resolving
// the pipeline/job/build rows and deciding what happens next all happen
// inside the engine.
func buildFinishedHandler(engine *trigger.Engine, jobs factory.JobFactory, pipelines factory.PipelineFactory) router.Handler {
	return func(c *router.Context) {
		ctx := c.Request.Context()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			httpError(c, http.StatusBadRequest, errors.Annotate(err, "reading request body").Err())
			return
		}
		var req buildFinishedRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpError(c, http.StatusBadRequest, errors.Annotate(err, "decoding request body").Err())
			return
		}

		pipeline, err := pipelines.Get(ctx, req.PipelineID)
		if err != nil {
			httpError(c, statusFor(err), errors.Annotate(err, "loading pipeline %d", req.PipelineID).Err())
			return
		}
		job, err := jobs.GetByID(ctx, req.JobID)
		if err != nil {
			httpError(c, statusFor(err), errors.Annotate(err, "loading job %d", req.JobID).Err())
			return
		}
		build, err := engine.Builds.Get(ctx, req.BuildID)
		if err != nil {
			httpError(c, statusFor(err), errors.Annotate(err, "loading build %d", req.BuildID).Err())
			return
		}

		err = engine.TriggerNextJobs(ctx, trigger.TriggerNextJobsConfig{
			Pipeline:   pipeline,
			Job:        job,
			Build:      build,
			Username:   req.Username,
			ScmContext: req.ScmContext,
		})
		if err != nil {
			httpError(c, http.StatusInternalServerError, err)
			return
		}

		c.Writer.WriteHeader(http.StatusNoContent)
	}
}

func statusFor(err error) int {
	if err == factory.ErrNotFound {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func httpError(c *router.Context, code int, err error) {
	logging.Errorf(c.Request.Context(), "build-finished: %s", err)
	http.Error(c.Writer, err.Error(), code)
}

// loader adapts internal/memstore onto resolver.CandidateLoader for the
// demo server; a production deployment backs this with real queries instead
// of the full in-memory scans memstore performs.
type loader struct {
	events *memstore.Events
	builds *memstore.Builds
}

func (l *loader) FinishedBuildsForEvent(ctx context.Context, eventID int64) ([]*model.Build, error) {
	return l.builds.List(ctx, factory.ListBuildsParams{EventID: &eventID})
}

func (l *loader) ParallelBuilds(ctx context.Context, parentEventID int64, excludePipelineID int64) ([]*model.Build, error) {
	siblings, err := l.events.List(ctx, factory.ListEventsParams{ParentEvent: &parentEventID})
	if err != nil {
		return nil, err
	}
	var out []*model.Build
	for _, e := range siblings {
		if e.PipelineID == excludePipelineID {
			continue
		}
		bs, err := l.builds.List(ctx, factory.ListBuildsParams{EventID: &e.ID})
		if err != nil {
			return nil, err
		}
		out = append(out, bs...)
	}
	return out, nil
}

func (l *loader) LatestCreatedBuild(ctx context.Context, jobID, eventID int64) (*model.Build, error) {
	created := model.StatusCreated
	bs, err := l.builds.List(ctx, factory.ListBuildsParams{JobID: &jobID, EventID: &eventID, Status: &created, Descending: true, Limit: 1})
	if err != nil || len(bs) == 0 {
		return nil, err
	}
	return bs[0], nil
}

var _ resolver.CandidateLoader = (*loader)(nil)
