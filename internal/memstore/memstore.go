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

// Package memstore is a goroutine-safe, in-memory implementation of the
// factory persistence and SCM interfaces (it has no factory.WorkflowParser),
// sufficient to run the trigger engine's test suite and
// the cmd/triggerengine demo server without a real datastore. It mirrors the
// role the teacher's github.com/luci/gae/impl/memory fake plays in
// engine_test.go.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ChillOrb/screwdriver/factory"
	"github.com/ChillOrb/screwdriver/ledger"
	"github.com/ChillOrb/screwdriver/model"
)

// Pipelines is an in-memory factory.PipelineFactory.
type Pipelines struct {
	mu   sync.RWMutex
	byID map[int64]*model.Pipeline
}

// NewPipelines returns an empty Pipelines store.
func NewPipelines() *Pipelines {
	return &Pipelines{byID: map[int64]*model.Pipeline{}}
}

// Put inserts or replaces a pipeline, for test/demo setup.
func (s *Pipelines) Put(p *model.Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = p
}

// Get implements factory.PipelineFactory.
func (s *Pipelines) Get(_ context.Context, id int64) (*model.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, factory.ErrNotFound
	}
	return p, nil
}

type jobKey struct {
	pipelineID int64
	name       string
}

// Jobs is an in-memory factory.JobFactory.
type Jobs struct {
	mu     sync.RWMutex
	byID   map[int64]*model.Job
	byName map[jobKey]*model.Job
}

// NewJobs returns an empty Jobs store.
func NewJobs() *Jobs {
	return &Jobs{byID: map[int64]*model.Job{}, byName: map[jobKey]*model.Job{}}
}

// Put inserts or replaces a job, for test/demo setup.
func (s *Jobs) Put(j *model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[j.ID] = j
	s.byName[jobKey{j.PipelineID, j.Name}] = j
}

// GetByID implements factory.JobFactory.
func (s *Jobs) GetByID(_ context.Context, id int64) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byID[id]
	if !ok {
		return nil, factory.ErrNotFound
	}
	return j, nil
}

// GetByName implements factory.JobFactory.
func (s *Jobs) GetByName(_ context.Context, pipelineID int64, name string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byName[jobKey{pipelineID, name}]
	if !ok {
		return nil, factory.ErrNotFound
	}
	return j, nil
}

// Events is an in-memory factory.EventFactory.
type Events struct {
	mu     sync.RWMutex
	byID   map[int64]*model.Event
	nextID int64
}

// NewEvents returns an empty Events store.
func NewEvents() *Events {
	return &Events{byID: map[int64]*model.Event{}, nextID: 1}
}

// Put inserts or replaces an event, for test/demo setup.
func (s *Events) Put(e *model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[e.ID] = e
	if e.ID >= s.nextID {
		s.nextID = e.ID + 1
	}
}

// Get implements factory.EventFactory.
func (s *Events) Get(_ context.Context, id int64) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, factory.ErrNotFound
	}
	return e, nil
}

// List implements factory.EventFactory.
func (s *Events) List(_ context.Context, params factory.ListEventsParams) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Event
	for _, e := range s.byID {
		if params.GroupEventID != nil && e.GroupEventID != *params.GroupEventID {
			continue
		}
		if params.ParentEvent != nil && (e.ParentEventID == nil || *e.ParentEventID != *params.ParentEvent) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

// Create implements factory.EventFactory.
func (s *Events) Create(_ context.Context, payload factory.EventPayload) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &model.Event{
		ID:                s.nextID,
		PipelineID:        payload.PipelineID,
		Sha:               payload.Sha,
		ConfigPipelineSha: payload.ConfigPipelineSha,
		ParentEventID:     payload.ParentEventID,
		Created:           time.Now(),
	}
	if payload.GroupEventID != nil {
		e.GroupEventID = *payload.GroupEventID
	} else {
		e.GroupEventID = e.ID
	}
	s.nextID++
	s.byID[e.ID] = e
	return e, nil
}

// conflictHook lets tests force a single ConcurrencyConflict on the next
// UpdateParentBuilds call for a given build, since the mutex-serialized
// store never produces a genuine lost race on its own.
type conflictHook struct {
	buildID int64
	armed   bool
}

// Builds is an in-memory factory.BuildFactory. Events, if set, is consulted
// by GetLatestBuilds to resolve group membership.
type Builds struct {
	mu      sync.RWMutex
	byID    map[int64]*model.Build
	nextID  int64
	Events  *Events
	conflict conflictHook
}

// NewBuilds returns an empty Builds store.
func NewBuilds(events *Events) *Builds {
	return &Builds{byID: map[int64]*model.Build{}, nextID: 1, Events: events}
}

// Put inserts or replaces a build, for test/demo setup.
func (s *Builds) Put(b *model.Build) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[b.ID] = b
	if b.ID >= s.nextID {
		s.nextID = b.ID + 1
	}
}

// SimulateConflict arms a one-shot ErrConcurrencyConflict for the next
// UpdateParentBuilds call against buildID, for exercising caller retry logic.
func (s *Builds) SimulateConflict(buildID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflict = conflictHook{buildID: buildID, armed: true}
}

// Get implements factory.BuildFactory.
func (s *Builds) Get(_ context.Context, id int64) (*model.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	if !ok {
		return nil, factory.ErrNotFound
	}
	return b, nil
}

// List implements factory.BuildFactory.
func (s *Builds) List(_ context.Context, params factory.ListBuildsParams) ([]*model.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Build
	for _, b := range s.byID {
		if params.EventID != nil && b.EventID != *params.EventID {
			continue
		}
		if params.JobID != nil && b.JobID != *params.JobID {
			continue
		}
		if params.Status != nil && b.Status != *params.Status {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if params.Descending {
			return out[i].Created.After(out[j].Created)
		}
		return out[i].Created.Before(out[j].Created)
	})
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

// GetLatestBuilds implements factory.BuildFactory: the most recent build per
// job among every event sharing groupEventID.
func (s *Builds) GetLatestBuilds(ctx context.Context, groupEventID int64) ([]*model.Build, error) {
	if s.Events == nil {
		return nil, nil
	}
	events, err := s.Events.List(ctx, factory.ListEventsParams{GroupEventID: &groupEventID})
	if err != nil {
		return nil, err
	}
	eventIDs := make(map[int64]bool, len(events))
	for _, e := range events {
		eventIDs[e.ID] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := map[int64]*model.Build{}
	for _, b := range s.byID {
		if !eventIDs[b.EventID] {
			continue
		}
		if cur, ok := latest[b.JobID]; !ok || b.Created.After(cur.Created) {
			latest[b.JobID] = b
		}
	}
	out := make([]*model.Build, 0, len(latest))
	for _, b := range latest {
		out = append(out, b)
	}
	return out, nil
}

// Create implements factory.BuildFactory.
func (s *Builds) Create(_ context.Context, payload factory.BuildPayload) (*model.Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := model.StatusCreated
	if payload.Start {
		status = model.StatusQueued
	}
	b := &model.Build{
		ID:                s.nextID,
		EventID:           payload.EventID,
		JobID:             payload.JobID,
		Status:            status,
		Created:           time.Now(),
		Sha:               payload.Sha,
		Username:          payload.Username,
		ParentBuildID:     payload.ParentBuildID,
		ParentBuilds:      payload.ParentBuilds.Clone(),
		ConfigPipelineSha: payload.ConfigPipelineSha,
		ScmContext:        payload.ScmContext,
		PrRef:             payload.PrRef,
		PrSource:          payload.PrSource,
		PrInfo:            payload.PrInfo,
		BaseBranch:        payload.BaseBranch,
	}
	s.nextID++
	s.byID[b.ID] = b
	return b, nil
}

// UpdateParentBuilds implements factory.BuildFactory: re-reads the current
// ledger, merges in newContributions, prepends fromBuildID, and persists.
func (s *Builds) UpdateParentBuilds(_ context.Context, buildID int64, newContributions model.Ledger, fromBuildID int64) (*model.Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflict.armed && s.conflict.buildID == buildID {
		s.conflict.armed = false
		return nil, factory.ErrConcurrencyConflict
	}

	b, ok := s.byID[buildID]
	if !ok {
		return nil, factory.ErrNotFound
	}
	b.ParentBuilds = ledger.Merge(b.ParentBuilds, newContributions)
	b.ParentBuildID = prepend(b.ParentBuildID, fromBuildID)
	b.Version++
	return b, nil
}

func prepend(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	out := make([]int64, 0, len(ids)+1)
	out = append(out, id)
	return append(out, ids...)
}

// Start implements factory.BuildFactory.
func (s *Builds) Start(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return factory.ErrNotFound
	}
	b.Status = model.StatusQueued
	return nil
}

// Remove implements factory.BuildFactory.
func (s *Builds) Remove(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return factory.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// SCM is a trivial in-memory factory.SCM double: every lookup returns a
// fixed sha regardless of input, for tests and the demo server.
type SCM struct {
	Sha string
}

// GetCommitSha implements factory.SCM.
func (s *SCM) GetCommitSha(_ context.Context, _ factory.CommitShaParams) (string, error) {
	return s.Sha, nil
}

// Admin is a trivial in-memory model.Admin double.
type Admin struct {
	Name  string
	Token string
}

// Username implements model.Admin.
func (a *Admin) Username() string { return a.Name }

// UnsealToken implements model.Admin.
func (a *Admin) UnsealToken(_ context.Context) (string, error) { return a.Token, nil }
