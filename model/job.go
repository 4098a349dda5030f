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

package model

import "strings"

// JobState is whether a Job currently participates in triggering.
type JobState int

const (
	JobEnabled JobState = iota
	JobDisabled
)

func (s JobState) String() string {
	if s == JobDisabled {
		return "DISABLED"
	}
	return "ENABLED"
}

// Job belongs to exactly one Pipeline.
type Job struct {
	ID         int64
	PipelineID int64
	Name       string
	State      JobState
}

// CanonicalName returns the portion of a PR job name used for workflow-graph
// lookups: the trimmed name after ':' for PR jobs, else Name unchanged.
//
// A job name containing ':' denotes a pull-request job (e.g. "PR-12:build");
// the PR prefix and the external-trigger prefix ("sd@<id>:") both use ':',
// but only one of them looks like "sd@<digits>:...".
func (j *Job) CanonicalName() string {
	if idx := strings.IndexByte(j.Name, ':'); idx >= 0 {
		return j.Name[idx+1:]
	}
	return j.Name
}
