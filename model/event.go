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

import "time"

// PRInfo carries pull-request metadata that rides along with an Event.
type PRInfo struct {
	Ref      string
	Source   string
	InfoJSON string
}

// Event is one execution of a pipeline's workflow graph, possibly a restart
// of a prior event (sharing GroupEventID).
type Event struct {
	ID                int64
	PipelineID        int64
	Graph             *WorkflowGraph
	Sha               string
	ConfigPipelineSha string
	ParentEventID     *int64
	GroupEventID      int64
	BaseBranch        string
	PR                *PRInfo
	Created           time.Time
}

// HasParent reports whether this event was itself triggered by another
// event (as opposed to being a restart root or a user-initiated event).
func (e *Event) HasParent() bool {
	return e.ParentEventID != nil
}
