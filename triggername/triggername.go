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

// Package triggername classifies workflow-graph node names as internal or
// external triggers and extracts their pipeline/job components.
package triggername

import (
	"regexp"
	"strconv"
	"strings"
)

// externalPattern matches the external-trigger grammar: "sd@" digits ":"
// job-name. The job-name part is whatever non-empty text follows the ':';
// its characters are not checked.
var externalPattern = regexp.MustCompile(`^sd@(\d+):(.+)$`)

// Classification is the result of classifying a workflow-graph node name.
type Classification struct {
	PipelineID int64
	JobName    string
	IsExternal bool
}

// Classify reports whether name is an external trigger ("sd@<pid>:<job>")
// and, either way, returns the pipeline id and job name it refers to.
//
// currentPipelineID is returned for internal (non-external) names.
func Classify(name string, currentPipelineID int64) Classification {
	if m := externalPattern.FindStringSubmatch(name); m != nil {
		pid, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return Classification{PipelineID: pid, JobName: m[2], IsExternal: true}
		}
	}
	return Classification{PipelineID: currentPipelineID, JobName: name, IsExternal: false}
}

// IsPR reports whether name denotes a pull-request job, i.e. it contains ':'
// but is not an external trigger name (those use ':' too, but are prefixed
// with "sd@<digits>", not "PR-<n>").
func IsPR(name string) bool {
	if externalPattern.MatchString(name) {
		return false
	}
	return strings.Contains(name, ":")
}

// TrimJobName returns the canonical ledger key for name: the portion after
// ':' for PR jobs, else name unchanged. Idempotent: TrimJobName(TrimJobName(x))
// == TrimJobName(x).
func TrimJobName(name string) string {
	if !IsPR(name) {
		return name
	}
	idx := strings.IndexByte(name, ':')
	return name[idx+1:]
}
