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

import "context"

// Admin is the principal capable of minting a short-lived source-control
// token on behalf of a Pipeline. Implementations must treat the token as a
// secret scoped to a single call: never logged, never cached across calls.
type Admin interface {
	Username() string
	UnsealToken(ctx context.Context) (string, error)
}

// Pipeline is a versioned CI configuration tied to a source-control
// repository.
type Pipeline struct {
	ID               int64
	ScmContext       string
	ScmUri           string
	ConfigPipelineID *int64
	Admin            Admin
}
