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

package triggername

import (
	"testing"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

func TestClassify(t *testing.T) {
	ftt.Run("internal name", t, func(t *ftt.Test) {
		c := Classify("build", 7)
		assert.Loosely(t, c.IsExternal, should.BeFalse)
		assert.Loosely(t, c.PipelineID, should.Equal(int64(7)))
		assert.Loosely(t, c.JobName, should.Equal("build"))
	})

	ftt.Run("external name", t, func(t *ftt.Test) {
		c := Classify("sd@2:deploy", 7)
		assert.Loosely(t, c.IsExternal, should.BeTrue)
		assert.Loosely(t, c.PipelineID, should.Equal(int64(2)))
		assert.Loosely(t, c.JobName, should.Equal("deploy"))
	})

	ftt.Run("PR name is not external", t, func(t *ftt.Test) {
		c := Classify("PR-12:build", 7)
		assert.Loosely(t, c.IsExternal, should.BeFalse)
		assert.Loosely(t, c.JobName, should.Equal("PR-12:build"))
	})

	ftt.Run("round-trips through classify of the canonical form", t, func(t *ftt.Test) {
		c1 := Classify("sd@3:test", 1)
		c2 := Classify("sd@3:test", c1.PipelineID)
		assert.Loosely(t, c2, should.Match(c1))
	})
}

func TestIsPR(t *testing.T) {
	ftt.Run("plain name", t, func(t *ftt.Test) {
		assert.Loosely(t, IsPR("build"), should.BeFalse)
	})
	ftt.Run("PR name", t, func(t *ftt.Test) {
		assert.Loosely(t, IsPR("PR-4:build"), should.BeTrue)
	})
	ftt.Run("external name is not PR", t, func(t *ftt.Test) {
		assert.Loosely(t, IsPR("sd@2:build"), should.BeFalse)
	})
}

func TestTrimJobName(t *testing.T) {
	ftt.Run("plain name unchanged", t, func(t *ftt.Test) {
		assert.Loosely(t, TrimJobName("build"), should.Equal("build"))
	})
	ftt.Run("PR name trimmed", t, func(t *ftt.Test) {
		assert.Loosely(t, TrimJobName("PR-4:build"), should.Equal("build"))
	})
	ftt.Run("external name unchanged by TrimJobName", t, func(t *ftt.Test) {
		assert.Loosely(t, TrimJobName("sd@2:build"), should.Equal("sd@2:build"))
	})
	ftt.Run("idempotent", t, func(t *ftt.Test) {
		for _, name := range []string{"build", "PR-4:build", "sd@2:build"} {
			once := TrimJobName(name)
			twice := TrimJobName(once)
			assert.Loosely(t, twice, should.Equal(once))
		}
	})
}
