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

package ledger

import (
	"context"
	"testing"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"github.com/ChillOrb/screwdriver/model"
)

func build(id, jobID, eventID int64) *model.Build {
	return &model.Build{ID: id, JobID: jobID, EventID: eventID, Status: model.StatusSuccess}
}

func TestSingleton(t *testing.T) {
	ftt.Run("builds a one-entry ledger", t, func(t *ftt.Test) {
		l := Singleton(1, 100, "A", 10)
		assert.Loosely(t, len(l), should.Equal(1))
		assert.Loosely(t, *l[1].EventID, should.Equal(int64(100)))
		assert.Loosely(t, *l[1].Jobs["A"], should.Equal(int64(10)))
	})
}

func TestJoinSkeleton(t *testing.T) {
	ftt.Run("an AND-join's two sibling members on the same pipeline collapse into one entry", t, func(t *ftt.Test) {
		l := JoinSkeleton(1, []string{"B", "C"})
		assert.Loosely(t, len(l), should.Equal(1))
		assert.Loosely(t, l[1].Jobs["B"], should.BeNil)
		assert.Loosely(t, l[1].Jobs["C"], should.BeNil)
	})

	ftt.Run("mixed internal/external join list", t, func(t *ftt.Test) {
		l := JoinSkeleton(1, []string{"A", "sd@2:X"})
		assert.Loosely(t, len(l), should.Equal(2))
		assert.Loosely(t, l[1].Jobs["A"], should.BeNil)
		assert.Loosely(t, l[2].Jobs["X"], should.BeNil)
	})
}

func TestMerge(t *testing.T) {
	ftt.Run("right-biased at the leaves", t, func(t *ftt.Test) {
		l1 := Singleton(1, 100, "A", 10)
		l2 := Singleton(1, 100, "A", 99)
		merged := Merge(l1, l2)
		assert.Loosely(t, *merged[1].Jobs["A"], should.Equal(int64(99)))
	})

	ftt.Run("disjoint keys union at the nested level", t, func(t *ftt.Test) {
		skeleton := JoinSkeleton(1, []string{"B", "C"})
		contribB := Singleton(1, 100, "B", 20)
		merged := Merge(skeleton, contribB)
		assert.Loosely(t, *merged[1].Jobs["B"], should.Equal(int64(20)))
		assert.Loosely(t, merged[1].Jobs["C"], should.BeNil)
	})

	ftt.Run("associative", t, func(t *ftt.Test) {
		a := Singleton(1, 100, "A", 1)
		b := Singleton(1, 100, "B", 2)
		c := Singleton(1, 100, "C", 3)
		left := Merge(Merge(a, b), c)
		right := Merge(a, Merge(b, c))
		assert.Loosely(t, *left[1].Jobs["A"], should.Equal(*right[1].Jobs["A"]))
		assert.Loosely(t, *left[1].Jobs["B"], should.Equal(*right[1].Jobs["B"]))
		assert.Loosely(t, *left[1].Jobs["C"], should.Equal(*right[1].Jobs["C"]))
	})

	ftt.Run("merging the same contribution twice is idempotent", t, func(t *ftt.Test) {
		a := Singleton(1, 100, "A", 1)
		once := Merge(a)
		twice := Merge(once, a)
		assert.Loosely(t, *twice[1].Jobs["A"], should.Equal(*once[1].Jobs["A"]))
	})

	ftt.Run("does not alias inputs", t, func(t *ftt.Test) {
		a := Singleton(1, 100, "A", 1)
		merged := Merge(a)
		id := int64(999)
		merged[1].Jobs["A"] = &id
		assert.Loosely(t, *a[1].Jobs["A"], should.Equal(int64(1)))
	})
}

func TestFill(t *testing.T) {
	ftt.Run("fills a null entry from a matching candidate build", t, func(t *ftt.Test) {
		ctx := context.Background()
		graph := &model.WorkflowGraph{Nodes: []model.Node{{ID: 1, Name: "B"}, {ID: 2, Name: "C"}}}
		l := JoinSkeleton(1, []string{"B", "C"})
		candidates := []*model.Build{build(20, 1, 100)}

		errs := Fill(ctx, l, 1, graph, candidates)
		assert.Loosely(t, len(errs), should.Equal(0))
		assert.Loosely(t, *l[1].Jobs["B"], should.Equal(int64(20)))
		assert.Loosely(t, l[1].Jobs["C"], should.BeNil)
	})

	ftt.Run("missing match is logged but not fatal", t, func(t *ftt.Test) {
		ctx := context.Background()
		graph := &model.WorkflowGraph{}
		l := JoinSkeleton(1, []string{"B"})
		errs := Fill(ctx, l, 1, graph, nil)
		assert.Loosely(t, len(errs), should.Equal(1))
		assert.Loosely(t, l[1].Jobs["B"], should.BeNil)
	})

	ftt.Run("external pipeline matched via sd@ substring", t, func(t *ftt.Test) {
		ctx := context.Background()
		graph := &model.WorkflowGraph{Nodes: []model.Node{{ID: 5, Name: "sd@2:X"}}}
		l := JoinSkeleton(1, []string{"sd@2:X"})
		candidates := []*model.Build{build(30, 5, 200)}
		errs := Fill(ctx, l, 1, graph, candidates)
		assert.Loosely(t, len(errs), should.Equal(0))
		assert.Loosely(t, *l[2].Jobs["X"], should.Equal(int64(30)))
		assert.Loosely(t, *l[2].EventID, should.Equal(int64(200)))
	})
}
