// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extstats

import (
	"context"
	"strings"
	"testing"

	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"github.com/stretchr/testify/require"
)

func TestAttrSet(t *testing.T) {
	s := NewAttrSet(3, 1, 7)
	require.Equal(t, []int{1, 3, 7}, s.Members())
	require.Equal(t, 3, s.Len())
	require.True(t, s.Contains(7))
	require.False(t, s.Contains(2))
	require.False(t, s.Contains(-1))
	require.Equal(t, 1, s.MemberIndex(3))
	require.Equal(t, -1, s.MemberIndex(4))
	require.Equal(t, "(b 1 3 7)", s.String())

	o := NewAttrSet(1, 3)
	require.True(t, o.IsSubsetOf(s))
	require.False(t, s.IsSubsetOf(o))
	require.Equal(t, []int{7}, s.Difference(o).Members())
	require.Equal(t, []int{1, 3}, s.Intersect(o).Members())
	require.True(t, s.Union(o).Equal(s))

	c := s.Clone()
	c.Remove(7)
	require.True(t, c.Equal(o))
	require.True(t, s.Contains(7))

	var empty *AttrSet
	require.True(t, empty.IsEmpty())
	require.True(t, empty.IsSubsetOf(o))
	require.True(t, empty.Equal(NewAttrSet()))
	require.Nil(t, empty.Members())
	require.Panics(t, func() { NewAttrSet(-1) })
}

func TestGenerators(t *testing.T) {
	gen, err := GenerateCombinations(4, 2)
	require.NoError(t, err)
	var got [][]int
	for c := gen.Next(); c != nil; c = gen.Next() {
		got = append(got, append([]int(nil), c...))
	}
	require.Equal(t, [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}, got)

	gen, err = GenerateDependencies(3, 2)
	require.NoError(t, err)
	got = got[:0]
	for c := gen.Next(); c != nil; c = gen.Next() {
		got = append(got, append([]int(nil), c...))
	}
	require.Equal(t, [][]int{{0, 1}, {0, 2}, {1, 0}, {1, 2}, {2, 0}, {2, 1}}, got)

	ndv, fd := 0, 0
	for k := 2; k <= MaxStatsDimensions; k++ {
		gen, err := GenerateCombinations(MaxStatsDimensions, k)
		require.NoError(t, err)
		ndv += gen.Len()
		gen, err = GenerateDependencies(MaxStatsDimensions, k)
		require.NoError(t, err)
		fd += gen.Len()
		// The implying prefix is ascending and the implied index is not in it.
		for dep := gen.Next(); dep != nil; dep = gen.Next() {
			for i := 1; i < k-1; i++ {
				require.Less(t, dep[i-1], dep[i])
			}
			require.NotContains(t, dep[:k-1], dep[k-1])
		}
	}
	require.Equal(t, 247, ndv)
	require.Equal(t, NumNDistinctItems(MaxStatsDimensions), ndv)
	require.Equal(t, 1016, fd)

	_, err = GenerateCombinations(2, 3)
	require.True(t, exterrors.ErrInternal.Equal(err))
}

func TestEstimateNDistinct(t *testing.T) {
	// Every value seen more than once: the sample count is the estimate.
	require.Equal(t, 100.0, EstimateNDistinct(1000, 100, 100, 0))
	// All singletons: extrapolates to the whole relation.
	require.Equal(t, 1000.0, EstimateNDistinct(1000, 100, 100, 100))
	// Never below the observed count.
	require.Equal(t, 10.0, EstimateNDistinct(1000, 100, 10, 0))
	// Never above the relation size.
	require.Equal(t, 50.0, EstimateNDistinct(50, 100, 60, 60))
	// Rounded to the nearest integer.
	require.Equal(t, 55.0, EstimateNDistinct(1000, 100, 50, 10))
	// At least one distinct combination, whatever the inputs.
	require.Equal(t, 1.0, EstimateNDistinct(0, 100, 0, 0))
	require.Equal(t, 1.0, EstimateNDistinct(0, 0, 0, 0))
	require.Equal(t, 1.0, EstimateNDistinct(-5, 10, 0, 0))
	require.Equal(t, 1.0, EstimateNDistinct(1000, 0, 0, 0))
	// An unknown relation size keeps the observed count.
	require.Equal(t, 7.0, EstimateNDistinct(0, 10, 7, 7))
	require.Equal(t, 7.0, EstimateNDistinct(-1, 10, 7, 3))
}

func TestBuildNDistinct(t *testing.T) {
	reg := types.NewRegistry()
	b := NewBuilder(reg)
	ctx := context.Background()

	data := newTestData(t, reg, intTypes(2), 1000, func(r int) []any { return []any{r % 10, r % 10} })
	ndv, err := b.BuildNDistinct(ctx, 100000, data)
	require.NoError(t, err)
	require.Len(t, ndv.Items, 1)
	require.Equal(t, []int16{1, 2}, ndv.Items[0].Attributes)
	require.Equal(t, 10.0, ndv.Items[0].NDistinct)

	data = newTestData(t, reg, intTypes(2), 1000, func(r int) []any { return []any{r % 10, r % 7} })
	ndv, err = b.BuildNDistinct(ctx, 100000, data)
	require.NoError(t, err)
	require.Equal(t, 70.0, ndv.Items[0].NDistinct)

	data = newTestData(t, reg, intTypes(3), 100, func(r int) []any { return []any{r % 2, r % 5, r} })
	ndv, err = b.BuildNDistinct(ctx, 1000, data)
	require.NoError(t, err)
	require.Len(t, ndv.Items, NumNDistinctItems(3))
	var attrs [][]int16
	for _, item := range ndv.Items {
		attrs = append(attrs, item.Attributes)
		require.GreaterOrEqual(t, item.NDistinct, 1.0)
		require.LessOrEqual(t, item.NDistinct, 1000.0)
	}
	require.Equal(t, [][]int16{{1, 2}, {1, 3}, {2, 3}, {1, 2, 3}}, attrs)
	require.Equal(t, 10.0, ndv.Items[0].NDistinct)
	// Unique combinations extrapolate to the relation size.
	require.Equal(t, 1000.0, ndv.Items[1].NDistinct)
	require.Equal(t, `{"1, 2": 10, "1, 3": 1000, "2, 3": 1000, "1, 2, 3": 1000}`, ndv.String())
}

func TestBuildDependencies(t *testing.T) {
	reg := types.NewRegistry()
	b := NewBuilder(reg)
	ctx := context.Background()

	// A chain a => b => c of identical columns.
	data := newTestData(t, reg, intTypes(3), 100, func(r int) []any { return []any{r % 10, r % 10, r % 10} })
	deps, err := b.BuildDependencies(ctx, data)
	require.NoError(t, err)
	require.Len(t, deps.Deps, NumDependencies(3, 2)+NumDependencies(3, 3))
	for _, dep := range deps.Deps {
		require.Equal(t, 1.0, dep.Degree)
	}
	require.Equal(t, []int16{1, 2}, deps.Deps[0].Attributes)
	require.Equal(t, []int16{2, 1}, deps.Deps[2].Attributes)
	require.Equal(t, []int16{2, 3}, deps.Deps[3].Attributes)

	// b is a function of a but not the other way around.
	data = newTestData(t, reg, intTypes(2), 100, func(r int) []any { return []any{r % 10, (r % 10) / 5} })
	deps, err = b.BuildDependencies(ctx, data)
	require.NoError(t, err)
	require.Len(t, deps.Deps, 1)
	require.Equal(t, int16(2), deps.Deps[0].Implied())
	require.Equal(t, []int16{1}, deps.Deps[0].Implying())
	require.Equal(t, `{"1 => 2": 1.000000}`, deps.String())

	// Half of the groups violate the dependency.
	data = newTestData(t, reg, intTypes(2), 100, func(r int) []any {
		a := r % 10
		if a < 5 {
			return []any{a, 0}
		}
		return []any{a, r % 3}
	})
	deps, err = b.BuildDependencies(ctx, data)
	require.NoError(t, err)
	require.Equal(t, 0.5, deps.Deps[0].Degree)

	// Independent columns have no dependency at all.
	data = newTestData(t, reg, intTypes(2), 100, func(r int) []any { return []any{r % 10, r % 3} })
	deps, err = b.BuildDependencies(ctx, data)
	require.NoError(t, err)
	require.Nil(t, deps)
}

func TestBuildMCVList(t *testing.T) {
	reg := types.NewRegistry()
	b := NewBuilder(reg)
	ctx := context.Background()

	t.Run("correlated", func(t *testing.T) {
		data := newTestData(t, reg, intTypes(2), 100, func(r int) []any {
			if r < 50 {
				return []any{1, 1}
			}
			return []any{2, 2}
		})
		mcv, err := b.BuildMCVList(ctx, data, 1000, 10)
		require.NoError(t, err)
		require.Len(t, mcv.Items, 2)
		for _, item := range mcv.Items {
			require.Equal(t, 0.5, item.Frequency)
			require.Equal(t, 0.25, item.BaseFrequency)
		}
		require.Equal(t, 1.0, mcv.TotalFrequency())
		require.Equal(t, []types.TypeID{types.Int4ID, types.Int4ID}, mcv.Types)
	})

	t.Run("sorted by frequency", func(t *testing.T) {
		data := newTestData(t, reg, intTypes(2), 100, func(r int) []any {
			switch {
			case r < 60:
				return []any{1, nil}
			case r < 90:
				return []any{2, 3}
			default:
				return []any{r, r}
			}
		})
		mcv, err := b.BuildMCVList(ctx, data, 1000, 10)
		require.NoError(t, err)
		require.Len(t, mcv.Items, 2)
		require.Equal(t, 0.6, mcv.Items[0].Frequency)
		require.True(t, mcv.Items[0].IsNull[1])
		require.Equal(t, 0.3, mcv.Items[1].Frequency)
		require.InDelta(t, 0.3*0.3, mcv.Items[1].BaseFrequency, 1e-12)
		for i := 1; i < len(mcv.Items); i++ {
			require.GreaterOrEqual(t, mcv.Items[i-1].Frequency, mcv.Items[i].Frequency)
		}

		mcv, err = b.BuildMCVList(ctx, data, 1000, 1)
		require.NoError(t, err)
		require.Len(t, mcv.Items, 1)
	})

	t.Run("nothing common", func(t *testing.T) {
		data := newTestData(t, reg, intTypes(2), 100, func(r int) []any { return []any{r, r} })
		mcv, err := b.BuildMCVList(ctx, data, 1000, 100)
		require.NoError(t, err)
		require.Nil(t, mcv)
	})

	t.Run("wide rows", func(t *testing.T) {
		wide := strings.Repeat("x", 2048)
		data := newTestData(t, reg, []types.TypeID{types.Int4ID, types.TextID}, 100, func(r int) []any {
			if r < 30 {
				return []any{r % 2, wide}
			}
			return []any{r % 2, "short"}
		})
		mcv, err := b.BuildMCVList(ctx, data, 1000, 10)
		require.NoError(t, err)
		require.Len(t, mcv.Items, 2)
		require.InDelta(t, 0.7, mcv.TotalFrequency(), 1e-12)
		for _, item := range mcv.Items {
			require.Equal(t, "short", item.Values[1].GetString())
		}
	})
}

func TestMinCountForMCVList(t *testing.T) {
	require.InDelta(t, 18.38, MinCountForMCVList(100, 1000), 0.01)
	// The sample is the whole relation.
	require.Equal(t, 0.0, MinCountForMCVList(100, 100))
	require.Equal(t, 0.0, MinCountForMCVList(0, 0))
}

func TestBuildErrors(t *testing.T) {
	reg := types.NewRegistry()
	b := NewBuilder(reg)

	points := newTestData(t, reg, []types.TypeID{types.Int4ID, types.PointID}, 10, func(r int) []any {
		return []any{r, nil}
	})
	_, err := b.BuildNDistinct(context.Background(), 10, points)
	require.True(t, exterrors.ErrUnsupportedType.Equal(err))
	_, err = b.BuildMCVList(context.Background(), points, 10, 10)
	require.True(t, exterrors.ErrUnsupportedType.Equal(err))

	data := newTestData(t, reg, intTypes(2), 5000, func(r int) []any { return []any{r % 10, r % 7} })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.BuildDependencies(ctx, data)
	require.True(t, exterrors.ErrCancelRequested.Equal(err))
	_, err = b.BuildMCVList(ctx, data, 10000, 100)
	require.True(t, exterrors.ErrCancelRequested.Equal(err))

	data.AttNums[1] = data.AttNums[0]
	_, err = b.BuildNDistinct(context.Background(), 5000, data)
	require.True(t, exterrors.ErrInvalidDefinition.Equal(err))
}

func TestDefinitionValidate(t *testing.T) {
	d := &Definition{Name: "s1", RelID: 1, Columns: []int16{3, 1}}
	require.NoError(t, d.Validate())
	require.Equal(t, AllKinds, d.Kinds)
	require.Equal(t, []int16{1, 3}, d.AttNums())

	require.Error(t, (&Definition{Name: "s2", Columns: []int16{1}}).Validate())
	require.Error(t, (&Definition{Name: "s3", Columns: []int16{1, 1}}).Validate())
	require.Error(t, (&Definition{Columns: []int16{1, 2}}).Validate())
	require.Error(t, (&Definition{Name: "s4", Columns: []int16{1, 2, 3, 4, 5, 6, 7, 8, 9}}).Validate())

	k, err := ParseStatsKind('m')
	require.NoError(t, err)
	require.Equal(t, KindMCV, k)
	require.Equal(t, "mcv", k.String())
	_, err = ParseStatsKind('x')
	require.Error(t, err)
}
