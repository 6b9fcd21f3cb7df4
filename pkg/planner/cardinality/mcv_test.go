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

package cardinality

import (
	"context"
	"testing"

	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/metrics"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	statsmetrics "github.com/pingcap/extstats/pkg/statistics/handle/metrics"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"github.com/stretchr/testify/require"
)

func TestMCVCombineSelectivities(t *testing.T) {
	// The MCV list covers everything, so only matching items count.
	require.InDelta(t, 0.5, MCVCombineSelectivities(0.25, 0.5, 0.25, 1.0), 1e-12)
	require.InDelta(t, 0.0, MCVCombineSelectivities(0.25, 0.0, 0.0, 1.0), 1e-12)
	// Without correlation the simple estimate is kept.
	require.InDelta(t, 0.3, MCVCombineSelectivities(0.3, 0.2, 0.2, 0.6), 1e-12)
	require.InDelta(t, 0.1, MCVCombineSelectivities(0.1, 0.05, 0.05, 0.9), 1e-12)
	// Nothing matched and nothing covered.
	require.InDelta(t, 0.3, MCVCombineSelectivities(0.3, 0, 0, 0), 1e-12)
	// Out of range inputs are clamped.
	require.Equal(t, 1.0, MCVCombineSelectivities(2, 0.9, 0, 0.5))
	require.Equal(t, 0.0, MCVCombineSelectivities(-1, 0, 0.5, 0.5))

	for _, c := range []struct{ simple, mcv, base, total float64 }{
		{0.1, 0.2, 0.05, 0.6},
		{0.9, 0.2, 0.05, 0.6},
		{0.4, 0.4, 0.4, 0.4},
		{0.01, 0.3, 0.3, 0.3},
	} {
		sel := MCVCombineSelectivities(c.simple, c.mcv, c.base, c.total)
		require.GreaterOrEqual(t, sel, c.mcv)
		require.LessOrEqual(t, sel, c.mcv+(1-c.total)+1e-12)
	}
}

func TestMCVGetMatchBitmap(t *testing.T) {
	env := newTestEnv()
	stat := newStat(1, extstats.KindMCV, nil, 1, 2)
	mcv := newMCV(
		[4]any{1, 1, 0.4, 0.3},
		[4]any{2, nil, 0.3, 0.2},
		[4]any{3, 3, 0.2, 0.1},
		[4]any{nil, 4, 0.1, 0.05},
	)
	cases := []struct {
		name    string
		clauses []expression.Expr
		isOr    bool
		want    []bool
	}{
		{"eq", []expression.Expr{env.eq(1, 1)}, false, []bool{true, false, false, false}},
		{"const on left", []expression.Expr{env.op(expression.OpNameLT, intConst(1), intVar(1))}, false, []bool{false, true, true, false}},
		{"and list", []expression.Expr{env.op(expression.OpNameGE, intVar(1), intConst(2)), env.op(expression.OpNameLE, intVar(2), intConst(3))}, false, []bool{false, false, true, false}},
		{"or list", []expression.Expr{env.eq(1, 1), env.eq(2, 4)}, true, []bool{true, false, false, true}},
		{"null never matches", []expression.Expr{env.op(expression.OpNameNE, intVar(2), intConst(100))}, false, []bool{true, false, true, true}},
		{"is null", []expression.Expr{&expression.NullTest{Arg: intVar(2), NullTestType: expression.IsNull}}, false, []bool{false, true, false, false}},
		{"is not null", []expression.Expr{&expression.NullTest{Arg: intVar(1), NullTestType: expression.IsNotNull}}, false, []bool{true, true, true, false}},
		{"any", []expression.Expr{env.in(1, true, 1, 3, nil)}, false, []bool{true, false, true, false}},
		{"all", []expression.Expr{env.in(1, false, 1, 1)}, false, []bool{true, false, false, false}},
		{"all with null", []expression.Expr{env.in(1, false, 1, nil)}, false, []bool{false, false, false, false}},
		{"not", []expression.Expr{expression.NewNot(env.eq(1, 1))}, false, []bool{false, true, true, true}},
		{"nested or", []expression.Expr{expression.NewOr(env.eq(1, 1), env.eq(1, 3)), env.eq(2, 3)}, false, []bool{false, false, true, false}},
		{"restrict info", []expression.Expr{expression.NewRestrictInfo(env.eq(1, 2))}, false, []bool{false, true, false, false}},
		{"null constant", []expression.Expr{env.op(expression.OpNameEQ, intVar(1), &expression.Const{Type: intVar(1).Type})}, true, []bool{false, false, false, false}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			matches, err := env.sctx.MCVGetMatchBitmap(c.clauses, stat, mcv, c.isOr)
			require.NoError(t, err)
			require.Equal(t, c.want, matches)
		})
	}

	_, err := env.sctx.MCVGetMatchBitmap([]expression.Expr{env.eq(5, 1)}, stat, mcv, false)
	require.True(t, exterrors.ErrInternal.Equal(err))
}

func TestMCVBooleanDimensions(t *testing.T) {
	env := newTestEnv()
	isEven := &expression.FuncExpr{Name: "is_even", Args: []expression.Expr{intVar(1)}, ResultType: types.BoolID}
	stat := newStat(1, extstats.KindMCV, []expression.Expr{isEven}, 2)
	mcv := &extstats.MCVList{
		Magic:       extstats.MCVMagic,
		Type:        extstats.MCVTypeBasic,
		NDimensions: 2,
		Types:       []types.TypeID{types.BoolID, types.BoolID},
	}
	for _, row := range [][2]any{{true, true}, {false, true}, {true, nil}} {
		item := &extstats.MCVItem{Frequency: 0.25, BaseFrequency: 0.2, IsNull: make([]bool, 2), Values: make([]types.Datum, 2)}
		for d, v := range row {
			if v == nil {
				item.IsNull[d] = true
				continue
			}
			item.Values[d] = types.NewDatum(v)
		}
		mcv.Items = append(mcv.Items, item)
	}
	boolVar := &expression.Var{RelID: testRelID, AttNo: 2, Type: types.BoolID}

	matches, err := env.sctx.MCVGetMatchBitmap([]expression.Expr{boolVar}, stat, mcv, false)
	require.NoError(t, err)
	require.Equal(t, []bool{true, false, true}, matches)
	matches, err = env.sctx.MCVGetMatchBitmap([]expression.Expr{isEven}, stat, mcv, false)
	require.NoError(t, err)
	require.Equal(t, []bool{true, true, false}, matches)
	matches, err = env.sctx.MCVGetMatchBitmap([]expression.Expr{expression.NewNot(boolVar), isEven}, stat, mcv, true)
	require.NoError(t, err)
	require.Equal(t, []bool{true, true, false}, matches)
}

func TestMCVClauselistSelectivity(t *testing.T) {
	env := newTestEnv()
	// 50 rows of (1, 1) and 50 rows of (2, 2).
	data := newBuildData(t, env.reg, []int16{1, 2}, 100, func(r int) []any {
		v := r%2 + 1
		return []any{v, v}
	})
	mcv, err := extstats.NewBuilder(env.reg).BuildMCVList(context.Background(), data, 1000, 10)
	require.NoError(t, err)
	require.Len(t, mcv.Items, 2)
	stat := newStat(7, extstats.KindMCV, nil, 1, 2)
	env.loader.mcv[7] = mcv

	a1 := env.setSimple(env.eq(1, 1), 0.5)
	b1 := env.setSimple(env.eq(2, 1), 0.5)
	sel, base, total, err := env.sctx.MCVClauselistSelectivity([]expression.Expr{a1, b1}, stat, mcv)
	require.NoError(t, err)
	require.InDelta(t, 0.5, sel, 1e-9)
	require.InDelta(t, 0.25, base, 1e-9)
	require.InDelta(t, 1.0, total, 1e-9)

	rel := newRel(stat)
	require.InDelta(t, 0.5, env.sctx.ClauselistSelectivity([]expression.Expr{a1, b1}, rel), 1e-9)
	b2 := env.setSimple(env.eq(2, 2), 0.5)
	require.InDelta(t, 0.0, env.sctx.ClauselistSelectivity([]expression.Expr{a1, b2}, rel), 1e-9)

	// A single clause is left to the simple estimate.
	a2 := env.setSimple(env.eq(1, 2), 0.37)
	require.InDelta(t, 0.37, env.sctx.ClauselistSelectivity([]expression.Expr{a2}, rel), 1e-12)

	// A clause the MCV list cannot estimate is multiplied in.
	c := env.setSimple(env.eq(3, 1), 0.2)
	estimated := extstats.NewAttrSet()
	require.InDelta(t, 0.5, env.sctx.StatextClauselistSelectivity([]expression.Expr{a1, c, b1}, rel, estimated, false), 1e-9)
	require.Equal(t, []int{0, 2}, estimated.Members())
	require.InDelta(t, 0.1, env.sctx.ClauselistSelectivity([]expression.Expr{a1, c, b1}, rel), 1e-9)

	// Clauses already estimated are skipped.
	estimated = extstats.NewAttrSet(0)
	require.InDelta(t, 1.0, env.sctx.StatextClauselistSelectivity([]expression.Expr{a1, b1}, rel, estimated, false), 1e-12)
	require.Equal(t, []int{0}, estimated.Members())
}

func TestMCVOrInclusionExclusion(t *testing.T) {
	env := newTestEnv()
	mcv := newMCV(
		[4]any{1, 2, 0.05, 0.06},
		[4]any{1, 3, 0.25, 0.24},
		[4]any{4, 2, 0.15, 0.14},
		[4]any{5, 5, 0.55, 0.2},
	)
	stat := newStat(3, extstats.KindMCV, nil, 1, 2)
	env.loader.mcv[3] = mcv
	a := env.setSimple(env.eq(1, 1), 0.3)
	b := env.setSimple(env.eq(2, 2), 0.2)

	orMatches := make([]bool, len(mcv.Items))
	est, err := env.sctx.MCVClauseSelectivityOr(a, stat, mcv, orMatches)
	require.NoError(t, err)
	require.InDelta(t, 0.3, est.Sel, 1e-12)
	require.InDelta(t, 0.0, est.OverlapSel, 1e-12)
	est, err = env.sctx.MCVClauseSelectivityOr(b, stat, mcv, orMatches)
	require.NoError(t, err)
	require.InDelta(t, 0.2, est.Sel, 1e-12)
	require.InDelta(t, 0.05, est.OverlapSel, 1e-12)
	require.InDelta(t, 0.06, est.OverlapBaseSel, 1e-12)
	require.InDelta(t, 1.0, est.TotalSel, 1e-12)
	require.Equal(t, []bool{true, true, true, false}, orMatches)

	_, err = env.sctx.MCVClauseSelectivityOr(a, stat, mcv, orMatches[:1])
	require.True(t, exterrors.ErrInternal.Equal(err))

	rel := newRel(stat)
	require.InDelta(t, 0.45, env.sctx.ClauselistSelectivityOr([]expression.Expr{a, b}, rel), 1e-9)

	// Without statistics the arms are independent.
	require.InDelta(t, 0.3+0.2-0.06, env.sctx.ClauselistSelectivityOr([]expression.Expr{a, b}, newRel()), 1e-9)
}

func TestMCVLoadFailureFallsBack(t *testing.T) {
	env := newTestEnv()
	stat := newStat(9, extstats.KindMCV, nil, 1, 2)
	env.loader.err = errLoad
	a := env.setSimple(env.eq(1, 1), 0.5)
	b := env.setSimple(env.eq(2, 1), 0.4)

	before := metrics.ReadCounter(statsmetrics.EstimateFailedCounter)
	estimated := extstats.NewAttrSet()
	require.Equal(t, 1.0, env.sctx.StatextClauselistSelectivity([]expression.Expr{a, b}, newRel(stat), estimated, false))
	require.True(t, estimated.IsEmpty())
	require.Equal(t, before+1, metrics.ReadCounter(statsmetrics.EstimateFailedCounter))
	require.InDelta(t, 0.2, env.sctx.ClauselistSelectivity([]expression.Expr{a, b}, newRel(stat)), 1e-12)

	// A list whose shape does not match the object is corrupt.
	env.loader.err = nil
	env.loader.mcv[9] = newMCV([4]any{1, 1, 1.0, 1.0})
	env.loader.mcv[9].NDimensions = 1
	require.InDelta(t, 0.2, env.sctx.ClauselistSelectivity([]expression.Expr{a, b}, newRel(stat)), 1e-12)
}
