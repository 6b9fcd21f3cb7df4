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

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/stretchr/testify/require"
)

const testRelID = 1

type fakeLoader struct {
	ndistinct map[int64]*extstats.MVNDistinct
	deps      map[int64]*extstats.MVDependencies
	mcv       map[int64]*extstats.MCVList
	err       error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		ndistinct: make(map[int64]*extstats.MVNDistinct),
		deps:      make(map[int64]*extstats.MVDependencies),
		mcv:       make(map[int64]*extstats.MCVList),
	}
}

func (l *fakeLoader) LoadNDistinct(_ context.Context, statOID int64, _ bool) (*extstats.MVNDistinct, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.ndistinct[statOID], nil
}

func (l *fakeLoader) LoadDependencies(_ context.Context, statOID int64, _ bool) (*extstats.MVDependencies, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.deps[statOID], nil
}

func (l *fakeLoader) LoadMCV(_ context.Context, statOID int64, _ bool) (*extstats.MCVList, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.mcv[statOID], nil
}

var errLoad = errors.New("mock load error")

// testEnv bundles the registries of a test with a selectivity context whose
// simple estimate multiplies per-clause selectivities taken from simple.
type testEnv struct {
	reg    *types.Registry
	ops    *expression.OperatorRegistry
	loader *fakeLoader
	simple map[string]float64
	sctx   *SelectivityContext
}

func newTestEnv() *testEnv {
	reg := types.NewRegistry()
	env := &testEnv{
		reg:    reg,
		ops:    expression.NewOperatorRegistry(reg),
		loader: newFakeLoader(),
		simple: make(map[string]float64),
	}
	env.sctx = &SelectivityContext{
		Ctx:    context.Background(),
		Ops:    env.ops,
		Types:  reg,
		Loader: env.loader,
		SimpleSelectivity: func(clauses []expression.Expr) float64 {
			sel := 1.0
			for _, c := range clauses {
				s, ok := env.simple[c.String()]
				if !ok {
					s = 0.5
				}
				sel *= s
			}
			return sel
		},
	}
	return env
}

func (env *testEnv) setSimple(clause expression.Expr, sel float64) expression.Expr {
	env.simple[clause.String()] = sel
	return clause
}

func intVar(attno int16) *expression.Var {
	return &expression.Var{RelID: testRelID, AttNo: attno, Type: types.Int4ID}
}

func intConst(v int64) *expression.Const {
	return &expression.Const{Type: types.Int4ID, Value: types.NewIntDatum(v)}
}

func (env *testEnv) op(name string, l, r expression.Expr) *expression.OpExpr {
	return expression.NewOp(env.ops.MustLookupByName(name, types.Int4ID, types.Int4ID).ID, l, r)
}

func (env *testEnv) eq(attno int16, v int64) *expression.OpExpr {
	return env.op(expression.OpNameEQ, intVar(attno), intConst(v))
}

func (env *testEnv) in(attno int16, useOr bool, vals ...any) *expression.ScalarArrayOpExpr {
	return &expression.ScalarArrayOpExpr{
		OpID:  env.ops.MustLookupByName(expression.OpNameEQ, types.Int4ID, types.Int4ID).ID,
		UseOr: useOr,
		Args:  []expression.Expr{intVar(attno), &expression.ArrayConst{ElemType: types.Int4ID, Elems: types.MakeDatums(vals...)}},
	}
}

func newStat(oid int64, kind extstats.StatsKind, exprs []expression.Expr, attnos ...int) *extstats.StatisticExtInfo {
	return &extstats.StatisticExtInfo{
		StatOID: oid,
		RelID:   testRelID,
		Kind:    kind,
		Keys:    extstats.NewAttrSet(attnos...),
		Exprs:   exprs,
	}
}

func newRel(stats ...*extstats.StatisticExtInfo) *RelOptInfo {
	return &RelOptInfo{RelID: testRelID, Stats: stats}
}

// newBuildData creates build data for attnums over int4 dimensions, filling
// row r with gen(r).
func newBuildData(t *testing.T, reg *types.Registry, attnums []int16, numRows int, gen func(r int) []any) *extstats.StatsBuildData {
	tp, err := reg.Lookup(types.Int4ID)
	require.NoError(t, err)
	stats := make([]extstats.ColumnStats, len(attnums))
	for i := range stats {
		stats[i] = extstats.NewColumnStats(tp)
	}
	data := extstats.NewStatsBuildData(attnums, stats, numRows)
	for r := range numRows {
		for d, v := range gen(r) {
			data.Set(d, r, types.NewDatum(v))
		}
	}
	return data
}

// newMCV creates a two dimensional int4 MCV list. Each row is a, b,
// frequency, base frequency; a nil a or b is NULL.
func newMCV(rows ...[4]any) *extstats.MCVList {
	mcv := &extstats.MCVList{
		Magic:       extstats.MCVMagic,
		Type:        extstats.MCVTypeBasic,
		NDimensions: 2,
		Types:       []types.TypeID{types.Int4ID, types.Int4ID},
	}
	for _, row := range rows {
		item := &extstats.MCVItem{
			Frequency:     row[2].(float64),
			BaseFrequency: row[3].(float64),
			IsNull:        make([]bool, 2),
			Values:        make([]types.Datum, 2),
		}
		for d := range 2 {
			if row[d] == nil {
				item.IsNull[d] = true
				continue
			}
			item.Values[d] = types.NewDatum(row[d])
		}
		mcv.Items = append(mcv.Items, item)
	}
	return mcv
}
