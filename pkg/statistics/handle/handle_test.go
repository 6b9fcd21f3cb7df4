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

package handle_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/pingcap/extstats/pkg/config"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/planner/cardinality"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/statistics/handle"
	"github.com/pingcap/extstats/pkg/statistics/handle/ddl"
	"github.com/pingcap/extstats/pkg/statistics/handle/storage"
	"github.com/pingcap/extstats/pkg/statistics/handle/util"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testRelID = 1

// newTestHandle returns a handle over a memory catalog and a relation of two
// int columns holding rows (i%10, i%10) for i in [0, 1000).
func newTestHandle(t *testing.T) (*handle.Handle, *util.MemRelations) {
	reg := types.NewRegistry()
	rels := util.NewMemRelations(reg, 1)
	rels.AddRelation(&util.RelationInfo{ID: testRelID, Name: "t", Columns: []types.TypeID{types.Int4ID, types.Int4ID}})
	for i := range 1000 {
		require.NoError(t, rels.AppendRows(testRelID, types.MakeDatums(i%10, i%10)))
	}
	h, err := handle.NewHandle(storage.NewMemStore(), reg, rels, config.NewConfig())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, h.Close()) })
	require.NoError(t, h.InitExtendedStats(context.Background()))
	return h, rels
}

func createStats(t *testing.T, h *handle.Handle, name string, cols ...int16) int64 {
	statOID, err := h.CreateExtendedStats(context.Background(), &extstats.Definition{Name: name, RelID: testRelID, Columns: cols}, false)
	require.NoError(t, err)
	return statOID
}

func intVar(attno int16) *expression.Var {
	return &expression.Var{RelID: testRelID, AttNo: attno, Type: types.Int4ID}
}

func eqClause(h *handle.Handle, attno int16, v int64) expression.Expr {
	op := h.Operators().MustLookupByName("=", types.Int4ID, types.Int4ID)
	return expression.NewOp(op.ID, intVar(attno), &expression.Const{Type: types.Int4ID, Value: types.NewIntDatum(v)})
}

func TestCreateBuildAndEstimate(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandle(t)
	statOID := createStats(t, h, "s_ab", 1, 2)

	metas := h.ExtendedStatsOfRelation(testRelID)
	require.Len(t, metas, 1)
	require.Equal(t, statOID, metas[0].StatOID)
	// Not analyzed yet.
	require.Empty(t, h.StatisticExtInfos(testRelID, false))

	results, err := h.AnalyzeRelation(ctx, testRelID, false)
	require.NoError(t, err)
	require.NoError(t, results.Err)
	require.Len(t, results.Ars, 1)
	require.Equal(t, 1000, results.Ars[0].SampleRows)
	require.Len(t, h.StatisticExtInfos(testRelID, false), 3)
	require.Empty(t, h.StatisticExtInfos(testRelID, true))

	sctx := h.NewSelectivityContext(ctx)
	clauses := []expression.Expr{eqClause(h, 1, 1), eqClause(h, 2, 1)}
	independent := sctx.ClauselistSelectivity(clauses, &cardinality.RelOptInfo{RelID: testRelID})
	sel := sctx.ClauselistSelectivity(clauses, h.RelOptInfo(testRelID, false))
	require.InDelta(t, 0.1, sel, 0.01)
	require.Less(t, independent, sel)

	ndistinct, remaining, ok := sctx.EstimateMultivariateNDistinct(h.RelOptInfo(testRelID, false),
		[]expression.Expr{intVar(1), intVar(2)})
	require.True(t, ok)
	require.Empty(t, remaining)
	require.InDelta(t, 10, ndistinct, 0.5)

	usage := h.ExtendedStatsUsage()
	require.Contains(t, usage, statOID)
	require.Positive(t, usage[statOID].Count)
	require.Positive(t, h.StatsCache().Len())
}

func TestCreateExtendedStatsValidation(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandle(t)
	_, err := h.CreateExtendedStats(ctx, &extstats.Definition{Name: "s", RelID: testRelID, Columns: []int16{1, 5}}, false)
	require.True(t, exterrors.ErrInvalidDefinition.Equal(err))
	_, err = h.CreateExtendedStats(ctx, &extstats.Definition{Name: "s", RelID: 2, Columns: []int16{1, 2}}, false)
	require.True(t, exterrors.ErrInvalidDefinition.Equal(err))

	createStats(t, h, "s", 1, 2)
	_, err = h.CreateExtendedStats(ctx, &extstats.Definition{Name: "s", RelID: testRelID, Columns: []int16{2, 1}}, false)
	require.True(t, exterrors.ErrStatsExists.Equal(err))
	statOID, err := h.CreateExtendedStats(ctx, &extstats.Definition{Name: "s", RelID: testRelID, Columns: []int16{2, 1}}, true)
	require.NoError(t, err)
	require.Zero(t, statOID)
}

func TestDropAndGC(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandle(t)
	statOID := createStats(t, h, "s_ab", 1, 2)
	_, err := h.AnalyzeRelation(ctx, testRelID, false)
	require.NoError(t, err)
	mcv, err := h.LoadMCV(ctx, statOID, false)
	require.NoError(t, err)
	require.NotNil(t, mcv)
	_, ok := h.StatsCache().GetMCV(statOID, false)
	require.True(t, ok)

	require.NoError(t, h.DropExtendedStats(ctx, testRelID, "s_ab", false))
	require.Empty(t, h.ExtendedStatsOfRelation(testRelID))
	_, ok = h.StatsCache().GetMCV(statOID, false)
	require.False(t, ok)
	require.NotContains(t, h.ExtendedStatsUsage(), statOID)
	require.True(t, exterrors.ErrStatsNotExists.Equal(h.DropExtendedStats(ctx, testRelID, "s_ab", false)))
	require.NoError(t, h.DropExtendedStats(ctx, testRelID, "s_ab", true))

	removed, err := h.GCExtendedStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	mcv, err = h.LoadMCV(ctx, statOID, false)
	require.NoError(t, err)
	require.Nil(t, mcv)
}

func TestReloadFromSharedCatalog(t *testing.T) {
	ctx := context.Background()
	h1, _ := newTestHandle(t)
	h2, err := handle.NewHandle(h1.Store(), h1.Types(), nil, config.NewConfig())
	require.NoError(t, err)
	defer h2.StatsCache().Close()

	statOID := createStats(t, h1, "s_ab", 1, 2)
	require.NoError(t, h2.InitExtendedStats(ctx))
	require.Len(t, h2.ExtendedStatsOfRelation(testRelID), 1)
	require.Equal(t, h1.LastVersion(), h2.LastVersion())

	_, err = h1.AnalyzeRelation(ctx, testRelID, false)
	require.NoError(t, err)
	require.Empty(t, h2.StatisticExtInfos(testRelID, false))
	require.NoError(t, h2.ReloadExtendedStatistics(ctx))
	require.Len(t, h2.StatisticExtInfos(testRelID, false), 3)
	nd, err := h2.LoadNDistinct(ctx, statOID, false)
	require.NoError(t, err)
	require.Len(t, nd.Items, 1)

	require.NoError(t, h1.DropExtendedStats(ctx, testRelID, "s_ab", false))
	require.NoError(t, h2.ReloadExtendedStatistics(ctx))
	require.Empty(t, h2.ExtendedStatsOfRelation(testRelID))
	_, ok := h2.StatsCache().GetNDistinct(statOID, false)
	require.False(t, ok)
	// Nothing changed since.
	version := h2.LastVersion()
	require.NoError(t, h2.ReloadExtendedStatistics(ctx))
	require.Equal(t, version, h2.LastVersion())
}

func TestAnalyzeSample(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandle(t)
	statOID := createStats(t, h, "s_ab", 1, 2)
	rows := make([][]types.Datum, 0, 1000)
	for i := range 1000 {
		rows = append(rows, types.MakeDatums(i%5, i%7))
	}
	req := &handle.BuildRequest{
		StatOID:   statOID,
		Schema:    []types.TypeID{types.Int4ID, types.Int4ID},
		Rows:      rows,
		TotalRows: 1000,
		Target:    1,
	}
	res, err := h.AnalyzeSample(ctx, req, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Less(t, res.SampleRows, 1000)
	require.NotNil(t, res.NDistinct)
	if res.MCV != nil {
		require.LessOrEqual(t, len(res.MCV.Items), 1)
	}

	req.StatOID = 100
	_, err = h.BuildExtendedStats(ctx, req)
	require.True(t, exterrors.ErrStatsNotExists.Equal(err))
}

func TestBuildExtendedStatsForTables(t *testing.T) {
	ctx := context.Background()
	h, rels := newTestHandle(t)
	rels.AddRelation(&util.RelationInfo{ID: 2, Name: "t2", Columns: []types.TypeID{types.Int4ID, types.TextID}})
	for i := range 100 {
		require.NoError(t, rels.AppendRows(2, types.MakeDatums(i%3, "v")))
	}
	createStats(t, h, "s_ab", 1, 2)
	_, err := h.CreateExtendedStats(ctx, &extstats.Definition{Name: "s_t2", RelID: 2, Columns: []int16{1, 2}}, false)
	require.NoError(t, err)

	results, err := h.BuildExtendedStatsForTables(ctx, []int64{testRelID, 2}, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, results[0].Ars, 1)
	require.Len(t, results[1].Ars, 1)
	require.Len(t, h.StatisticExtInfos(2, false), 3)

	results, err = h.BuildExtendedStatsForTables(ctx, []int64{testRelID, 99}, false)
	require.ErrorContains(t, err, "relation 99")
	require.NotNil(t, results[0])
	require.Nil(t, results[1])
}

func TestAnalyzeRelationCanceled(t *testing.T) {
	h, _ := newTestHandle(t)
	createStats(t, h, "s_ab", 1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.AnalyzeRelation(ctx, testRelID, false)
	require.ErrorContains(t, err, "context canceled")
}

func TestSyncLoadExtendedStats(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandle(t)
	statOID := createStats(t, h, "s_ab", 1, 2)
	// Nothing to load.
	require.NoError(t, h.SyncLoadExtendedStats(ctx, testRelID, false, time.Second))

	_, err := h.AnalyzeRelation(ctx, testRelID, false)
	require.NoError(t, err)
	h.StatsCache().Clear()
	require.Zero(t, h.StatsCache().Len())
	require.NoError(t, h.SyncLoadExtendedStats(ctx, testRelID, false, 10*time.Second))
	require.Equal(t, 3, h.StatsCache().Len())
	_, ok := h.StatsCache().GetDependencies(statOID, false)
	require.True(t, ok)
}

func TestRestoreMCVThroughHandle(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandle(t)
	statOID := createStats(t, h, "s_ab", 1, 2)
	_, err := h.AnalyzeRelation(ctx, testRelID, false)
	require.NoError(t, err)
	_, err = h.LoadMCV(ctx, statOID, false)
	require.NoError(t, err)

	require.NoError(t, h.RestoreMCV(ctx, statOID, false, &extstats.MCVImport{
		Types:           []types.TypeID{types.Int4ID, types.Int4ID},
		Values:          [][]string{{"1", "1"}},
		Nulls:           [][]bool{{false, false}},
		Frequencies:     []float64{0.9},
		BaseFrequencies: []float64{0.81},
	}))
	mcv, err := h.LoadMCV(ctx, statOID, false)
	require.NoError(t, err)
	require.Len(t, mcv.Items, 1)
	require.Equal(t, 0.9, mcv.Items[0].Frequency)

	// Values typed differently from the int columns are rejected.
	err = h.RestoreMCV(ctx, statOID, false, &extstats.MCVImport{
		Types:           []types.TypeID{types.TextID, types.TextID},
		Values:          [][]string{{"a", "b"}},
		Frequencies:     []float64{0.5},
		BaseFrequencies: []float64{0.25},
	})
	require.True(t, exterrors.ErrInvalidDefinition.Equal(err))
	mcv, err = h.LoadMCV(ctx, statOID, false)
	require.NoError(t, err)
	require.Equal(t, 0.9, mcv.Items[0].Frequency)

	nd, err := extstats.ParseNDistinct(`{"1, 2": 42}`)
	require.NoError(t, err)
	require.NoError(t, h.RestoreNDistinct(ctx, statOID, false, nd))
	ndistinct, _, ok := h.NewSelectivityContext(ctx).EstimateMultivariateNDistinct(h.RelOptInfo(testRelID, false),
		[]expression.Expr{intVar(1), intVar(2)})
	require.True(t, ok)
	require.InDelta(t, 42, ndistinct, 0.5)

	deps, err := extstats.ParseDependencies(`{"1 => 2": 0.5}`)
	require.NoError(t, err)
	require.NoError(t, h.RestoreDependencies(ctx, statOID, false, deps))
	got, err := h.LoadDependencies(ctx, statOID, false)
	require.NoError(t, err)
	require.Len(t, got.Deps, 1)
	deps, err = extstats.ParseDependencies(`{"1 => 3": 0.5}`)
	require.NoError(t, err)
	require.True(t, exterrors.ErrInvalidDefinition.Equal(h.RestoreDependencies(ctx, statOID, false, deps)))

	// Column types come from the relation source.
	h2, err := handle.NewHandle(h.Store(), h.Types(), nil, config.NewConfig())
	require.NoError(t, err)
	defer h2.StatsCache().Close()
	require.ErrorContains(t, h2.RestoreMCV(ctx, statOID, false, &extstats.MCVImport{
		Values:          [][]string{{"1", "1"}},
		Frequencies:     []float64{0.9},
		BaseFrequencies: []float64{0.81},
	}), "no relation source")
}

func TestAutoAnalyze(t *testing.T) {
	h, _ := newTestHandle(t)
	createStats(t, h, "s_ab", 1, 2)
	require.False(t, h.HandleAutoAnalyze())

	// Below the default ratio.
	h.UpdateModifyCount(testRelID, false, 100, 1000)
	require.False(t, h.HandleAutoAnalyze())
	require.Empty(t, h.StatisticExtInfos(testRelID, false))

	h.UpdateModifyCount(testRelID, false, 500, 1000)
	require.True(t, h.HandleAutoAnalyze())
	h.WaitAutoAnalyzeFinishedForTest()
	require.Len(t, h.StatisticExtInfos(testRelID, false), 3)
	require.False(t, h.HandleAutoAnalyze())
}

func TestWorkers(t *testing.T) {
	h, _ := newTestHandle(t)
	createStats(t, h, "s_ab", 1, 2)
	h.StartWorkers(10 * time.Millisecond)
	// Starting twice is a no-op.
	h.StartWorkers(10 * time.Millisecond)

	h.UpdateModifyCount(testRelID, false, 1000, 1000)
	require.Eventually(t, func() bool {
		return len(h.StatisticExtInfos(testRelID, false)) == 3
	}, 10*time.Second, 10*time.Millisecond)

	h.DDLEventCh() <- &ddl.DDLEvent{Type: ddl.ActionDropTable, RelID: testRelID}
	require.Eventually(t, func() bool {
		return len(h.ExtendedStatsOfRelation(testRelID)) == 0
	}, 10*time.Second, 10*time.Millisecond)
	h.StopWorkers()
	h.StopWorkers()
}
