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
	"testing"

	"github.com/pingcap/extstats/pkg/config"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/statistics/handle"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestRebuildReplacesDroppedKinds(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandle(t)
	h2, err := handle.NewHandle(h.Store(), h.Types(), nil, config.NewConfig())
	require.NoError(t, err)
	defer h2.StatsCache().Close()
	statOID := createStats(t, h, "s_ab", 1, 2)

	_, err = h.AnalyzeRelation(ctx, testRelID, false)
	require.NoError(t, err)
	require.NoError(t, h2.InitExtendedStats(ctx))
	for _, hd := range []*handle.Handle{h, h2} {
		mcv, err := hd.LoadMCV(ctx, statOID, false)
		require.NoError(t, err)
		require.Len(t, mcv.Items, 10)
		deps, err := hd.LoadDependencies(ctx, statOID, false)
		require.NoError(t, err)
		require.Len(t, deps.Deps, 2)
	}
	_, ok := h.StatsCache().GetMCV(statOID, false)
	require.True(t, ok)

	// Every combination occurs once in a sample of a large relation: no
	// combination is common enough for the MCV list and no column implies
	// the other.
	res, err := h.BuildExtendedStats(ctx, &handle.BuildRequest{
		StatOID:   statOID,
		Schema:    []types.TypeID{types.Int4ID, types.Int4ID},
		Rows:      crossProductRows(32),
		TotalRows: 1e6,
	})
	require.NoError(t, err)
	require.Nil(t, res.MCV)
	require.Nil(t, res.Dependencies)
	require.NotNil(t, res.NDistinct)

	_, ok = h.StatsCache().GetMCV(statOID, false)
	require.False(t, ok)
	require.NoError(t, h2.ReloadExtendedStatistics(ctx))
	for _, hd := range []*handle.Handle{h, h2} {
		mcv, err := hd.LoadMCV(ctx, statOID, false)
		require.NoError(t, err)
		require.Nil(t, mcv)
		deps, err := hd.LoadDependencies(ctx, statOID, false)
		require.NoError(t, err)
		require.Nil(t, deps)
		nd, err := hd.LoadNDistinct(ctx, statOID, false)
		require.NoError(t, err)
		require.Len(t, nd.Items, 1)
		require.Greater(t, nd.Items[0].NDistinct, 10.0)
	}
}

// crossProductRows returns every combination of two columns once.
func crossProductRows(n int) [][]types.Datum {
	rows := make([][]types.Datum, 0, n*n)
	for a := range n {
		for b := range n {
			rows = append(rows, types.MakeDatums(a, b))
		}
	}
	return rows
}

func TestRebuildWithoutAnyKind(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHandle(t)
	statOID, err := h.CreateExtendedStats(ctx, &extstats.Definition{
		Name:    "s_fm",
		RelID:   testRelID,
		Columns: []int16{1, 2},
		Kinds:   []extstats.StatsKind{extstats.KindDependencies, extstats.KindMCV},
	}, false)
	require.NoError(t, err)
	_, err = h.AnalyzeRelation(ctx, testRelID, false)
	require.NoError(t, err)
	require.Len(t, h.StatisticExtInfos(testRelID, false), 2)
	version := h.LastVersion()

	res, err := h.BuildExtendedStats(ctx, &handle.BuildRequest{
		StatOID:   statOID,
		Schema:    []types.TypeID{types.Int4ID, types.Int4ID},
		Rows:      crossProductRows(32),
		TotalRows: 1e6,
	})
	require.NoError(t, err)
	require.Empty(t, res.Kinds())
	require.Greater(t, h.LastVersion(), version)
	deps, err := h.LoadDependencies(ctx, statOID, false)
	require.NoError(t, err)
	require.Nil(t, deps)
	mcv, err := h.LoadMCV(ctx, statOID, false)
	require.NoError(t, err)
	require.Nil(t, mcv)
}
