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
	"testing"

	"github.com/pingcap/extstats/pkg/types"
	"github.com/stretchr/testify/require"
)

// newTestData creates build data over consecutive columns 1..len(typeIDs),
// filling row r with gen(r). A nil value in gen's result is a NULL.
func newTestData(t *testing.T, reg *types.Registry, typeIDs []types.TypeID, numRows int, gen func(r int) []any) *StatsBuildData {
	attnums := make([]int16, len(typeIDs))
	stats := make([]ColumnStats, len(typeIDs))
	for i, id := range typeIDs {
		tp, err := reg.Lookup(id)
		require.NoError(t, err)
		attnums[i] = int16(i + 1)
		stats[i] = NewColumnStats(tp)
	}
	data := NewStatsBuildData(attnums, stats, numRows)
	for r := range numRows {
		row := gen(r)
		require.Len(t, row, len(typeIDs))
		for d, v := range row {
			data.Set(d, r, types.NewDatum(v))
		}
	}
	return data
}

func intTypes(n int) []types.TypeID {
	ids := make([]types.TypeID, n)
	for i := range ids {
		ids[i] = types.Int4ID
	}
	return ids
}
