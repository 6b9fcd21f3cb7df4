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

package cache

import (
	"testing"

	"github.com/pingcap/extstats/pkg/metrics"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	statsmetrics "github.com/pingcap/extstats/pkg/statistics/handle/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testNDistinct(n float64) *extstats.MVNDistinct {
	return &extstats.MVNDistinct{
		Magic: extstats.NDistinctMagic,
		Type:  extstats.NDistinctTypeBasic,
		Items: []extstats.MVNDistinctItem{{NDistinct: n, Attributes: []int16{1, 2}}},
	}
}

func testDependencies() *extstats.MVDependencies {
	return &extstats.MVDependencies{
		Magic: extstats.DependenciesMagic,
		Type:  extstats.DependenciesTypeBasic,
		Deps:  []*extstats.MVDependency{{Degree: 1, Attributes: []int16{1, 2}}},
	}
}

func TestStatsCache(t *testing.T) {
	for name, capacity := range map[string]int64{"lfu": 1 << 20, "map": 0} {
		t.Run(name, func(t *testing.T) {
			c, err := NewStatsCache(capacity, 1000)
			require.NoError(t, err)
			defer c.Close()

			hits := metrics.ReadCounter(statsmetrics.CacheHitCounter)
			misses := metrics.ReadCounter(statsmetrics.CacheMissCounter)
			_, ok := c.GetNDistinct(1, false)
			require.False(t, ok)

			nd := testNDistinct(4)
			require.True(t, c.Put(1, false, extstats.KindNDistinct, nd))
			require.True(t, c.Put(1, true, extstats.KindNDistinct, testNDistinct(8)))
			require.True(t, c.Put(1, false, extstats.KindDependencies, testDependencies()))
			require.True(t, c.Put(2, false, extstats.KindNDistinct, testNDistinct(3)))
			got, ok := c.GetNDistinct(1, false)
			require.True(t, ok)
			require.Same(t, nd, got)
			got, ok = c.GetNDistinct(1, true)
			require.True(t, ok)
			require.Equal(t, 8.0, got.Items[0].NDistinct)
			_, ok = c.GetDependencies(1, false)
			require.True(t, ok)
			_, ok = c.GetMCV(1, false)
			require.False(t, ok)
			require.Equal(t, 3.0, metrics.ReadCounter(statsmetrics.CacheHitCounter)-hits)
			require.Equal(t, 2.0, metrics.ReadCounter(statsmetrics.CacheMissCounter)-misses)

			require.Equal(t, 4, c.Len())
			require.Len(t, c.Keys(), 4)
			require.Equal(t, nd.MemSize()*3+testDependencies().MemSize(), c.Cost())

			c.Invalidate(1)
			_, ok = c.GetNDistinct(1, true)
			require.False(t, ok)
			_, ok = c.GetNDistinct(2, false)
			require.True(t, ok)
			require.Equal(t, []Key{{StatOID: 2, Kind: extstats.KindNDistinct}}, c.Keys())

			c.Clear()
			require.Zero(t, c.Len())
			require.Zero(t, c.Cost())
		})
	}
}

func TestKeyHash(t *testing.T) {
	seen := make(map[uint64]Key)
	for oid := int64(1); oid <= 100; oid++ {
		for _, inherit := range []bool{false, true} {
			for _, kind := range extstats.AllKinds {
				k := Key{StatOID: oid, Inherit: inherit, Kind: kind}
				h1, h2 := k.Hash()
				require.NotEqual(t, h1, h2)
				prev, dup := seen[h1]
				require.False(t, dup, "%v collides with %v", k, prev)
				seen[h1] = k
				again, _ := k.Hash()
				require.Equal(t, h1, again)
			}
		}
	}
}
