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

package lfu

import (
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sizedValue int64

func (v sizedValue) MemSize() int64 { return int64(v) }

func identityHash(k int64) (uint64, uint64) {
	return uint64(k), uint64(k) * 31
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.Counter.GetValue()
}

func TestLFUPutGet(t *testing.T) {
	c, err := NewLFU[int64, sizedValue](1000, 100, identityHash)
	require.NoError(t, err)
	defer c.Close()
	hit := prometheus.NewCounter(prometheus.CounterOpts{Name: "hit"})
	miss := prometheus.NewCounter(prometheus.CounterOpts{Name: "miss"})
	cost := prometheus.NewGauge(prometheus.GaugeOpts{Name: "cost"})
	c.RegisterHitCounter(hit)
	c.RegisterMissCounter(miss)
	c.RegisterCostGauge(cost)

	require.True(t, c.Put(1, 10))
	// Visible before ristretto applies the write.
	v, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, sizedValue(10), v)
	require.True(t, c.Put(2, 20))
	c.Wait()
	v, ok = c.Get(2)
	require.True(t, ok)
	require.Equal(t, sizedValue(20), v)
	_, ok = c.Get(3)
	require.False(t, ok)
	require.Equal(t, 2.0, counterValue(t, hit))
	require.Equal(t, 1.0, counterValue(t, miss))

	require.Equal(t, int64(30), c.Cost())
	require.True(t, c.Put(2, 5))
	require.Equal(t, int64(15), c.Cost())
	require.Equal(t, 2, c.Len())
	keys := c.Keys()
	slices.Sort(keys)
	require.Equal(t, []int64{1, 2}, keys)
	require.Len(t, c.Values(), 2)

	c.Del(1)
	c.Wait()
	_, ok = c.Get(1)
	require.False(t, ok)
	require.Equal(t, int64(5), c.Cost())

	c.Clear()
	require.Zero(t, c.Len())
	require.Zero(t, c.Cost())
	var m dto.Metric
	require.NoError(t, cost.Write(&m))
	require.Zero(t, m.Gauge.GetValue())
}

func TestLFUCapacity(t *testing.T) {
	c, err := NewLFU[int64, sizedValue](100, 1000, identityHash)
	require.NoError(t, err)
	defer c.Close()
	for i := range int64(20) {
		c.Put(i+1, 30)
		c.Wait()
	}
	require.LessOrEqual(t, c.Cost(), int64(100))
	require.LessOrEqual(t, c.Len(), 3)

	// Larger than the whole cache.
	c.Put(100, 1000)
	c.Wait()
	_, ok := c.Get(100)
	require.False(t, ok)
	require.LessOrEqual(t, c.Cost(), int64(100))
}
