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
	"github.com/pingcap/extstats/pkg/statistics/handle/cache/internal"
	"github.com/pingcap/extstats/pkg/statistics/handle/metrics"
	"github.com/pingcap/extstats/pkg/util/lfu"
)

// LFU is a LFU based on the ristretto.Cache
type LFU struct {
	cache *lfu.LFU[internal.Key, internal.Item]
}

// NewLFU creates a new LFU cache.
func NewLFU(totalMemCost, numCounters int64) (*LFU, error) {
	cache, err := lfu.NewLFU[internal.Key, internal.Item](totalMemCost, numCounters, internal.Key.Hash)
	if err != nil {
		return nil, err
	}
	cache.RegisterHitCounter(metrics.CacheHitCounter)
	cache.RegisterMissCounter(metrics.CacheMissCounter)
	cache.RegisterCostGauge(metrics.CacheCostGauge)
	return &LFU{cache: cache}, nil
}

// Get implements statsCacheInner
func (s *LFU) Get(key internal.Key) (internal.Item, bool) {
	return s.cache.Get(key)
}

// Put implements statsCacheInner
func (s *LFU) Put(key internal.Key, item internal.Item) bool {
	return s.cache.Put(key, item)
}

// Del implements statsCacheInner
func (s *LFU) Del(key internal.Key) {
	s.cache.Del(key)
}

// Cost implements statsCacheInner
func (s *LFU) Cost() int64 {
	return s.cache.Cost()
}

// Keys implements statsCacheInner
func (s *LFU) Keys() []internal.Key {
	return s.cache.Keys()
}

// Len implements statsCacheInner
func (s *LFU) Len() int {
	return s.cache.Len()
}

// SetCapacity implements statsCacheInner
func (s *LFU) SetCapacity(maxCost int64) {
	s.cache.SetCapacity(maxCost)
}

// wait blocks until all buffered writes have been applied. It is only used
// in tests.
func (s *LFU) wait() {
	s.cache.Wait()
}

// Clear implements statsCacheInner
func (s *LFU) Clear() {
	s.cache.Clear()
}

// Close implements statsCacheInner
func (s *LFU) Close() {
	s.cache.Close()
}
