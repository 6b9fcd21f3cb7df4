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

package mapcache

import (
	"sync"

	"github.com/pingcap/extstats/pkg/statistics/handle/cache/internal"
	"github.com/pingcap/extstats/pkg/statistics/handle/metrics"
)

type cacheItem struct {
	value internal.Item
	cost  int64
}

// MapCache is an unbounded cache based on map.
type MapCache struct {
	mu       sync.RWMutex
	items    map[internal.Key]cacheItem
	memUsage int64
}

// NewMapCache creates a new map cache.
func NewMapCache() *MapCache {
	return &MapCache{
		items: make(map[internal.Key]cacheItem),
	}
}

// Get implements StatsCacheInner
func (m *MapCache) Get(k internal.Key) (internal.Item, bool) {
	m.mu.RLock()
	v, ok := m.items[k]
	m.mu.RUnlock()
	if ok {
		metrics.CacheHitCounter.Inc()
	} else {
		metrics.CacheMissCounter.Inc()
	}
	return v.value, ok
}

// Put implements StatsCacheInner
func (m *MapCache) Put(k internal.Key, v internal.Item) bool {
	cost := v.MemSize()
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[k]; ok {
		m.memUsage -= item.cost
	}
	m.items[k] = cacheItem{value: v, cost: cost}
	m.memUsage += cost
	metrics.CacheCostGauge.Set(float64(m.memUsage))
	return true
}

// Del implements StatsCacheInner
func (m *MapCache) Del(k internal.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[k]
	if !ok {
		return
	}
	delete(m.items, k)
	m.memUsage -= item.cost
	metrics.CacheCostGauge.Set(float64(m.memUsage))
}

// Cost implements StatsCacheInner
func (m *MapCache) Cost() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.memUsage
}

// Keys implements StatsCacheInner
func (m *MapCache) Keys() []internal.Key {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ks := make([]internal.Key, 0, len(m.items))
	for k := range m.items {
		ks = append(ks, k)
	}
	return ks
}

// Len implements StatsCacheInner
func (m *MapCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// SetCapacity implements StatsCacheInner
func (*MapCache) SetCapacity(int64) {}

// Clear implements StatsCacheInner
func (m *MapCache) Clear() {
	m.mu.Lock()
	m.items = make(map[internal.Key]cacheItem)
	m.memUsage = 0
	m.mu.Unlock()
	metrics.CacheCostGauge.Set(0)
}

// Close implements StatsCacheInner
func (*MapCache) Close() {}
