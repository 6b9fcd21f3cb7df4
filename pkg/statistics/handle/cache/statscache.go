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
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/statistics/handle/cache/internal"
	"github.com/pingcap/extstats/pkg/statistics/handle/cache/internal/lfu"
	"github.com/pingcap/extstats/pkg/statistics/handle/cache/internal/mapcache"
)

// Key identifies one kind of data of a statistics object.
type Key = internal.Key

// StatsCache caches deserialized extended statistics, so that estimation does
// not decode a blob on every call.
type StatsCache struct {
	c internal.StatsCacheInner
}

// NewStatsCache creates a cache bounded to capacity bytes. A capacity of 0
// creates an unbounded cache.
func NewStatsCache(capacity, numCounters int64) (*StatsCache, error) {
	if capacity <= 0 {
		return &StatsCache{c: mapcache.NewMapCache()}, nil
	}
	c, err := lfu.NewLFU(capacity, numCounters)
	if err != nil {
		return nil, err
	}
	return &StatsCache{c: c}, nil
}

func get[T internal.Item](s *StatsCache, statOID int64, inherit bool, kind extstats.StatsKind) (T, bool) {
	item, ok := s.c.Get(Key{StatOID: statOID, Inherit: inherit, Kind: kind})
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := item.(T)
	return v, ok
}

// GetNDistinct returns the cached n-distinct coefficients of an object.
func (s *StatsCache) GetNDistinct(statOID int64, inherit bool) (*extstats.MVNDistinct, bool) {
	return get[*extstats.MVNDistinct](s, statOID, inherit, extstats.KindNDistinct)
}

// GetDependencies returns the cached functional dependencies of an object.
func (s *StatsCache) GetDependencies(statOID int64, inherit bool) (*extstats.MVDependencies, bool) {
	return get[*extstats.MVDependencies](s, statOID, inherit, extstats.KindDependencies)
}

// GetMCV returns the cached MCV list of an object.
func (s *StatsCache) GetMCV(statOID int64, inherit bool) (*extstats.MCVList, bool) {
	return get[*extstats.MCVList](s, statOID, inherit, extstats.KindMCV)
}

// Put caches item, which must be of the type matching kind.
func (s *StatsCache) Put(statOID int64, inherit bool, kind extstats.StatsKind, item internal.Item) bool {
	return s.c.Put(Key{StatOID: statOID, Inherit: inherit, Kind: kind}, item)
}

// Invalidate drops every cached kind of the object.
func (s *StatsCache) Invalidate(statOID int64) {
	for _, inherit := range []bool{false, true} {
		for _, kind := range extstats.AllKinds {
			s.c.Del(Key{StatOID: statOID, Inherit: inherit, Kind: kind})
		}
	}
}

// Keys returns the cached keys.
func (s *StatsCache) Keys() []Key {
	return s.c.Keys()
}

// Len returns the number of cached items.
func (s *StatsCache) Len() int {
	return s.c.Len()
}

// Cost returns the memory used by the cached items.
func (s *StatsCache) Cost() int64 {
	return s.c.Cost()
}

// SetCapacity changes the memory capacity. It has no effect on an unbounded
// cache.
func (s *StatsCache) SetCapacity(capacity int64) {
	s.c.SetCapacity(capacity)
}

// Clear drops every cached item.
func (s *StatsCache) Clear() {
	s.c.Clear()
}

// Close releases the cache.
func (s *StatsCache) Close() {
	s.c.Close()
}
