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
	"github.com/dgraph-io/ristretto"
	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Value is a cached value. MemSize is used as its cost.
type Value interface {
	MemSize() int64
}

// LFU is a cost bounded cache based on ristretto. Entries are also kept in a
// key set so that a Put is visible to the next Get before ristretto applies
// it, and so that the cached keys can be listed.
type LFU[K comparable, V Value] struct {
	cache        *ristretto.Cache
	resultKeySet *keySet[K, V]
	keyToHash    func(K) (uint64, uint64)
	cost         atomic.Int64

	hitCounter  prometheus.Counter
	missCounter prometheus.Counter
	costGauge   prometheus.Gauge
}

// NewLFU creates an LFU holding at most totalMemCost bytes. keyToHash must
// return two independent hashes of a key.
func NewLFU[K comparable, V Value](totalMemCost, numCounters int64, keyToHash func(K) (uint64, uint64)) (*LFU[K, V], error) {
	result := &LFU[K, V]{
		resultKeySet: newKeySet[K, V](),
		keyToHash:    keyToHash,
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     totalMemCost,
		BufferItems: 64,
		OnEvict:     result.onEvict,
		OnReject:    result.onReject,
		KeyToHash: func(key any) (uint64, uint64) {
			return keyToHash(key.(K))
		},
		IgnoreInternalCost: true,
		Metrics:            true,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	result.cache = cache
	return result, nil
}

// RegisterHitCounter registers the counter of cache hits.
func (s *LFU[K, V]) RegisterHitCounter(c prometheus.Counter) {
	s.hitCounter = c
}

// RegisterMissCounter registers the counter of cache misses.
func (s *LFU[K, V]) RegisterMissCounter(c prometheus.Counter) {
	s.missCounter = c
}

// RegisterCostGauge registers the gauge of the cached cost.
func (s *LFU[K, V]) RegisterCostGauge(g prometheus.Gauge) {
	s.costGauge = g
}

// Get returns the value of key.
func (s *LFU[K, V]) Get(key K) (V, bool) {
	if v, ok := s.cache.Get(key); ok {
		s.observe(s.hitCounter)
		return v.(V), true
	}
	hash, _ := s.keyToHash(key)
	v, ok := s.resultKeySet.Get(hash, key)
	if ok {
		s.observe(s.hitCounter)
	} else {
		s.observe(s.missCounter)
	}
	return v, ok
}

// Put stores value under key. It returns false when the value was dropped.
func (s *LFU[K, V]) Put(key K, value V) bool {
	hash, _ := s.keyToHash(key)
	cost := value.MemSize()
	old := s.resultKeySet.AddKeyValue(hash, key, value)
	s.addCost(cost - old)
	if !s.cache.Set(key, value, cost) {
		s.addCost(-s.resultKeySet.Remove(hash))
		return false
	}
	return true
}

// Del removes key.
func (s *LFU[K, V]) Del(key K) {
	s.cache.Del(key)
	hash, _ := s.keyToHash(key)
	s.addCost(-s.resultKeySet.Remove(hash))
}

func (s *LFU[K, V]) onEvict(item *ristretto.Item) {
	if item == nil {
		return
	}
	s.addCost(-s.resultKeySet.Remove(item.Key))
}

func (s *LFU[K, V]) onReject(item *ristretto.Item) {
	s.onEvict(item)
}

func (s *LFU[K, V]) addCost(delta int64) {
	cost := s.cost.Add(delta)
	if s.costGauge != nil {
		s.costGauge.Set(float64(cost))
	}
}

func (*LFU[K, V]) observe(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Cost returns the total cost of the cached values.
func (s *LFU[K, V]) Cost() int64 {
	return s.cost.Load()
}

// Keys returns the cached keys.
func (s *LFU[K, V]) Keys() []K {
	return s.resultKeySet.Keys()
}

// Values returns the cached values.
func (s *LFU[K, V]) Values() []V {
	return s.resultKeySet.Values()
}

// Len returns the number of cached values.
func (s *LFU[K, V]) Len() int {
	return s.resultKeySet.Len()
}

// SetCapacity changes the maximum total cost.
func (s *LFU[K, V]) SetCapacity(maxCost int64) {
	s.cache.UpdateMaxCost(maxCost)
}

// Wait blocks until the buffered writes have been applied.
func (s *LFU[K, V]) Wait() {
	s.cache.Wait()
}

// Metrics returns the ristretto metrics.
func (s *LFU[K, V]) Metrics() *ristretto.Metrics {
	return s.cache.Metrics
}

// Clear removes every value.
func (s *LFU[K, V]) Clear() {
	s.cache.Clear()
	s.resultKeySet.Clear()
	s.cost.Store(0)
	if s.costGauge != nil {
		s.costGauge.Set(0)
	}
}

// Close stops the ristretto goroutines.
func (s *LFU[K, V]) Close() {
	s.cache.Close()
}
