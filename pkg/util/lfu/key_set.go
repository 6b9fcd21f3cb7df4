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
	"sync"
)

type keyValue[K comparable, V Value] struct {
	key   K
	value V
}

// keySet tracks the entries admitted into the ristretto cache by key hash.
// ristretto only hands the hash back on eviction, and cannot list its keys.
type keySet[K comparable, V Value] struct {
	set map[uint64]keyValue[K, V]
	mu  sync.RWMutex
}

func newKeySet[K comparable, V Value]() *keySet[K, V] {
	return &keySet[K, V]{set: make(map[uint64]keyValue[K, V])}
}

// Remove deletes the entry of hash and returns its cost.
func (ks *keySet[K, V]) Remove(hash uint64) int64 {
	var cost int64
	ks.mu.Lock()
	if kv, ok := ks.set[hash]; ok {
		cost = kv.value.MemSize()
		delete(ks.set, hash)
	}
	ks.mu.Unlock()
	return cost
}

func (ks *keySet[K, V]) Keys() []K {
	ks.mu.RLock()
	result := make([]K, 0, len(ks.set))
	for _, kv := range ks.set {
		result = append(result, kv.key)
	}
	ks.mu.RUnlock()
	return result
}

func (ks *keySet[K, V]) Values() []V {
	ks.mu.RLock()
	result := make([]V, 0, len(ks.set))
	for _, kv := range ks.set {
		result = append(result, kv.value)
	}
	ks.mu.RUnlock()
	return result
}

func (ks *keySet[K, V]) Len() int {
	ks.mu.RLock()
	result := len(ks.set)
	ks.mu.RUnlock()
	return result
}

// AddKeyValue stores the entry and returns the cost of the entry it
// replaced, if any.
func (ks *keySet[K, V]) AddKeyValue(hash uint64, key K, value V) int64 {
	var old int64
	ks.mu.Lock()
	if kv, ok := ks.set[hash]; ok {
		old = kv.value.MemSize()
	}
	ks.set[hash] = keyValue[K, V]{key: key, value: value}
	ks.mu.Unlock()
	return old
}

func (ks *keySet[K, V]) Get(hash uint64, key K) (V, bool) {
	ks.mu.RLock()
	kv, ok := ks.set[hash]
	ks.mu.RUnlock()
	if !ok || kv.key != key {
		var zero V
		return zero, false
	}
	return kv.value, true
}

func (ks *keySet[K, V]) Clear() {
	ks.mu.Lock()
	ks.set = make(map[uint64]keyValue[K, V])
	ks.mu.Unlock()
}
