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

package internal

import (
	"encoding/binary"

	"github.com/dgryski/go-farm"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/twmb/murmur3"
)

// Key identifies one kind of data of a statistics object.
type Key struct {
	StatOID int64
	Inherit bool
	Kind    extstats.StatsKind
}

// Hash returns two independent hashes of the key.
func (k Key) Hash() (uint64, uint64) {
	var b [10]byte
	binary.BigEndian.PutUint64(b[:8], uint64(k.StatOID))
	if k.Inherit {
		b[8] = 1
	}
	b[9] = byte(k.Kind)
	return farm.Fingerprint64(b[:]), murmur3.Sum64(b[:])
}

// Item is a deserialized statistics value: *extstats.MVNDistinct,
// *extstats.MVDependencies or *extstats.MCVList.
type Item interface {
	MemSize() int64
}

// StatsCacheInner is the interface to manage the statsCache, it can be implemented by map, lru cache or other structures.
type StatsCacheInner interface {
	// Get gets the cached item of key.
	Get(key Key) (Item, bool)
	// Put puts the item into the cache. It returns false when the item was
	// not admitted.
	Put(key Key, item Item) bool
	// Del deletes the item of key.
	Del(key Key)
	// Cost returns the memory usage of the cache.
	Cost() int64
	// Keys returns all cached keys.
	Keys() []Key
	// Len returns the number of cached items.
	Len() int
	// SetCapacity sets the memory capacity of the cache.
	SetCapacity(int64)
	// Clear removes every item.
	Clear()
	// Close stops the cache.
	Close()
}
