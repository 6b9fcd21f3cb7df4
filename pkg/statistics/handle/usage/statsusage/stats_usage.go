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

package statsusage

import (
	"slices"
	"sync"
	"time"
)

// UsageInfo is how the estimator used one statistics object.
type UsageInfo struct {
	LastUsedAt time.Time
	Count      int64
}

// Collector records which statistics objects the estimator loads, so that
// unused objects can be found.
type Collector struct {
	mu    sync.Mutex
	items map[int64]*UsageInfo
	now   func() time.Time
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		items: make(map[int64]*UsageInfo),
		now:   time.Now,
	}
}

// Record notes one use of the object.
func (c *Collector) Record(statOID int64) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.items[statOID]
	if !ok {
		info = &UsageInfo{}
		c.items[statOID] = info
	}
	info.Count++
	info.LastUsedAt = now
}

// Get returns the usage of the object.
func (c *Collector) Get(statOID int64) (UsageInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.items[statOID]
	if !ok {
		return UsageInfo{}, false
	}
	return *info, true
}

// Snapshot returns a copy of the usage of every object.
func (c *Collector) Snapshot() map[int64]UsageInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make(map[int64]UsageInfo, len(c.items))
	for id, info := range c.items {
		result[id] = *info
	}
	return result
}

// Forget drops the usage of a deleted object.
func (c *Collector) Forget(statOID int64) {
	c.mu.Lock()
	delete(c.items, statOID)
	c.mu.Unlock()
}

// UnusedSince returns the objects of candidates not used since t, in
// ascending order.
func (c *Collector) UnusedSince(candidates []int64, t time.Time) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var unused []int64
	for _, id := range candidates {
		if info, ok := c.items[id]; !ok || info.LastUsedAt.Before(t) {
			unused = append(unused, id)
		}
	}
	slices.Sort(unused)
	return unused
}
