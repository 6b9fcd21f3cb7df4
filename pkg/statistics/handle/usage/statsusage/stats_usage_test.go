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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	now := start
	c.now = func() time.Time { return now }

	c.Record(1)
	now = now.Add(time.Hour)
	c.Record(1)
	c.Record(2)

	info, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, int64(2), info.Count)
	require.Equal(t, start.Add(time.Hour), info.LastUsedAt)
	_, ok = c.Get(3)
	require.False(t, ok)

	snapshot := c.Snapshot()
	require.Len(t, snapshot, 2)
	c.Record(2)
	require.Equal(t, int64(1), snapshot[2].Count)

	require.Equal(t, []int64{3, 4}, c.UnusedSince([]int64{4, 1, 3, 2}, start.Add(time.Minute)))
	require.Equal(t, []int64{1, 2, 3}, c.UnusedSince([]int64{3, 2, 1}, start.Add(2*time.Hour)))

	c.Forget(1)
	_, ok = c.Get(1)
	require.False(t, ok)
}
