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

package priorityqueue_test

import (
	"testing"

	"github.com/pingcap/extstats/pkg/statistics/handle/autoanalyze/priorityqueue"
	"github.com/stretchr/testify/require"
)

func job(relID int64, weight float64) *priorityqueue.AnalysisJob {
	return &priorityqueue.AnalysisJob{JobKey: priorityqueue.JobKey{RelID: relID}, Weight: weight}
}

func TestCallAPIOnEmptyQueue(t *testing.T) {
	pq := priorityqueue.NewAnalysisPriorityQueue()

	t.Run("IsEmpty", func(t *testing.T) {
		require.True(t, pq.IsEmpty())
	})

	t.Run("Pop", func(t *testing.T) {
		poppedJob, ok := pq.Pop()
		require.False(t, ok)
		require.Nil(t, poppedJob)
	})

	t.Run("Peek", func(t *testing.T) {
		j, ok := pq.Peek()
		require.False(t, ok)
		require.Nil(t, j)
	})

	t.Run("Remove", func(t *testing.T) {
		pq.Remove(priorityqueue.JobKey{RelID: 1})
		require.Zero(t, pq.Len())
	})
}

func TestAnalysisPriorityQueue(t *testing.T) {
	pq := priorityqueue.NewAnalysisPriorityQueue()
	pq.Push(job(1, 0.5))
	pq.Push(job(2, 2))
	pq.Push(job(3, 1))
	pq.Push(&priorityqueue.AnalysisJob{JobKey: priorityqueue.JobKey{RelID: 3, Inherit: true}, Weight: 0.1})
	require.Equal(t, 4, pq.Len())

	// A job replaces the queued job of the same key.
	pq.Push(job(1, 3))
	require.Equal(t, 4, pq.Len())
	top, ok := pq.Peek()
	require.True(t, ok)
	require.Equal(t, int64(1), top.RelID)

	pq.Remove(priorityqueue.JobKey{RelID: 2})
	var order []int64
	for {
		j, ok := pq.Pop()
		if !ok {
			break
		}
		order = append(order, j.RelID)
	}
	require.Equal(t, []int64{1, 3, 3}, order)
	require.True(t, pq.IsEmpty())
}

func TestCalculateWeight(t *testing.T) {
	c := priorityqueue.NewPriorityCalculator(0.1)
	tests := []struct {
		name    string
		changed float64
		total   float64
		zero    bool
	}{
		{name: "below threshold", changed: 5, total: 100, zero: true},
		{name: "no change", changed: 0, total: 0, zero: true},
		{name: "unknown size", changed: 10, total: 0},
		{name: "above threshold", changed: 50, total: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := c.CalculateWeight(&priorityqueue.AnalysisJob{ChangedRows: tt.changed, TotalRows: tt.total})
			if tt.zero {
				require.Zero(t, w)
			} else {
				require.Greater(t, w, 0.0)
			}
		})
	}

	small := &priorityqueue.AnalysisJob{ChangedRows: 50, TotalRows: 100}
	large := &priorityqueue.AnalysisJob{ChangedRows: 50000, TotalRows: 100000}
	require.Greater(t, c.CalculateWeight(large), c.CalculateWeight(small))
	moreChanged := &priorityqueue.AnalysisJob{ChangedRows: 90, TotalRows: 100}
	require.Greater(t, c.CalculateWeight(moreChanged), c.CalculateWeight(small))
}
