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

package statistics

import (
	"container/heap"
	"math/rand"

	"github.com/pingcap/extstats/pkg/types"
)

// SampleRowsPerTarget is the number of sample rows taken per unit of the
// statistics target.
const SampleRowsPerTarget = 300

// SampleSizeForTarget returns the sample size used for a statistics target.
func SampleSizeForTarget(target int) int {
	if target <= 0 {
		target = 1
	}
	return SampleRowsPerTarget * target
}

// ReservoirRowSampleItem is a sampled row with its random weight.
type ReservoirRowSampleItem struct {
	Columns []types.Datum
	Weight  int64
}

// WeightedRowSampleHeap is a min-heap on the weight of the sampled rows, so
// the row with the smallest weight is the one replaced first.
type WeightedRowSampleHeap []*ReservoirRowSampleItem

// Len implements the heap.Interface interface.
func (h WeightedRowSampleHeap) Len() int {
	return len(h)
}

// Swap implements the heap.Interface interface.
func (h WeightedRowSampleHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Less implements the heap.Interface interface.
func (h WeightedRowSampleHeap) Less(i, j int) bool {
	return h[i].Weight < h[j].Weight
}

// Push implements the heap.Interface interface.
func (h *WeightedRowSampleHeap) Push(i any) {
	*h = append(*h, i.(*ReservoirRowSampleItem))
}

// Pop implements the heap.Interface interface.
func (h *WeightedRowSampleHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// RowSampleCollector keeps a uniform sample of at most MaxSampleSize rows
// with the A-Res algorithm: every row gets a random weight and the rows with
// the largest weights are kept.
type RowSampleCollector struct {
	Samples       WeightedRowSampleHeap
	NullCount     []int64
	TotalSizes    []int64
	Count         int64
	MaxSampleSize int
	rng           *rand.Rand
}

// NewRowSampleCollector creates a collector for rows of totalLen columns.
func NewRowSampleCollector(maxSampleSize, totalLen int, rng *rand.Rand) *RowSampleCollector {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &RowSampleCollector{
		Samples:       make(WeightedRowSampleHeap, 0, maxSampleSize),
		NullCount:     make([]int64, totalLen),
		TotalSizes:    make([]int64, totalLen),
		MaxSampleSize: maxSampleSize,
		rng:           rng,
	}
}

// Collect offers a row to the sample. The row is copied when it is kept.
func (c *RowSampleCollector) Collect(reg *types.Registry, schema []types.TypeID, row []types.Datum) {
	c.Count++
	for i, d := range row {
		if i >= len(c.NullCount) {
			break
		}
		if d.IsNull() {
			c.NullCount[i]++
			continue
		}
		if i < len(schema) {
			if tp, err := reg.Lookup(schema[i]); err == nil {
				c.TotalSizes[i] += int64(tp.RawSize(d))
			}
		}
	}
	weight := c.rng.Int63()
	if len(c.Samples) < c.MaxSampleSize {
		heap.Push(&c.Samples, &ReservoirRowSampleItem{Columns: copyRow(row), Weight: weight})
		return
	}
	if c.MaxSampleSize > 0 && c.Samples[0].Weight < weight {
		c.Samples[0] = &ReservoirRowSampleItem{Columns: copyRow(row), Weight: weight}
		heap.Fix(&c.Samples, 0)
	}
}

// MergeCollector merges the sample of another collector over the same
// columns into c.
func (c *RowSampleCollector) MergeCollector(other *RowSampleCollector) {
	c.Count += other.Count
	for i := range other.NullCount {
		if i < len(c.NullCount) {
			c.NullCount[i] += other.NullCount[i]
			c.TotalSizes[i] += other.TotalSizes[i]
		}
	}
	for _, item := range other.Samples {
		if len(c.Samples) < c.MaxSampleSize {
			heap.Push(&c.Samples, item)
			continue
		}
		if c.MaxSampleSize > 0 && c.Samples[0].Weight < item.Weight {
			c.Samples[0] = item
			heap.Fix(&c.Samples, 0)
		}
	}
}

// Rows returns the sampled rows.
func (c *RowSampleCollector) Rows() [][]types.Datum {
	rows := make([][]types.Datum, 0, len(c.Samples))
	for _, item := range c.Samples {
		rows = append(rows, item.Columns)
	}
	return rows
}

func copyRow(row []types.Datum) []types.Datum {
	out := make([]types.Datum, len(row))
	for i := range row {
		row[i].Copy(&out[i])
	}
	return out
}
