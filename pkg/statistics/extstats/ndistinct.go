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

package extstats

import (
	"context"
	"math"

	"github.com/pingcap/errors"
)

const (
	// NDistinctMagic marks a serialized MVNDistinct.
	NDistinctMagic uint32 = 0xA352BFA4
	// NDistinctTypeBasic is the only known MVNDistinct format.
	NDistinctTypeBasic uint32 = 1
)

// MVNDistinctItem is the estimated number of distinct combinations of one
// attribute subset.
type MVNDistinctItem struct {
	NDistinct  float64
	Attributes []int16
}

// MVNDistinct holds n-distinct coefficients for every subset of at least two
// keys of a statistics object.
type MVNDistinct struct {
	Magic uint32
	Type  uint32
	Items []MVNDistinctItem
}

// NumNDistinctItems returns the number of items built for n keys: every
// subset except the empty set and the singletons.
func NumNDistinctItems(n int) int {
	return (1 << n) - (n + 1)
}

// BuildNDistinct estimates the number of distinct combinations of every
// subset of at least two dimensions of data in a relation of totalRows rows.
func (b *Builder) BuildNDistinct(ctx context.Context, totalRows float64, data *StatsBuildData) (*MVNDistinct, error) {
	if err := b.checkTypes(data); err != nil {
		return nil, err
	}
	n := data.NumAttrs()
	result := &MVNDistinct{
		Magic: NDistinctMagic,
		Type:  NDistinctTypeBasic,
		Items: make([]MVNDistinctItem, 0, max(NumNDistinctItems(n), 0)),
	}
	for k := 2; k <= n; k++ {
		gen, err := GenerateCombinations(n, k)
		if err != nil {
			return nil, err
		}
		for combination := gen.Next(); combination != nil; combination = gen.Next() {
			if err := checkCanceled(ctx); err != nil {
				return nil, err
			}
			ndistinct, err := b.ndistinctForCombination(ctx, totalRows, data, combination)
			if err != nil {
				return nil, errors.Trace(err)
			}
			attrs := make([]int16, k)
			for i, dim := range combination {
				attrs[i] = data.AttNums[dim]
			}
			result.Items = append(result.Items, MVNDistinctItem{NDistinct: ndistinct, Attributes: attrs})
		}
	}
	return result, nil
}

func (b *Builder) ndistinctForCombination(ctx context.Context, totalRows float64, data *StatsBuildData, dims []int) (float64, error) {
	tps, mss, err := b.dimSupport(data, dims)
	if err != nil {
		return 0, err
	}
	items, err := b.BuildSortedItems(ctx, data, tps, mss, dims)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 1, nil
	}
	// Count the groups and the groups seen exactly once.
	d, f1, cnt := 1, 0, 1
	for i := 1; i < len(items); i++ {
		if mss.Compare(&items[i-1], &items[i]) != 0 {
			if cnt == 1 {
				f1++
			}
			d++
			cnt = 0
		}
		cnt++
	}
	if cnt == 1 {
		f1++
	}
	return EstimateNDistinct(totalRows, len(items), d, f1), nil
}

// EstimateNDistinct extrapolates the d distinct values of a sample of
// numRows rows, f1 of which were seen once, to a relation of totalRows rows
// with the Duj1 estimator. The result is at least 1.
func EstimateNDistinct(totalRows float64, numRows, d, f1 int) float64 {
	if numRows <= 0 || d <= 0 || !(totalRows >= 1) {
		return max(float64(d), 1)
	}
	n := float64(numRows)
	numer := n * float64(d)
	denom := (n - float64(f1)) + float64(f1)*n/totalRows
	ndistinct := numer / denom
	if math.IsNaN(ndistinct) || ndistinct < float64(d) {
		ndistinct = float64(d)
	}
	if ndistinct > totalRows {
		ndistinct = totalRows
	}
	return max(math.Floor(ndistinct+0.5), 1)
}
