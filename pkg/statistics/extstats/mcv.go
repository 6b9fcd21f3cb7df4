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
	"slices"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"go.uber.org/zap"
)

const (
	// MCVMagic marks a serialized MCVList.
	MCVMagic uint32 = 0xE1A651C2
	// MCVTypeBasic is the only known MCVList format.
	MCVTypeBasic uint32 = 1
	// MaxMCVItems is the maximum length of an MCV list.
	MaxMCVItems = 10000
)

// MCVItem is one combination of values with its frequency.
type MCVItem struct {
	Frequency float64
	// BaseFrequency is the frequency expected under independence of the keys.
	BaseFrequency float64
	IsNull        []bool
	Values        []types.Datum
}

// MCVList is a list of the most common combinations of values, sorted by
// frequency in descending order.
type MCVList struct {
	Magic       uint32
	Type        uint32
	NDimensions int
	Types       []types.TypeID
	Items       []*MCVItem

	// arena owns the by-reference values of a deserialized list.
	arena []byte
}

// TotalFrequency returns the sum of the item frequencies.
func (m *MCVList) TotalFrequency() float64 {
	total := 0.0
	for _, item := range m.Items {
		total += item.Frequency
	}
	return total
}

// MinCountForMCVList returns the minimum number of sample rows a value
// combination must appear in to be worth keeping: values seen less often
// have a relative standard error above 20%.
func MinCountForMCVList(sampleRows int, totalRows float64) float64 {
	n := float64(sampleRows)
	numer := n * (totalRows - n)
	denom := totalRows - n + 0.04*n*(totalRows-1)
	if denom == 0 {
		return 0
	}
	return numer / denom
}

// BuildMCVList builds the list of the most common value combinations of
// data. At most target items are kept. It returns nil when no combination is
// common enough.
func (b *Builder) BuildMCVList(ctx context.Context, data *StatsBuildData, totalRows float64, target int) (*MCVList, error) {
	if err := b.checkTypes(data); err != nil {
		return nil, err
	}
	n := data.NumAttrs()
	dims := make([]int, n)
	for i := range dims {
		dims[i] = i
	}
	tps, mss, err := b.dimSupport(data, dims)
	if err != nil {
		return nil, err
	}
	items, err := b.BuildSortedItems(ctx, data, tps, mss, dims)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	groups, err := b.buildDistinctGroups(ctx, items, mss)
	if err != nil {
		return nil, err
	}

	nitems := min(target, len(groups))
	if nitems > MaxMCVItems {
		logutil.StatsLoggerWithContext(ctx).Warn("clip MCV list",
			zap.Error(exterrors.ErrTruncated.FastGenByArgs(nitems, MaxMCVItems)))
		nitems = MaxMCVItems
	}
	mincount := MinCountForMCVList(data.NumRows, totalRows)
	for i := 0; i < nitems; i++ {
		if float64(groups[i].Count) < mincount {
			nitems = i
			break
		}
	}
	if nitems <= 0 {
		return nil, nil
	}

	freqs := buildColumnFrequencies(groups, mss)
	mcv := &MCVList{
		Magic:       MCVMagic,
		Type:        MCVTypeBasic,
		NDimensions: n,
		Types:       make([]types.TypeID, n),
		Items:       make([]*MCVItem, nitems),
	}
	for d := range n {
		mcv.Types[d] = data.Stats[d].TypeID
	}
	numRows := float64(data.NumRows)
	for i := range nitems {
		group := &groups[i]
		item := &MCVItem{
			Frequency:     float64(group.Count) / numRows,
			BaseFrequency: 1,
			IsNull:        slices.Clone(group.IsNull),
			Values:        make([]types.Datum, n),
		}
		for d := range n {
			if !group.IsNull[d] {
				group.Values[d].Copy(&item.Values[d])
			}
			idx, found := slices.BinarySearchFunc(freqs[d], group, func(x SortItem, t *SortItem) int {
				return mss.CompareDim(d, &x, t)
			})
			if !found {
				return nil, exterrors.ErrInternal.GenWithStackByArgs("MCV value missing from column frequencies")
			}
			item.BaseFrequency *= float64(freqs[d][idx].Count) / numRows
		}
		mcv.Items[i] = item
	}
	return mcv, nil
}

// buildDistinctGroups collapses the sorted items into groups and orders them
// by count, the most common first.
func (b *Builder) buildDistinctGroups(ctx context.Context, items []SortItem, mss *MultiSortSupport) ([]SortItem, error) {
	groups := make([]SortItem, 0, len(items))
	groups = append(groups, items[0])
	for i := 1; i < len(items); i++ {
		if i%b.cancelCheckInterval() == 0 {
			if err := checkCanceled(ctx); err != nil {
				return nil, err
			}
		}
		c := mss.Compare(&items[i-1], &items[i])
		if c > 0 {
			return nil, exterrors.ErrInternal.GenWithStackByArgs("sample items are not sorted")
		}
		if c == 0 {
			groups[len(groups)-1].Count++
			continue
		}
		groups = append(groups, items[i])
	}
	slices.SortStableFunc(groups, func(x, y SortItem) int {
		return y.Count - x.Count
	})
	return groups, nil
}

// buildColumnFrequencies returns, per dimension, the distinct values found
// in groups sorted by that dimension, with the number of sample rows
// holding each of them.
func buildColumnFrequencies(groups []SortItem, mss *MultiSortSupport) [][]SortItem {
	ndims := mss.NDims()
	result := make([][]SortItem, ndims)
	for d := range ndims {
		column := slices.Clone(groups)
		slices.SortFunc(column, func(x, y SortItem) int {
			return mss.CompareDim(d, &x, &y)
		})
		j := 0
		for i := 1; i < len(column); i++ {
			if mss.CompareDim(d, &column[j], &column[i]) == 0 {
				column[j].Count += column[i].Count
				continue
			}
			j++
			column[j] = column[i]
		}
		result[d] = column[:j+1]
	}
	return result
}
