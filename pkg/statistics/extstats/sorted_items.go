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

	"github.com/pingcap/extstats/pkg/statistics/handle/logutil"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"go.uber.org/zap"
)

// BuildSortedItems materializes the sample restricted to dims and sorts it
// with mss, which must describe dims in the same order. A row is skipped when
// any of its variable-length values is wider than the width threshold.
// It returns nil when every row is skipped.
func (b *Builder) BuildSortedItems(ctx context.Context, data *StatsBuildData, tps []*types.TypeInfo,
	mss *MultiSortSupport, dims []int) ([]SortItem, error) {
	k := len(dims)
	// One backing array for all values and null flags.
	values := make([]types.Datum, data.NumRows*k)
	isnull := make([]bool, data.NumRows*k)
	items := make([]SortItem, 0, data.NumRows)

	threshold := b.WidthThreshold
	if threshold <= 0 {
		threshold = DefaultWidthThreshold
	}
	skipped := 0
	for r := 0; r < data.NumRows; r++ {
		if r%b.cancelCheckInterval() == 0 {
			if err := checkCanceled(ctx); err != nil {
				return nil, err
			}
		}
		off := len(items) * k
		toowide := false
		for j, dim := range dims {
			if data.Nulls[dim][r] {
				isnull[off+j] = true
				values[off+j] = types.Datum{}
				continue
			}
			v := data.Values[dim][r]
			if tps[j].IsVarlena() {
				if tps[j].RawSize(v) > threshold {
					toowide = true
					break
				}
				// Own the bytes so the item outlives the sample buffer.
				v.Copy(&values[off+j])
			} else {
				values[off+j] = v
			}
			isnull[off+j] = false
		}
		if toowide {
			skipped++
			continue
		}
		items = append(items, SortItem{
			Values: values[off : off+k : off+k],
			IsNull: isnull[off : off+k : off+k],
			Count:  1,
		})
	}
	if skipped > 0 {
		logutil.StatsLoggerWithContext(ctx).Debug("skipped too wide sample rows",
			zap.Int("skipped", skipped), zap.Int("rows", data.NumRows), zap.Int("threshold", threshold))
	}
	if len(items) == 0 {
		return nil, nil
	}
	if err := b.sortItems(ctx, items, mss); err != nil {
		return nil, err
	}
	return items, nil
}

// sortItems sorts items and polls ctx every cancelCheckInterval comparisons.
// Once canceled, the comparator degenerates so the sort finishes quickly.
func (b *Builder) sortItems(ctx context.Context, items []SortItem, mss *MultiSortSupport) error {
	interval := b.cancelCheckInterval()
	ncmp := 0
	canceled := false
	slices.SortFunc(items, func(x, y SortItem) int {
		if canceled {
			return 0
		}
		ncmp++
		if ncmp%interval == 0 && ctx.Err() != nil {
			canceled = true
			return 0
		}
		return mss.Compare(&x, &y)
	})
	if canceled || ctx.Err() != nil {
		return exterrors.ErrCancelRequested.GenWithStackByArgs()
	}
	return nil
}
