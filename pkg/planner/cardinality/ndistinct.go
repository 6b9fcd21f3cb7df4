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

package cardinality

import (
	"fmt"

	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/statistics/handle/metrics"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"go.uber.org/zap"
)

// groupItemRef returns the reference of a grouping item in stat: the column
// number for a covered column, -(i+1) for stored expression i, or 0.
func groupItemRef(stat *extstats.StatisticExtInfo, item expression.Expr) int {
	if v, ok := expression.StripRelabel(item).(*expression.Var); ok {
		if v.AttNo > 0 && stat.Keys.Contains(int(v.AttNo)) {
			return int(v.AttNo)
		}
		return 0
	}
	return int(stat.MatchExpr(item))
}

// EstimateMultivariateNDistinct estimates the number of groups of the
// grouping items of rel with its n-distinct statistics. It picks the object
// matching the most expressions, then the most columns, and returns the
// estimate for the matched items together with the items left for the caller
// to estimate. ok is false when no object matches at least two items.
func (sctx *SelectivityContext) EstimateMultivariateNDistinct(rel *RelOptInfo, items []expression.Expr) (ndistinct float64, remaining []expression.Expr, ok bool) {
	var (
		best        *extstats.StatisticExtInfo
		bestVars    int
		bestExprs   int
		matchedRefs []int
	)
	for _, stat := range rel.Stats {
		if stat.Kind != extstats.KindNDistinct || stat.Inherit != rel.Inherit {
			continue
		}
		vars, exprs := extstats.NewAttrSet(), extstats.NewAttrSet()
		for _, item := range items {
			switch ref := groupItemRef(stat, item); {
			case ref > 0:
				vars.Add(ref)
			case ref < 0:
				exprs.Add(-ref)
			}
		}
		nvars, nexprs := vars.Len(), exprs.Len()
		if nvars+nexprs < 2 {
			continue
		}
		if nexprs > bestExprs || (nexprs == bestExprs && nvars > bestVars) {
			best, bestVars, bestExprs = stat, nvars, nexprs
		}
	}
	if best == nil {
		return 0, items, false
	}

	stats, err := sctx.Loader.LoadNDistinct(sctx.context(), best.StatOID, best.Inherit)
	if err == nil && stats == nil {
		err = exterrors.ErrStatsKindNotBuilt.GenWithStackByArgs(best.StatOID, extstats.KindNameNDistinct)
	}
	if err != nil {
		metrics.EstimateFailedCounter.Inc()
		sctx.logger().Warn("load n-distinct statistics failed", zap.Int64("statOID", best.StatOID), zap.Error(err))
		return 0, items, false
	}

	offset := len(best.Exprs) + 1
	matched := extstats.NewAttrSet()
	for _, item := range items {
		ref := groupItemRef(best, item)
		if ref == 0 {
			remaining = append(remaining, item)
			continue
		}
		matchedRefs = append(matchedRefs, ref)
		matched.Add(ref + offset)
	}

	for _, nd := range stats.Items {
		if len(nd.Attributes) != matched.Len() {
			continue
		}
		found := true
		for _, a := range nd.Attributes {
			if !matched.Contains(int(a) + offset) {
				found = false
				break
			}
		}
		if found {
			metrics.EstimateNDistinctCounter.Inc()
			return nd.NDistinct, remaining, true
		}
	}
	metrics.EstimateFailedCounter.Inc()
	sctx.logger().Error("n-distinct statistics miss a combination",
		zap.Int64("statOID", best.StatOID), zap.Ints("refs", matchedRefs),
		zap.Error(exterrors.ErrBadBlob.GenWithStackByArgs(extstats.KindNameNDistinct,
			fmt.Sprintf("no item for %d attributes", matched.Len()))))
	return 0, items, false
}
