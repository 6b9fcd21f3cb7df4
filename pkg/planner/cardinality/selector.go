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
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
)

// statCoversExpressions reports whether every expression in exprs matches a
// stored expression of stat, adding the matched positions to covered.
func statCoversExpressions(stat *extstats.StatisticExtInfo, exprs []expression.Expr, covered *extstats.AttrSet) bool {
	for _, e := range exprs {
		ref := stat.MatchExpr(e)
		if ref == 0 {
			return false
		}
		if covered != nil {
			covered.Add(int(-ref) - 1)
		}
	}
	return true
}

// coveredBy reports whether the clause is fully covered by stat.
func (ci *ClauseInfo) coveredBy(stat *extstats.StatisticExtInfo, coveredExprs *extstats.AttrSet) bool {
	return ci.Attnums.IsSubsetOf(stat.Keys) && statCoversExpressions(stat, ci.Exprs, coveredExprs)
}

// ChooseBestStatistics picks the statistics object of kind covering the most
// columns and expressions of the remaining clauses. A nil entry of clauses
// marks a clause that is incompatible or already estimated. Objects covering
// fewer than two things are never chosen, and on ties the object with fewer
// keys wins.
func ChooseBestStatistics(stats []*extstats.StatisticExtInfo, kind extstats.StatsKind, inherit bool,
	clauses []*ClauseInfo) *extstats.StatisticExtInfo {
	var best *extstats.StatisticExtInfo
	bestMatched := 2
	bestKeys := extstats.MaxStatsDimensions + 1
	for _, stat := range stats {
		if stat.Kind != kind || stat.Inherit != inherit {
			continue
		}
		matchedAttnums := extstats.NewAttrSet()
		matchedExprs := extstats.NewAttrSet()
		for _, ci := range clauses {
			if ci.isEmpty() {
				continue
			}
			exprIdx := extstats.NewAttrSet()
			if !ci.coveredBy(stat, exprIdx) {
				continue
			}
			matchedAttnums = matchedAttnums.Union(ci.Attnums)
			matchedExprs = matchedExprs.Union(exprIdx)
		}
		matched := matchedAttnums.Len() + matchedExprs.Len()
		numKeys := stat.NumKeys()
		if matched > bestMatched || (matched == bestMatched && numKeys < bestKeys) {
			best, bestMatched, bestKeys = stat, matched, numKeys
		}
	}
	return best
}
