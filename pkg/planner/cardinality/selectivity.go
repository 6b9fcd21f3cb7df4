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
	"slices"

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/statistics/handle/metrics"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
	"go.uber.org/zap"
)

// HasStatsOfKind reports whether any statistics object of stats is of kind.
func HasStatsOfKind(stats []*extstats.StatisticExtInfo, kind extstats.StatsKind) bool {
	return extstats.HasStatsOfKind(stats, kind)
}

// StatextClauselistSelectivity estimates the clauses of rel that extended
// statistics apply to. Clauses whose bit is set in estimated are skipped, and
// the bits of the clauses estimated here are set. For an AND list the result
// is a factor of the overall selectivity, 1.0 when nothing was estimated. For
// an OR list it is the probability of the estimated arms, 0.0 when nothing was
// estimated.
func (sctx *SelectivityContext) StatextClauselistSelectivity(clauses []expression.Expr, rel *RelOptInfo,
	estimated *extstats.AttrSet, isOr bool) float64 {
	sel := sctx.statextMCVClauselistSelectivity(clauses, rel, estimated, isOr)
	if isOr {
		return sel
	}
	return sel * sctx.DependenciesClauselistSelectivity(clauses, rel, estimated)
}

func (sctx *SelectivityContext) statextMCVClauselistSelectivity(clauses []expression.Expr, rel *RelOptInfo,
	estimated *extstats.AttrSet, isOr bool) float64 {
	sel := 1.0
	if isOr {
		sel = 0.0
	}
	if !extstats.HasStatsOfKind(rel.Stats, extstats.KindMCV) {
		return sel
	}

	infos := make([]*ClauseInfo, len(clauses))
	for i, clause := range clauses {
		if estimated.Contains(i) {
			continue
		}
		if info, ok := sctx.RecognizeMCVClause(clause, rel); ok {
			infos[i] = info
		}
	}

	candidates := slices.Clone(rel.Stats)
	for {
		stat := ChooseBestStatistics(candidates, extstats.KindMCV, rel.Inherit, infos)
		if stat == nil {
			break
		}
		var idxs []int
		for i, info := range infos {
			if !info.isEmpty() && info.coveredBy(stat, nil) {
				idxs = append(idxs, i)
			}
		}
		statSel, err := sctx.mcvStatSelectivity(stat, clauses, infos, idxs, isOr)
		if err != nil {
			// Leave the clauses to the simple estimate.
			metrics.EstimateFailedCounter.Inc()
			sctx.logger().Warn("estimate with MCV list failed",
				zap.Int64("statOID", stat.StatOID), zap.Int("relID", rel.RelID), zap.Error(err))
			candidates = slices.DeleteFunc(candidates, func(s *extstats.StatisticExtInfo) bool { return s == stat })
			continue
		}
		for _, i := range idxs {
			estimated.Add(i)
			infos[i] = nil
		}
		metrics.EstimateMCVCounter.Inc()
		// Separate statistics objects are treated as independent.
		if isOr {
			sel = sel + statSel - sel*statSel
		} else {
			sel *= statSel
		}
	}
	return sel
}

func (sctx *SelectivityContext) mcvStatSelectivity(stat *extstats.StatisticExtInfo, clauses []expression.Expr,
	infos []*ClauseInfo, idxs []int, isOr bool) (float64, error) {
	mcv, err := sctx.Loader.LoadMCV(sctx.context(), stat.StatOID, stat.Inherit)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if mcv == nil {
		return 0, exterrors.ErrStatsKindNotBuilt.GenWithStackByArgs(stat.StatOID, extstats.KindNameMCV)
	}
	statClauses := make([]expression.Expr, 0, len(idxs))
	for _, i := range idxs {
		statClauses = append(statClauses, clauses[i])
	}

	if !isOr {
		simpleSel := sctx.simpleSelectivity(statClauses)
		mcvSel, baseSel, totalSel, err := sctx.MCVClauselistSelectivity(statClauses, stat, mcv)
		if err != nil {
			return 0, err
		}
		return MCVCombineSelectivities(simpleSel, mcvSel, baseSel, totalSel), nil
	}

	// OR lists are estimated arm by arm:
	//   P(a OR b) = P(a) + P(b) - P(a AND b)
	// where each arm and each overlap combines its simple and MCV estimates.
	orMatches := make([]bool, len(mcv.Items))
	simpleOrSel, statSel := 0.0, 0.0
	for k, clause := range statClauses {
		simpleSel := sctx.simpleSelectivity([]expression.Expr{clause})
		overlapSimpleSel := simpleOrSel * simpleSel
		simpleOrSel = clampProbability(simpleOrSel + simpleSel - overlapSimpleSel)

		est, err := sctx.MCVClauseSelectivityOr(clause, stat, mcv, orMatches)
		if err != nil {
			return 0, err
		}
		// A single column is better estimated on its own; the overlap always
		// uses the MCV list.
		clauseSel := simpleSel
		if !infos[idxs[k]].isSimple() {
			clauseSel = MCVCombineSelectivities(simpleSel, est.Sel, est.BaseSel, est.TotalSel)
		}
		overlapSel := MCVCombineSelectivities(overlapSimpleSel, est.OverlapSel, est.OverlapBaseSel, est.TotalSel)
		statSel = clampProbability(statSel + clauseSel - overlapSel)
	}
	return statSel, nil
}

// ClauselistSelectivity estimates an AND list of clauses on rel: extended
// statistics estimate what they can and the simple estimate covers the rest.
func (sctx *SelectivityContext) ClauselistSelectivity(clauses []expression.Expr, rel *RelOptInfo) float64 {
	estimated := extstats.NewAttrSet()
	sel := 1.0
	if len(rel.Stats) > 0 {
		sel = sctx.StatextClauselistSelectivity(clauses, rel, estimated, false)
	}
	remaining := make([]expression.Expr, 0, len(clauses))
	for i, clause := range clauses {
		if !estimated.Contains(i) {
			remaining = append(remaining, clause)
		}
	}
	return clampProbability(sel * sctx.simpleSelectivity(remaining))
}

// ClauselistSelectivityOr estimates an OR list of clauses on rel.
func (sctx *SelectivityContext) ClauselistSelectivityOr(clauses []expression.Expr, rel *RelOptInfo) float64 {
	estimated := extstats.NewAttrSet()
	sel := 0.0
	if len(rel.Stats) > 0 {
		sel = sctx.StatextClauselistSelectivity(clauses, rel, estimated, true)
	}
	for i, clause := range clauses {
		if estimated.Contains(i) {
			continue
		}
		s := sctx.simpleSelectivity([]expression.Expr{clause})
		sel = sel + s - sel*s
	}
	return clampProbability(sel)
}
