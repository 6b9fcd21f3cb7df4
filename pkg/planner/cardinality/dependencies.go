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
	"github.com/pingcap/extstats/pkg/statistics/handle/metrics"
	"go.uber.org/zap"
)

// appliedDependency is a dependency with its attributes renumbered into the
// space shared by the clauses: columns are shifted by the offset and
// expressions take offset-1, offset-2, ... by their first clause.
type appliedDependency struct {
	degree     float64
	attributes []int
}

func (d *appliedDependency) implied() int {
	return d.attributes[len(d.attributes)-1]
}

func (d *appliedDependency) fullyMatched(attnums *extstats.AttrSet) bool {
	for _, a := range d.attributes {
		if !attnums.Contains(a) {
			return false
		}
	}
	return true
}

// DependenciesClauselistSelectivity estimates the equality clauses of an AND
// list that functional dependencies of rel apply to. Clauses it estimates are
// added to estimated. It returns 1.0 when no dependency is useful.
func (sctx *SelectivityContext) DependenciesClauselistSelectivity(clauses []expression.Expr, rel *RelOptInfo,
	estimated *extstats.AttrSet) float64 {
	if !extstats.HasStatsOfKind(rel.Stats, extstats.KindDependencies) {
		return 1.0
	}

	// 0 marks a clause that is ignored; expressions get -1, -2, ... first.
	listAttnums := make([]int, len(clauses))
	var uniqueExprs []expression.Expr
	for i, clause := range clauses {
		if estimated.Contains(i) {
			continue
		}
		attnum, expr, ok := sctx.RecognizeDependencyClause(clause, rel)
		if !ok {
			continue
		}
		if expr == nil {
			listAttnums[i] = int(attnum)
			continue
		}
		listAttnums[i] = uniqueExprRef(&uniqueExprs, expr)
	}
	offset := len(uniqueExprs) + 1
	clausesAttnums := extstats.NewAttrSet()
	for i, a := range listAttnums {
		if a == 0 {
			continue
		}
		listAttnums[i] = a + offset
		clausesAttnums.Add(listAttnums[i])
	}
	if clausesAttnums.Len() < 2 {
		return 1.0
	}

	var candidates []*appliedDependency
	for _, stat := range rel.Stats {
		if stat.Kind != extstats.KindDependencies || stat.Inherit != rel.Inherit {
			continue
		}
		nmatched := 0
		for _, k := range stat.Keys.Members() {
			if clausesAttnums.Contains(k + offset) {
				nmatched++
			}
		}
		for _, se := range stat.Exprs {
			if exprRef(uniqueExprs, se) != 0 {
				nmatched++
			}
		}
		if nmatched < 2 {
			continue
		}
		deps, err := sctx.Loader.LoadDependencies(sctx.context(), stat.StatOID, stat.Inherit)
		if err != nil {
			metrics.EstimateFailedCounter.Inc()
			sctx.logger().Warn("load functional dependencies failed",
				zap.Int64("statOID", stat.StatOID), zap.Error(err))
			continue
		}
		if deps == nil {
			continue
		}
		candidates = append(candidates, remapDependencies(deps, stat, uniqueExprs, offset, clausesAttnums)...)
	}
	if len(candidates) == 0 {
		return 1.0
	}

	// Widest and strongest first. Once an attribute is implied it cannot be
	// implied again.
	var chosen []*appliedDependency
	for {
		d := findStrongestDependency(candidates, clausesAttnums)
		if d == nil {
			break
		}
		chosen = append(chosen, d)
		clausesAttnums.Remove(d.implied())
	}
	if len(chosen) == 0 {
		return 1.0
	}
	metrics.EstimateDependenciesCounter.Inc()
	return sctx.applyDependencies(clauses, chosen, listAttnums, estimated)
}

func exprRef(exprs []expression.Expr, e expression.Expr) int {
	for i, u := range exprs {
		if expression.Equal(u, e) {
			return -(i + 1)
		}
	}
	return 0
}

func uniqueExprRef(exprs *[]expression.Expr, e expression.Expr) int {
	if ref := exprRef(*exprs, e); ref != 0 {
		return ref
	}
	*exprs = append(*exprs, e)
	return -len(*exprs)
}

// remapDependencies renumbers the dependencies of stat into the clause space,
// dropping those referencing something no clause constrains. The loaded
// dependencies may be shared, so they are copied.
func remapDependencies(deps *extstats.MVDependencies, stat *extstats.StatisticExtInfo, uniqueExprs []expression.Expr,
	offset int, clausesAttnums *extstats.AttrSet) []*appliedDependency {
	remapped := make([]*appliedDependency, 0, len(deps.Deps))
	for _, dep := range deps.Deps {
		attrs := make([]int, 0, len(dep.Attributes))
		for _, a := range dep.Attributes {
			var mapped int
			if a > 0 {
				mapped = int(a) + offset
			} else {
				idx := -int(a) - 1
				if idx >= len(stat.Exprs) {
					break
				}
				ref := exprRef(uniqueExprs, stat.Exprs[idx])
				if ref == 0 {
					break
				}
				mapped = ref + offset
			}
			if !clausesAttnums.Contains(mapped) {
				break
			}
			attrs = append(attrs, mapped)
		}
		if len(attrs) != len(dep.Attributes) {
			continue
		}
		remapped = append(remapped, &appliedDependency{degree: dep.Degree, attributes: attrs})
	}
	return remapped
}

// findStrongestDependency returns the dependency fully matched by attnums
// with the most attributes, and on ties the highest degree.
func findStrongestDependency(deps []*appliedDependency, attnums *extstats.AttrSet) *appliedDependency {
	var strongest *appliedDependency
	n := attnums.Len()
	for _, d := range deps {
		if len(d.attributes) > n {
			continue
		}
		if strongest != nil {
			if len(d.attributes) < len(strongest.attributes) {
				continue
			}
			if len(d.attributes) == len(strongest.attributes) && strongest.degree > d.degree {
				continue
			}
		}
		if d.fullyMatched(attnums) {
			strongest = d
		}
	}
	return strongest
}

// applyDependencies estimates the clauses on every attribute of deps. The
// per-attribute simple selectivities P(a), P(b) of a dependency a => b with
// degree f are combined as
//
//	P(a,b) = f * Min(P(a), P(b)) + (1-f) * P(a) * P(b)
//
// by replacing P(b) with P(b|a) = P(a,b) / P(a).
func (sctx *SelectivityContext) applyDependencies(clauses []expression.Expr, deps []*appliedDependency,
	listAttnums []int, estimated *extstats.AttrSet) float64 {
	attnums := extstats.NewAttrSet()
	for _, d := range deps {
		for _, a := range d.attributes {
			attnums.Add(a)
		}
	}
	members := attnums.Members()
	attrSel := make([]float64, len(members))
	for k, attnum := range members {
		var attrClauses []expression.Expr
		for i, a := range listAttnums {
			if a == attnum {
				attrClauses = append(attrClauses, clauses[i])
				estimated.Add(i)
			}
		}
		attrSel[k] = sctx.simpleSelectivity(attrClauses)
	}

	// Chains like a => b => c keep b => c after a => b, so walking backwards
	// conditions b on a before c is conditioned on b.
	for i := len(deps) - 1; i >= 0; i-- {
		d := deps[i]
		s1 := 1.0
		for _, a := range d.attributes[:len(d.attributes)-1] {
			s1 *= attrSel[attnums.MemberIndex(a)]
		}
		idx := attnums.MemberIndex(d.implied())
		s2 := attrSel[idx]
		f := d.degree
		if s1 <= s2 {
			attrSel[idx] = f + (1-f)*s2
		} else {
			attrSel[idx] = f*s2/s1 + (1-f)*s2
		}
	}

	sel := 1.0
	for _, s := range attrSel {
		sel *= s
	}
	return clampProbability(sel)
}
