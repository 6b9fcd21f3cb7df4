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

	"github.com/pingcap/errors"
	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/pingcap/extstats/pkg/util/dbterror/exterrors"
)

// resultMerge folds match into value for an AND (isOr false) or OR list.
func resultMerge(value, isOr, match bool) bool {
	if isOr {
		return value || match
	}
	return value && match
}

// resultIsFinal reports whether no later clause can change value.
func resultIsFinal(value, isOr bool) bool {
	if isOr {
		return value
	}
	return !value
}

func incompatibleClause(clause expression.Expr) error {
	return exterrors.ErrInternal.GenWithStackByArgs(fmt.Sprintf("clause %s is not compatible with the MCV list", clause))
}

func checkMCVShape(stat *extstats.StatisticExtInfo, mcv *extstats.MCVList) error {
	if mcv.NDimensions != stat.NumKeys() || len(mcv.Types) != mcv.NDimensions {
		return exterrors.ErrBadBlob.GenWithStackByArgs(extstats.KindNameMCV,
			fmt.Sprintf("list has %d dimensions but statistics object %d has %d keys", mcv.NDimensions, stat.StatOID, stat.NumKeys()))
	}
	return nil
}

// mcvDimension maps a column or stored expression to its MCV dimension and
// the collation used to compare its values.
func (sctx *SelectivityContext) mcvDimension(e expression.Expr, stat *extstats.StatisticExtInfo, mcv *extstats.MCVList) (int, types.Collation, error) {
	e = expression.StripRelabel(e)
	idx := -1
	if v, ok := e.(*expression.Var); ok {
		idx = stat.Keys.MemberIndex(int(v.AttNo))
	} else if ref := stat.MatchExpr(e); ref != 0 {
		idx = stat.Keys.Len() + int(-ref) - 1
	}
	if idx < 0 || idx >= mcv.NDimensions {
		return 0, types.InvalidCollation, incompatibleClause(e)
	}
	tp, err := sctx.Types.Lookup(mcv.Types[idx])
	if err != nil {
		return 0, types.InvalidCollation, errors.Trace(err)
	}
	return idx, tp.DefaultCollation(), nil
}

// MCVGetMatchBitmap evaluates clauses against every item of mcv. For an AND
// list an item matches when all clauses hold, for an OR list when any does.
// NULL values never match.
func (sctx *SelectivityContext) MCVGetMatchBitmap(clauses []expression.Expr, stat *extstats.StatisticExtInfo,
	mcv *extstats.MCVList, isOr bool) ([]bool, error) {
	matches := make([]bool, len(mcv.Items))
	if !isOr {
		for i := range matches {
			matches[i] = true
		}
	}
	for _, clause := range clauses {
		if rinfo, ok := clause.(*expression.RestrictInfo); ok {
			clause = rinfo.Clause
		}
		clause = expression.StripRelabel(clause)
		var err error
		switch x := clause.(type) {
		case *expression.OpExpr:
			err = sctx.matchOpExpr(x, stat, mcv, isOr, matches)
		case *expression.ScalarArrayOpExpr:
			err = sctx.matchScalarArrayOpExpr(x, stat, mcv, isOr, matches)
		case *expression.NullTest:
			var idx int
			if idx, _, err = sctx.mcvDimension(x.Arg, stat, mcv); err != nil {
				break
			}
			for i, item := range mcv.Items {
				if resultIsFinal(matches[i], isOr) {
					continue
				}
				match := item.IsNull[idx] == (x.NullTestType == expression.IsNull)
				matches[i] = resultMerge(matches[i], isOr, match)
			}
		case *expression.BoolExpr:
			err = sctx.matchBoolExpr(x, stat, mcv, isOr, matches)
		default:
			// A boolean column or a boolean stored expression.
			var idx int
			if idx, _, err = sctx.mcvDimension(x, stat, mcv); err != nil {
				break
			}
			for i, item := range mcv.Items {
				match := !item.IsNull[idx] && item.Values[idx].GetBool()
				matches[i] = resultMerge(matches[i], isOr, match)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return matches, nil
}

func (sctx *SelectivityContext) lookupOperator(id expression.OperatorID) (*expression.Operator, error) {
	op, ok := sctx.Ops.Lookup(id)
	if !ok {
		return nil, exterrors.ErrInternal.GenWithStackByArgs(fmt.Sprintf("operator %d does not exist", id))
	}
	return op, nil
}

func (sctx *SelectivityContext) matchOpExpr(x *expression.OpExpr, stat *extstats.StatisticExtInfo,
	mcv *extstats.MCVList, isOr bool, matches []bool) error {
	expr, arg, exprOnLeft, ok := examineOpclauseArgs(x.Args)
	cst, isConst := arg.(*expression.Const)
	if !ok || !isConst {
		return incompatibleClause(x)
	}
	op, err := sctx.lookupOperator(x.OpID)
	if err != nil {
		return err
	}
	idx, coll, err := sctx.mcvDimension(expr, stat, mcv)
	if err != nil {
		return err
	}
	for i, item := range mcv.Items {
		// Operators are strict.
		if item.IsNull[idx] || cst.Value.IsNull() {
			matches[i] = resultMerge(matches[i], isOr, false)
			continue
		}
		if resultIsFinal(matches[i], isOr) {
			continue
		}
		var match bool
		if exprOnLeft {
			match = op.Fn(item.Values[idx], cst.Value, coll)
		} else {
			match = op.Fn(cst.Value, item.Values[idx], coll)
		}
		matches[i] = resultMerge(matches[i], isOr, match)
	}
	return nil
}

func (sctx *SelectivityContext) matchScalarArrayOpExpr(x *expression.ScalarArrayOpExpr, stat *extstats.StatisticExtInfo,
	mcv *extstats.MCVList, isOr bool, matches []bool) error {
	expr, arg, exprOnLeft, ok := examineOpclauseArgs(x.Args)
	arr, isArray := arg.(*expression.ArrayConst)
	if !ok || !exprOnLeft || !isArray {
		return incompatibleClause(x)
	}
	op, err := sctx.lookupOperator(x.OpID)
	if err != nil {
		return err
	}
	idx, coll, err := sctx.mcvDimension(expr, stat, mcv)
	if err != nil {
		return err
	}
	if arr.IsNull {
		for i := range matches {
			matches[i] = resultMerge(matches[i], isOr, false)
		}
		return nil
	}
	for i, item := range mcv.Items {
		if item.IsNull[idx] {
			matches[i] = resultMerge(matches[i], isOr, false)
			continue
		}
		if resultIsFinal(matches[i], isOr) {
			continue
		}
		// ANY behaves as an OR list over the elements, ALL as an AND list.
		match := !x.UseOr
		for _, elem := range arr.Elems {
			if elem.IsNull() {
				match = resultMerge(match, x.UseOr, false)
				continue
			}
			if resultIsFinal(match, x.UseOr) {
				break
			}
			match = resultMerge(match, x.UseOr, op.Fn(item.Values[idx], elem, coll))
		}
		matches[i] = resultMerge(matches[i], isOr, match)
	}
	return nil
}

func (sctx *SelectivityContext) matchBoolExpr(x *expression.BoolExpr, stat *extstats.StatisticExtInfo,
	mcv *extstats.MCVList, isOr bool, matches []bool) error {
	if len(x.Args) == 0 {
		return incompatibleClause(x)
	}
	var (
		sub    []bool
		negate bool
		err    error
	)
	switch x.BoolOp {
	case expression.AndExpr, expression.OrExpr:
		sub, err = sctx.MCVGetMatchBitmap(x.Args, stat, mcv, x.BoolOp == expression.OrExpr)
	case expression.NotExpr:
		sub, err = sctx.MCVGetMatchBitmap(x.Args, stat, mcv, false)
		negate = true
	default:
		return incompatibleClause(x)
	}
	if err != nil {
		return err
	}
	for i := range matches {
		matches[i] = resultMerge(matches[i], isOr, sub[i] != negate)
	}
	return nil
}

// MCVClauselistSelectivity estimates an AND list of clauses with the MCV list.
// It returns the frequency of the matching items, their base frequency and
// the total frequency of the list.
func (sctx *SelectivityContext) MCVClauselistSelectivity(clauses []expression.Expr, stat *extstats.StatisticExtInfo,
	mcv *extstats.MCVList) (sel, baseSel, totalSel float64, err error) {
	if err = checkMCVShape(stat, mcv); err != nil {
		return 0, 0, 0, err
	}
	matches, err := sctx.MCVGetMatchBitmap(clauses, stat, mcv, false)
	if err != nil {
		return 0, 0, 0, err
	}
	for i, item := range mcv.Items {
		totalSel += item.Frequency
		if matches[i] {
			sel += item.Frequency
			baseSel += item.BaseFrequency
		}
	}
	return sel, baseSel, totalSel, nil
}

// MCVOrEstimate is the MCV estimate of one clause of an OR list, and of its
// overlap with the clauses before it.
type MCVOrEstimate struct {
	Sel            float64
	BaseSel        float64
	OverlapSel     float64
	OverlapBaseSel float64
	TotalSel       float64
}

// MCVClauseSelectivityOr estimates clause as the next arm of an OR list.
// orMatches holds the items matched by the previous arms and is updated to
// include the items matched by clause; it must have one entry per item.
func (sctx *SelectivityContext) MCVClauseSelectivityOr(clause expression.Expr, stat *extstats.StatisticExtInfo,
	mcv *extstats.MCVList, orMatches []bool) (MCVOrEstimate, error) {
	var est MCVOrEstimate
	if err := checkMCVShape(stat, mcv); err != nil {
		return est, err
	}
	if len(orMatches) != len(mcv.Items) {
		return est, exterrors.ErrInternal.GenWithStackByArgs(
			fmt.Sprintf("OR bitmap has %d entries for %d MCV items", len(orMatches), len(mcv.Items)))
	}
	matches, err := sctx.MCVGetMatchBitmap([]expression.Expr{clause}, stat, mcv, false)
	if err != nil {
		return est, err
	}
	for i, item := range mcv.Items {
		est.TotalSel += item.Frequency
		if matches[i] {
			est.Sel += item.Frequency
			est.BaseSel += item.BaseFrequency
			if orMatches[i] {
				est.OverlapSel += item.Frequency
				est.OverlapBaseSel += item.BaseFrequency
			}
		}
		orMatches[i] = orMatches[i] || matches[i]
	}
	return est, nil
}

// MCVCombineSelectivities combines the simple estimate of clauses with their
// MCV estimate. The part of the simple estimate not explained by the matching
// MCV items is added to the MCV estimate, capped by the frequency the MCV
// list does not cover.
func MCVCombineSelectivities(simpleSel, mcvSel, mcvBaseSel, mcvTotalSel float64) float64 {
	otherSel := clampProbability(simpleSel - mcvBaseSel)
	if otherSel > 1-mcvTotalSel {
		otherSel = 1 - mcvTotalSel
	}
	return clampProbability(mcvSel + otherSel)
}
