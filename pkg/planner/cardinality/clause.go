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

	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/statistics/extstats"
	"github.com/pingcap/extstats/pkg/types"
)

// ClauseInfo is what a recognized clause references: plain columns and
// expressions that have to match stored expressions.
type ClauseInfo struct {
	Attnums *extstats.AttrSet
	Exprs   []expression.Expr
}

func (ci *ClauseInfo) isEmpty() bool {
	return ci == nil || (ci.Attnums.IsEmpty() && len(ci.Exprs) == 0)
}

// isSimple reports whether the clause references one column or one expression.
func (ci *ClauseInfo) isSimple() bool {
	return (ci.Attnums.Len() == 1 && len(ci.Exprs) == 0) || (ci.Attnums.IsEmpty() && len(ci.Exprs) == 1)
}

// unwrapRestrictInfo returns the bare clause, or false when the RestrictInfo
// cannot be estimated on relid alone.
func unwrapRestrictInfo(clause expression.Expr, relid int) (expression.Expr, bool) {
	rinfo, ok := clause.(*expression.RestrictInfo)
	if !ok {
		return clause, true
	}
	if rinfo.Pseudoconstant {
		return nil, false
	}
	if len(rinfo.ClauseRelids) != 1 || rinfo.ClauseRelids[0] != relid {
		return nil, false
	}
	return rinfo.Clause, true
}

// examineOpclauseArgs splits a two-argument operator into the expression and
// the constant side, looking through relabeling.
func examineOpclauseArgs(args []expression.Expr) (expr expression.Expr, cst expression.Expr, exprOnLeft bool, ok bool) {
	if len(args) != 2 {
		return nil, nil, false, false
	}
	left, right := expression.StripRelabel(args[0]), expression.StripRelabel(args[1])
	switch {
	case isConstArg(right):
		return left, right, true, true
	case isConstArg(left):
		return right, left, false, true
	}
	return nil, nil, false, false
}

func isConstArg(e expression.Expr) bool {
	switch e.(type) {
	case *expression.Const, *expression.ArrayConst:
		return true
	}
	return false
}

func isUserVar(v *expression.Var, relid int) bool {
	return v.RelID == relid && v.LevelsUp == 0 && v.AttNo > 0
}

// supportedMCVOperator reports whether op can be evaluated against MCV items.
func (sctx *SelectivityContext) supportedMCVOperator(id expression.OperatorID, rel *RelOptInfo) bool {
	op, ok := sctx.Ops.Lookup(id)
	if !ok {
		return false
	}
	switch op.Restrict {
	case expression.SelEq, expression.SelNeq,
		expression.SelScalarLt, expression.SelScalarLe, expression.SelScalarGt, expression.SelScalarGe:
	default:
		return false
	}
	return !rel.SecurityBarrier || op.Leakproof
}

// RecognizeMCVClause reports whether clause can be estimated with an MCV
// list of rel, and which columns and expressions it references.
func (sctx *SelectivityContext) RecognizeMCVClause(clause expression.Expr, rel *RelOptInfo) (*ClauseInfo, bool) {
	clause, ok := unwrapRestrictInfo(clause, rel.RelID)
	if !ok {
		return nil, false
	}
	info := &ClauseInfo{Attnums: extstats.NewAttrSet()}
	if !sctx.mcvCompatibleClause(clause, rel, info) {
		return nil, false
	}
	for _, e := range info.Exprs {
		if !expressionOnRelation(e, rel.RelID) {
			return nil, false
		}
	}
	return info, true
}

// mcvCompatibleClause checks a clause in boolean position.
func (sctx *SelectivityContext) mcvCompatibleClause(clause expression.Expr, rel *RelOptInfo, info *ClauseInfo) bool {
	clause = expression.StripRelabel(clause)
	if v, ok := clause.(*expression.Var); ok && v.Type != types.BoolID {
		return false
	}
	return sctx.mcvCompatible(clause, rel, info)
}

func (sctx *SelectivityContext) mcvCompatible(e expression.Expr, rel *RelOptInfo, info *ClauseInfo) bool {
	e = expression.StripRelabel(e)
	switch x := e.(type) {
	case *expression.Var:
		if !isUserVar(x, rel.RelID) {
			return false
		}
		info.Attnums.Add(int(x.AttNo))
		return true
	case *expression.OpExpr:
		expr, cst, _, ok := examineOpclauseArgs(x.Args)
		if !ok {
			return false
		}
		if _, isConst := cst.(*expression.Const); !isConst {
			return false
		}
		if !sctx.supportedMCVOperator(x.OpID, rel) {
			return false
		}
		if _, isVar := expr.(*expression.Var); isVar {
			return sctx.mcvCompatible(expr, rel, info)
		}
		info.Exprs = append(info.Exprs, expr)
		return true
	case *expression.ScalarArrayOpExpr:
		expr, cst, exprOnLeft, ok := examineOpclauseArgs(x.Args)
		if !ok || !exprOnLeft {
			return false
		}
		if _, isArray := cst.(*expression.ArrayConst); !isArray {
			return false
		}
		if !sctx.supportedMCVOperator(x.OpID, rel) {
			return false
		}
		if _, isVar := expr.(*expression.Var); isVar {
			return sctx.mcvCompatible(expr, rel, info)
		}
		info.Exprs = append(info.Exprs, expr)
		return true
	case *expression.BoolExpr:
		if len(x.Args) == 0 {
			return false
		}
		for _, arg := range x.Args {
			if !sctx.mcvCompatibleClause(arg, rel, info) {
				return false
			}
		}
		return true
	case *expression.NullTest:
		if _, isVar := expression.StripRelabel(x.Arg).(*expression.Var); isVar {
			return sctx.mcvCompatible(x.Arg, rel, info)
		}
		info.Exprs = append(info.Exprs, x.Arg)
		return true
	case *expression.RestrictInfo:
		return false
	}
	// A bare boolean expression, matched against stored expressions later.
	info.Exprs = append(info.Exprs, e)
	return true
}

// expressionOnRelation reports whether e only reads columns of relid at the
// current level and is immutable.
func expressionOnRelation(e expression.Expr, relid int) bool {
	if expression.ContainsVolatile(e) {
		return false
	}
	return expression.Walk(e, func(n expression.Expr) bool {
		v, ok := n.(*expression.Var)
		return !ok || isUserVar(v, relid)
	})
}

// dependencyTarget is what a clause compatible with functional dependencies
// constrains: either one column or one stored expression.
type dependencyTarget struct {
	attnum int16
	expr   expression.Expr
}

func (t dependencyTarget) equal(o dependencyTarget) bool {
	if t.expr == nil || o.expr == nil {
		return t.expr == nil && o.expr == nil && t.attnum == o.attnum
	}
	return expression.Equal(t.expr, o.expr)
}

// RecognizeDependencyClause reports whether clause is an equality on a single
// column of rel. It returns the column, or 0 and the expression when the
// clause constrains an expression stored by some statistics object of rel.
func (sctx *SelectivityContext) RecognizeDependencyClause(clause expression.Expr, rel *RelOptInfo) (int16, expression.Expr, bool) {
	clause, ok := unwrapRestrictInfo(clause, rel.RelID)
	if !ok {
		return 0, nil, false
	}
	target, ok := sctx.dependencyCompatible(clause, rel)
	if !ok {
		return 0, nil, false
	}
	return target.attnum, target.expr, true
}

func (sctx *SelectivityContext) dependencyOperator(id expression.OperatorID, rel *RelOptInfo) bool {
	op, ok := sctx.Ops.Lookup(id)
	if !ok || op.Restrict != expression.SelEq {
		return false
	}
	return !rel.SecurityBarrier || op.Leakproof
}

func (sctx *SelectivityContext) dependencyCompatible(clause expression.Expr, rel *RelOptInfo) (dependencyTarget, bool) {
	var operand expression.Expr
	switch x := clause.(type) {
	case *expression.OpExpr:
		if len(x.Args) != 2 {
			return dependencyTarget{}, false
		}
		switch {
		case expression.IsPseudoConstant(x.Args[1]):
			operand = x.Args[0]
		case expression.IsPseudoConstant(x.Args[0]):
			operand = x.Args[1]
		default:
			return dependencyTarget{}, false
		}
		if !sctx.dependencyOperator(x.OpID, rel) {
			return dependencyTarget{}, false
		}
	case *expression.ScalarArrayOpExpr:
		// Only IN lists; ALL over several values cannot hold for one value.
		if !x.UseOr || len(x.Args) != 2 || !expression.IsPseudoConstant(x.Args[1]) {
			return dependencyTarget{}, false
		}
		if !sctx.dependencyOperator(x.OpID, rel) {
			return dependencyTarget{}, false
		}
		operand = x.Args[0]
	case *expression.BoolExpr:
		switch x.BoolOp {
		case expression.OrExpr:
			return sctx.dependencyCompatibleOr(x, rel)
		case expression.NotExpr:
			if len(x.Args) != 1 {
				return dependencyTarget{}, false
			}
			// NOT x is x = false.
			operand = x.Args[0]
		default:
			return dependencyTarget{}, false
		}
	default:
		// A boolean x is x = true.
		operand = clause
	}
	return sctx.dependencyOperand(operand, rel)
}

// dependencyCompatibleOr accepts an OR whose arms all constrain the same
// column or expression.
func (sctx *SelectivityContext) dependencyCompatibleOr(or *expression.BoolExpr, rel *RelOptInfo) (dependencyTarget, bool) {
	if len(or.Args) == 0 {
		return dependencyTarget{}, false
	}
	var first dependencyTarget
	for i, arm := range or.Args {
		arm, ok := unwrapRestrictInfo(arm, rel.RelID)
		if !ok {
			return dependencyTarget{}, false
		}
		t, ok := sctx.dependencyCompatible(arm, rel)
		if !ok {
			return dependencyTarget{}, false
		}
		if i == 0 {
			first = t
		} else if !first.equal(t) {
			return dependencyTarget{}, false
		}
	}
	return first, true
}

func (sctx *SelectivityContext) dependencyOperand(operand expression.Expr, rel *RelOptInfo) (dependencyTarget, bool) {
	operand = expression.StripRelabel(operand)
	if v, ok := operand.(*expression.Var); ok {
		if !isUserVar(v, rel.RelID) {
			return dependencyTarget{}, false
		}
		return dependencyTarget{attnum: v.AttNo}, true
	}
	if !expressionOnRelation(operand, rel.RelID) || !expression.ContainsVar(operand) {
		return dependencyTarget{}, false
	}
	for _, stat := range rel.Stats {
		if stat.Kind != extstats.KindDependencies {
			continue
		}
		if slices.ContainsFunc(stat.Exprs, func(e expression.Expr) bool { return expression.Equal(e, operand) }) {
			return dependencyTarget{expr: operand}, true
		}
	}
	return dependencyTarget{}, false
}
