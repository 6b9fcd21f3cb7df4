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
	"math"

	"github.com/pingcap/extstats/pkg/expression"
)

// Pseudo estimation rates, used when a column has no statistics.
const (
	// PseudoRowCount is the row count of a relation without statistics.
	PseudoRowCount = 10000

	pseudoEqualRate   = 1000
	pseudoLessRate    = 3
	pseudoNullRate    = 1000
	pseudoUnknownRate = 0.5
)

// PseudoSelectivity returns a selectivity function that estimates every
// clause independently with the pseudo rates and multiplies the results.
// It serves as the per-column estimate when no histograms are available.
func PseudoSelectivity(ops *expression.OperatorRegistry) func(clauses []expression.Expr) float64 {
	return func(clauses []expression.Expr) float64 {
		sel := 1.0
		for _, c := range clauses {
			sel *= pseudoClauseSelectivity(ops, c)
		}
		return sel
	}
}

func pseudoClauseSelectivity(ops *expression.OperatorRegistry, clause expression.Expr) float64 {
	switch x := clause.(type) {
	case *expression.RestrictInfo:
		return pseudoClauseSelectivity(ops, x.Clause)
	case *expression.OpExpr:
		return pseudoOperatorSelectivity(ops, x.OpID)
	case *expression.ScalarArrayOpExpr:
		s := pseudoOperatorSelectivity(ops, x.OpID)
		n := 1
		if len(x.Args) == 2 {
			if arr, ok := x.Args[1].(*expression.ArrayConst); ok && !arr.IsNull {
				n = len(arr.Elems)
			}
		}
		if x.UseOr {
			return 1 - math.Pow(1-s, float64(n))
		}
		return math.Pow(s, float64(n))
	case *expression.NullTest:
		if x.NullTestType == expression.IsNull {
			return 1.0 / pseudoNullRate
		}
		return 1 - 1.0/pseudoNullRate
	case *expression.BoolExpr:
		switch x.BoolOp {
		case expression.NotExpr:
			return 1 - pseudoClauseSelectivity(ops, x.Args[0])
		case expression.OrExpr:
			sel := 0.0
			for _, arg := range x.Args {
				s := pseudoClauseSelectivity(ops, arg)
				sel = sel + s - sel*s
			}
			return sel
		default:
			sel := 1.0
			for _, arg := range x.Args {
				sel *= pseudoClauseSelectivity(ops, arg)
			}
			return sel
		}
	}
	return pseudoUnknownRate
}

func pseudoOperatorSelectivity(ops *expression.OperatorRegistry, opID expression.OperatorID) float64 {
	op, ok := ops.Lookup(opID)
	if !ok {
		return pseudoUnknownRate
	}
	switch op.Restrict {
	case expression.SelEq:
		return 1.0 / pseudoEqualRate
	case expression.SelNeq:
		return 1 - 1.0/pseudoEqualRate
	case expression.SelScalarLt, expression.SelScalarLe, expression.SelScalarGt, expression.SelScalarGe:
		return 1.0 / pseudoLessRate
	}
	return pseudoUnknownRate
}
