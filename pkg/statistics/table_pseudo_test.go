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
	"testing"

	"github.com/pingcap/extstats/pkg/expression"
	"github.com/pingcap/extstats/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestPseudoSelectivity(t *testing.T) {
	reg := types.NewRegistry()
	ops := expression.NewOperatorRegistry(reg)
	sel := PseudoSelectivity(ops)
	col := &expression.Var{RelID: 1, AttNo: 1, Type: types.Int4ID}
	one := &expression.Const{Type: types.Int4ID, Value: types.NewIntDatum(1)}
	op := func(name string) expression.Expr {
		return expression.NewOp(ops.MustLookupByName(name, types.Int4ID, types.Int4ID).ID, col, one)
	}

	require.Equal(t, 1.0, sel(nil))
	require.InDelta(t, 0.001, sel([]expression.Expr{op(expression.OpNameEQ)}), 1e-12)
	require.InDelta(t, 0.999, sel([]expression.Expr{op(expression.OpNameNE)}), 1e-12)
	require.InDelta(t, 1.0/3, sel([]expression.Expr{op(expression.OpNameLT)}), 1e-12)
	require.InDelta(t, 1.0/9, sel([]expression.Expr{op(expression.OpNameGE), expression.NewRestrictInfo(op(expression.OpNameLE))}), 1e-12)
	require.InDelta(t, 0.999, sel([]expression.Expr{expression.NewNot(op(expression.OpNameEQ))}), 1e-12)
	require.InDelta(t, 0.001, sel([]expression.Expr{&expression.NullTest{Arg: col}}), 1e-12)
	require.InDelta(t, 0.999, sel([]expression.Expr{&expression.NullTest{Arg: col, NullTestType: expression.IsNotNull}}), 1e-12)
	require.InDelta(t, 1-0.999*0.999, sel([]expression.Expr{expression.NewOr(op(expression.OpNameEQ), op(expression.OpNameEQ))}), 1e-12)

	in := &expression.ScalarArrayOpExpr{
		OpID:  ops.MustLookupByName(expression.OpNameEQ, types.Int4ID, types.Int4ID).ID,
		UseOr: true,
		Args:  []expression.Expr{col, &expression.ArrayConst{ElemType: types.Int4ID, Elems: types.MakeDatums(1, 2, 3)}},
	}
	require.InDelta(t, 1-0.999*0.999*0.999, sel([]expression.Expr{in}), 1e-12)
	require.Equal(t, 0.5, sel([]expression.Expr{col}))
}
