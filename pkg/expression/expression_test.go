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

package expression

import (
	"testing"

	"github.com/pingcap/extstats/pkg/types"
	"github.com/stretchr/testify/require"
)

func intVar(attno int16) *Var {
	return &Var{RelID: 1, AttNo: attno, Type: types.Int4ID}
}

func intConst(v int64) *Const {
	return &Const{Type: types.Int4ID, Value: types.NewIntDatum(v)}
}

func TestEqual(t *testing.T) {
	reg := types.NewRegistry()
	ops := NewOperatorRegistry(reg)
	eq := ops.MustLookupByName(OpNameEQ, types.Int4ID, types.Int4ID)

	a := &FuncExpr{Name: "plus", Args: []Expr{intVar(1), intConst(1)}, ResultType: types.Int8ID}
	b := &FuncExpr{Name: "plus", Args: []Expr{intVar(1), intConst(1)}, ResultType: types.Int8ID}
	c := &FuncExpr{Name: "plus", Args: []Expr{intVar(2), intConst(1)}, ResultType: types.Int8ID}
	require.True(t, Equal(a, b))
	require.Equal(t, Fingerprint(a), Fingerprint(b))
	require.False(t, Equal(a, c))
	require.False(t, Equal(a, nil))
	require.True(t, Equal(nil, nil))

	x := NewOp(eq.ID, intVar(1), intConst(5))
	y := NewOp(eq.ID, intVar(1), intConst(5))
	z := NewOp(eq.ID, intVar(1), intConst(6))
	require.True(t, Equal(x, y))
	require.False(t, Equal(x, z))
	require.False(t, Equal(x, NewNot(x)))
}

func TestPullVars(t *testing.T) {
	e := NewAnd(
		NewOp(1, intVar(3), intConst(1)),
		NewOp(1, &Var{RelID: 2, AttNo: 1, Type: types.Int4ID}, intVar(1)),
		&NullTest{Arg: &Var{RelID: 7, AttNo: 4, LevelsUp: 1}},
	)
	require.Equal(t, []int{1, 2}, PullVarRelids(e))
	require.Equal(t, []int16{1, 3}, PullVarAttnos(e, 1))
	require.True(t, ContainsVar(e))
	require.False(t, IsPseudoConstant(e))
	require.True(t, IsPseudoConstant(intConst(1)))
	require.False(t, IsPseudoConstant(&FuncExpr{Name: "random", Volatile: true}))

	ri := NewRestrictInfo(NewOp(1, intConst(1), intConst(1)))
	require.True(t, ri.Pseudoconstant)
	require.Empty(t, ri.ClauseRelids)
}

func TestEvaluator(t *testing.T) {
	reg := types.NewRegistry()
	ev := NewDefaultEvaluator(reg)
	eq := ev.Ops.MustLookupByName(OpNameEQ, types.Int4ID, types.Int4ID)
	lt := ev.Ops.MustLookupByName(OpNameLT, types.Int4ID, types.Int4ID)
	row := []types.Datum{types.NewIntDatum(5), {}, types.NewStringDatum("AbC")}

	d, err := ev.Eval(NewOp(eq.ID, intVar(1), intConst(5)), row)
	require.NoError(t, err)
	require.True(t, d.GetBool())

	// NULL = 5 is NULL, and NULL AND false is false.
	d, err = ev.Eval(NewOp(eq.ID, intVar(2), intConst(5)), row)
	require.NoError(t, err)
	require.True(t, d.IsNull())
	d, err = ev.Eval(NewAnd(NewOp(eq.ID, intVar(2), intConst(5)), NewOp(lt.ID, intVar(1), intConst(0))), row)
	require.NoError(t, err)
	require.False(t, d.IsNull())
	require.False(t, d.GetBool())

	d, err = ev.Eval(&ScalarArrayOpExpr{OpID: eq.ID, UseOr: true, Args: []Expr{
		intVar(1), &ArrayConst{ElemType: types.Int4ID, Elems: []types.Datum{types.NewIntDatum(1), types.NewIntDatum(5)}},
	}}, row)
	require.NoError(t, err)
	require.True(t, d.GetBool())

	d, err = ev.Eval(&FuncExpr{Name: "lower", Args: []Expr{&Var{RelID: 1, AttNo: 3, Type: types.TextID}}, ResultType: types.TextID}, row)
	require.NoError(t, err)
	require.Equal(t, "abc", d.GetString())

	d, err = ev.Eval(&NullTest{Arg: intVar(2), NullTestType: IsNull}, row)
	require.NoError(t, err)
	require.True(t, d.GetBool())

	_, err = ev.Eval(&FuncExpr{Name: "mod", Args: []Expr{intVar(1), intConst(0)}}, row)
	require.Error(t, err)
	_, err = ev.Eval(intVar(9), row)
	require.Error(t, err)
}

func TestLike(t *testing.T) {
	require.True(t, likeMatch([]byte("hello"), []byte("h%o")))
	require.True(t, likeMatch([]byte("hello"), []byte("_ello")))
	require.False(t, likeMatch([]byte("hello"), []byte("h_o")))
	require.True(t, likeMatch([]byte("50%"), []byte(`50\%`)))
	require.True(t, likeMatch([]byte(""), []byte("%")))

	reg := types.NewRegistry()
	ops := NewOperatorRegistry(reg)
	like := ops.MustLookupByName(OpNameLike, types.TextID, types.TextID)
	require.False(t, like.Leakproof)
	require.Equal(t, SelOther, like.Restrict)
	eq := ops.MustLookupByName(OpNameEQ, types.TextID, types.TextID)
	require.True(t, eq.Leakproof)
	require.Equal(t, SelEq, eq.Restrict)
}
